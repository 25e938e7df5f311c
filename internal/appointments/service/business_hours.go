package service

import (
	"fmt"
	"time"
)

const clockDisplay = "3:04 PM"

// BusinessHoursStatus describes whether the business is open right now.
type BusinessHoursStatus struct {
	IsOpen      bool   `json:"isOpen"`
	Message     string `json:"message"`
	Day         string `json:"day"`
	Timezone    string `json:"timezone"`
	CurrentTime string `json:"currentTime"`
	CurrentDate string `json:"currentDate"`
	HoursToday  string `json:"hoursToday"`
	NextOpen    string `json:"nextOpen,omitempty"`
}

// CheckBusinessHours reports the open/closed state at the current time.
func (s *Service) CheckBusinessHours() BusinessHoursStatus {
	return s.businessHoursAt(s.now())
}

func (s *Service) businessHoursAt(at time.Time) BusinessHoursStatus {
	now := at.In(s.hours.Location)
	open, closeAt := s.hours.OpenOn(now), s.hours.CloseOn(now)
	tz := s.hours.Location.String()
	regular := fmt.Sprintf("Monday through Friday, %s to %s (%s)", open.Format(clockDisplay), closeAt.Format(clockDisplay), tz)

	status := BusinessHoursStatus{
		Day:         now.Format("Monday"),
		Timezone:    tz,
		CurrentTime: now.Format(clockDisplay),
		CurrentDate: now.Format("2006-01-02"),
		HoursToday:  open.Format(clockDisplay) + " - " + closeAt.Format(clockDisplay),
	}

	switch {
	case !s.hours.IsWorkingDay(now):
		status.HoursToday = "Closed"
		status.NextOpen = s.describeNextOpen(now)
		status.Message = fmt.Sprintf("We're closed today. Our regular hours are %s. We'll be open %s.", regular, status.NextOpen)
	case now.Before(open) || now.After(closeAt):
		status.NextOpen = s.describeNextOpen(now)
		status.Message = fmt.Sprintf("We're currently closed. Our hours today are %s to %s. We'll be open %s.", open.Format(clockDisplay), closeAt.Format(clockDisplay), status.NextOpen)
	default:
		status.IsOpen = true
		status.Message = fmt.Sprintf("We're open now until %s today.", closeAt.Format(clockDisplay))
	}
	return status
}

// nextOpening returns the next opening instant strictly after now.
func (s *Service) nextOpening(now time.Time) time.Time {
	today := midnight(now.In(s.hours.Location))
	for i := 0; i <= 14; i++ {
		day := today.AddDate(0, 0, i)
		if !s.hours.IsWorkingDay(day) {
			continue
		}
		if open := s.hours.OpenOn(day); open.After(now) {
			return open
		}
	}
	return time.Time{}
}

func (s *Service) describeNextOpen(now time.Time) string {
	next := s.nextOpening(now)
	if next.IsZero() {
		return ""
	}
	today := midnight(now.In(s.hours.Location))
	day := midnight(next)
	at := next.Format(clockDisplay)
	switch {
	case day.Equal(today):
		return "today at " + at
	case day.Equal(today.AddDate(0, 0, 1)):
		return "tomorrow at " + at
	default:
		return next.Format("Monday") + " at " + at
	}
}
