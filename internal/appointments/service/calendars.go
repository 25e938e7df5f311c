package service

import (
	"context"
	"strings"
	"time"

	"voicelead_backend/internal/crm"
)

const calendarCacheTTL = 10 * time.Minute

// Service types a calendar can be picked by.
const (
	ServiceRepair       = "repair"
	ServiceMaintenance  = "maintenance"
	ServiceEstimate     = "estimate"
	ServiceInstallation = "installation"
)

var calendarKeywords = map[string][]string{
	ServiceRepair:       {"diagnostic", "service call", "repair", "service"},
	ServiceMaintenance:  {"diagnostic", "service call", "repair", "service"},
	ServiceEstimate:     {"proposal", "estimate", "sales"},
	ServiceInstallation: {"install"},
}

// ResolveCalendar returns calendarID when set. Otherwise it picks the first
// calendar whose name matches the service type, falling back to the first
// calendar. An empty result means the location has no calendars.
func (s *Service) ResolveCalendar(ctx context.Context, calendarID, serviceType string) (string, error) {
	if id := strings.TrimSpace(calendarID); id != "" {
		return id, nil
	}

	calendars, err := s.listCalendars(ctx)
	if err != nil {
		return "", err
	}
	if len(calendars) == 0 {
		return "", nil
	}

	keywords := calendarKeywords[strings.ToLower(strings.TrimSpace(serviceType))]
	for _, cal := range calendars {
		name := strings.ToLower(cal.Name)
		for _, kw := range keywords {
			if strings.Contains(name, kw) {
				return cal.ID, nil
			}
		}
	}
	return calendars[0].ID, nil
}

func (s *Service) listCalendars(ctx context.Context) ([]crm.Calendar, error) {
	s.calMu.Lock()
	defer s.calMu.Unlock()

	if s.calendars != nil && s.now().Sub(s.calendarsAt) < calendarCacheTTL {
		return s.calendars, nil
	}

	calendars, err := s.store.ListCalendars(ctx)
	if err != nil {
		return nil, err
	}
	if calendars == nil {
		calendars = []crm.Calendar{}
	}
	s.calendars = calendars
	s.calendarsAt = s.now()
	return calendars, nil
}
