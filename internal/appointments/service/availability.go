package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"voicelead_backend/internal/crm"
	"voicelead_backend/platform/apperr"
	"voicelead_backend/platform/metrics"

	"golang.org/x/sync/errgroup"
)

const (
	defaultWindowDays = 7
	maxWindowDays     = 31
)

// Request asks for free slots. CalendarID may be empty, in which case the
// calendar is picked from ServiceType. Dates are YYYY-MM-DD.
type Request struct {
	CalendarID  string
	ServiceType string
	StartDate   string
	EndDate     string
}

// Slot is a free grid interval.
type Slot struct {
	Start time.Time
	End   time.Time
}

// window is an inclusive range of local dates, both at local midnight.
type window struct {
	first time.Time
	last  time.Time
}

func (w window) bounds() (time.Time, time.Time) {
	return w.first, w.last.AddDate(0, 0, 1)
}

// CheckAvailability returns the free grid slots in the requested window,
// sorted by start.
//
// Conflicting appointments are found by reading the appointments of the
// most recently active contacts, because the CRM cannot list a calendar's
// appointments by date. Bookings held by older contacts are not seen.
// Appointments on every calendar block a slot.
//
// The window is at most 31 days: a later end date is pulled in to
// start + 31 days, and the returned slots stop there. Callers wanting a
// longer range page through it with consecutive requests.
func (s *Service) CheckAvailability(ctx context.Context, req Request) ([]Slot, error) {
	started := time.Now()
	defer func() {
		metrics.AvailabilityDurationSeconds.Observe(time.Since(started).Seconds())
	}()

	calendarID, err := s.ResolveCalendar(ctx, req.CalendarID, req.ServiceType)
	if err != nil {
		return nil, err
	}
	if calendarID == "" {
		s.log.Warn("no calendar available", "service_type", req.ServiceType)
		return []Slot{}, nil
	}

	now := s.now().In(s.hours.Location)
	w := s.normalizeWindow(req.StartDate, req.EndDate, now)

	busy, err := s.fetchBusy(ctx, w, "")
	if err != nil {
		return nil, err
	}
	busy = append(busy, s.cachedBusy(calendarID, w)...)

	slots := s.freeSlots(w, busy, now)
	metrics.AvailabilitySlotsReturned.Observe(float64(len(slots)))
	s.log.Info("availability computed",
		"calendar_id", calendarID,
		"from", w.first.Format("2006-01-02"),
		"to", w.last.Format("2006-01-02"),
		"busy", len(busy),
		"slots", len(slots),
	)
	return slots, nil
}

// normalizeWindow clamps the requested dates. A start in the past, or
// today after closing, moves to tomorrow. A missing or earlier end becomes
// start plus seven days.
func (s *Service) normalizeWindow(startRaw, endRaw string, now time.Time) window {
	loc := s.hours.Location
	today := midnight(now)
	tomorrow := today.AddDate(0, 0, 1)

	start, ok := parseDate(startRaw, loc)
	switch {
	case !ok && strings.TrimSpace(startRaw) == "":
		start = today
	case !ok:
		s.log.Warn("unparseable start date, using tomorrow", "start_date", startRaw)
		start = tomorrow
	}
	if start.Before(today) {
		start = tomorrow
	}
	if start.Equal(today) && !now.Before(s.hours.CloseOn(now)) {
		start = tomorrow
	}

	end, ok := parseDate(endRaw, loc)
	if !ok || end.Before(start) {
		end = start.AddDate(0, 0, defaultWindowDays)
	}
	if limit := start.AddDate(0, 0, maxWindowDays); end.After(limit) {
		end = limit
	}
	return window{first: start, last: end}
}

// fetchBusy reads the appointments of recent contacts and returns those
// overlapping w. skipID drops one appointment, used when rescheduling.
// A contact that has disappeared is skipped. Any other fetch error fails
// the whole read, since a missing contact's bookings would surface as
// free slots.
func (s *Service) fetchBusy(ctx context.Context, w window, skipID string) ([]interval, error) {
	contacts, err := s.store.ListRecentContacts(ctx, s.cfg.RecentContactLimit)
	if err != nil {
		return nil, fmt.Errorf("list recent contacts: %w", err)
	}

	lo, hi := w.bounds()
	var (
		mu   sync.Mutex
		busy []interval
		seen = make(map[string]struct{}, len(contacts))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.FetchConcurrency)
	for _, contact := range contacts {
		contactID := contact.ID
		if contactID == "" {
			continue
		}
		if _, dup := seen[contactID]; dup {
			continue
		}
		seen[contactID] = struct{}{}

		g.Go(func() error {
			appts, err := s.store.GetContactAppointments(gctx, contactID)
			if apperr.Is(err, apperr.KindNotFound) {
				// Deleted after the listing; it holds nothing to conflict with.
				metrics.AvailabilityContactsSkipped.Inc()
				s.log.Warn("skipping vanished contact", "contact_id", contactID)
				return nil
			}
			if err != nil {
				return fmt.Errorf("appointments for contact %s: %w", contactID, err)
			}
			found := s.busyIntervals(appts, lo, hi, skipID)
			if len(found) == 0 {
				return nil
			}
			mu.Lock()
			busy = append(busy, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return busy, nil
}

// busyIntervals converts appointments into intervals within [lo, hi).
// Cancelled appointments are skipped. So are appointments whose start
// cannot be parsed; their slot stays available.
func (s *Service) busyIntervals(appts []crm.Appointment, lo, hi time.Time, skipID string) []interval {
	var out []interval
	for _, appt := range appts {
		if appt.IsCancelled() {
			continue
		}
		if skipID != "" && (appt.ID == skipID || appt.EventID == skipID) {
			continue
		}
		start, ok := ParseTime(appt.StartTime, s.hours.Location)
		if !ok {
			metrics.AppointmentsUnparseable.Inc()
			s.log.Warn("ignoring appointment with unparseable start",
				"appointment_id", appt.ID,
				"calendar_id", appt.CalendarID,
				"start", appt.StartTime,
			)
			continue
		}
		end, ok := ParseTime(appt.EndTime, s.hours.Location)
		if !ok || !end.After(start) {
			end = start.Add(defaultAppointmentLength)
		}
		iv := interval{start: start, end: end}
		if iv.overlaps(lo, hi) {
			out = append(out, iv)
		}
	}
	return out
}

// cachedBusy turns the local booking cache entries for calendarID into
// intervals.
func (s *Service) cachedBusy(calendarID string, w window) []interval {
	step := s.booked.Step()
	var out []interval
	for day := w.first; !day.After(w.last); day = day.AddDate(0, 0, 1) {
		for _, start := range s.booked.Booked(calendarID, day.Format("2006-01-02")) {
			out = append(out, interval{start: start, end: start.Add(step)})
		}
	}
	return out
}

// freeSlots generates the grid for every working day in w and drops slots
// that overlap busy or that already started.
func (s *Service) freeSlots(w window, busy []interval, now time.Time) []Slot {
	step := s.hours.SlotDuration
	slots := make([]Slot, 0)
	for day := w.first; !day.After(w.last); day = day.AddDate(0, 0, 1) {
		if !s.hours.IsWorkingDay(day) {
			continue
		}
		closeAt := s.hours.CloseOn(day)
		for start := s.hours.OpenOn(day); !start.Add(step).After(closeAt); start = start.Add(step) {
			end := start.Add(step)
			if !start.After(now) {
				continue
			}
			if conflicts(busy, start, end) {
				continue
			}
			slots = append(slots, Slot{Start: start, End: end})
		}
	}
	sort.Slice(slots, func(i, j int) bool {
		return slots[i].Start.Before(slots[j].Start)
	})
	return slots
}

func conflicts(busy []interval, start, end time.Time) bool {
	for _, iv := range busy {
		if iv.overlaps(start, end) {
			return true
		}
	}
	return false
}
