// Package cache holds the local, non-authoritative appointment state used
// to narrow what the CRM reports until the CRM catches up.
package cache

import (
	"sort"
	"sync"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// AppointmentCache records recently booked slots so a slot we just booked
// does not reappear as free before the CRM lists the appointment.
// Entries are keyed calendar -> local date -> set of HH:MM slot starts.
type AppointmentCache struct {
	mu   sync.RWMutex
	loc  *time.Location
	step time.Duration
	days map[string]map[string]map[string]struct{}
	now  func() time.Time
}

// NewAppointmentCache returns a cache that files entries by wall-clock date
// in loc. Bookings longer than step occupy one entry per step.
func NewAppointmentCache(loc *time.Location, step time.Duration) *AppointmentCache {
	if loc == nil {
		loc = time.UTC
	}
	if step <= 0 {
		step = time.Hour
	}
	return &AppointmentCache{
		loc:  loc,
		step: step,
		days: make(map[string]map[string]map[string]struct{}),
		now:  time.Now,
	}
}

// Add records a booking on calendarID. A zero end means a single step.
func (c *AppointmentCache) Add(calendarID string, start, end time.Time) {
	if calendarID == "" || start.IsZero() {
		return
	}
	if end.IsZero() || !end.After(start) {
		end = start.Add(c.step)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for t := start.In(c.loc); t.Before(end); t = t.Add(c.step) {
		c.addLocked(calendarID, t)
	}
}

func (c *AppointmentCache) addLocked(calendarID string, t time.Time) {
	byDate, ok := c.days[calendarID]
	if !ok {
		byDate = make(map[string]map[string]struct{})
		c.days[calendarID] = byDate
	}
	date := t.Format(dateLayout)
	slots, ok := byDate[date]
	if !ok {
		slots = make(map[string]struct{})
		byDate[date] = slots
	}
	slots[t.Format(clockLayout)] = struct{}{}
}

// Remove forgets the entry starting at start.
func (c *AppointmentCache) Remove(calendarID string, start time.Time) {
	local := start.In(c.loc)
	date := local.Format(dateLayout)

	c.mu.Lock()
	defer c.mu.Unlock()
	slots, ok := c.days[calendarID][date]
	if !ok {
		return
	}
	delete(slots, local.Format(clockLayout))
	if len(slots) == 0 {
		delete(c.days[calendarID], date)
	}
}

// Has reports whether a slot starting at t is recorded on calendarID.
func (c *AppointmentCache) Has(calendarID string, t time.Time) bool {
	local := t.In(c.loc)
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.days[calendarID][local.Format(dateLayout)][local.Format(clockLayout)]
	return ok
}

// Booked returns the recorded slot starts on calendarID for the local date
// (YYYY-MM-DD), in order.
func (c *AppointmentCache) Booked(calendarID, date string) []time.Time {
	day, err := time.ParseInLocation(dateLayout, date, c.loc)
	if err != nil {
		return nil
	}

	c.mu.RLock()
	clocks := make([]string, 0, len(c.days[calendarID][date]))
	for clock := range c.days[calendarID][date] {
		clocks = append(clocks, clock)
	}
	c.mu.RUnlock()

	sort.Strings(clocks)
	out := make([]time.Time, 0, len(clocks))
	for _, clock := range clocks {
		parsed, err := time.Parse(clockLayout, clock)
		if err != nil {
			continue
		}
		out = append(out, time.Date(day.Year(), day.Month(), day.Day(), parsed.Hour(), parsed.Minute(), 0, 0, c.loc))
	}
	return out
}

// Step is the length each recorded entry blocks.
func (c *AppointmentCache) Step() time.Duration { return c.step }

// Prune drops every date before the local date of before and returns how
// many dates were removed.
func (c *AppointmentCache) Prune(before time.Time) int {
	cutoff := before.In(c.loc).Format(dateLayout)

	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for calendarID, byDate := range c.days {
		for date := range byDate {
			// YYYY-MM-DD compares correctly as a string.
			if date < cutoff {
				delete(byDate, date)
				removed++
			}
		}
		if len(byDate) == 0 {
			delete(c.days, calendarID)
		}
	}
	return removed
}

// Sweep prunes dates before today.
func (c *AppointmentCache) Sweep() int {
	return c.Prune(c.now())
}
