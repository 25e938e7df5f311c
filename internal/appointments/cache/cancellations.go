package cache

import (
	"sync"
	"time"

	"voicelead_backend/internal/crm"
)

// DefaultCancellationTTL is how long a cancellation is remembered.
const DefaultCancellationTTL = 5 * time.Minute

// CancellationCache remembers appointments we cancelled recently. The CRM
// keeps listing a cancelled appointment for a while (and forever when the
// cancellation was only requested through a note), so existing-appointment
// checks filter through this cache.
type CancellationCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]map[string]time.Time // contact -> appointment -> cancelled at
	now     func() time.Time
}

func NewCancellationCache(ttl time.Duration) *CancellationCache {
	if ttl <= 0 {
		ttl = DefaultCancellationTTL
	}
	return &CancellationCache{
		ttl:     ttl,
		entries: make(map[string]map[string]time.Time),
		now:     time.Now,
	}
}

func (c *CancellationCache) Add(contactID, appointmentID string) {
	if contactID == "" || appointmentID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	byAppt, ok := c.entries[contactID]
	if !ok {
		byAppt = make(map[string]time.Time)
		c.entries[contactID] = byAppt
	}
	byAppt[appointmentID] = c.now()
}

// IsRecentlyCancelled reports whether the appointment was cancelled within
// the TTL. An expired entry is removed.
func (c *CancellationCache) IsRecentlyCancelled(contactID, appointmentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveLocked(contactID, appointmentID, c.now())
}

func (c *CancellationCache) liveLocked(contactID, appointmentID string, now time.Time) bool {
	byAppt, ok := c.entries[contactID]
	if !ok {
		return false
	}
	at, ok := byAppt[appointmentID]
	if !ok {
		return false
	}
	if now.Sub(at) > c.ttl {
		delete(byAppt, appointmentID)
		if len(byAppt) == 0 {
			delete(c.entries, contactID)
		}
		return false
	}
	return true
}

// Filter returns appts without the ones recently cancelled for contactID.
// Appointments are matched on both their id and event id.
func (c *CancellationCache) Filter(contactID string, appts []crm.Appointment) []crm.Appointment {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	out := make([]crm.Appointment, 0, len(appts))
	for _, appt := range appts {
		if c.liveLocked(contactID, appt.ID, now) {
			continue
		}
		if appt.EventID != "" && c.liveLocked(contactID, appt.EventID, now) {
			continue
		}
		out = append(out, appt)
	}
	return out
}

// Sweep drops expired entries and returns how many were removed.
func (c *CancellationCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for contactID, byAppt := range c.entries {
		for apptID, at := range byAppt {
			if now.Sub(at) > c.ttl {
				delete(byAppt, apptID)
				removed++
			}
		}
		if len(byAppt) == 0 {
			delete(c.entries, contactID)
		}
	}
	return removed
}
