package coordination

import (
	"context"
	"sync"
	"time"
)

// OnceSet records keys that may trigger an action at most once within ttl.
type OnceSet interface {
	// Claim returns true for the first caller presenting key.
	Claim(ctx context.Context, key string) (bool, error)
}

// InFlight tracks which call id is currently evaluating a phone number.
type InFlight interface {
	// Register makes callID the current checker for phone. It returns
	// false when a different call id already holds the phone.
	Register(ctx context.Context, phone, callID string) (bool, error)
	// IsCurrent reports whether callID still holds the phone.
	IsCurrent(ctx context.Context, phone, callID string) (bool, error)
	// Release drops callID's registration. Releasing a phone held by a
	// different call id is a no-op.
	Release(ctx context.Context, phone, callID string) error
}

// ttlMap is a mutex-protected map whose entries expire. Expired entries
// are pruned lazily on access and by Sweep.
type ttlMap struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]ttlEntry
	now     func() time.Time
}

type ttlEntry struct {
	value     string
	expiresAt time.Time
}

func newTTLMap(ttl time.Duration) *ttlMap {
	return &ttlMap{ttl: ttl, entries: make(map[string]ttlEntry), now: time.Now}
}

// getLocked returns the live value for key. Caller holds mu.
func (m *ttlMap) getLocked(key string) (string, bool) {
	entry, ok := m.entries[key]
	if !ok {
		return "", false
	}
	if !m.now().Before(entry.expiresAt) {
		delete(m.entries, key)
		return "", false
	}
	return entry.value, true
}

func (m *ttlMap) setLocked(key, value string) {
	m.entries[key] = ttlEntry{value: value, expiresAt: m.now().Add(m.ttl)}
}

// Sweep drops expired entries and returns how many were removed.
func (m *ttlMap) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for key, entry := range m.entries {
		if !now.Before(entry.expiresAt) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// MemoryOnceSet is an in-process OnceSet.
type MemoryOnceSet struct {
	*ttlMap
}

// NewMemoryOnceSet creates a set whose claims expire after ttl.
func NewMemoryOnceSet(ttl time.Duration) *MemoryOnceSet {
	return &MemoryOnceSet{ttlMap: newTTLMap(ttl)}
}

func (s *MemoryOnceSet) Claim(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.getLocked(key); ok {
		return false, nil
	}
	s.setLocked(key, "1")
	return true, nil
}

// MemoryInFlight is an in-process InFlight. Registrations expire after
// ttl so a crashed evaluation cannot block a phone forever.
type MemoryInFlight struct {
	*ttlMap
}

// NewMemoryInFlight creates a registry whose registrations expire after ttl.
func NewMemoryInFlight(ttl time.Duration) *MemoryInFlight {
	return &MemoryInFlight{ttlMap: newTTLMap(ttl)}
}

func (f *MemoryInFlight) Register(_ context.Context, phone, callID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if holder, ok := f.getLocked(phone); ok && holder != callID {
		return false, nil
	}
	f.setLocked(phone, callID)
	return true, nil
}

func (f *MemoryInFlight) IsCurrent(_ context.Context, phone, callID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	holder, ok := f.getLocked(phone)
	return ok && holder == callID, nil
}

func (f *MemoryInFlight) Release(_ context.Context, phone, callID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if holder, ok := f.getLocked(phone); ok && holder == callID {
		delete(f.entries, phone)
	}
	return nil
}

var (
	_ OnceSet  = (*MemoryOnceSet)(nil)
	_ InFlight = (*MemoryInFlight)(nil)
)
