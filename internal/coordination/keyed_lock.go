// Package coordination provides the exclusion and dedup primitives the lead
// action flows are built on: keyed locks in two keyspaces, a TTL'd
// at-most-once set, and a per-phone in-flight registry. Each primitive has
// an in-process implementation and a Redis implementation so several
// instances can share state.
package coordination

import (
	"context"
	"sync"
)

// Keyspace partitions lock keys. Phone locks are always taken before
// contact locks when both are needed.
type Keyspace string

const (
	KeyspacePhone   Keyspace = "phone"
	KeyspaceContact Keyspace = "contact"
)

// Locker runs fn while holding the exclusive section for (keyspace, key).
type Locker interface {
	WithLock(ctx context.Context, keyspace Keyspace, key string, fn func(context.Context) error) error
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

// MemoryLocker is an in-process Locker. Entries are created on first use
// and removed once no goroutine holds or waits on them.
type MemoryLocker struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

// NewMemoryLocker creates an empty MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{entries: make(map[string]*lockEntry)}
}

// WithLock blocks until the section is free or ctx is done.
func (l *MemoryLocker) WithLock(ctx context.Context, keyspace Keyspace, key string, fn func(context.Context) error) error {
	name := lockName(keyspace, key)
	entry := l.ref(name)

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(name, entry)
		return ctx.Err()
	}

	defer func() {
		<-entry.sem
		l.unref(name, entry)
	}()
	return fn(ctx)
}

// Len reports how many lock entries are currently allocated.
func (l *MemoryLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *MemoryLocker) ref(name string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[name]
	if !ok {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		l.entries[name] = entry
	}
	entry.refs++
	return entry
}

func (l *MemoryLocker) unref(name string, entry *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, name)
	}
}

func lockName(keyspace Keyspace, key string) string {
	return string(keyspace) + ":" + key
}

var _ Locker = (*MemoryLocker)(nil)
