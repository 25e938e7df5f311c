package coordination

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Coordinator bundles the primitives used by the lead action flows so they
// are owned by one object instead of package globals.
type Coordinator struct {
	Locks    Locker
	CallIDs  OnceSet
	InFlight InFlight

	sweepers []interface{ Sweep() int }
}

// Options sizes the coordinator's expiring state.
type Options struct {
	// DedupTTL bounds how long a claimed call id is remembered.
	DedupTTL time.Duration
	// InFlightTTL bounds how long a phone may stay registered to one
	// evaluation. It should exceed the fallback delay plus vendor timeouts.
	InFlightTTL time.Duration
	// LockTTL is the Redis lease length. Holders renew it while they work,
	// so it only bounds how long a crashed holder blocks others. Unused in
	// memory mode.
	LockTTL time.Duration
}

// NewMemoryCoordinator builds a single-process coordinator.
func NewMemoryCoordinator(opts Options) *Coordinator {
	calls := NewMemoryOnceSet(opts.DedupTTL)
	inflight := NewMemoryInFlight(opts.InFlightTTL)
	return &Coordinator{
		Locks:    NewMemoryLocker(),
		CallIDs:  calls,
		InFlight: inflight,
		sweepers: []interface{ Sweep() int }{calls, inflight},
	}
}

// NewRedisCoordinator builds a coordinator shared by every instance
// pointing at the same Redis.
func NewRedisCoordinator(client redis.UniversalClient, prefix string, opts Options) *Coordinator {
	return &Coordinator{
		Locks:    NewRedisLocker(client, prefix, opts.LockTTL),
		CallIDs:  NewRedisOnceSet(client, prefix, opts.DedupTTL),
		InFlight: NewRedisInFlight(client, prefix, opts.InFlightTTL),
	}
}

// WithPhoneLock runs fn holding the phone section for phoneKey.
func (c *Coordinator) WithPhoneLock(ctx context.Context, phoneKey string, fn func(context.Context) error) error {
	return c.Locks.WithLock(ctx, KeyspacePhone, phoneKey, fn)
}

// WithPhoneThenContact takes the phone section, then the contact section
// inside it, and runs fn holding both. This is the only nesting order.
func (c *Coordinator) WithPhoneThenContact(ctx context.Context, phoneKey, contactID string, fn func(context.Context) error) error {
	return c.Locks.WithLock(ctx, KeyspacePhone, phoneKey, func(ctx context.Context) error {
		return c.Locks.WithLock(ctx, KeyspaceContact, contactID, fn)
	})
}

// Sweep prunes expired in-process entries. Redis-backed state expires natively.
func (c *Coordinator) Sweep() int {
	removed := 0
	for _, s := range c.sweepers {
		removed += s.Sweep()
	}
	return removed
}
