package scheduler

import (
	"context"
	"time"

	"voicelead_backend/platform/logger"
)

const defaultCleanupInterval = time.Minute

// Sweeper drops expired entries from an in-process store and reports how
// many it removed.
type Sweeper interface {
	Sweep() int
}

// SweeperFunc adapts a function to Sweeper.
type SweeperFunc func() int

func (f SweeperFunc) Sweep() int { return f() }

// StateCleanup periodically prunes the in-process dedup, lock, cache and
// rate-limit state so none of it grows without bound.
type StateCleanup struct {
	sweepers map[string]Sweeper
	log      *logger.Logger
	interval time.Duration
}

func NewStateCleanup(log *logger.Logger, interval time.Duration) *StateCleanup {
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	return &StateCleanup{
		sweepers: make(map[string]Sweeper),
		log:      log,
		interval: interval,
	}
}

// Register adds a named store. Not safe to call once Run has started.
func (c *StateCleanup) Register(name string, s Sweeper) {
	if s != nil {
		c.sweepers[name] = s
	}
}

func (c *StateCleanup) Run(ctx context.Context) {
	if c == nil || len(c.sweepers) == 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *StateCleanup) cleanup() {
	for name, s := range c.sweepers {
		if removed := s.Sweep(); removed > 0 {
			c.log.Debug("state cleanup removed expired entries", "store", name, "removed", removed)
		}
	}
}
