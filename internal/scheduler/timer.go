package scheduler

import (
	"context"
	"sync"
	"time"

	"voicelead_backend/internal/leads/ports"
	"voicelead_backend/platform/logger"
)

// TimerJobs runs fallback evaluations in this process. It is used when no
// Redis is configured; pending jobs are lost on restart.
type TimerJobs struct {
	mu      sync.Mutex
	pending map[string]*time.Timer
	run     func(context.Context, ports.FallbackAttempt)
	running sync.WaitGroup
	closed  bool
	log     *logger.Logger
}

func NewTimerJobs(run func(context.Context, ports.FallbackAttempt), log *logger.Logger) *TimerJobs {
	return &TimerJobs{
		pending: make(map[string]*time.Timer),
		run:     run,
		log:     log,
	}
}

// ScheduleFallback arms a timer for the attempt. Scheduling the same call
// twice keeps the first timer.
func (j *TimerJobs) ScheduleFallback(_ context.Context, attempt ports.FallbackAttempt, runAt time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return context.Canceled
	}
	if _, ok := j.pending[attempt.CallID]; ok {
		return nil
	}

	var timer *time.Timer
	timer = time.AfterFunc(time.Until(runAt), func() {
		j.mu.Lock()
		if j.pending[attempt.CallID] != timer {
			j.mu.Unlock()
			return
		}
		delete(j.pending, attempt.CallID)
		j.running.Add(1)
		j.mu.Unlock()

		defer j.running.Done()
		j.run(context.Background(), attempt)
	})
	j.pending[attempt.CallID] = timer
	return nil
}

// CancelFallback stops the timer if it has not fired.
func (j *TimerJobs) CancelFallback(_ context.Context, callID string) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	timer, ok := j.pending[callID]
	if !ok {
		return false, nil
	}
	// A timer that already fired but has not yet taken the lock finds its
	// entry gone and returns without running.
	delete(j.pending, callID)
	timer.Stop()
	return true, nil
}

// Pending reports how many jobs are waiting.
func (j *TimerJobs) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.pending)
}

// Close drops pending jobs and waits for running ones.
func (j *TimerJobs) Close() {
	j.mu.Lock()
	j.closed = true
	dropped := len(j.pending)
	for id, timer := range j.pending {
		timer.Stop()
		delete(j.pending, id)
	}
	j.mu.Unlock()

	if dropped > 0 {
		j.log.Warn("pending fallback jobs dropped on shutdown", "count", dropped)
	}
	j.running.Wait()
}

var _ ports.DelayedJobs = (*TimerJobs)(nil)
