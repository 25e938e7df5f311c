package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"voicelead_backend/internal/leads/ports"
	"voicelead_backend/platform/logger"
)

func TestFallbackTaskRoundTripsAttempt(t *testing.T) {
	in := ports.FallbackAttempt{CallID: "call-1", ContactID: "c1", Phone: "+16502530000"}
	task, err := NewFallbackTask(in)
	if err != nil {
		t.Fatal(err)
	}
	if task.Type() != TaskFallbackEvaluate {
		t.Fatalf("unexpected task type %s", task.Type())
	}
	out, err := ParseFallbackPayload(task)
	if err != nil || out != in {
		t.Fatalf("unexpected payload %+v %v", out, err)
	}
	if FallbackTaskID("call-1") != "fallback:call-1" {
		t.Fatal("task id must be derived from the call id")
	}
}

func TestTimerJobsRunOnceAtDueTime(t *testing.T) {
	var runs int32
	done := make(chan struct{}, 1)
	jobs := NewTimerJobs(func(_ context.Context, a ports.FallbackAttempt) {
		atomic.AddInt32(&runs, 1)
		done <- struct{}{}
	}, logger.Discard())
	defer jobs.Close()

	a := ports.FallbackAttempt{CallID: "call-1"}
	runAt := time.Now().Add(20 * time.Millisecond)
	_ = jobs.ScheduleFallback(context.Background(), a, runAt)
	_ = jobs.ScheduleFallback(context.Background(), a, runAt)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}
	time.Sleep(30 * time.Millisecond)
	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Fatalf("expected one run, got %d", got)
	}
	if jobs.Pending() != 0 {
		t.Fatal("expected no pending jobs")
	}
}

func TestTimerJobsCancelBeforeDue(t *testing.T) {
	var runs int32
	jobs := NewTimerJobs(func(context.Context, ports.FallbackAttempt) {
		atomic.AddInt32(&runs, 1)
	}, logger.Discard())
	defer jobs.Close()

	_ = jobs.ScheduleFallback(context.Background(), ports.FallbackAttempt{CallID: "call-1"}, time.Now().Add(50*time.Millisecond))
	cancelled, err := jobs.CancelFallback(context.Background(), "call-1")
	if err != nil || !cancelled {
		t.Fatalf("expected cancellation, got %v %v", cancelled, err)
	}
	again, _ := jobs.CancelFallback(context.Background(), "call-1")
	if again {
		t.Fatal("second cancel has nothing to cancel")
	}

	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt32(&runs) != 0 {
		t.Fatal("cancelled job must not run")
	}
}

func TestStateCleanupSweepsRegisteredStores(t *testing.T) {
	var sweeps int32
	cleanup := NewStateCleanup(logger.Discard(), 5*time.Millisecond)
	cleanup.Register("test", SweeperFunc(func() int {
		atomic.AddInt32(&sweeps, 1)
		return 1
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	cleanup.Run(ctx)

	if atomic.LoadInt32(&sweeps) == 0 {
		t.Fatal("expected at least one sweep")
	}
}
