package scheduler

import (
	"context"
	"fmt"

	"voicelead_backend/internal/leads/ports"
	"voicelead_backend/platform/config"
	"voicelead_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Evaluator runs a due fallback evaluation. It handles its own failures.
type Evaluator interface {
	Evaluate(ctx context.Context, attempt ports.FallbackAttempt)
}

type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	evaluator Evaluator
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, evaluator Evaluator, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		evaluator: evaluator,
		log:       log,
	}

	mux.HandleFunc(TaskFallbackEvaluate, w.handleFallbackEvaluate)

	return w, nil
}

func (w *Worker) handleFallbackEvaluate(ctx context.Context, task *asynq.Task) error {
	attempt, err := ParseFallbackPayload(task)
	if err != nil {
		// A malformed payload will never parse; do not retry it.
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	w.evaluator.Evaluate(ctx, attempt)
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
