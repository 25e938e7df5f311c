package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voicelead_backend/internal/coordination"
	"voicelead_backend/internal/crm"
	"voicelead_backend/internal/events"
	"voicelead_backend/internal/leads/fallback"
	"voicelead_backend/internal/leads/notes"
	"voicelead_backend/internal/messaging"
	"voicelead_backend/internal/scheduler"
	"voicelead_backend/internal/voice"
	"voicelead_backend/platform/config"
	"voicelead_backend/platform/logger"
)

const redisKeyPrefix = "voicelead"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "queue", cfg.GetAsynqQueueName())

	if cfg.GetRedisURL() == "" {
		log.Error("REDIS_URL is required for the scheduler worker")
		panic("REDIS_URL is required for the scheduler worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := scheduler.NewRedisClient(cfg)
	if err != nil {
		log.Error("invalid redis url", "error", err)
		panic("invalid redis url: " + err.Error())
	}
	defer func() { _ = redisClient.Close() }()
	if err := withRetry(ctx, log, "redis connection", 5, 2*time.Second, func() error {
		return redisClient.Ping(ctx).Err()
	}); err != nil {
		log.Error("failed to connect to redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}

	coord := coordination.NewRedisCoordinator(redisClient, redisKeyPrefix, coordination.Options{
		DedupTTL:    cfg.GetDedupTTL(),
		InFlightTTL: cfg.GetFallbackDelay() + 2*cfg.GetVoiceTimeout() + 3*cfg.GetCRMTimeout(),
		LockTTL:     cfg.GetLockTTL(),
	})

	eventBus := events.NewInMemoryBus(log)

	crmClient := crm.NewClient(cfg, log)
	voiceClient := voice.NewClient(cfg, log)
	sender, err := messaging.NewSender(cfg, log)
	if err != nil {
		log.Error("failed to initialize message sender", "error", err)
		panic("failed to initialize message sender: " + err.Error())
	}

	// Notes for texts sent by this process are written here, not by the API.
	notes.New(crmClient, cfg.GetBusinessHours().Location).RegisterHandlers(eventBus)

	queue, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize fallback queue", "error", err)
		panic("failed to initialize fallback queue: " + err.Error())
	}
	defer func() { _ = queue.Close() }()

	fallbackSvc := fallback.New(coord, crmClient, voiceClient, sender, queue, eventBus, fallback.Config{
		Delay:         cfg.GetFallbackDelay(),
		RecencyWindow: cfg.GetFallbackRecencyWindow(),
		BusinessName:  cfg.GetBusinessName(),
	}, log)

	worker, err := scheduler.NewWorker(cfg, fallbackSvc, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
	eventBus.Wait()
	log.Info("scheduler stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
