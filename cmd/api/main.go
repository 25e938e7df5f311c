package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voicelead_backend/internal/appointments"
	"voicelead_backend/internal/appointments/cache"
	apptservice "voicelead_backend/internal/appointments/service"
	"voicelead_backend/internal/contacts"
	contactservice "voicelead_backend/internal/contacts/service"
	"voicelead_backend/internal/coordination"
	"voicelead_backend/internal/crm"
	"voicelead_backend/internal/events"
	apphttp "voicelead_backend/internal/http"
	"voicelead_backend/internal/http/router"
	"voicelead_backend/internal/leads"
	"voicelead_backend/internal/leads/fallback"
	"voicelead_backend/internal/leads/notes"
	"voicelead_backend/internal/leads/ports"
	"voicelead_backend/internal/leads/trigger"
	"voicelead_backend/internal/messaging"
	"voicelead_backend/internal/scheduler"
	"voicelead_backend/internal/voice"
	"voicelead_backend/internal/webhook"
	"voicelead_backend/platform/config"
	"voicelead_backend/platform/logger"
	"voicelead_backend/platform/validator"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix  = "voicelead"
	limiterIdleTime = 10 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	redisClient := initRedis(ctx, cfg, log)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}
	coord := newCoordinator(cfg, redisClient)

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	crmClient := crm.NewClient(cfg, log)
	canceller, err := crm.NewCanceller(cfg.GetCRMCancelStrategy(), crmClient)
	if err != nil {
		log.Error("failed to initialize appointment canceller", "error", err)
		panic("failed to initialize appointment canceller: " + err.Error())
	}
	voiceClient := voice.NewClient(cfg, log)
	sender, err := messaging.NewSender(cfg, log)
	if err != nil {
		log.Error("failed to initialize message sender", "error", err)
		panic("failed to initialize message sender: " + err.Error())
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	fallbackSvc := fallback.New(coord, crmClient, voiceClient, sender, nil, eventBus, fallback.Config{
		Delay:         cfg.GetFallbackDelay(),
		RecencyWindow: cfg.GetFallbackRecencyWindow(),
		BusinessName:  cfg.GetBusinessName(),
	}, log)

	jobs, closeJobs := initDelayedJobs(cfg, fallbackSvc, log)
	defer closeJobs()
	fallbackSvc.SetJobs(jobs)

	triggerSvc := trigger.New(coord, crmClient, voiceClient, fallbackSvc, eventBus, log)
	timeline := notes.New(crmClient, cfg.GetBusinessHours().Location)
	leadsModule := leads.NewModule(triggerSvc, fallbackSvc, timeline, log)
	leadsModule.RegisterHandlers(eventBus)

	hours := cfg.GetBusinessHours()
	booked := cache.NewAppointmentCache(hours.Location, hours.SlotDuration)
	cancelled := cache.NewCancellationCache(cache.DefaultCancellationTTL)
	apptSvc := apptservice.New(crmClient, canceller, sender, booked, cancelled, eventBus, apptservice.Config{
		Hours:              hours,
		BusinessName:       cfg.GetBusinessName(),
		RecentContactLimit: cfg.GetCRMRecentContactLimit(),
	}, log)
	appointmentsModule := appointments.NewModule(apptSvc, val)

	contactSvc := contactservice.New(crmClient, coord, contactservice.Config{
		DefaultCity:    cfg.GetContactDefaultCity(),
		DefaultState:   cfg.GetContactDefaultState(),
		DefaultCountry: cfg.GetContactDefaultCountry(),
	}, log)
	contactsModule := contacts.NewModule(contactSvc, val)

	webhookSvc := webhook.NewService(leadsModule, crmClient, apptSvc, fallbackSvc, crmClient.LocationID(), log)
	webhookModule := webhook.NewModule(webhookSvc, cfg, log)

	cleanup := scheduler.NewStateCleanup(log, time.Minute)
	cleanup.Register("coordination", coord)
	cleanup.Register("booked_appointments", booked)
	cleanup.Register("cancellations", cancelled)
	cleanup.Register("confirmations", scheduler.SweeperFunc(apptSvc.SweepConfirmations))
	cleanup.Register("webhook_rate_limit", scheduler.SweeperFunc(func() int {
		return webhookModule.Limiter().Sweep(limiterIdleTime)
	}))
	go cleanup.Run(ctx)

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			leadsModule,
			appointmentsModule,
			contactsModule,
			webhookModule,
		},
	}
	if redisClient != nil {
		app.Health = redisHealth{client: redisClient}
	}

	engine := router.New(app)

	srv := &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.GetHTTPAddr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-srvErr:
		log.Error("server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}

	// Let detached fallback scheduling and event handlers finish before the
	// job runner and Redis connection are closed by the deferred calls.
	leadsModule.Wait()
	eventBus.Wait()
	log.Info("server stopped")
}

// initRedis connects to Redis when REDIS_URL is set. Without it the process
// runs single-instance with in-memory coordination.
func initRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) *redis.Client {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not set, using in-process coordination; run a single instance only")
		return nil
	}

	client, err := scheduler.NewRedisClient(cfg)
	if err != nil {
		log.Error("invalid redis url", "error", err)
		panic("invalid redis url: " + err.Error())
	}
	if err := withRetry(ctx, log, "redis connection", 5, 2*time.Second, func() error {
		return client.Ping(ctx).Err()
	}); err != nil {
		log.Error("failed to connect to redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}
	log.Info("redis connection established")
	return client
}

func newCoordinator(cfg *config.Config, client *redis.Client) *coordination.Coordinator {
	opts := coordination.Options{
		DedupTTL:    cfg.GetDedupTTL(),
		InFlightTTL: inFlightTTL(cfg),
		LockTTL:     cfg.GetLockTTL(),
	}
	if client == nil {
		return coordination.NewMemoryCoordinator(opts)
	}
	return coordination.NewRedisCoordinator(client, redisKeyPrefix, opts)
}

// inFlightTTL outlasts one evaluation: the wait plus a call lookup, a
// contact search and a send.
func inFlightTTL(cfg *config.Config) time.Duration {
	return cfg.GetFallbackDelay() + 2*cfg.GetVoiceTimeout() + 3*cfg.GetCRMTimeout()
}

// initDelayedJobs returns the asynq queue when Redis is configured and an
// in-process timer runner otherwise.
func initDelayedJobs(cfg *config.Config, fb *fallback.Service, log *logger.Logger) (ports.DelayedJobs, func()) {
	if cfg.GetRedisURL() == "" {
		timers := scheduler.NewTimerJobs(fb.Evaluate, log)
		log.Info("fallback jobs run in-process")
		return timers, timers.Close
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize fallback queue", "error", err)
		panic("failed to initialize fallback queue: " + err.Error())
	}
	log.Info("fallback jobs queued on redis", "queue", cfg.GetAsynqQueueName())
	return client, func() { _ = client.Close() }
}

type redisHealth struct {
	client *redis.Client
}

func (h redisHealth) Ping(ctx context.Context) error {
	return h.client.Ping(ctx).Err()
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
