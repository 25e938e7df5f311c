package webhook

import (
	apphttp "voicelead_backend/internal/http"
	"voicelead_backend/platform/config"
	"voicelead_backend/platform/httpkit"
	"voicelead_backend/platform/logger"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	limiter *httpkit.IPRateLimiter
	secret  string
	log     *logger.Logger
}

// NewModule creates the webhook module around a wired routing service.
func NewModule(service *Service, cfg config.WebhookConfig, log *logger.Logger) *Module {
	if cfg.GetWebhookSecret() == "" {
		log.Warn("WEBHOOK_SECRET not set, accepting unsigned notifications")
	}
	return &Module{
		handler: NewHandler(service),
		limiter: httpkit.PerMinute(cfg.GetWebhookRatePerMinute(), log),
		secret:  cfg.GetWebhookSecret(),
		log:     log,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// Limiter exposes the per-IP limiter so idle entries can be swept.
func (m *Module) Limiter() *httpkit.IPRateLimiter {
	return m.limiter
}

// RegisterRoutes mounts webhook routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/webhooks")
	group.Use(m.limiter.RateLimit())
	group.Use(httpkit.VerifySignature(m.secret))
	group.POST("/crm", m.handler.HandleCRMEvent)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
