// Package appointments provides the appointments domain module.
package appointments

import (
	"voicelead_backend/internal/appointments/handler"
	"voicelead_backend/internal/appointments/service"
	apphttp "voicelead_backend/internal/http"
	"voicelead_backend/platform/validator"
)

// Module represents the appointments domain module
type Module struct {
	handler *handler.Handler
	Service *service.Service
}

// NewModule creates a new appointments module around an already wired service.
func NewModule(svc *service.Service, val *validator.Validator) *Module {
	return &Module{
		handler: handler.New(svc, val),
		Service: svc,
	}
}

// Name returns the module identifier
func (m *Module) Name() string {
	return "appointments"
}

// RegisterRoutes mounts appointment routes on the provided router context
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1.Group("/appointments"))
}

var _ apphttp.Module = (*Module)(nil)
