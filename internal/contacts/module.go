// Package contacts provides the contact intake module.
package contacts

import (
	"voicelead_backend/internal/contacts/handler"
	"voicelead_backend/internal/contacts/service"
	apphttp "voicelead_backend/internal/http"
	"voicelead_backend/platform/validator"
)

// Module represents the contacts domain module.
type Module struct {
	handler *handler.Handler
	Service *service.Service
}

// NewModule creates the contacts module around an already wired service.
func NewModule(svc *service.Service, val *validator.Validator) *Module {
	return &Module{
		handler: handler.New(svc, val),
		Service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "contacts"
}

// RegisterRoutes mounts contact routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1.Group("/contacts"))
}

var _ apphttp.Module = (*Module)(nil)
