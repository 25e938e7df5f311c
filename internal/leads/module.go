// Package leads provides the lead follow-up bounded context module.
// This file defines the module that encapsulates all leads setup and route registration.
package leads

import (
	"bytes"
	"context"

	"voicelead_backend/internal/events"
	apphttp "voicelead_backend/internal/http"
	"voicelead_backend/internal/leads/domain"
	"voicelead_backend/internal/leads/fallback"
	"voicelead_backend/internal/leads/handler"
	"voicelead_backend/internal/leads/notes"
	"voicelead_backend/internal/leads/trigger"
	"voicelead_backend/internal/webhook"
	"voicelead_backend/platform/logger"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler  *handler.Handler
	trigger  *trigger.Service
	fallback *fallback.Service
	timeline *notes.Timeline
	log      *logger.Logger
}

// NewModule wires the leads module around the trigger and fallback services.
func NewModule(trig *trigger.Service, fb *fallback.Service, timeline *notes.Timeline, log *logger.Logger) *Module {
	m := &Module{
		trigger:  trig,
		fallback: fb,
		timeline: timeline,
		log:      log.WithComponent("leads"),
	}
	m.handler = handler.New(m, fb)
	return m
}

// TriggerLeadAction runs the call trigger for contactID. A non-empty raw
// payload is parsed for the phone number and lead source it carries; a
// contact id inside it is used only when contactID is empty.
func (m *Module) TriggerLeadAction(ctx context.Context, contactID string, raw []byte) (trigger.Result, error) {
	req := trigger.Request{ContactID: contactID}
	if len(bytes.TrimSpace(raw)) > 0 {
		ev, err := webhook.ParseEvent(raw)
		if err != nil {
			return trigger.Result{ContactID: contactID, Outcome: trigger.OutcomeIneligible, Reason: "invalid payload"}, err
		}
		if req.ContactID == "" {
			req.ContactID = ev.ContactID
		}
		req.Phone = ev.Phone
		req.SourceHint = ev.Source
		if req.SourceHint == "" {
			req.SourceHint = domain.SourceFromTags(ev.Tags)
		}
	}
	return m.trigger.Run(ctx, req)
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// RegisterRoutes mounts lead and call routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1)
}

// RegisterHandlers subscribes the timeline notes to domain events.
func (m *Module) RegisterHandlers(bus events.Bus) {
	if m.timeline != nil {
		m.timeline.RegisterHandlers(bus)
	}
}

// Wait blocks until background work started by the trigger has finished.
func (m *Module) Wait() {
	m.trigger.Wait()
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
