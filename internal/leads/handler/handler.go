// Package handler exposes the manual lead trigger and call outcome lookups.
package handler

import (
	"context"
	"net/http"
	"strings"

	"voicelead_backend/internal/leads/transport"
	"voicelead_backend/internal/leads/trigger"
	"voicelead_backend/internal/voice"
	"voicelead_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

const msgInvalidRequest = "invalid request"

// LeadActions runs the call trigger from an optional raw payload.
type LeadActions interface {
	TriggerLeadAction(ctx context.Context, contactID string, raw []byte) (trigger.Result, error)
}

// OutcomeResolver classifies a placed call.
type OutcomeResolver interface {
	ResolveCallOutcome(ctx context.Context, callID string) (voice.Outcome, voice.Call, error)
}

// Handler handles HTTP requests for leads.
type Handler struct {
	actions  LeadActions
	outcomes OutcomeResolver
}

// New creates a new leads handler.
func New(actions LeadActions, outcomes OutcomeResolver) *Handler {
	return &Handler{actions: actions, outcomes: outcomes}
}

// RegisterRoutes registers the lead and call routes on the v1 group.
func (h *Handler) RegisterRoutes(v1 *gin.RouterGroup) {
	v1.POST("/leads/:id/trigger", h.Trigger)
	v1.GET("/calls/:id/outcome", h.CallOutcome)
}

// Trigger handles POST /api/v1/leads/:id/trigger. The body is optional and
// may carry the same payload shapes the CRM sends.
func (h *Handler) Trigger(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	res, err := h.actions.TriggerLeadAction(c.Request.Context(), c.Param("id"), raw)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, res)
}

// CallOutcome handles GET /api/v1/calls/:id/outcome
func (h *Handler) CallOutcome(c *gin.Context) {
	callID := strings.TrimSpace(c.Param("id"))

	outcome, call, err := h.outcomes.ResolveCallOutcome(c.Request.Context(), callID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.CallOutcomeResponse{
		CallID:          callID,
		Outcome:         string(outcome),
		Status:          call.Status,
		EndedReason:     call.EndedReason,
		DurationSeconds: call.Duration.Seconds(),
	})
}
