// Package handler exposes contact intake and call summary logging.
package handler

import (
	"context"
	"net/http"

	"voicelead_backend/internal/contacts/service"
	"voicelead_backend/internal/contacts/transport"
	"voicelead_backend/platform/httpkit"
	"voicelead_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Contacts is the contact service as seen by the handler.
type Contacts interface {
	Upsert(ctx context.Context, req service.UpsertRequest) (service.UpsertResult, error)
	LogCallSummary(ctx context.Context, in service.CallSummary) ([]string, error)
}

// Handler handles HTTP requests for contacts.
type Handler struct {
	svc Contacts
	val *validator.Validator
}

// New creates a new contacts handler.
func New(svc Contacts, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the contact routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Upsert)
	rg.POST("/:id/call-summary", h.CallSummary)
}

// Upsert handles POST /api/v1/contacts. New contacts answer 201, updated
// ones 200.
func (h *Handler) Upsert(c *gin.Context) {
	var req transport.UpsertContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	res, err := h.svc.Upsert(c.Request.Context(), service.UpsertRequest{
		Name:         req.Name,
		Phone:        req.Phone,
		Email:        req.Email,
		Address:      req.Address,
		PostalCode:   req.ZipCode,
		SMSConsent:   req.SMSConsent,
		CustomFields: req.CustomFields,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	status := http.StatusOK
	if res.IsNew {
		status = http.StatusCreated
	}
	httpkit.JSON(c, status, transport.UpsertContactResponse{
		ContactID: res.ContactID,
		IsNew:     res.IsNew,
		PhoneKept: res.PhoneKept,
	})
}

// CallSummary handles POST /api/v1/contacts/:id/call-summary
func (h *Handler) CallSummary(c *gin.Context) {
	var req transport.CallSummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	contactID := c.Param("id")
	equipment, err := h.svc.LogCallSummary(c.Request.Context(), service.CallSummary{
		ContactID:       contactID,
		Transcript:      req.Transcript,
		Summary:         req.Summary,
		TranscriptURL:   req.TranscriptURL,
		CallType:        req.CallType,
		Outcome:         req.Outcome,
		DurationSeconds: req.CallDuration,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	if equipment == nil {
		equipment = []string{}
	}
	httpkit.OK(c, transport.CallSummaryResponse{ContactID: contactID, Equipment: equipment})
}
