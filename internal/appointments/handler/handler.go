package handler

import (
	"net/http"
	"time"

	"voicelead_backend/internal/appointments/service"
	"voicelead_backend/internal/appointments/transport"
	"voicelead_backend/platform/httpkit"
	"voicelead_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles HTTP requests for appointments
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new appointments handler
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the appointment routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/availability", h.Availability)
	rg.GET("/business-hours", h.BusinessHours)
	rg.POST("", h.Book)
	rg.POST("/:id/cancel", h.Cancel)
	rg.POST("/:id/confirmation", h.SendConfirmation)
}

// Availability handles GET /api/v1/appointments/availability
func (h *Handler) Availability(c *gin.Context) {
	var req transport.AvailabilityRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	ctx := c.Request.Context()
	calendarID, err := h.svc.ResolveCalendar(ctx, req.CalendarID, req.ServiceType)
	if httpkit.HandleError(c, err) {
		return
	}

	slots, err := h.svc.CheckAvailability(ctx, service.Request{
		CalendarID:  calendarID,
		ServiceType: req.ServiceType,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.AvailabilityResponse{
		CalendarID: calendarID,
		Slots:      make([]transport.SlotResponse, 0, len(slots)),
		Count:      len(slots),
	}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, transport.SlotResponse{
			StartTime: s.Start.Format(time.RFC3339),
			EndTime:   s.End.Format(time.RFC3339),
		})
	}
	httpkit.OK(c, resp)
}

// BusinessHours handles GET /api/v1/appointments/business-hours
func (h *Handler) BusinessHours(c *gin.Context) {
	httpkit.OK(c, h.svc.CheckBusinessHours())
}

// Book handles POST /api/v1/appointments
func (h *Handler) Book(c *gin.Context) {
	var req transport.BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	booking, err := h.svc.Book(c.Request.Context(), service.BookRequest{
		ContactID:               req.ContactID,
		CalendarID:              req.CalendarID,
		ServiceType:             req.ServiceType,
		StartTime:               req.StartTime,
		Title:                   req.Title,
		Notes:                   req.Notes,
		Address:                 req.Address,
		RescheduleAppointmentID: req.RescheduleAppointmentID,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.BookResponse{
		AppointmentID: booking.AppointmentID,
		CalendarID:    booking.CalendarID,
		StartTime:     booking.Start.Format(time.RFC3339),
		EndTime:       booking.End.Format(time.RFC3339),
	})
}

// Cancel handles POST /api/v1/appointments/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	var req transport.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	id := c.Param("id")
	result, err := h.svc.Cancel(c.Request.Context(), service.CancelRequest{
		ContactID:     req.ContactID,
		AppointmentID: id,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.CancelResponse{
		AppointmentID: id,
		Method:        result.Method,
		AlreadyGone:   result.AlreadyGone,
		Manual:        result.Manual,
	})
}

// SendConfirmation handles POST /api/v1/appointments/:id/confirmation
func (h *Handler) SendConfirmation(c *gin.Context) {
	var req transport.ConfirmationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.SendConfirmation(c.Request.Context(), service.ConfirmationRequest{
		ContactID:     req.ContactID,
		AppointmentID: c.Param("id"),
		StartTime:     req.StartTime,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ConfirmationResponse{Sent: result.Sent, Status: result.Status})
}
