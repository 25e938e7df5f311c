// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"voicelead_backend/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Lead Domain Events
// =============================================================================

// LeadCallInitiated is published once the voice vendor accepted an
// outbound call for a lead.
type LeadCallInitiated struct {
	BaseEvent
	ContactID string `json:"contactId"`
	Phone     string `json:"phone"`
	CallID    string `json:"callId"`
	Source    string `json:"source,omitempty"`
}

func (e LeadCallInitiated) EventName() string { return "leads.call.initiated" }

// FallbackMessageSent is published after the missed-call text went out.
type FallbackMessageSent struct {
	BaseEvent
	ContactID string `json:"contactId"`
	Phone     string `json:"phone"`
	CallID    string `json:"callId"`
	Reason    string `json:"reason"`
}

func (e FallbackMessageSent) EventName() string { return "leads.fallback.sent" }

// =============================================================================
// Appointment Domain Events
// =============================================================================

// AppointmentBooked is published after an appointment was created in the
// record store.
type AppointmentBooked struct {
	BaseEvent
	AppointmentID string    `json:"appointmentId"`
	ContactID     string    `json:"contactId"`
	CalendarID    string    `json:"calendarId"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
	Title         string    `json:"title"`
}

func (e AppointmentBooked) EventName() string { return "appointments.booked" }

// AppointmentCancelled is published after a cancellation went through.
type AppointmentCancelled struct {
	BaseEvent
	AppointmentID string `json:"appointmentId"`
	ContactID     string `json:"contactId"`
	Method        string `json:"method"`
	Manual        bool   `json:"manual"`
}

func (e AppointmentCancelled) EventName() string { return "appointments.cancelled" }
