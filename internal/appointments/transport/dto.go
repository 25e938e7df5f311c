// Package transport holds the HTTP request and response shapes for the
// appointments module.
package transport

// AvailabilityRequest is the query string for GET /appointments/availability.
type AvailabilityRequest struct {
	CalendarID  string `form:"calendarId" validate:"max=100"`
	ServiceType string `form:"serviceType" validate:"max=100"`
	StartDate   string `form:"startDate" validate:"max=40"`
	EndDate     string `form:"endDate" validate:"max=40"`
}

// SlotResponse is one free slot, both ends in RFC 3339.
type SlotResponse struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// AvailabilityResponse lists free slots for the resolved calendar.
type AvailabilityResponse struct {
	CalendarID string         `json:"calendarId"`
	Slots      []SlotResponse `json:"slots"`
	Count      int            `json:"count"`
}

// BookRequest is the body for POST /appointments.
type BookRequest struct {
	ContactID               string `json:"contactId" validate:"required,max=100"`
	CalendarID              string `json:"calendarId" validate:"max=100"`
	ServiceType             string `json:"serviceType" validate:"max=100"`
	StartTime               string `json:"startTime" validate:"required,max=40"`
	Title                   string `json:"title" validate:"max=200"`
	Notes                   string `json:"notes" validate:"max=2000"`
	Address                 string `json:"address" validate:"max=500"`
	RescheduleAppointmentID string `json:"rescheduleAppointmentId" validate:"max=100"`
}

// BookResponse describes the created appointment.
type BookResponse struct {
	AppointmentID string `json:"appointmentId"`
	CalendarID    string `json:"calendarId"`
	StartTime     string `json:"startTime"`
	EndTime       string `json:"endTime"`
}

// CancelRequest is the body for POST /appointments/:id/cancel.
type CancelRequest struct {
	ContactID string `json:"contactId" validate:"required,max=100"`
}

// CancelResponse reports how the cancellation was carried out.
type CancelResponse struct {
	AppointmentID string `json:"appointmentId"`
	Method        string `json:"method"`
	AlreadyGone   bool   `json:"alreadyGone"`
	Manual        bool   `json:"manual"`
}

// ConfirmationRequest is the body for POST /appointments/:id/confirmation.
type ConfirmationRequest struct {
	ContactID string `json:"contactId" validate:"required,max=100"`
	StartTime string `json:"startTime" validate:"max=40"`
}

// ConfirmationResponse reports whether a text was sent.
type ConfirmationResponse struct {
	Sent   bool   `json:"sent"`
	Status string `json:"status"`
}
