// Package domain provides core business rules for the leads bounded context.
package domain

import "strings"

// CallStatus is the outbound-call state of a contact.
type CallStatus string

const (
	StatusNone    CallStatus = "none"
	StatusCalling CallStatus = "calling"
	StatusSent    CallStatus = "sent"
)

// Custom field keys on the contact record.
const (
	FieldCallStatus       = "vapi_called"
	FieldCallID           = "vapi_call_id"
	FieldLeadSource       = "lead_source"
	FieldSMSConsent       = "sms_consent"
	FieldFallbackSent     = "sms_fallback_sent"
	FieldFallbackSentAt   = "sms_fallback_sent_at"
	FieldFallbackDate     = "sms_fallback_date"
	FieldFallbackReason   = "sms_fallback_reason"
	FieldLastConfirmation = "last_confirmation_sent_time"
	FieldLastConfirmedID  = "last_confirmed_appointment_id"
)

// ParseStatus maps a stored field value to a CallStatus. Unknown values
// are treated as none.
func ParseStatus(raw string) CallStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "calling":
		return StatusCalling
	case "true", "1", "yes", "sent":
		return StatusSent
	default:
		return StatusNone
	}
}

// FieldValue is the value written to the record for s.
func (s CallStatus) FieldValue() string {
	switch s {
	case StatusCalling:
		return "calling"
	case StatusSent:
		return "true"
	default:
		return ""
	}
}

// Claimed reports whether a call has been started or placed.
func (s CallStatus) Claimed() bool {
	return s == StatusCalling || s == StatusSent
}

func (s CallStatus) rank() int {
	switch s {
	case StatusCalling:
		return 1
	case StatusSent:
		return 2
	default:
		return 0
	}
}

// CanTransition reports whether moving from one status to another keeps the
// status monotonic. Staying put is allowed.
func CanTransition(from, to CallStatus) bool {
	if to == StatusNone {
		return from == StatusNone
	}
	return to.rank() >= from.rank()
}

// IsTruthy reports whether a stored flag value means true.
func IsTruthy(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// ConsentDenied reports whether a stored consent value explicitly opts out.
// A missing value allows messaging.
func ConsentDenied(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "false", "0", "no":
		return true
	}
	return false
}
