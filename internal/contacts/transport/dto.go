// Package transport holds the HTTP shapes for the contacts module.
package transport

// UpsertContactRequest is the body for POST /contacts.
type UpsertContactRequest struct {
	Name         string            `json:"name" validate:"required,max=200"`
	Phone        string            `json:"phone" validate:"omitempty,phone,max=40"`
	Email        string            `json:"email" validate:"omitempty,email,max=254"`
	Address      string            `json:"address" validate:"max=500"`
	ZipCode      string            `json:"zipCode" validate:"omitempty,max=10"`
	SMSConsent   bool              `json:"smsConsent"`
	CustomFields map[string]string `json:"customFields" validate:"max=50"`
}

// UpsertContactResponse names the contact holding the caller's details.
type UpsertContactResponse struct {
	ContactID string `json:"contactId"`
	IsNew     bool   `json:"isNew"`
	PhoneKept bool   `json:"phoneKept"`
}

// CallSummaryRequest is the body for POST /contacts/:id/call-summary.
type CallSummaryRequest struct {
	Transcript    string `json:"transcript" validate:"max=100000"`
	Summary       string `json:"summary" validate:"required,max=10000"`
	TranscriptURL string `json:"transcriptUrl" validate:"omitempty,url,max=2000"`
	CallDuration  int    `json:"callDuration" validate:"gte=0"`
	CallType      string `json:"callType" validate:"omitempty,oneof=service_repair install_estimate maintenance appointment_change other"`
	Outcome       string `json:"outcome" validate:"max=200"`
}

// CallSummaryResponse lists the equipment detected in the call.
type CallSummaryResponse struct {
	ContactID string   `json:"contactId"`
	Equipment []string `json:"equipment"`
}
