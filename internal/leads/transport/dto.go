// Package transport holds the HTTP shapes for the leads module.
package transport

// CallOutcomeResponse is the classified state of one outbound call.
type CallOutcomeResponse struct {
	CallID          string  `json:"callId"`
	Outcome         string  `json:"outcome"`
	Status          string  `json:"status"`
	EndedReason     string  `json:"endedReason,omitempty"`
	DurationSeconds float64 `json:"durationSeconds"`
}
