// Package ports defines the interfaces the leads domain requires from
// external systems. Implementations are wired by the composition root so
// the domain packages never import vendor clients directly.
package ports

import (
	"context"
	"time"

	"voicelead_backend/internal/crm"
	"voicelead_backend/internal/voice"
)

// ContactStore is the slice of the record store the lead flows use.
type ContactStore interface {
	GetContact(ctx context.Context, contactID string) (crm.Contact, error)
	SearchByPhone(ctx context.Context, number string) ([]crm.Contact, error)
	UpdateCustomFields(ctx context.Context, contactID string, fields map[string]string) error
	AddTags(ctx context.Context, contactID string, tags ...string) error
}

// CallPlacer starts outbound calls.
type CallPlacer interface {
	CreateCall(ctx context.Context, customer voice.Customer) (string, error)
}

// CallInspector reads a call's final state.
type CallInspector interface {
	GetCall(ctx context.Context, callID string) (voice.Call, error)
}

// MessageSender delivers the fallback text.
type MessageSender interface {
	Send(ctx context.Context, to, body string) error
}

// FallbackAttempt identifies one pending missed-call check.
type FallbackAttempt struct {
	CallID    string `json:"callId"`
	ContactID string `json:"contactId"`
	Phone     string `json:"phone"`
}

// DelayedJobs runs a fallback evaluation at a later time. A scheduled job
// can be cancelled until it starts; CancelFallback reports false when
// there was nothing pending.
type DelayedJobs interface {
	ScheduleFallback(ctx context.Context, attempt FallbackAttempt, runAt time.Time) error
	CancelFallback(ctx context.Context, callID string) (bool, error)
}

// FallbackScheduler accepts a freshly placed call for a later missed-call
// check.
type FallbackScheduler interface {
	Schedule(ctx context.Context, attempt FallbackAttempt) (bool, error)
}
