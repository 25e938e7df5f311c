// Package status persists a contact's outbound-call status on its record.
package status

import (
	"context"
	"fmt"

	"voicelead_backend/internal/crm"
	"voicelead_backend/internal/leads/domain"
	"voicelead_backend/internal/leads/ports"
	"voicelead_backend/platform/apperr"
)

// Store reads and writes the call status field. Writes are durable but
// not instantly visible to every reader, so callers still hold the contact
// lock around read-modify-write sequences.
type Store struct {
	contacts ports.ContactStore
}

func New(contacts ports.ContactStore) *Store {
	return &Store{contacts: contacts}
}

// StatusOf reads the status from an already fetched record.
func StatusOf(contact crm.Contact) domain.CallStatus {
	return domain.ParseStatus(contact.Field(domain.FieldCallStatus))
}

// GetStatus fetches the contact and returns its status.
func (s *Store) GetStatus(ctx context.Context, contactID string) (domain.CallStatus, error) {
	contact, err := s.contacts.GetContact(ctx, contactID)
	if err != nil {
		return domain.StatusNone, err
	}
	return StatusOf(contact), nil
}

// SetStatus moves the contact to next. A regression is rejected with a
// conflict; re-writing the current value does nothing.
func (s *Store) SetStatus(ctx context.Context, contactID string, next domain.CallStatus) error {
	current, err := s.GetStatus(ctx, contactID)
	if err != nil {
		return err
	}
	return s.transition(ctx, contactID, current, next, nil)
}

// MarkSent records the placed call. extra fields are written in the same
// update.
func (s *Store) MarkSent(ctx context.Context, contactID, callID string, extra map[string]string) error {
	current, err := s.GetStatus(ctx, contactID)
	if err != nil {
		return err
	}
	fields := map[string]string{domain.FieldCallID: callID}
	for k, v := range extra {
		fields[k] = v
	}
	return s.transition(ctx, contactID, current, domain.StatusSent, fields)
}

func (s *Store) transition(ctx context.Context, contactID string, current, next domain.CallStatus, extra map[string]string) error {
	if !domain.CanTransition(current, next) {
		return apperr.Conflict(fmt.Sprintf("call status cannot move from %s to %s", current, next)).WithOp("status.SetStatus")
	}
	if current == next && len(extra) == 0 {
		return nil
	}

	fields := map[string]string{domain.FieldCallStatus: next.FieldValue()}
	for k, v := range extra {
		fields[k] = v
	}
	return s.contacts.UpdateCustomFields(ctx, contactID, fields)
}
