package status

import (
	"context"
	"testing"

	"voicelead_backend/internal/crm"
	"voicelead_backend/internal/leads/domain"
	"voicelead_backend/platform/apperr"
)

type fakeContacts struct {
	contact crm.Contact
	writes  []map[string]string
}

func (f *fakeContacts) GetContact(_ context.Context, _ string) (crm.Contact, error) {
	return f.contact, nil
}

func (f *fakeContacts) SearchByPhone(context.Context, string) ([]crm.Contact, error) {
	return nil, nil
}

func (f *fakeContacts) UpdateCustomFields(_ context.Context, _ string, fields map[string]string) error {
	f.writes = append(f.writes, fields)
	if f.contact.CustomFields == nil {
		f.contact.CustomFields = map[string]string{}
	}
	for k, v := range fields {
		f.contact.CustomFields[k] = v
	}
	return nil
}

func (f *fakeContacts) AddTags(context.Context, string, ...string) error { return nil }

func TestSetStatusForwardOnly(t *testing.T) {
	contacts := &fakeContacts{contact: crm.Contact{ID: "c1"}}
	store := New(contacts)
	ctx := context.Background()

	if err := store.SetStatus(ctx, "c1", domain.StatusCalling); err != nil {
		t.Fatalf("none -> calling: %v", err)
	}
	if contacts.contact.Field("vapi_called") != "calling" {
		t.Fatalf("expected calling to be written, got %v", contacts.contact.CustomFields)
	}

	if err := store.SetStatus(ctx, "c1", domain.StatusCalling); err != nil {
		t.Fatalf("same value: %v", err)
	}
	if len(contacts.writes) != 1 {
		t.Fatalf("expected rewrite of the same value to be skipped, got %d writes", len(contacts.writes))
	}

	if err := store.MarkSent(ctx, "c1", "call-9", map[string]string{"lead_source": "website"}); err != nil {
		t.Fatalf("calling -> sent: %v", err)
	}
	last := contacts.writes[len(contacts.writes)-1]
	if last["vapi_called"] != "true" || last["vapi_call_id"] != "call-9" || last["lead_source"] != "website" {
		t.Fatalf("expected one combined update, got %v", last)
	}

	err := store.SetStatus(ctx, "c1", domain.StatusCalling)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected sent -> calling to conflict, got %v", err)
	}
	err = store.SetStatus(ctx, "c1", domain.StatusNone)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected sent -> none to conflict, got %v", err)
	}
}

func TestStatusOfReadsLegacyValues(t *testing.T) {
	contact := crm.Contact{CustomFields: map[string]string{"vapi_called": "1"}}
	if StatusOf(contact) != domain.StatusSent {
		t.Fatal("expected 1 to read as sent")
	}
	if StatusOf(crm.Contact{}) != domain.StatusNone {
		t.Fatal("expected missing field to read as none")
	}
}
