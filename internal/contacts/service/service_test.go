package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"voicelead_backend/internal/coordination"
	"voicelead_backend/internal/crm"
	"voicelead_backend/platform/apperr"
	"voicelead_backend/platform/logger"
	"voicelead_backend/platform/phone"
)

type fakeStore struct {
	mu        sync.Mutex
	contacts  []crm.Contact
	createErr error
	created   []crm.ContactUpdate
	updates   map[string][]crm.ContactUpdate
	tags      map[string][]string
	notes     map[string][]string
	fields    map[string]map[string]string
	searchErr error
}

func newFakeStore(contacts ...crm.Contact) *fakeStore {
	return &fakeStore{
		contacts: contacts,
		updates:  map[string][]crm.ContactUpdate{},
		tags:     map[string][]string{},
		notes:    map[string][]string{},
		fields:   map[string]map[string]string{},
	}
}

func (f *fakeStore) SearchByPhone(_ context.Context, number string) ([]crm.Contact, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var out []crm.Contact
	for _, c := range f.contacts {
		if phone.Same(c.Phone, number) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) GetContactByEmail(_ context.Context, email string) (crm.Contact, error) {
	for _, c := range f.contacts {
		if strings.EqualFold(c.Email, email) {
			return c, nil
		}
	}
	return crm.Contact{}, apperr.NotFound("contact not found")
}

func (f *fakeStore) CreateContact(_ context.Context, in crm.ContactUpdate) (crm.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, in)
	if f.createErr != nil {
		return crm.Contact{}, f.createErr
	}
	return crm.Contact{ID: "new-1", Phone: in.Phone}, nil
}

func (f *fakeStore) UpdateContact(_ context.Context, contactID string, update crm.ContactUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[contactID] = append(f.updates[contactID], update)
	return nil
}

func (f *fakeStore) UpdateCustomFields(_ context.Context, contactID string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fields[contactID] = fields
	return nil
}

func (f *fakeStore) AddTags(_ context.Context, contactID string, tags ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags[contactID] = append(f.tags[contactID], tags...)
	return nil
}

func (f *fakeStore) AddNote(_ context.Context, contactID, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes[contactID] = append(f.notes[contactID], body)
	return nil
}

func newService(store Store) *Service {
	coord := coordination.NewMemoryCoordinator(coordination.Options{DedupTTL: time.Hour, InFlightTTL: time.Hour})
	return New(store, coord, Config{DefaultCity: "Salem", DefaultState: "OR", DefaultCountry: "United States"}, logger.Discard())
}

func TestUpsertCreatesInboundContact(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)

	res, err := svc.Upsert(context.Background(), UpsertRequest{
		Name:       "Dana Lee Smith",
		Phone:      "(650) 253-0000",
		Email:      "Dana@Example.com",
		SMSConsent: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ContactID != "new-1" || !res.IsNew {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected one create, got %d", len(store.created))
	}
	in := store.created[0]
	if in.FirstName != "Dana" || in.LastName != "Lee Smith" || in.Phone != "+16502530000" || in.Email != "dana@example.com" {
		t.Fatalf("unexpected create payload %+v", in)
	}
	if in.City != "Salem" || in.State != "OR" {
		t.Fatalf("expected default city and state, got %q %q", in.City, in.State)
	}
	if in.CustomFields["lead_source"] != "inbound" || in.CustomFields["sms_consent"] != "true" {
		t.Fatalf("unexpected fields %v", in.CustomFields)
	}
	if len(in.Tags) != 1 || in.Tags[0] != "inbound" {
		t.Fatalf("expected inbound tag, got %v", in.Tags)
	}
}

func TestUpsertUpdatesContactFoundByPhone(t *testing.T) {
	store := newFakeStore(crm.Contact{ID: "c1", Phone: "+15035550100"})
	svc := newService(store)

	res, err := svc.Upsert(context.Background(), UpsertRequest{
		Name:         "Dana",
		Phone:        "503.555.0100",
		CustomFields: map[string]string{"contact.lead_source": "yelp"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ContactID != "c1" || res.IsNew || res.PhoneKept {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(store.created) != 0 {
		t.Fatal("existing contact must not be recreated")
	}
	updates := store.updates["c1"]
	if len(updates) != 1 || updates[0].CustomFields["lead_source"] != "yelp" {
		t.Fatalf("unexpected updates %+v", updates)
	}
	if updates[0].City != "" {
		t.Fatalf("city must not be defaulted without an address, got %q", updates[0].City)
	}
	if len(store.tags["c1"]) != 0 {
		t.Fatalf("supplied lead source must not be tagged inbound, got %v", store.tags["c1"])
	}
}

func TestUpsertPrefersPhoneOwnerOverEmailMatch(t *testing.T) {
	store := newFakeStore(
		crm.Contact{ID: "by-email", Email: "dana@example.com", Phone: "+15035550999"},
		crm.Contact{ID: "by-phone", Phone: "+15035550100"},
	)
	svc := newService(store)

	res, err := svc.Upsert(context.Background(), UpsertRequest{Name: "Dana", Phone: "5035550100", Email: "dana@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ContactID != "by-phone" {
		t.Fatalf("contact = %q, want by-phone", res.ContactID)
	}
	if len(store.updates["by-email"]) != 0 {
		t.Fatal("number must not be moved onto the email match")
	}
	if got := store.tags["by-phone"]; len(got) != 1 || got[0] != "inbound" {
		t.Fatalf("expected inbound tag, got %v", got)
	}
}

func TestUpsertKeepsPhoneOnLikelyTypo(t *testing.T) {
	store := newFakeStore(crm.Contact{ID: "c1", Email: "dana@example.com", Phone: "+15035550100"})
	svc := newService(store)

	res, err := svc.Upsert(context.Background(), UpsertRequest{Name: "Dana", Phone: "5035550109", Email: "dana@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ContactID != "c1" || !res.PhoneKept {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := store.updates["c1"][0].Phone; got != "" {
		t.Fatalf("phone must be left alone, update carried %q", got)
	}
}

func TestUpsertMovesPhoneWhenClearlyDifferent(t *testing.T) {
	store := newFakeStore(crm.Contact{ID: "c1", Email: "dana@example.com", Phone: "+15035550100"})
	svc := newService(store)

	res, err := svc.Upsert(context.Background(), UpsertRequest{Name: "Dana", Phone: "6502530000", Email: "dana@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.PhoneKept {
		t.Fatal("an unrelated new number should be written")
	}
	if got := store.updates["c1"][0].Phone; got != "+16502530000" {
		t.Fatalf("phone = %q", got)
	}
}

func TestUpsertFallsBackToDuplicateContact(t *testing.T) {
	store := newFakeStore()
	store.createErr = &crm.DuplicateContactError{ContactID: "dup-7", Err: apperr.BadRequest("duplicated contacts")}
	svc := newService(store)

	res, err := svc.Upsert(context.Background(), UpsertRequest{Name: "Dana", Phone: "5035550100"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ContactID != "dup-7" || res.IsNew {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(store.updates["dup-7"]) != 1 || store.updates["dup-7"][0].Tags != nil {
		t.Fatalf("unexpected updates %+v", store.updates["dup-7"])
	}
	if got := store.tags["dup-7"]; len(got) != 1 || got[0] != "inbound" {
		t.Fatalf("expected inbound tag, got %v", got)
	}
}

func TestUpsertByEmailWithoutPhone(t *testing.T) {
	store := newFakeStore(crm.Contact{ID: "c1", Email: "dana@example.com", Phone: "+15035550100"})
	svc := newService(store)

	res, err := svc.Upsert(context.Background(), UpsertRequest{Name: "Dana", Email: "DANA@example.com", Address: "1 Main St"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ContactID != "c1" || res.IsNew {
		t.Fatalf("unexpected result %+v", res)
	}
	update := store.updates["c1"][0]
	if update.Phone != "" || update.Address1 != "1 Main St" || update.City != "Salem" {
		t.Fatalf("unexpected update %+v", update)
	}

	_, err = svc.Upsert(context.Background(), UpsertRequest{Name: "Sam", Email: "sam@example.com"})
	if !apperr.Is(err, apperr.KindValidation) || !strings.Contains(err.Error(), "new contact") {
		t.Fatalf("expected missing phone for a new contact, got %v", err)
	}
	if len(store.created) != 0 {
		t.Fatal("must not create a contact without a phone")
	}
}

func TestUpsertErrors(t *testing.T) {
	svc := newService(newFakeStore())
	if _, err := svc.Upsert(context.Background(), UpsertRequest{Name: "Dana"}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.Upsert(context.Background(), UpsertRequest{Name: "Dana", Phone: "call me"}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for a phone without digits, got %v", err)
	}

	store := newFakeStore()
	store.createErr = apperr.BadRequest("email must be an email")
	if _, err := newService(store).Upsert(context.Background(), UpsertRequest{Phone: "5035550100"}); !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected create error to surface, got %v", err)
	}

	store = newFakeStore()
	store.searchErr = apperr.Unavailable("crm down", errors.New("timeout"))
	if _, err := newService(store).Upsert(context.Background(), UpsertRequest{Phone: "5035550100"}); !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected search error to surface, got %v", err)
	}
	if len(store.created) != 0 {
		t.Fatal("must not create when the lookup failed")
	}
}

func TestLogCallSummaryWritesNoteAndFields(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)

	equipment, err := svc.LogCallSummary(context.Background(), CallSummary{
		ContactID:       "c1",
		Transcript:      "Customer: my furnace is making noise and the thermostat is blank. Please contact me.",
		Summary:         "Furnace noise, thermostat dead.",
		CallType:        "service_repair",
		DurationSeconds: 184,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(equipment) != 2 || equipment[0] != "furnace" || equipment[1] != "thermostat" {
		t.Fatalf("unexpected equipment %v", equipment)
	}

	notes := store.notes["c1"]
	if len(notes) != 1 {
		t.Fatalf("expected one note, got %d", len(notes))
	}
	for _, want := range []string{"Call Summary:\nFurnace noise", "Call Type: service_repair", "Duration: 184 seconds", "Outcome: N/A", "Full Transcript:\nCustomer:"} {
		if !strings.Contains(notes[0], want) {
			t.Fatalf("note missing %q:\n%s", want, notes[0])
		}
	}

	fields := store.fields["c1"]
	if fields[FieldCallDuration] != "184" || fields[FieldCallType] != "service_repair" || fields[FieldEquipmentTypeTags] != "furnace,thermostat" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestLogCallSummaryRequiresContact(t *testing.T) {
	_, err := newService(newFakeStore()).LogCallSummary(context.Background(), CallSummary{Summary: "x"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDetectEquipmentMatchesWholeWords(t *testing.T) {
	if got := DetectEquipment("please contact me about the back door"); len(got) != 0 {
		t.Fatalf("unexpected equipment %v", got)
	}
	got := DetectEquipment("The AC and the mini-split both quit")
	if len(got) != 2 || got[0] != "air_conditioner" || got[1] != "ductless" {
		t.Fatalf("unexpected equipment %v", got)
	}
}
