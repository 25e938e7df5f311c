package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"voicelead_backend/internal/appointments/cache"
	"voicelead_backend/internal/crm"
	"voicelead_backend/platform/apperr"
	"voicelead_backend/platform/config"
	"voicelead_backend/platform/logger"
	"voicelead_backend/platform/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeStore struct {
	mu            sync.Mutex
	contacts      map[string]crm.Contact
	recent        []crm.Contact
	appts         map[string][]crm.Appointment
	calendars     []crm.Calendar
	calendarCalls int
	apptErr       error
	apptErrFor    map[string]error
	created       []crm.NewAppointment
	notes         []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		contacts: map[string]crm.Contact{},
		appts:    map[string][]crm.Appointment{},
	}
}

func (f *fakeStore) addAppointment(contactID string, appt crm.Appointment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.contacts[contactID]; !ok {
		f.contacts[contactID] = crm.Contact{ID: contactID, CustomFields: map[string]string{}}
		f.recent = append(f.recent, f.contacts[contactID])
	}
	f.appts[contactID] = append(f.appts[contactID], appt)
}

func (f *fakeStore) ListRecentContacts(_ context.Context, limit int) ([]crm.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.recent) > limit {
		return append([]crm.Contact(nil), f.recent[:limit]...), nil
	}
	return append([]crm.Contact(nil), f.recent...), nil
}

func (f *fakeStore) GetContact(_ context.Context, id string) (crm.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contacts[id]
	if !ok {
		return crm.Contact{}, apperr.NotFound("contact not found")
	}
	fields := make(map[string]string, len(c.CustomFields))
	for k, v := range c.CustomFields {
		fields[k] = v
	}
	c.CustomFields = fields
	return c, nil
}

func (f *fakeStore) GetContactAppointments(_ context.Context, id string) ([]crm.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.apptErr != nil {
		return nil, f.apptErr
	}
	if err := f.apptErrFor[id]; err != nil {
		return nil, err
	}
	return append([]crm.Appointment(nil), f.appts[id]...), nil
}

func (f *fakeStore) ListCalendars(_ context.Context) ([]crm.Calendar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calendarCalls++
	return f.calendars, nil
}

func (f *fakeStore) CreateAppointment(_ context.Context, in crm.NewAppointment) (crm.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, in)
	return crm.Appointment{ID: "appt-new", CalendarID: in.CalendarID, ContactID: in.ContactID, StartTime: in.StartTime, EndTime: in.EndTime}, nil
}

func (f *fakeStore) UpdateCustomFields(_ context.Context, id string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.contacts[id]
	if c.CustomFields == nil {
		c.CustomFields = map[string]string{}
	}
	for k, v := range fields {
		c.CustomFields[k] = v
	}
	f.contacts[id] = c
	return nil
}

func (f *fakeStore) AddNote(_ context.Context, _ string, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, body)
	return nil
}

type fakeCanceller struct {
	calls  int32
	result crm.CancelResult
	err    error
}

func (f *fakeCanceller) Cancel(_ context.Context, _, _ string) (crm.CancelResult, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.result, f.err
}

type fakeSender struct {
	mu     sync.Mutex
	bodies []string
	err    error
}

func (f *fakeSender) Send(_ context.Context, _, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.bodies = append(f.bodies, body)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bodies)
}

type fixture struct {
	svc       *Service
	store     *fakeStore
	canceller *fakeCanceller
	sender    *fakeSender
	loc       *time.Location
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	hours := config.DefaultBusinessHours()
	store := newFakeStore()
	canceller := &fakeCanceller{result: crm.CancelResult{Method: crm.CancelByStatus}}
	sender := &fakeSender{}
	svc := New(store, canceller, sender,
		cache.NewAppointmentCache(hours.Location, hours.SlotDuration),
		cache.NewCancellationCache(0),
		nil,
		Config{Hours: hours, BusinessName: "Valley View HVAC"},
		logger.Discard(),
	)
	svc.now = func() time.Time { return now }
	return &fixture{svc: svc, store: store, canceller: canceller, sender: sender, loc: hours.Location}
}

func (f *fixture) at(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, f.loc)
}

func pacific(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func slotHours(slots []Slot) []int {
	out := make([]int, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Start.Hour())
	}
	return out
}

func containsHour(slots []Slot, hour int) bool {
	for _, s := range slots {
		if s.Start.Hour() == hour {
			return true
		}
	}
	return false
}

// Monday 2025-11-24, 07:00 Pacific.
func mondayMorning(t *testing.T) time.Time {
	return time.Date(2025, 11, 24, 7, 0, 0, 0, pacific(t))
}

func TestCheckAvailabilityExcludesBookedSlot(t *testing.T) {
	f := newFixture(t, mondayMorning(t))
	// The booking sits on another calendar and still blocks the slot.
	f.store.addAppointment("contact-1", crm.Appointment{
		ID:         "appt-1",
		CalendarID: "cal-other",
		StartTime:  "2025-11-25T10:00:00-08:00",
		EndTime:    "2025-11-25T11:00:00-08:00",
	})

	slots, err := f.svc.CheckAvailability(context.Background(), Request{
		CalendarID: "cal-1",
		StartDate:  "2025-11-25",
		EndDate:    "2025-11-25",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []int{8, 9, 11, 12, 13, 14, 15}
	got := slotHours(slots)
	if len(got) != len(want) {
		t.Fatalf("expected hours %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected hours %v, got %v", want, got)
		}
	}
	for _, s := range slots {
		if s.End.Sub(s.Start) != time.Hour {
			t.Fatalf("expected one-hour slots, got %s", s.End.Sub(s.Start))
		}
	}
}

func TestCheckAvailabilityNeverReturnsWeekends(t *testing.T) {
	f := newFixture(t, mondayMorning(t))
	slots, err := f.svc.CheckAvailability(context.Background(), Request{
		CalendarID: "cal-1",
		StartDate:  "2025-11-24",
		EndDate:    "2025-12-07",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) == 0 {
		t.Fatal("expected slots")
	}
	for _, s := range slots {
		switch s.Start.Weekday() {
		case time.Saturday, time.Sunday:
			t.Fatalf("weekend slot returned: %s", s.Start)
		}
	}
}

func TestCheckAvailabilitySkipsHolidays(t *testing.T) {
	loc := pacific(t)
	f := newFixture(t, time.Date(2025, 12, 22, 7, 0, 0, 0, loc))
	slots, err := f.svc.CheckAvailability(context.Background(), Request{
		CalendarID: "cal-1",
		StartDate:  "2025-12-25",
		EndDate:    "2025-12-25",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots on a holiday, got %d", len(slots))
	}
}

func TestCheckAvailabilityYesterdayNeverReturnsPastSlots(t *testing.T) {
	loc := pacific(t)
	now := time.Date(2025, 11, 25, 13, 30, 0, 0, loc)
	f := newFixture(t, now)

	slots, err := f.svc.CheckAvailability(context.Background(), Request{
		CalendarID: "cal-1",
		StartDate:  "2025-11-24",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) == 0 {
		t.Fatal("expected slots")
	}
	for _, s := range slots {
		if !s.Start.After(now) {
			t.Fatalf("slot %s is not after now %s", s.Start, now)
		}
	}
	if first := slots[0].Start; !first.Equal(f.at(2025, 11, 26, 8, 0)) {
		t.Fatalf("expected first slot tomorrow at 08:00, got %s", first)
	}
}

func TestCheckAvailabilityTodayDropsStartedSlots(t *testing.T) {
	loc := pacific(t)
	f := newFixture(t, time.Date(2025, 11, 24, 10, 15, 0, 0, loc))

	slots, err := f.svc.CheckAvailability(context.Background(), Request{
		CalendarID: "cal-1",
		StartDate:  "2025-11-24",
		EndDate:    "2025-11-24",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := slotHours(slots)
	want := []int{11, 12, 13, 14, 15}
	if len(got) != len(want) || got[0] != 11 {
		t.Fatalf("expected hours %v, got %v", want, got)
	}
}

func TestCheckAvailabilityAfterClosingStartsTomorrow(t *testing.T) {
	loc := pacific(t)
	f := newFixture(t, time.Date(2025, 11, 24, 16, 45, 0, 0, loc))

	slots, err := f.svc.CheckAvailability(context.Background(), Request{
		CalendarID: "cal-1",
		StartDate:  "2025-11-24",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) == 0 || !slots[0].Start.Equal(f.at(2025, 11, 25, 8, 0)) {
		t.Fatalf("expected first slot on 2025-11-25 08:00, got %v", slots)
	}
}

func TestCheckAvailabilityEndBeforeStartDefaultsToOneWeek(t *testing.T) {
	f := newFixture(t, mondayMorning(t))

	slots, err := f.svc.CheckAvailability(context.Background(), Request{
		CalendarID: "cal-1",
		StartDate:  "2025-11-25",
		EndDate:    "2025-11-20",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last := slots[len(slots)-1].Start
	if !last.Equal(f.at(2025, 12, 2, 15, 0)) {
		t.Fatalf("expected window to end on 2025-12-02, last slot %s", last)
	}
	for i := 1; i < len(slots); i++ {
		if slots[i].Start.Before(slots[i-1].Start) {
			t.Fatalf("slots out of order at %d", i)
		}
	}
}

func TestCheckAvailabilityTimestampFormats(t *testing.T) {
	f := newFixture(t, mondayMorning(t))
	for _, appt := range []crm.Appointment{
		{ID: "unparseable", StartTime: "tomorrow-ish"},
		{ID: "zoneless", StartTime: "2025-11-25T13:00:00"},
		{ID: "us-format", StartTime: "11-25-2025 2:00 PM", EndTime: "11-25-2025 3:00 PM"},
		{ID: "month-name", StartTime: "25-Nov-2025 9:00 AM"},
		{ID: "utc", StartTime: "2025-11-25T19:00:00Z", EndTime: "2025-11-25T20:00:00Z"},
		{ID: "cancelled", StartTime: "2025-11-25T08:00:00-08:00", Status: "cancelled"},
	} {
		f.store.addAppointment("contact-"+appt.ID, appt)
	}

	slots, err := f.svc.CheckAvailability(context.Background(), Request{
		CalendarID: "cal-1",
		StartDate:  "2025-11-25",
		EndDate:    "2025-11-25",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, tc := range []struct {
		hour int
		free bool
	}{
		{8, true},   // cancelled appointment ignored
		{9, false},  // month-name format, end defaulted to +1h
		{10, true},  // untouched
		{11, false}, // 19:00Z is 11:00 Pacific
		{12, true},
		{13, false}, // zoneless, read as Pacific
		{14, false}, // US format
		{15, true},
	} {
		if got := containsHour(slots, tc.hour); got != tc.free {
			t.Fatalf("hour %d: free=%v, want %v (slots %v)", tc.hour, got, tc.free, slotHours(slots))
		}
	}
}

func TestCheckAvailabilityMergesLocalBookings(t *testing.T) {
	f := newFixture(t, mondayMorning(t))
	f.svc.booked.Add("cal-1", f.at(2025, 11, 25, 12, 0), time.Time{})
	f.svc.booked.Add("cal-2", f.at(2025, 11, 25, 14, 0), time.Time{})

	slots, err := f.svc.CheckAvailability(context.Background(), Request{
		CalendarID: "cal-1",
		StartDate:  "2025-11-25",
		EndDate:    "2025-11-25",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if containsHour(slots, 12) {
		t.Fatal("expected locally booked 12:00 slot to be excluded")
	}
	if !containsHour(slots, 14) {
		t.Fatal("expected another calendar's local booking not to block 14:00")
	}
}

func TestCheckAvailabilityAbortsOnVendorError(t *testing.T) {
	f := newFixture(t, mondayMorning(t))
	f.store.addAppointment("contact-1", crm.Appointment{ID: "appt-1", StartTime: "2025-11-25T10:00:00-08:00"})
	f.store.apptErr = apperr.Unavailable("crm down", nil)

	_, err := f.svc.CheckAvailability(context.Background(), Request{CalendarID: "cal-1"})
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestCheckAvailabilitySkipsVanishedContact(t *testing.T) {
	f := newFixture(t, mondayMorning(t))
	f.store.addAppointment("contact-1", crm.Appointment{ID: "appt-1", StartTime: "2025-11-25T10:00:00-08:00", EndTime: "2025-11-25T11:00:00-08:00"})
	f.store.addAppointment("contact-2", crm.Appointment{ID: "appt-2", StartTime: "2025-11-25T13:00:00-08:00", EndTime: "2025-11-25T14:00:00-08:00"})
	f.store.apptErrFor = map[string]error{"contact-2": apperr.NotFound("contact not found")}
	skippedBefore := testutil.ToFloat64(metrics.AvailabilityContactsSkipped)

	slots, err := f.svc.CheckAvailability(context.Background(), Request{CalendarID: "cal-1", StartDate: "2025-11-25", EndDate: "2025-11-25"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := slotHours(slots)
	want := []int{8, 9, 11, 12, 13, 14, 15}
	if len(got) != len(want) {
		t.Fatalf("expected hours %v, got %v", want, got)
	}
	if d := testutil.ToFloat64(metrics.AvailabilityContactsSkipped) - skippedBefore; d != 1 {
		t.Fatalf("skipped counter moved by %v, want 1", d)
	}
}

func TestCheckAvailabilityCapsWindowAtThirtyOneDays(t *testing.T) {
	f := newFixture(t, mondayMorning(t))
	slots, err := f.svc.CheckAvailability(context.Background(), Request{CalendarID: "cal-1", StartDate: "2025-11-25", EndDate: "2026-03-01"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) == 0 {
		t.Fatal("expected slots")
	}
	limit := time.Date(2025, 12, 27, 0, 0, 0, 0, f.loc)
	if last := slots[len(slots)-1].Start; !last.Before(limit) {
		t.Fatalf("last slot %s is past the 31 day window", last)
	}
}

func TestCheckAvailabilityWithoutCalendars(t *testing.T) {
	f := newFixture(t, mondayMorning(t))
	slots, err := f.svc.CheckAvailability(context.Background(), Request{ServiceType: ServiceRepair})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots without calendars, got %d", len(slots))
	}
}

func TestResolveCalendar(t *testing.T) {
	f := newFixture(t, mondayMorning(t))
	f.store.calendars = []crm.Calendar{
		{ID: "general", Name: "General"},
		{ID: "diag", Name: "Diagnostic Visit"},
		{ID: "sales", Name: "Sales Proposal"},
		{ID: "install", Name: "Installations"},
	}

	for _, tc := range []struct {
		calendarID  string
		serviceType string
		want        string
	}{
		{"", ServiceRepair, "diag"},
		{"", ServiceMaintenance, "diag"},
		{"", ServiceEstimate, "sales"},
		{"", "Installation", "install"},
		{"", "unknown", "general"},
		{"explicit", ServiceRepair, "explicit"},
	} {
		got, err := f.svc.ResolveCalendar(context.Background(), tc.calendarID, tc.serviceType)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tc.want {
			t.Fatalf("ResolveCalendar(%q, %q) = %q, want %q", tc.calendarID, tc.serviceType, got, tc.want)
		}
	}
	if f.store.calendarCalls != 1 {
		t.Fatalf("expected calendars to be listed once, got %d", f.store.calendarCalls)
	}
}

func TestBookCreatesAppointmentAndBlocksSlot(t *testing.T) {
	f := newFixture(t, mondayMorning(t))
	f.store.contacts["contact-9"] = crm.Contact{ID: "contact-9"}

	booking, err := f.svc.Book(context.Background(), BookRequest{
		ContactID:  "contact-9",
		CalendarID: "cal-1",
		StartTime:  "2025-11-25T10:00:00-08:00",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booking.AppointmentID != "appt-new" {
		t.Fatalf("unexpected appointment id %q", booking.AppointmentID)
	}
	if booking.End.Sub(booking.Start) != time.Hour {
		t.Fatalf("expected one-hour booking, got %s", booking.End.Sub(booking.Start))
	}
	if len(f.store.created) != 1 || f.store.created[0].Title != defaultTitle {
		t.Fatalf("unexpected created appointments: %+v", f.store.created)
	}

	// The CRM does not list the new appointment yet; the local cache does.
	slots, err := f.svc.CheckAvailability(context.Background(), Request{
		CalendarID: "cal-1",
		StartDate:  "2025-11-25",
		EndDate:    "2025-11-25",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if containsHour(slots, 10) {
		t.Fatal("expected just-booked slot to be excluded")
	}
}

func TestBookRejectsInvalidTimes(t *testing.T) {
	f := newFixture(t, mondayMorning(t))
	for name, start := range map[string]string{
		"garbage":     "next tuesday",
		"past":        "2025-11-21T10:00:00-08:00",
		"saturday":    "2025-11-29T10:00:00-08:00",
		"before open": "2025-11-25T07:00:00-08:00",
		"past close":  "2025-11-25T16:00:00-08:00",
		"holiday":     "2025-12-25T10:00:00-08:00",
	} {
		_, err := f.svc.Book(context.Background(), BookRequest{ContactID: "contact-1", CalendarID: "cal-1", StartTime: start})
		if !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
	if len(f.store.created) != 0 {
		t.Fatal("expected nothing to be created")
	}
}

func TestBookRefusesSecondAppointmentUntilCancelled(t *testing.T) {
	f := newFixture(t, mondayMorning(t))
	f.store.addAppointment("contact-1", crm.Appointment{
		ID:        "appt-old",
		StartTime: "2025-11-26T09:00:00-08:00",
	})

	req := BookRequest{ContactID: "contact-1", CalendarID: "cal-1", StartTime: "2025-11-25T10:00:00-08:00"}
	_, err := f.svc.Book(context.Background(), req)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperr.Error, got %T", err)
	}
	if details, ok := appErr.Details.(map[string]string); !ok || details["appointmentId"] != "appt-old" {
		t.Fatalf("expected existing appointment in details, got %+v", appErr.Details)
	}

	f.svc.RecordCancelled("contact-1", "appt-old")
	if _, err := f.svc.Book(context.Background(), req); err != nil {
		t.Fatalf("expected booking after cancellation, got %v", err)
	}
}

func TestBookIgnoresPastAppointments(t *testing.T) {
	f := newFixture(t, mondayMorning(t))
	f.store.addAppointment("contact-1", crm.Appointment{ID: "appt-past", StartTime: "2025-11-20T09:00:00-08:00"})

	if _, err := f.svc.Book(context.Background(), BookRequest{
		ContactID:  "contact-1",
		CalendarID: "cal-1",
		StartTime:  "2025-11-25T10:00:00-08:00",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBookRejectsTakenSlot(t *testing.T) {
	f := newFixture(t, mondayMorning(t))
	f.store.addAppointment("contact-other", crm.Appointment{
		ID:        "appt-1",
		StartTime: "2025-11-25T10:30:00-08:00",
		EndTime:   "2025-11-25T11:30:00-08:00",
	})

	_, err := f.svc.Book(context.Background(), BookRequest{
		ContactID:  "contact-1",
		CalendarID: "cal-1",
		StartTime:  "2025-11-25T10:00:00-08:00",
	})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestBookRescheduleCancelsOldAppointment(t *testing.T) {
	f := newFixture(t, mondayMorning(t))
	f.store.addAppointment("contact-1", crm.Appointment{
		ID:        "appt-old",
		StartTime: "2025-11-25T10:00:00-08:00",
		EndTime:   "2025-11-25T11:00:00-08:00",
	})
	f.canceller.err = errors.New("vendor rejected cancel")

	_, err := f.svc.Book(context.Background(), BookRequest{
		ContactID:               "contact-1",
		CalendarID:              "cal-1",
		StartTime:               "2025-11-25T10:00:00-08:00",
		RescheduleAppointmentID: "appt-old",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&f.canceller.calls) != 1 {
		t.Fatalf("expected one cancel call, got %d", f.canceller.calls)
	}
	if !f.svc.cancelled.IsRecentlyCancelled("contact-1", "appt-old") {
		t.Fatal("expected old appointment to be remembered as cancelled")
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t, mondayMorning(t))

	result, err := f.svc.Cancel(context.Background(), CancelRequest{ContactID: "contact-1", AppointmentID: "appt-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Method != crm.CancelByStatus {
		t.Fatalf("unexpected method %q", result.Method)
	}
	if !f.svc.cancelled.IsRecentlyCancelled("contact-1", "appt-1") {
		t.Fatal("expected cancellation to be cached")
	}
	if len(f.store.notes) != 1 || !strings.Contains(f.store.notes[0], "appt-1") {
		t.Fatalf("expected a cancellation note, got %v", f.store.notes)
	}

	f.canceller.result = crm.CancelResult{Method: crm.CancelByNote, Manual: true}
	if _, err := f.svc.Cancel(context.Background(), CancelRequest{ContactID: "contact-1", AppointmentID: "appt-2"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.store.notes) != 1 {
		t.Fatalf("expected no extra note for manual cancellation, got %v", f.store.notes)
	}
}

func TestCancelVendorFailure(t *testing.T) {
	f := newFixture(t, mondayMorning(t))
	f.canceller.err = apperr.Unavailable("crm down", nil)

	_, err := f.svc.Cancel(context.Background(), CancelRequest{ContactID: "contact-1", AppointmentID: "appt-1"})
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if f.svc.cancelled.IsRecentlyCancelled("contact-1", "appt-1") {
		t.Fatal("failed cancellation must not be cached")
	}
}

func TestCancelValidation(t *testing.T) {
	f := newFixture(t, mondayMorning(t))
	if _, err := f.svc.Cancel(context.Background(), CancelRequest{ContactID: "contact-1"}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func newConfirmationFixture(t *testing.T) *fixture {
	f := newFixture(t, mondayMorning(t))
	f.store.contacts["contact-1"] = crm.Contact{
		ID:           "contact-1",
		FirstName:    "Ana",
		Phone:        "+15415550100",
		CustomFields: map[string]string{},
	}
	f.store.appts["contact-1"] = []crm.Appointment{{ID: "appt-1", StartTime: "2025-11-25T10:00:00-08:00"}}
	return f
}

func TestSendConfirmation(t *testing.T) {
	f := newConfirmationFixture(t)

	result, err := f.svc.SendConfirmation(context.Background(), ConfirmationRequest{ContactID: "contact-1", AppointmentID: "appt-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Sent {
		t.Fatalf("expected a send, got %+v", result)
	}

	want := "Hi Ana! Your appointment with Valley View HVAC is confirmed for Tuesday, November 25 at 10:00 AM. Reply STOP to opt out."
	if f.sender.bodies[0] != want {
		t.Fatalf("unexpected body:\n%s\nwant:\n%s", f.sender.bodies[0], want)
	}

	fields := f.store.contacts["contact-1"].CustomFields
	if fields["confirmation_sent_appt-1"] != "true" || fields["last_confirmed_appointment_id"] != "appt-1" {
		t.Fatalf("confirmation flags not written: %v", fields)
	}
	if fields["last_confirmation_sent_time"] == "" {
		t.Fatal("expected last confirmation time")
	}

	again, err := f.svc.SendConfirmation(context.Background(), ConfirmationRequest{ContactID: "contact-1", AppointmentID: "appt-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.Sent || f.sender.count() != 1 {
		t.Fatalf("expected the second confirmation to be suppressed, got %+v", again)
	}
}

func TestSendConfirmationConcurrentCallsSendOnce(t *testing.T) {
	f := newConfirmationFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.SendConfirmation(context.Background(), ConfirmationRequest{
				ContactID:     "contact-1",
				AppointmentID: "appt-1",
				StartTime:     "2025-11-25T10:00:00-08:00",
			})
		}()
	}
	wg.Wait()

	if got := f.sender.count(); got != 1 {
		t.Fatalf("expected exactly one send, got %d", got)
	}
}

func TestSendConfirmationSkips(t *testing.T) {
	for _, tc := range []struct {
		name   string
		fields map[string]string
		status string
	}{
		{"flag for appointment", map[string]string{"confirmation_sent_appt-1": "true"}, ConfirmAlreadySent},
		{"last confirmed id", map[string]string{"last_confirmed_appointment_id": "appt-1"}, ConfirmAlreadySent},
		{"sent recently", map[string]string{"last_confirmation_sent_time": "2025-11-24T14:55:00Z"}, ConfirmSentRecently},
		{"consent denied", map[string]string{"sms_consent": "No"}, ConfirmConsentDenied},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newConfirmationFixture(t)
			c := f.store.contacts["contact-1"]
			c.CustomFields = tc.fields
			f.store.contacts["contact-1"] = c

			result, err := f.svc.SendConfirmation(context.Background(), ConfirmationRequest{ContactID: "contact-1", AppointmentID: "appt-1"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Sent || result.Status != tc.status {
				t.Fatalf("expected status %q, got %+v", tc.status, result)
			}
			if f.sender.count() != 0 {
				t.Fatal("expected no send")
			}
		})
	}
}

func TestSendConfirmationOldTimestampAllowsSend(t *testing.T) {
	f := newConfirmationFixture(t)
	c := f.store.contacts["contact-1"]
	c.CustomFields = map[string]string{"last_confirmation_sent_time": "2025-11-24T14:30:00Z", "sms_consent": "true"}
	f.store.contacts["contact-1"] = c

	result, err := f.svc.SendConfirmation(context.Background(), ConfirmationRequest{ContactID: "contact-1", AppointmentID: "appt-1"})
	if err != nil || !result.Sent {
		t.Fatalf("expected a send, got %+v, %v", result, err)
	}
}

func TestSendConfirmationSendFailureReleasesGuard(t *testing.T) {
	f := newConfirmationFixture(t)
	f.sender.err = errors.New("carrier rejected")

	if _, err := f.svc.SendConfirmation(context.Background(), ConfirmationRequest{ContactID: "contact-1", AppointmentID: "appt-1"}); err == nil {
		t.Fatal("expected send error")
	}

	f.sender.err = nil
	result, err := f.svc.SendConfirmation(context.Background(), ConfirmationRequest{ContactID: "contact-1", AppointmentID: "appt-1"})
	if err != nil || !result.Sent {
		t.Fatalf("expected retry to send, got %+v, %v", result, err)
	}
}

func TestSendConfirmationUnknownAppointment(t *testing.T) {
	f := newConfirmationFixture(t)
	_, err := f.svc.SendConfirmation(context.Background(), ConfirmationRequest{ContactID: "contact-1", AppointmentID: "appt-404"})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSweepConfirmations(t *testing.T) {
	f := newConfirmationFixture(t)
	now := mondayMorning(t)
	f.svc.now = func() time.Time { return now }
	if _, err := f.svc.SendConfirmation(context.Background(), ConfirmationRequest{ContactID: "contact-1", AppointmentID: "appt-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	now = now.Add(confirmationWindow)
	if removed := f.svc.SweepConfirmations(); removed != 1 {
		t.Fatalf("expected 1 expired guard, got %d", removed)
	}
}

func TestCheckBusinessHours(t *testing.T) {
	loc := pacific(t)
	for _, tc := range []struct {
		name     string
		at       time.Time
		open     bool
		nextOpen string
	}{
		{"weekday midday", time.Date(2025, 11, 24, 12, 0, 0, 0, loc), true, ""},
		{"at closing", time.Date(2025, 11, 24, 16, 30, 0, 0, loc), true, ""},
		{"before opening", time.Date(2025, 11, 24, 7, 15, 0, 0, loc), false, "today at 8:00 AM"},
		{"after closing", time.Date(2025, 11, 24, 17, 0, 0, 0, loc), false, "tomorrow at 8:00 AM"},
		{"friday evening", time.Date(2025, 11, 28, 18, 0, 0, 0, loc), false, "Monday at 8:00 AM"},
		{"saturday", time.Date(2025, 11, 29, 10, 0, 0, 0, loc), false, "Monday at 8:00 AM"},
		{"christmas", time.Date(2025, 12, 25, 10, 0, 0, 0, loc), false, "tomorrow at 8:00 AM"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.at)
			status := f.svc.CheckBusinessHours()
			if status.IsOpen != tc.open {
				t.Fatalf("IsOpen = %v, want %v (%s)", status.IsOpen, tc.open, status.Message)
			}
			if status.NextOpen != tc.nextOpen {
				t.Fatalf("NextOpen = %q, want %q", status.NextOpen, tc.nextOpen)
			}
			if status.Message == "" || status.Day == "" || status.CurrentDate == "" {
				t.Fatalf("incomplete status: %+v", status)
			}
		})
	}
}

func TestParseTime(t *testing.T) {
	loc := pacific(t)
	want := time.Date(2025, 11, 25, 10, 0, 0, 0, loc)
	for _, raw := range []string{
		"2025-11-25T10:00:00-08:00",
		"2025-11-25T18:00:00Z",
		"2025-11-25T18:00:00.000Z",
		"2025-11-25T10:00:00",
		"2025-11-25T10:00",
		"11-25-2025 10:00 AM",
		"25-Nov-2025 10:00 AM",
		"2025-11-25 10:00:00",
	} {
		got, ok := ParseTime(raw, loc)
		if !ok || !got.Equal(want) {
			t.Fatalf("ParseTime(%q) = %s, %v; want %s", raw, got, ok, want)
		}
	}
	if _, ok := ParseTime("", loc); ok {
		t.Fatal("expected empty input to fail")
	}
}
