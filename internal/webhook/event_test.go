package webhook

import (
	"reflect"
	"testing"
)

func TestParseEventShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want LeadEvent
	}{
		{
			name: "flat contact create",
			body: `{"type":"ContactCreate","locationId":"loc1","id":"c1","phone":"+15551234567","tags":["outbound","google"]}`,
			want: LeadEvent{Type: "contactcreate", LocationID: "loc1", ContactID: "c1", Phone: "+15551234567", Tags: []string{"outbound", "google"}},
		},
		{
			name: "workflow payload with customData",
			body: `{"event":"contact.created","location":{"id":"loc2"},"contact_id":"c2","customData":{"phoneNumber":"(555) 123-4567","tags":"outbound, website"}}`,
			want: LeadEvent{Type: "contact.created", LocationID: "loc2", ContactID: "c2", Phone: "(555) 123-4567", Tags: []string{"outbound", "website"}},
		},
		{
			name: "nested data contact",
			body: `{"eventType":"form.submitted","data":{"contact":{"id":"c3","phoneNumbers":[{"number":"5551112222"}]}},"source":"Google Ads"}`,
			want: LeadEvent{Type: "form.submitted", ContactID: "c3", Phone: "5551112222", Source: "Google Ads"},
		},
		{
			name: "id is not a contact id for other events",
			body: `{"type":"form.submitted","id":"evt-1","contact":{"id":"c4"}}`,
			want: LeadEvent{Type: "form.submitted", ContactID: "c4"},
		},
		{
			name: "numeric ids",
			body: `{"type":"contact.updated","contactId":12345}`,
			want: LeadEvent{Type: "contact.updated", ContactID: "12345"},
		},
		{
			name: "live chat message",
			body: `{"type":"InboundMessage","contactId":"c5","messageType":"Live_Chat"}`,
			want: LeadEvent{Type: "inboundmessage", ContactID: "c5", Channel: "live_chat"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEvent([]byte(tt.body))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseEventAppointment(t *testing.T) {
	body := `{"type":"AppointmentCreate","locationId":"loc1","appointment":{"id":"a1","calendarId":"cal1","contactId":"c1","startTime":"2025-11-24T10:00:00-08:00","endTime":"2025-11-24T11:00:00-08:00","appointmentStatus":"Confirmed"}}`
	ev, err := ParseEvent([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := &AppointmentInfo{
		ID:         "a1",
		CalendarID: "cal1",
		ContactID:  "c1",
		StartTime:  "2025-11-24T10:00:00-08:00",
		EndTime:    "2025-11-24T11:00:00-08:00",
		Status:     "confirmed",
	}
	if !reflect.DeepEqual(ev.Appointment, want) {
		t.Fatalf("appointment = %+v, want %+v", ev.Appointment, want)
	}
	if ev.ContactID != "c1" {
		t.Fatalf("contact id should fall back to the appointment's, got %q", ev.ContactID)
	}
}

func TestParseEventCalendarObject(t *testing.T) {
	body := `{"type":"appointment.created","contactId":"c9","calendar":{"id":"cal7","appointmentId":"a7","startTime":"2025-11-24 10:00:00"}}`
	ev, err := ParseEvent([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Appointment == nil || ev.Appointment.ID != "a7" || ev.Appointment.CalendarID != "cal7" {
		t.Fatalf("unexpected appointment %+v", ev.Appointment)
	}
}

func TestParseEventRejectsNonObjects(t *testing.T) {
	for _, body := range []string{``, `[]`, `"text"`, `{bad`, `null`} {
		if _, err := ParseEvent([]byte(body)); err == nil {
			t.Errorf("expected error for %q", body)
		}
	}
}
