// Package notes writes the contact timeline notes that follow lead and
// appointment events.
package notes

import (
	"context"
	"fmt"
	"time"

	"voicelead_backend/internal/events"
)

// NoteWriter appends a note to a contact's timeline.
type NoteWriter interface {
	AddNote(ctx context.Context, contactID, body string) error
}

// Timeline turns domain events into timeline notes.
type Timeline struct {
	writer NoteWriter
	loc    *time.Location
}

// New creates a timeline writer. Times in notes are rendered in loc.
func New(writer NoteWriter, loc *time.Location) *Timeline {
	if loc == nil {
		loc = time.UTC
	}
	return &Timeline{writer: writer, loc: loc}
}

// RegisterHandlers subscribes the timeline to the events it records.
func (t *Timeline) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.LeadCallInitiated{}.EventName(), t)
	bus.Subscribe(events.FallbackMessageSent{}.EventName(), t)
	bus.Subscribe(events.AppointmentBooked{}.EventName(), t)
}

// Handle routes events to the matching note.
func (t *Timeline) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.LeadCallInitiated:
		body := fmt.Sprintf("Outbound AI call placed to %s (call %s).", e.Phone, e.CallID)
		if e.Source != "" {
			body += " Lead source: " + e.Source + "."
		}
		return t.writer.AddNote(ctx, e.ContactID, body)
	case events.FallbackMessageSent:
		return t.writer.AddNote(ctx, e.ContactID,
			fmt.Sprintf("Missed-call text sent to %s after call %s (%s).", e.Phone, e.CallID, e.Reason))
	case events.AppointmentBooked:
		when := e.StartTime.In(t.loc).Format("Monday, January 2, 2006 at 3:04 PM")
		return t.writer.AddNote(ctx, e.ContactID,
			fmt.Sprintf("%s booked for %s (appointment %s).", e.Title, when, e.AppointmentID))
	default:
		return nil
	}
}

var _ events.Handler = (*Timeline)(nil)
