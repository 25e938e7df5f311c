package crm

import (
	"context"
	"fmt"
	"net/url"

	"voicelead_backend/platform/apperr"
)

// Cancel strategies. The store exposes several inconsistent ways to cancel
// an appointment; one is chosen at startup and used for every call.
const (
	CancelByStatus = "status" // PUT calendars/events/appointments/{id} with a cancelled status
	CancelByDelete = "delete" // DELETE calendars/events/{id}
	CancelByNote   = "note"   // leave a timeline note for staff to cancel by hand
)

// CancelResult describes what a canceller did.
type CancelResult struct {
	Method string
	// AlreadyGone is set when the store no longer knew the appointment.
	AlreadyGone bool
	// Manual is set when the cancellation was only requested via a note.
	Manual bool
}

// AppointmentCanceller cancels appointments through one fixed API shape.
type AppointmentCanceller interface {
	Cancel(ctx context.Context, appointmentID, contactID string) (CancelResult, error)
}

// NewCanceller returns the canceller for strategy.
func NewCanceller(strategy string, client *Client) (AppointmentCanceller, error) {
	switch strategy {
	case CancelByStatus:
		return statusCanceller{client: client}, nil
	case CancelByDelete:
		return deleteCanceller{client: client}, nil
	case CancelByNote:
		return noteCanceller{client: client}, nil
	default:
		return nil, fmt.Errorf("unknown cancel strategy %q", strategy)
	}
}

type statusCanceller struct{ client *Client }

func (s statusCanceller) Cancel(ctx context.Context, appointmentID, _ string) (CancelResult, error) {
	payload := map[string]string{
		"locationId":        s.client.locationID,
		"appointmentStatus": "cancelled",
	}
	err := s.client.do(ctx, "PUT", "calendars/events/appointments/"+url.PathEscape(appointmentID), nil, payload, nil)
	return notFoundIsDone(CancelByStatus, err)
}

type deleteCanceller struct{ client *Client }

func (d deleteCanceller) Cancel(ctx context.Context, appointmentID, _ string) (CancelResult, error) {
	err := d.client.do(ctx, "DELETE", "calendars/events/"+url.PathEscape(appointmentID), d.client.locationQuery(), nil, nil)
	return notFoundIsDone(CancelByDelete, err)
}

type noteCanceller struct{ client *Client }

func (n noteCanceller) Cancel(ctx context.Context, appointmentID, contactID string) (CancelResult, error) {
	body := fmt.Sprintf("APPOINTMENT CANCELLATION REQUEST\n\nAppointment ID: %s\nContact ID: %s\nAction required: cancel this appointment in the calendar.", appointmentID, contactID)
	if err := n.client.AddNote(ctx, contactID, body); err != nil {
		return CancelResult{Method: CancelByNote}, err
	}
	return CancelResult{Method: CancelByNote, Manual: true}, nil
}

// notFoundIsDone treats a 404 as a completed cancellation: there is
// nothing left to cancel.
func notFoundIsDone(method string, err error) (CancelResult, error) {
	if err == nil {
		return CancelResult{Method: method}, nil
	}
	if apperr.Is(err, apperr.KindNotFound) {
		return CancelResult{Method: method, AlreadyGone: true}, nil
	}
	return CancelResult{Method: method}, err
}
