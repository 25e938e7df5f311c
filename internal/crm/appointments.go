package crm

import (
	"context"
	"net/url"
	"strings"

	"voicelead_backend/platform/apperr"
)

// ListCalendars returns the location's calendars.
func (c *Client) ListCalendars(ctx context.Context) ([]Calendar, error) {
	var resp struct {
		Calendars []Calendar `json:"calendars"`
	}
	if err := c.do(ctx, "GET", "calendars/", c.locationQuery(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Calendars, nil
}

// GetContactAppointments returns the appointments attached to a contact.
// The store has no calendar/date-range query; this per-contact read is the
// only reliable source.
func (c *Client) GetContactAppointments(ctx context.Context, contactID string) ([]Appointment, error) {
	var resp struct {
		Events       []Appointment `json:"events"`
		Appointments []Appointment `json:"appointments"`
	}
	path := "contacts/" + url.PathEscape(contactID) + "/appointments"
	if err := c.do(ctx, "GET", path, c.locationQuery(), nil, &resp); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}

	out := resp.Events
	if len(out) == 0 {
		out = resp.Appointments
	}
	for i := range out {
		if out[i].ContactID == "" {
			out[i].ContactID = contactID
		}
	}
	return out, nil
}

// CreateAppointment books an appointment and returns its id.
func (c *Client) CreateAppointment(ctx context.Context, in NewAppointment) (Appointment, error) {
	payload := appointmentWrite{
		LocationID: c.locationID,
		CalendarID: in.CalendarID,
		ContactID:  in.ContactID,
		StartTime:  in.StartTime,
		EndTime:    in.EndTime,
		Title:      in.Title,
		Notes:      in.Notes,
		Address:    in.Address,
		Status:     "confirmed",
	}

	var resp struct {
		ID            string `json:"id"`
		AppointmentID string `json:"appointmentId"`
		EventID       string `json:"eventId"`
	}
	if err := c.do(ctx, "POST", "calendars/events/appointments", nil, payload, &resp); err != nil {
		return Appointment{}, err
	}

	id := firstNonEmpty(resp.ID, resp.AppointmentID, resp.EventID)
	if id == "" {
		return Appointment{}, apperr.Unavailable("crm did not return an appointment id", nil).WithOp("crm.CreateAppointment")
	}
	return Appointment{
		ID:         id,
		EventID:    resp.EventID,
		CalendarID: in.CalendarID,
		ContactID:  in.ContactID,
		Title:      in.Title,
		StartTime:  in.StartTime,
		EndTime:    in.EndTime,
		Status:     "confirmed",
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
