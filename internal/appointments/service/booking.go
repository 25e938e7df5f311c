package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"voicelead_backend/internal/crm"
	"voicelead_backend/internal/events"
	"voicelead_backend/platform/apperr"
	"voicelead_backend/platform/sanitize"
)

const defaultTitle = "Service Appointment"

const (
	maxTitleLength   = 200
	maxNotesLength   = 2000
	maxAddressLength = 500
)

// BookRequest books one appointment. When RescheduleAppointmentID is set
// that appointment is cancelled first and does not count as an existing
// booking.
type BookRequest struct {
	ContactID               string
	CalendarID              string
	ServiceType             string
	StartTime               string
	Title                   string
	Notes                   string
	Address                 string
	RescheduleAppointmentID string
}

// Booking is a created appointment.
type Booking struct {
	AppointmentID string
	CalendarID    string
	Start         time.Time
	End           time.Time
}

// CancelRequest identifies an appointment to cancel.
type CancelRequest struct {
	ContactID     string
	AppointmentID string
}

// Book validates the requested time, refuses a second booking for the same
// contact, re-checks the slot and creates the appointment.
func (s *Service) Book(ctx context.Context, req BookRequest) (Booking, error) {
	if strings.TrimSpace(req.ContactID) == "" {
		return Booking{}, apperr.Validation("contact id is required")
	}
	start, ok := ParseTime(req.StartTime, s.hours.Location)
	if !ok {
		return Booking{}, apperr.Validation("invalid start time")
	}
	end := start.Add(s.hours.BookingDuration)
	if err := s.validateBookingTime(start, end); err != nil {
		return Booking{}, err
	}

	calendarID, err := s.ResolveCalendar(ctx, req.CalendarID, req.ServiceType)
	if err != nil {
		return Booking{}, err
	}
	if calendarID == "" {
		return Booking{}, apperr.Validation("no calendar available")
	}

	rescheduleID := strings.TrimSpace(req.RescheduleAppointmentID)
	if rescheduleID != "" {
		s.cancelForReschedule(ctx, req.ContactID, rescheduleID)
	} else if err := s.ensureNoExisting(ctx, req.ContactID); err != nil {
		return Booking{}, err
	}

	free, err := s.slotFree(ctx, calendarID, start, end, rescheduleID)
	if err != nil {
		return Booking{}, err
	}
	if !free {
		return Booking{}, apperr.Conflict("requested time is no longer available")
	}

	title := sanitize.Text(req.Title, maxTitleLength)
	if title == "" {
		title = defaultTitle
	}
	created, err := s.store.CreateAppointment(ctx, crm.NewAppointment{
		CalendarID: calendarID,
		ContactID:  req.ContactID,
		StartTime:  start.Format(time.RFC3339),
		EndTime:    end.Format(time.RFC3339),
		Title:      title,
		Notes:      sanitize.Text(req.Notes, maxNotesLength),
		Address:    sanitize.Text(req.Address, maxAddressLength),
	})
	if err != nil {
		s.log.VendorError("crm", "create_appointment", err)
		return Booking{}, err
	}

	s.booked.Add(calendarID, start, end)
	s.publish(ctx, events.AppointmentBooked{
		BaseEvent:     events.NewBaseEvent(),
		AppointmentID: created.ID,
		ContactID:     req.ContactID,
		CalendarID:    calendarID,
		StartTime:     start,
		EndTime:       end,
		Title:         title,
	})
	s.log.Info("appointment booked",
		"appointment_id", created.ID,
		"contact_id", req.ContactID,
		"calendar_id", calendarID,
		"start", start.Format(time.RFC3339),
		"rescheduled_from", rescheduleID,
	)

	return Booking{
		AppointmentID: created.ID,
		CalendarID:    calendarID,
		Start:         start,
		End:           end,
	}, nil
}

func (s *Service) validateBookingTime(start, end time.Time) error {
	if !start.After(s.now()) {
		return apperr.Validation("start time is in the past")
	}
	if !s.hours.IsWorkingDay(start) {
		return apperr.Validation("start time is not on a business day")
	}
	if start.Before(s.hours.OpenOn(start)) || end.After(s.hours.CloseOn(start)) {
		return apperr.Validation("appointment must fall within business hours")
	}
	return nil
}

// cancelForReschedule cancels the old appointment. Failures do not block
// the new booking; the old id is remembered as cancelled either way so it
// stops counting as an existing appointment.
func (s *Service) cancelForReschedule(ctx context.Context, contactID, appointmentID string) {
	defer s.cancelled.Add(contactID, appointmentID)

	result, err := s.canceller.Cancel(ctx, appointmentID, contactID)
	if err != nil {
		s.log.Warn("could not cancel appointment being rescheduled",
			"appointment_id", appointmentID,
			"contact_id", contactID,
			"error", err,
		)
		return
	}
	if result.Manual {
		s.log.Warn("rescheduled appointment needs manual cancellation", "appointment_id", appointmentID, "contact_id", contactID)
	}
}

// ensureNoExisting returns a Conflict carrying the contact's next upcoming
// appointment, if any. A failed read is logged and treated as none; the
// slot re-check still guards the calendar.
func (s *Service) ensureNoExisting(ctx context.Context, contactID string) error {
	appts, err := s.store.GetContactAppointments(ctx, contactID)
	if err != nil {
		s.log.Warn("could not read existing appointments", "contact_id", contactID, "error", err)
		return nil
	}

	now := s.now()
	var next *crm.Appointment
	var nextStart time.Time
	for _, appt := range s.cancelled.Filter(contactID, appts) {
		if appt.IsCancelled() {
			continue
		}
		start, ok := ParseTime(appt.StartTime, s.hours.Location)
		if !ok || !start.After(now) {
			continue
		}
		if next == nil || start.Before(nextStart) {
			next, nextStart = &appt, start
		}
	}
	if next == nil {
		return nil
	}

	when := nextStart.In(s.hours.Location).Format("Monday, January 2, 2006 at 3:04 PM")
	return apperr.Conflict(fmt.Sprintf("contact already has an appointment on %s", when)).
		WithDetails(map[string]string{
			"appointmentId": next.ID,
			"startTime":     nextStart.Format(time.RFC3339),
		})
}

// slotFree re-reads the calendar for the booking day and reports whether
// [start, end) is clear.
func (s *Service) slotFree(ctx context.Context, calendarID string, start, end time.Time, skipID string) (bool, error) {
	day := midnight(start.In(s.hours.Location))
	w := window{first: day, last: day}

	busy, err := s.fetchBusy(ctx, w, skipID)
	if err != nil {
		return false, err
	}
	busy = append(busy, s.cachedBusy(calendarID, w)...)
	return !conflicts(busy, start, end), nil
}

// Cancel cancels an appointment through the configured strategy. An
// appointment the CRM no longer knows counts as cancelled.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (crm.CancelResult, error) {
	if strings.TrimSpace(req.AppointmentID) == "" {
		return crm.CancelResult{}, apperr.Validation("appointment id is required")
	}
	if strings.TrimSpace(req.ContactID) == "" {
		return crm.CancelResult{}, apperr.Validation("contact id is required")
	}

	result, err := s.canceller.Cancel(ctx, req.AppointmentID, req.ContactID)
	if err != nil {
		s.log.VendorError("crm", "cancel_appointment", err)
		return result, err
	}

	s.cancelled.Add(req.ContactID, req.AppointmentID)
	s.publish(ctx, events.AppointmentCancelled{
		BaseEvent:     events.NewBaseEvent(),
		AppointmentID: req.AppointmentID,
		ContactID:     req.ContactID,
		Method:        result.Method,
		Manual:        result.Manual,
	})

	// The note strategy already left its own note.
	if !result.Manual {
		note := fmt.Sprintf("Appointment %s cancelled (%s).", req.AppointmentID, result.Method)
		if err := s.store.AddNote(ctx, req.ContactID, note); err != nil {
			s.log.Warn("could not add cancellation note", "appointment_id", req.AppointmentID, "error", err)
		}
	}

	s.log.Info("appointment cancelled",
		"appointment_id", req.AppointmentID,
		"contact_id", req.ContactID,
		"method", result.Method,
		"already_gone", result.AlreadyGone,
		"manual", result.Manual,
	)
	return result, nil
}
