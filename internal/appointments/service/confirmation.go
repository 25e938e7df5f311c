package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"voicelead_backend/internal/leads/domain"
	"voicelead_backend/platform/apperr"
)

// confirmationWindow suppresses a second confirmation to the same contact
// or for the same appointment.
const confirmationWindow = 10 * time.Minute

const confirmationTemplate = "Hi %s! Your appointment with %s is confirmed for %s. Reply STOP to opt out."

// Confirmation skip reasons.
const (
	ConfirmSent          = "sent"
	ConfirmDuplicate     = "duplicate"
	ConfirmAlreadySent   = "already_sent"
	ConfirmSentRecently  = "sent_recently"
	ConfirmConsentDenied = "consent_denied"
)

// ConfirmationRequest asks for a confirmation text. StartTime is optional;
// when empty the appointment is looked up on the contact.
type ConfirmationRequest struct {
	ContactID     string
	AppointmentID string
	StartTime     string
}

// ConfirmationResult reports whether a text went out and why not.
type ConfirmationResult struct {
	Sent   bool
	Status string
}

func confirmationSentField(appointmentID string) string {
	return "confirmation_sent_" + appointmentID
}

// SendConfirmation texts the contact a booking confirmation at most once.
//
// Two guards apply. A process-local map catches repeated invocations that
// arrive before the CRM flags below are written. The CRM flags catch
// everything else: a per-appointment flag, the last confirmed appointment
// id and a ten-minute recency timestamp.
func (s *Service) SendConfirmation(ctx context.Context, req ConfirmationRequest) (ConfirmationResult, error) {
	if strings.TrimSpace(req.ContactID) == "" {
		return ConfirmationResult{}, apperr.Validation("contact id is required")
	}

	key := req.AppointmentID
	if key == "" {
		key = "contact:" + req.ContactID
	}
	if !s.reserveConfirmation(key) {
		s.log.DuplicateAborted("confirmation", "in_process", key)
		return ConfirmationResult{Status: ConfirmDuplicate}, nil
	}
	sent := false
	defer func() {
		if !sent {
			s.releaseConfirmation(key)
		}
	}()

	contact, err := s.store.GetContact(ctx, req.ContactID)
	if err != nil {
		return ConfirmationResult{}, err
	}

	if status, dup := s.alreadyConfirmed(contact.CustomFields, req.AppointmentID); dup {
		s.log.DuplicateAborted("confirmation", status, req.ContactID)
		// A flag from the CRM is as good as our own send; keep the guard.
		sent = true
		return ConfirmationResult{Status: status}, nil
	}

	if domain.ConsentDenied(contact.Field(domain.FieldSMSConsent)) {
		s.log.Info("confirmation skipped, sms consent denied", "contact_id", req.ContactID)
		return ConfirmationResult{Status: ConfirmConsentDenied}, nil
	}
	if strings.TrimSpace(contact.Phone) == "" {
		return ConfirmationResult{}, apperr.Validation("contact has no phone number")
	}

	start, err := s.confirmationStart(ctx, req)
	if err != nil {
		return ConfirmationResult{}, err
	}

	body := fmt.Sprintf(confirmationTemplate,
		firstNameOr(contact.FirstName),
		s.cfg.BusinessName,
		start.In(s.hours.Location).Format("Monday, January 2 at 3:04 PM"),
	)
	if err := s.sender.Send(ctx, contact.Phone, body); err != nil {
		s.log.VendorError("messaging", "send_confirmation", err)
		return ConfirmationResult{}, err
	}
	sent = true

	fields := map[string]string{
		domain.FieldLastConfirmation: s.now().UTC().Format(time.RFC3339),
	}
	if req.AppointmentID != "" {
		fields[confirmationSentField(req.AppointmentID)] = "true"
		fields[domain.FieldLastConfirmedID] = req.AppointmentID
	}
	if err := s.store.UpdateCustomFields(ctx, req.ContactID, fields); err != nil {
		s.log.Warn("could not record confirmation flags", "contact_id", req.ContactID, "error", err)
	}

	s.log.Info("confirmation sent", "contact_id", req.ContactID, "appointment_id", req.AppointmentID)
	return ConfirmationResult{Sent: true, Status: ConfirmSent}, nil
}

func (s *Service) alreadyConfirmed(fields map[string]string, appointmentID string) (string, bool) {
	if appointmentID != "" {
		if domain.IsTruthy(fields[confirmationSentField(appointmentID)]) {
			return ConfirmAlreadySent, true
		}
		if fields[domain.FieldLastConfirmedID] == appointmentID {
			return ConfirmAlreadySent, true
		}
	}
	if raw := fields[domain.FieldLastConfirmation]; raw != "" {
		if at, ok := ParseTime(raw, time.UTC); ok && s.now().Sub(at) < confirmationWindow {
			return ConfirmSentRecently, true
		}
	}
	return "", false
}

func (s *Service) confirmationStart(ctx context.Context, req ConfirmationRequest) (time.Time, error) {
	if req.StartTime != "" {
		start, ok := ParseTime(req.StartTime, s.hours.Location)
		if !ok {
			return time.Time{}, apperr.Validation("invalid start time")
		}
		return start, nil
	}
	if req.AppointmentID == "" {
		return time.Time{}, apperr.Validation("appointment id or start time is required")
	}

	appts, err := s.store.GetContactAppointments(ctx, req.ContactID)
	if err != nil {
		return time.Time{}, err
	}
	for _, appt := range appts {
		if appt.ID != req.AppointmentID && appt.EventID != req.AppointmentID {
			continue
		}
		if start, ok := ParseTime(appt.StartTime, s.hours.Location); ok {
			return start, nil
		}
		return time.Time{}, apperr.Validation("appointment start time is unreadable")
	}
	return time.Time{}, apperr.NotFound("appointment not found for contact")
}

// reserveConfirmation claims key for the confirmation window.
func (s *Service) reserveConfirmation(key string) bool {
	s.confirmMu.Lock()
	defer s.confirmMu.Unlock()
	now := s.now()
	if at, ok := s.confirmed[key]; ok && now.Sub(at) < confirmationWindow {
		return false
	}
	s.confirmed[key] = now
	return true
}

func (s *Service) releaseConfirmation(key string) {
	s.confirmMu.Lock()
	defer s.confirmMu.Unlock()
	delete(s.confirmed, key)
}

// SweepConfirmations drops expired confirmation guards.
func (s *Service) SweepConfirmations() int {
	s.confirmMu.Lock()
	defer s.confirmMu.Unlock()
	now := s.now()
	removed := 0
	for key, at := range s.confirmed {
		if now.Sub(at) >= confirmationWindow {
			delete(s.confirmed, key)
			removed++
		}
	}
	return removed
}

func firstNameOr(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return "there"
}
