// Package webhook receives CRM lifecycle notifications and routes them to
// the lead and appointment flows.
package webhook

import (
	"context"
	"strings"

	"voicelead_backend/internal/crm"
	"voicelead_backend/internal/leads/domain"
	"voicelead_backend/internal/leads/ports"
	"voicelead_backend/internal/leads/trigger"
	"voicelead_backend/platform/logger"
	"voicelead_backend/platform/metrics"
)

// Routed actions.
const (
	ActionTriggered            = "triggered"
	ActionAppointmentRecorded  = "appointment_recorded"
	ActionCancellationRecorded = "cancellation_recorded"
	ActionIgnored              = "ignored"
)

// LeadTrigger runs the call trigger for a contact from a raw payload.
type LeadTrigger interface {
	TriggerLeadAction(ctx context.Context, contactID string, raw []byte) (trigger.Result, error)
}

// Contacts is the slice of the CRM the router needs.
type Contacts interface {
	GetContact(ctx context.Context, contactID string) (crm.Contact, error)
	AddTags(ctx context.Context, contactID string, tags ...string) error
}

// AppointmentRecorder keeps the local booking and cancellation caches in
// step with the CRM.
type AppointmentRecorder interface {
	RecordBooked(calendarID, startRaw, endRaw string) bool
	RecordCancelled(contactID, appointmentID string)
}

// FallbackCanceller withdraws a pending missed-call check.
type FallbackCanceller interface {
	Cancel(ctx context.Context, attempt ports.FallbackAttempt) error
}

// Result is returned to the caller of the notification endpoint.
type Result struct {
	Event     string          `json:"event"`
	Action    string          `json:"action"`
	ContactID string          `json:"contactId,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Trigger   *trigger.Result `json:"trigger,omitempty"`
}

var triggerEvents = map[string]bool{
	"contactcreate":    true,
	"contact.created":  true,
	"contactupdate":    true,
	"contact.updated":  true,
	"contacttagupdate": true,
}

// outboundEvents get the outbound tag before the trigger runs. The value is
// the lead source used when the payload names none.
var outboundEvents = map[string]string{
	"form.submitted":    "form",
	"formsubmission":    "form",
	"chat.converted":    "webchat",
	"webchat.converted": "webchat",
	"ad.lead":           "",
	"facebook.lead":     "facebook",
	"google.lead":       "google",
	"meta.lead":         "meta",
}

var appointmentCreated = map[string]bool{
	"appointmentcreate":   true,
	"appointment.created": true,
}

var appointmentCancelled = map[string]bool{
	"appointmentdelete":     true,
	"appointment.deleted":   true,
	"appointment.cancelled": true,
}

// Service routes parsed notifications.
type Service struct {
	trigger      LeadTrigger
	contacts     Contacts
	appointments AppointmentRecorder
	fallback     FallbackCanceller
	locationID   string
	log          *logger.Logger
}

func NewService(trig LeadTrigger, contacts Contacts, appointments AppointmentRecorder, fallback FallbackCanceller, locationID string, log *logger.Logger) *Service {
	return &Service{
		trigger:      trig,
		contacts:     contacts,
		appointments: appointments,
		fallback:     fallback,
		locationID:   locationID,
		log:          log.WithComponent("webhook"),
	}
}

// Handle parses and routes one notification. Unknown event types and
// notifications for another location are acknowledged and ignored.
func (s *Service) Handle(ctx context.Context, raw []byte) (Result, error) {
	ev, err := ParseEvent(raw)
	if err != nil {
		return Result{}, err
	}

	res, err := s.route(ctx, ev, raw)
	metrics.WebhookEvents.WithLabelValues(res.Action).Inc()
	s.log.Info("webhook handled",
		"event", ev.Type,
		"action", res.Action,
		"contact_id", ev.ContactID,
		"reason", res.Reason,
	)
	return res, err
}

func (s *Service) route(ctx context.Context, ev LeadEvent, raw []byte) (Result, error) {
	res := Result{Event: ev.Type, ContactID: ev.ContactID, Action: ActionIgnored}

	if ev.LocationID != "" && s.locationID != "" && ev.LocationID != s.locationID {
		res.Reason = "location mismatch"
		return res, nil
	}

	switch {
	case triggerEvents[ev.Type]:
		return s.runTrigger(ctx, ev, raw, res)

	case isOutbound(ev):
		if ev.ContactID == "" {
			res.Reason = "missing contact id"
			return res, nil
		}
		s.tagOutbound(ctx, ev)
		return s.runTrigger(ctx, ev, raw, res)

	case appointmentCreated[ev.Type]:
		return s.appointmentBooked(ctx, ev, res), nil

	case appointmentCancelled[ev.Type]:
		if ev.Appointment == nil || ev.Appointment.ID == "" || ev.ContactID == "" {
			res.Reason = "missing appointment or contact id"
			return res, nil
		}
		s.appointments.RecordCancelled(ev.ContactID, ev.Appointment.ID)
		res.Action = ActionCancellationRecorded
		return res, nil
	}

	res.Reason = "unhandled event type"
	return res, nil
}

// isOutbound reports whether the event is a lead from a channel we follow
// up on by phone. Inbound messages only count when they come from live chat.
func isOutbound(ev LeadEvent) bool {
	if _, ok := outboundEvents[ev.Type]; ok {
		return true
	}
	if ev.Type == "inboundmessage" {
		ch := strings.NewReplacer("_", "", " ", "", "-", "").Replace(ev.Channel)
		return strings.Contains(ch, "livechat") || strings.Contains(ch, "webchat")
	}
	return false
}

func (s *Service) runTrigger(ctx context.Context, ev LeadEvent, raw []byte, res Result) (Result, error) {
	if ev.ContactID == "" {
		res.Reason = "missing contact id"
		return res, nil
	}
	out, err := s.trigger.TriggerLeadAction(ctx, ev.ContactID, raw)
	res.Action = ActionTriggered
	res.Trigger = &out
	res.Reason = out.Reason
	return res, err
}

// tagOutbound marks the contact for outbound follow-up. A failed tag write
// is logged; the trigger will then report the contact as ineligible.
func (s *Service) tagOutbound(ctx context.Context, ev LeadEvent) {
	tags := []string{domain.TagOutbound}
	source := domain.NormalizeSource(ev.Source)
	if source == "" {
		source = domain.NormalizeSource(outboundEvents[ev.Type])
	}
	if source == "" && ev.Type == "inboundmessage" {
		source = domain.NormalizeSource("webchat")
	}
	if source != "" {
		tags = append(tags, source)
	}
	if err := s.contacts.AddTags(ctx, ev.ContactID, tags...); err != nil {
		s.log.Warn("could not tag contact as outbound", "contact_id", ev.ContactID, "error", err)
	}
}

// appointmentBooked records the booking locally and withdraws the pending
// missed-call text, since the lead has already booked.
func (s *Service) appointmentBooked(ctx context.Context, ev LeadEvent, res Result) Result {
	res.Action = ActionAppointmentRecorded
	if appt := ev.Appointment; appt != nil && appt.CalendarID != "" {
		if !s.appointments.RecordBooked(appt.CalendarID, appt.StartTime, appt.EndTime) {
			res.Reason = "unparseable appointment time"
		}
	} else {
		res.Reason = "missing calendar id"
	}

	if ev.ContactID == "" || s.fallback == nil {
		return res
	}
	contact, err := s.contacts.GetContact(ctx, ev.ContactID)
	if err != nil {
		s.log.Warn("could not load contact for fallback cancel", "contact_id", ev.ContactID, "error", err)
		return res
	}
	callID := contact.Field(domain.FieldCallID)
	if callID == "" {
		return res
	}
	attempt := ports.FallbackAttempt{CallID: callID, ContactID: contact.ID, Phone: contact.Phone}
	if err := s.fallback.Cancel(ctx, attempt); err != nil {
		s.log.Warn("could not cancel pending fallback", "call_id", callID, "contact_id", contact.ID, "error", err)
	}
	return res
}
