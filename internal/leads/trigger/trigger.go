// Package trigger places the one outbound call a new lead is entitled to.
package trigger

import (
	"context"
	"strings"
	"sync"

	"voicelead_backend/internal/coordination"
	"voicelead_backend/internal/crm"
	"voicelead_backend/internal/events"
	"voicelead_backend/internal/leads/domain"
	"voicelead_backend/internal/leads/ports"
	"voicelead_backend/internal/leads/status"
	"voicelead_backend/internal/voice"
	"voicelead_backend/platform/apperr"
	"voicelead_backend/platform/logger"
	"voicelead_backend/platform/metrics"
	"voicelead_backend/platform/phone"
)

// Outcome describes how a trigger run ended.
type Outcome string

const (
	OutcomeCalled         Outcome = "called"
	OutcomeDuplicatePhone Outcome = "duplicate_phone"
	OutcomeIneligible     Outcome = "ineligible"
	OutcomeAlreadyHandled Outcome = "already_handled"
	OutcomeFailed         Outcome = "failed"
)

// Request is the canonical input of a trigger run. Phone, when present,
// comes from the notification and wins over the stored record.
type Request struct {
	ContactID  string
	Phone      string
	SourceHint string
}

// Result reports what happened. Duplicate and ineligible outcomes are not
// errors.
type Result struct {
	Outcome   Outcome `json:"outcome"`
	ContactID string  `json:"contactId"`
	Phone     string  `json:"phone,omitempty"`
	CallID    string  `json:"callId,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

// Service runs the call trigger.
type Service struct {
	coord    *coordination.Coordinator
	contacts ports.ContactStore
	calls    ports.CallPlacer
	status   *status.Store
	fallback ports.FallbackScheduler
	bus      events.Bus
	log      *logger.Logger

	detached sync.WaitGroup
}

func New(coord *coordination.Coordinator, contacts ports.ContactStore, calls ports.CallPlacer, fallback ports.FallbackScheduler, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		coord:    coord,
		contacts: contacts,
		calls:    calls,
		status:   status.New(contacts),
		fallback: fallback,
		bus:      bus,
		log:      log.WithComponent("call_trigger"),
	}
}

// Run executes the trigger for one contact. Both the phone and the contact
// sections are held across the vendor request, so a slow vendor delays
// other attempts for the same phone rather than letting them race.
func (s *Service) Run(ctx context.Context, req Request) (Result, error) {
	res, err := s.run(ctx, req)
	metrics.CallTriggerOutcomes.WithLabelValues(string(res.Outcome)).Inc()
	return res, err
}

func (s *Service) run(ctx context.Context, req Request) (Result, error) {
	res := Result{ContactID: req.ContactID, Outcome: OutcomeIneligible}
	if strings.TrimSpace(req.ContactID) == "" {
		res.Reason = "missing contact id"
		return res, apperr.Validation("contact id is required")
	}

	number := strings.TrimSpace(req.Phone)
	if number == "" {
		contact, err := s.contacts.GetContact(ctx, req.ContactID)
		if err != nil {
			res.Outcome = OutcomeFailed
			return res, err
		}
		number = contact.Phone
	}
	key := phone.ComparisonKey(number)
	if key == "" {
		res.Reason = "no phone number"
		return res, nil
	}
	res.Phone = phone.NormalizeE164(number)

	err := s.coord.WithPhoneThenContact(ctx, key, req.ContactID, func(ctx context.Context) error {
		var err error
		res, err = s.locked(ctx, req, res, key)
		return err
	})
	return res, err
}

// locked runs with both sections held.
func (s *Service) locked(ctx context.Context, req Request, res Result, key string) (Result, error) {
	if holder, ok := s.phoneAlreadyClaimed(ctx, res.Phone); ok {
		s.log.DuplicateAborted("call", "phone", key)
		res.Outcome = OutcomeDuplicatePhone
		res.Reason = "phone already called via contact " + holder
		return res, nil
	}

	contact, err := s.contacts.GetContact(ctx, req.ContactID)
	if err != nil {
		res.Outcome = OutcomeFailed
		return res, err
	}
	if reason := ineligibleReason(contact); reason != "" {
		res.Reason = reason
		return res, nil
	}
	if st := status.StatusOf(contact); st.Claimed() {
		s.log.DuplicateAborted("call", "contact", req.ContactID)
		res.Outcome = OutcomeAlreadyHandled
		res.Reason = "contact status is " + string(st)
		return res, nil
	}

	if err := s.status.SetStatus(ctx, req.ContactID, domain.StatusCalling); err != nil {
		// The duplicate-phone and status checks above still guard retries.
		s.log.Warn("could not mark contact as calling", "contact_id", req.ContactID, "error", err)
	}

	callID, err := s.calls.CreateCall(ctx, voice.Customer{Number: res.Phone, Name: strings.TrimSpace(contact.FirstName + " " + contact.LastName)})
	if err != nil {
		s.log.VendorError("voice", "create_call", err)
		s.log.Error("lead stuck in calling state", "contact_id", req.ContactID, "phone", res.Phone)
		metrics.LeadsStuckCalling.Inc()
		res.Outcome = OutcomeFailed
		res.Reason = "call creation failed"
		return res, err
	}
	res.CallID = callID
	res.Outcome = OutcomeCalled
	s.log.CallInitiated(req.ContactID, res.Phone, callID)

	source := domain.ResolveSource(req.SourceHint, contact)
	extra := map[string]string{}
	if source != "" {
		extra[domain.FieldLeadSource] = source
	}
	if err := s.status.MarkSent(ctx, req.ContactID, callID, extra); err != nil {
		s.log.Warn("could not mark contact as called", "contact_id", req.ContactID, "call_id", callID, "error", err)
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.LeadCallInitiated{
			BaseEvent: events.NewBaseEvent(),
			ContactID: req.ContactID,
			Phone:     res.Phone,
			CallID:    callID,
			Source:    source,
		})
	}
	s.scheduleFallback(ctx, ports.FallbackAttempt{CallID: callID, ContactID: req.ContactID, Phone: res.Phone})
	return res, nil
}

// phoneAlreadyClaimed looks across every contact sharing the number. A
// search failure is logged and treated as no match; the held locks and
// the contact's own status still prevent a second call.
func (s *Service) phoneAlreadyClaimed(ctx context.Context, number string) (string, bool) {
	matches, err := s.contacts.SearchByPhone(ctx, number)
	if err != nil {
		s.log.Warn("phone duplicate check failed", "phone", number, "error", err)
		return "", false
	}
	for _, c := range matches {
		if status.StatusOf(c).Claimed() {
			return c.ID, true
		}
	}
	return "", false
}

func ineligibleReason(contact crm.Contact) string {
	if domain.IsInbound(contact) {
		return "inbound lead"
	}
	if !domain.IsOutbound(contact) {
		return "missing outbound tag"
	}
	return ""
}

func (s *Service) scheduleFallback(ctx context.Context, attempt ports.FallbackAttempt) {
	if s.fallback == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	s.detached.Add(1)
	go func() {
		defer s.detached.Done()
		if _, err := s.fallback.Schedule(detached, attempt); err != nil {
			s.log.Error("fallback scheduling failed", "call_id", attempt.CallID, "error", err)
		}
	}()
}

// Wait blocks until detached fallback scheduling has finished.
func (s *Service) Wait() {
	s.detached.Wait()
}
