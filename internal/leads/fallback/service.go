// Package fallback sends a single missed-call text when an outbound call
// goes unanswered.
//
// Three gates keep the text at-most-once: a call-id claim, a phone-wide
// check of the sent flags under the phone lock, and a per-phone in-flight
// registration that lets only one evaluation per phone proceed. The wait
// between the call and the check runs as a cancellable delayed job.
package fallback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"voicelead_backend/internal/coordination"
	"voicelead_backend/internal/crm"
	"voicelead_backend/internal/events"
	"voicelead_backend/internal/leads/domain"
	"voicelead_backend/internal/leads/ports"
	"voicelead_backend/internal/voice"
	"voicelead_backend/platform/apperr"
	"voicelead_backend/platform/logger"
	"voicelead_backend/platform/metrics"
	"voicelead_backend/platform/phone"
)

// Evaluation results, also used as metric labels.
const (
	ResultAnswered     = "answered"
	ResultUndetermined = "undetermined"
	ResultSuperseded   = "superseded"
	ResultIneligible   = "ineligible"
	ResultDuplicate    = "duplicate"
	ResultSent         = "sent"
	ResultError        = "error"
	ResultCancelled    = "cancelled"
)

const messageTemplate = "Hi %s! This is %s. We tried to reach you but couldn't connect. We'd love to help with your HVAC needs! Reply to this message or call us back at your convenience."

// Config tunes the scheduler.
type Config struct {
	Delay         time.Duration
	RecencyWindow time.Duration
	BusinessName  string
}

// Service schedules and evaluates fallback texts.
type Service struct {
	coord    *coordination.Coordinator
	contacts ports.ContactStore
	calls    ports.CallInspector
	sender   ports.MessageSender
	jobs     ports.DelayedJobs
	bus      events.Bus
	log      *logger.Logger
	cfg      Config
	now      func() time.Time
}

func New(coord *coordination.Coordinator, contacts ports.ContactStore, calls ports.CallInspector, sender ports.MessageSender, jobs ports.DelayedJobs, bus events.Bus, cfg Config, log *logger.Logger) *Service {
	if cfg.Delay <= 0 {
		cfg.Delay = 45 * time.Second
	}
	if cfg.RecencyWindow <= 0 {
		cfg.RecencyWindow = 10 * time.Minute
	}
	return &Service{
		coord:    coord,
		contacts: contacts,
		calls:    calls,
		sender:   sender,
		jobs:     jobs,
		bus:      bus,
		log:      log.WithComponent("fallback"),
		cfg:      cfg,
		now:      time.Now,
	}
}

// SetJobs replaces the delayed job runner. The in-process runner needs the
// service to exist before it can be built.
func (s *Service) SetJobs(jobs ports.DelayedJobs) {
	s.jobs = jobs
}

func callClaimKey(callID string) string {
	return "fallback:" + callID
}

// Schedule runs the three gates and hands the attempt to the delayed job
// runner. It reports whether a job was scheduled; a gate abort is not an
// error.
func (s *Service) Schedule(ctx context.Context, attempt ports.FallbackAttempt) (bool, error) {
	if attempt.CallID == "" {
		return false, apperr.Validation("call id is required")
	}
	key := phone.ComparisonKey(attempt.Phone)
	if key == "" {
		return false, apperr.Validation("phone is required")
	}

	claimed, err := s.coord.CallIDs.Claim(ctx, callClaimKey(attempt.CallID))
	if err != nil {
		return false, err
	}
	if !claimed {
		s.abort("call_id", attempt.CallID)
		return false, nil
	}

	registered := false
	err = s.coord.WithPhoneLock(ctx, key, func(ctx context.Context) error {
		if holder, blocked := s.recentlyMessaged(ctx, attempt.Phone, ""); blocked {
			s.abort("recent", key)
			s.log.Info("fallback already sent for phone", "phone", attempt.Phone, "contact_id", holder, "call_id", attempt.CallID)
			return nil
		}
		ok, err := s.coord.InFlight.Register(ctx, key, attempt.CallID)
		if err != nil {
			return err
		}
		if !ok {
			s.abort("in_flight", key)
			return nil
		}
		registered = true
		return nil
	})
	if err != nil || !registered {
		return false, err
	}

	runAt := s.now().Add(s.cfg.Delay)
	if err := s.jobs.ScheduleFallback(ctx, attempt, runAt); err != nil {
		s.release(ctx, key, attempt.CallID)
		return false, fmt.Errorf("schedule fallback for call %s: %w", attempt.CallID, err)
	}
	s.log.Info("fallback scheduled", "call_id", attempt.CallID, "contact_id", attempt.ContactID, "run_at", runAt)
	return true, nil
}

// Cancel withdraws a pending evaluation, for example because the contact
// booked an appointment during the wait. An attempt whose job already ran
// is left alone.
func (s *Service) Cancel(ctx context.Context, attempt ports.FallbackAttempt) error {
	if attempt.CallID == "" {
		return nil
	}
	cancelled, err := s.jobs.CancelFallback(ctx, attempt.CallID)
	if err != nil {
		return err
	}
	if !cancelled {
		return nil
	}
	if key := phone.ComparisonKey(attempt.Phone); key != "" {
		s.release(ctx, key, attempt.CallID)
	}
	metrics.FallbackOutcomes.WithLabelValues(ResultCancelled).Inc()
	s.log.Info("fallback cancelled", "call_id", attempt.CallID, "contact_id", attempt.ContactID)
	return nil
}

// ResolveCallOutcome fetches a call and classifies it.
func (s *Service) ResolveCallOutcome(ctx context.Context, callID string) (voice.Outcome, voice.Call, error) {
	if strings.TrimSpace(callID) == "" {
		return voice.OutcomeUndetermined, voice.Call{}, apperr.Validation("call id is required")
	}
	call, err := s.calls.GetCall(ctx, callID)
	if err != nil {
		return voice.OutcomeUndetermined, voice.Call{}, err
	}
	return voice.Classify(call), call, nil
}

// Evaluate is the body of the delayed job. It never fails: every problem is
// logged, and the in-flight registration is always released.
func (s *Service) Evaluate(ctx context.Context, attempt ports.FallbackAttempt) {
	key := phone.ComparisonKey(attempt.Phone)
	result := ResultError
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("fallback evaluation panicked", "call_id", attempt.CallID, "panic", r)
			result = ResultError
		}
		if key != "" {
			s.release(context.WithoutCancel(ctx), key, attempt.CallID)
		}
		metrics.FallbackOutcomes.WithLabelValues(result).Inc()
	}()

	if key == "" {
		s.log.Error("fallback attempt without phone", "call_id", attempt.CallID)
		return
	}
	result = s.evaluate(ctx, attempt, key)
}

func (s *Service) evaluate(ctx context.Context, attempt ports.FallbackAttempt, key string) string {
	outcome, call, err := s.ResolveCallOutcome(ctx, attempt.CallID)
	if err != nil {
		s.log.VendorError("voice", "get_call", err)
		return ResultError
	}
	switch outcome {
	case voice.OutcomeAnswered:
		s.log.Info("call answered, no fallback needed", "call_id", attempt.CallID, "status", call.Status, "duration", call.Duration)
		return ResultAnswered
	case voice.OutcomeUndetermined:
		s.log.Info("call outcome undetermined, no fallback sent", "call_id", attempt.CallID, "status", call.Status, "ended_reason", call.EndedReason, "duration", call.Duration)
		return ResultUndetermined
	}

	reason := call.EndedReason
	if reason == "" {
		reason = call.Status
	}

	result := ResultError
	err = s.coord.WithPhoneLock(ctx, key, func(ctx context.Context) error {
		var err error
		result, err = s.sendLocked(ctx, attempt, key, reason)
		return err
	})
	if err != nil {
		s.log.Error("fallback evaluation failed", "call_id", attempt.CallID, "contact_id", attempt.ContactID, "error", err)
		return ResultError
	}
	return result
}

// sendLocked runs under the phone lock.
func (s *Service) sendLocked(ctx context.Context, attempt ports.FallbackAttempt, key, reason string) (string, error) {
	current, err := s.coord.InFlight.IsCurrent(ctx, key, attempt.CallID)
	if err != nil {
		return ResultError, err
	}
	if !current {
		s.abort("superseded", key)
		return ResultSuperseded, nil
	}

	contact, err := s.contacts.GetContact(ctx, attempt.ContactID)
	if err != nil {
		return ResultError, err
	}
	if domain.IsInbound(contact) {
		s.log.Info("skipping fallback for inbound lead", "contact_id", contact.ID)
		return ResultIneligible, nil
	}
	if s.contactRecentlyMessaged(contact) {
		s.abort("recent", contact.ID)
		return ResultDuplicate, nil
	}
	if holder, blocked := s.recentlyMessaged(ctx, attempt.Phone, contact.ID); blocked {
		s.abort("recent", key)
		s.log.Info("fallback already sent for phone", "phone", attempt.Phone, "contact_id", holder)
		return ResultDuplicate, nil
	}
	if domain.ConsentDenied(contact.Field(domain.FieldSMSConsent)) {
		s.log.Info("messaging consent denied", "contact_id", contact.ID)
		return ResultIneligible, nil
	}

	sentAt := s.now().UTC().Format(time.RFC3339)
	// sms_fallback_date is the older name of sms_fallback_sent_at; both carry
	// the full timestamp so either one satisfies the recency check.
	flags := map[string]string{
		domain.FieldFallbackSent:   "true",
		domain.FieldFallbackSentAt: sentAt,
		domain.FieldFallbackDate:   sentAt,
		domain.FieldFallbackReason: reason,
	}
	// The flag goes out before the message so a concurrent evaluation that
	// slipped past the in-flight gate still sees it.
	if err := s.contacts.UpdateCustomFields(ctx, contact.ID, flags); err != nil {
		return ResultError, fmt.Errorf("mark fallback sent: %w", err)
	}

	if err := s.sender.Send(ctx, attempt.Phone, Message(contact.FirstName, s.cfg.BusinessName)); err != nil {
		// The flag stays set so a retry cannot double-send.
		s.log.VendorError("messaging", "send_fallback", err)
		return ResultError, nil
	}
	s.log.FallbackSent(contact.ID, attempt.Phone, attempt.CallID, reason)

	s.propagateFlags(ctx, attempt.Phone, contact.ID, flags)

	if s.bus != nil {
		s.bus.Publish(ctx, events.FallbackMessageSent{
			BaseEvent: events.NewBaseEvent(),
			ContactID: contact.ID,
			Phone:     attempt.Phone,
			CallID:    attempt.CallID,
			Reason:    reason,
		})
	}
	return ResultSent, nil
}

// Message renders the fallback text.
func Message(firstName, business string) string {
	name := strings.TrimSpace(firstName)
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf(messageTemplate, name, business)
}

// recentlyMessaged checks every contact sharing number, except skipID.
// Search failures are logged and treated as clear.
func (s *Service) recentlyMessaged(ctx context.Context, number, skipID string) (string, bool) {
	matches, err := s.contacts.SearchByPhone(ctx, number)
	if err != nil {
		s.log.Warn("fallback duplicate check failed", "phone", number, "error", err)
		return "", false
	}
	for _, c := range matches {
		if c.ID == skipID {
			continue
		}
		if s.contactRecentlyMessaged(c) {
			return c.ID, true
		}
	}
	return "", false
}

// contactRecentlyMessaged reports whether the contact's sent flag is set or
// its last send falls inside the recency window.
func (s *Service) contactRecentlyMessaged(c crm.Contact) bool {
	if domain.IsTruthy(c.Field(domain.FieldFallbackSent)) {
		return true
	}
	for _, field := range []string{domain.FieldFallbackSentAt, domain.FieldFallbackDate} {
		sentAt, ok := parseTimestamp(c.Field(field))
		if ok && s.now().Sub(sentAt) < s.cfg.RecencyWindow {
			return true
		}
	}
	return false
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

func parseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (s *Service) propagateFlags(ctx context.Context, number, sentID string, flags map[string]string) {
	matches, err := s.contacts.SearchByPhone(ctx, number)
	if err != nil {
		s.log.Warn("could not propagate fallback flag", "phone", number, "error", err)
		return
	}
	for _, c := range matches {
		if c.ID == sentID {
			continue
		}
		if err := s.contacts.UpdateCustomFields(ctx, c.ID, flags); err != nil {
			s.log.Warn("could not propagate fallback flag", "contact_id", c.ID, "error", err)
		}
	}
}

func (s *Service) release(ctx context.Context, key, callID string) {
	if err := s.coord.InFlight.Release(ctx, key, callID); err != nil {
		s.log.Warn("in-flight release failed", "phone_key", key, "call_id", callID, "error", err)
	}
}

func (s *Service) abort(gate, key string) {
	metrics.DedupAborts.WithLabelValues(gate).Inc()
	s.log.DuplicateAborted("fallback", gate, key)
}
