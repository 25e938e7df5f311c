package voice

import (
	"strings"
	"time"
)

// Outcome is the classification of a finished call.
type Outcome string

const (
	OutcomeAnswered     Outcome = "answered"
	OutcomeNotAnswered  Outcome = "not_answered"
	OutcomeUndetermined Outcome = "undetermined"
)

// MinAnsweredDuration is the shortest ended call counted as answered.
const MinAnsweredDuration = 5 * time.Second

var unansweredReasons = map[string]struct{}{
	"customer-did-not-answer": {},
	"customer-busy":           {},
	"voicemail":               {},
	"machine-detected":        {},
	"customer-did-not-give-microphone-permission": {},
	"twilio-failed-to-connect-call":               {},
	"no-answer":                                   {},
	"busy":                                        {},
	"failed":                                      {},
	"canceled":                                    {},
}

var unansweredStatuses = map[string]struct{}{
	"failed":    {},
	"no-answer": {},
	"busy":      {},
	"canceled":  {},
	"voicemail": {},
}

// IsUnansweredReason reports whether an end reason means nobody picked up.
func IsUnansweredReason(reason string) bool {
	reason = strings.ToLower(strings.TrimSpace(reason))
	if reason == "" {
		return false
	}
	if _, ok := unansweredReasons[reason]; ok {
		return true
	}
	return strings.HasPrefix(reason, "pipeline-error")
}

// Classify decides whether a call was answered. A call that is still in
// progress, or ended without a telling reason in under five seconds, is
// undetermined and must not trigger a fallback.
func Classify(call Call) Outcome {
	status := strings.ToLower(strings.TrimSpace(call.Status))

	if status == "ended" && call.Duration >= MinAnsweredDuration && !IsUnansweredReason(call.EndedReason) {
		return OutcomeAnswered
	}

	if _, ok := unansweredStatuses[status]; ok {
		return OutcomeNotAnswered
	}
	if IsUnansweredReason(call.EndedReason) || strings.Contains(status, "voicemail") {
		return OutcomeNotAnswered
	}
	return OutcomeUndetermined
}
