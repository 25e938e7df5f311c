package service

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"voicelead_backend/platform/apperr"
)

// Call metadata fields written after a call.
const (
	FieldCallSummary       = "ai_call_summary"
	FieldTranscriptURL     = "call_transcript_url"
	FieldCallDuration      = "call_duration"
	FieldCallType          = "call_type"
	FieldCallOutcome       = "call_outcome"
	FieldEquipmentTypeTags = "equipment_type_tags"
)

// CallSummary is the record of a finished call.
type CallSummary struct {
	ContactID       string
	Transcript      string
	Summary         string
	TranscriptURL   string
	CallType        string
	Outcome         string
	DurationSeconds int
}

var equipmentKeywords = map[string][]string{
	"furnace":         {"furnace", "heating system", "heater"},
	"air_conditioner": {"ac", "a/c", "air conditioner", "air conditioning", "cooling system"},
	"heat_pump":       {"heat pump", "heatpump"},
	"ductless":        {"ductless", "mini split", "mini-split", "split system"},
	"thermostat":      {"thermostat", "nest", "ecobee"},
	"ductwork":        {"duct", "ducts", "ductwork", "air ducts"},
	"air_handler":     {"air handler", "airhandler"},
	"evaporator":      {"evaporator", "evap coil"},
	"condenser":       {"condenser", "condensing unit"},
}

var equipmentPatterns = compileEquipmentPatterns()

// Keywords match on word boundaries so "ac" does not fire inside "contact".
func compileEquipmentPatterns() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(equipmentKeywords))
	for kind, words := range equipmentKeywords {
		quoted := make([]string, len(words))
		for i, w := range words {
			quoted[i] = regexp.QuoteMeta(w)
		}
		out[kind] = regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
	}
	return out
}

// DetectEquipment lists the equipment kinds mentioned in text, sorted.
func DetectEquipment(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for kind, re := range equipmentPatterns {
		if re.MatchString(lower) {
			found = append(found, kind)
		}
	}
	sort.Strings(found)
	return found
}

// LogCallSummary writes the summary and transcript to the contact's timeline
// and stores the call metadata in custom fields. It returns the equipment
// kinds detected in the conversation.
func (s *Service) LogCallSummary(ctx context.Context, in CallSummary) ([]string, error) {
	if strings.TrimSpace(in.ContactID) == "" {
		return nil, apperr.Validation("contact id is required")
	}

	if err := s.store.AddNote(ctx, in.ContactID, summaryNote(in)); err != nil {
		return nil, err
	}

	equipment := DetectEquipment(in.Transcript + " " + in.Summary)
	fields := map[string]string{
		FieldCallSummary:       in.Summary,
		FieldTranscriptURL:     in.TranscriptURL,
		FieldCallDuration:      strconv.Itoa(in.DurationSeconds),
		FieldCallType:          in.CallType,
		FieldCallOutcome:       in.Outcome,
		FieldEquipmentTypeTags: strings.Join(equipment, ","),
	}
	if err := s.store.UpdateCustomFields(ctx, in.ContactID, fields); err != nil {
		return nil, err
	}

	s.log.Info("call summary logged", "contact_id", in.ContactID, "equipment", equipment)
	return equipment, nil
}

func summaryNote(in CallSummary) string {
	callType := in.CallType
	if callType == "" {
		callType = "Unknown"
	}
	outcome := in.Outcome
	if outcome == "" {
		outcome = "N/A"
	}
	return fmt.Sprintf("Call Summary:\n%s\n\nCall Type: %s\nDuration: %d seconds\nOutcome: %s\n\nFull Transcript:\n%s",
		in.Summary, callType, in.DurationSeconds, outcome, in.Transcript)
}
