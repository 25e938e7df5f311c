// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "US"

// NormalizeE164 formats a phone number to E.164. If parsing fails, it returns the trimmed input.
func NormalizeE164(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

// ComparisonKey reduces a phone number to the form used for duplicate
// detection and lock keys: digits only, with the North American country
// code dropped from 11-digit numbers so "+1 (555) 010-2000" and
// "555-010-2000" collide.
func ComparisonKey(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		return digits[1:]
	}
	return digits
}

// Same reports whether two phone numbers refer to the same line.
func Same(a, b string) bool {
	ka := ComparisonKey(a)
	return ka != "" && ka == ComparisonKey(b)
}

// Similar reports whether two numbers differ in at most maxDiff digits,
// counting positional mismatches plus any difference in length. It flags
// likely typos of the same number.
func Similar(a, b string, maxDiff int) bool {
	ka, kb := ComparisonKey(a), ComparisonKey(b)
	if ka == "" || kb == "" {
		return false
	}
	if len(ka) > len(kb) {
		ka, kb = kb, ka
	}
	diff := len(kb) - len(ka)
	for i := 0; i < len(ka) && diff <= maxDiff; i++ {
		if ka[i] != kb[i] {
			diff++
		}
	}
	return diff <= maxDiff
}
