package domain

import (
	"strings"

	"voicelead_backend/internal/crm"
)

// Classification tags.
const (
	TagOutbound = "outbound"
	TagInbound  = "inbound"
)

// SourceInboundCall marks a lead that phoned in.
const SourceInboundCall = "inbound_call"

var sourceAliases = map[string]string{
	"google":             "google_ads",
	"google ads":         "google_ads",
	"meta":               "meta_ads",
	"facebook":           "facebook_ads",
	"fb":                 "facebook_ads",
	"chat":               "webchat",
	"web chat":           "webchat",
	"webchat":            "webchat",
	"form":               "form",
	"website":            "website",
	"valleyviewhvac.com": "website",
	"yelp":               "yelp",
	"thumbtack":          "thumbtack",
}

// sourceTagHints is scanned in order against existing tags.
var sourceTagHints = []string{"website", "yelp", "thumbtack", "google", "meta", "facebook", "form", "webchat"}

// NormalizeSource maps free-text source names onto the canonical set.
// Unknown sources are lower-cased and kept.
func NormalizeSource(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "" {
		return ""
	}
	if canonical, ok := sourceAliases[lower]; ok {
		return canonical
	}
	return lower
}

// SourceFromTags returns the first canonical source hinted at by tags.
func SourceFromTags(tags []string) string {
	for _, tag := range tags {
		lower := strings.ToLower(tag)
		for _, hint := range sourceTagHints {
			if strings.Contains(lower, hint) {
				return NormalizeSource(hint)
			}
		}
	}
	return ""
}

// ResolveSource picks the lead source from an explicit hint, the contact's
// own source, or its tags, in that order.
func ResolveSource(hint string, contact crm.Contact) string {
	if s := NormalizeSource(hint); s != "" {
		return s
	}
	if s := NormalizeSource(contact.Field(FieldLeadSource)); s != "" {
		return s
	}
	if s := NormalizeSource(contact.Source); s != "" {
		return s
	}
	return SourceFromTags(contact.Tags)
}

// IsInbound reports whether the lead originated from the customer calling
// in. Such leads never get an outbound call or a fallback message.
func IsInbound(contact crm.Contact) bool {
	if contact.HasTag(TagInbound) {
		return true
	}
	for _, v := range []string{contact.Field(FieldLeadSource), contact.Source} {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case TagInbound, SourceInboundCall:
			return true
		}
	}
	return false
}

// IsOutbound reports whether the contact is tagged for outbound follow-up.
func IsOutbound(contact crm.Contact) bool {
	return contact.HasTag(TagOutbound)
}
