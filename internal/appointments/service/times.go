package service

import (
	"strings"
	"time"
)

// defaultAppointmentLength is assumed when an appointment has no usable end.
const defaultAppointmentLength = time.Hour

// zoneless layouts are read as wall-clock times in the business timezone.
var zonelessLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"01-02-2006 3:04 PM",
	"02-Jan-2006 3:04 PM",
	"2006-01-02 15:04:05",
}

// ParseTime reads the timestamp shapes the CRM is known to return.
func ParseTime(raw string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, true
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseDate reads the date part of a YYYY-MM-DD[THH:MM...] value as local
// midnight in loc.
func parseDate(raw string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexAny(raw, "T "); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

type interval struct {
	start time.Time
	end   time.Time
}

// overlaps is the half-open intersection test.
func (i interval) overlaps(start, end time.Time) bool {
	return start.Before(i.end) && end.After(i.start)
}
