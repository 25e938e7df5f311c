package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// defaultHolidays are the closed dates used when no schedule file is given.
var defaultHolidays = []string{
	"2025-01-01", "2025-07-04", "2025-12-25",
	"2026-01-01", "2026-07-04", "2026-12-25",
}

// BusinessHours is the weekly schedule slots and bookings are generated from.
// Open and Close are offsets from local midnight in Location.
type BusinessHours struct {
	Location        *time.Location
	Open            time.Duration
	Close           time.Duration
	SlotDuration    time.Duration
	BookingDuration time.Duration
	Holidays        map[string]struct{}
}

type businessHoursFile struct {
	Timezone        string   `yaml:"timezone"`
	Open            string   `yaml:"open"`
	Close           string   `yaml:"close"`
	SlotDuration    string   `yaml:"slot_duration"`
	BookingDuration string   `yaml:"booking_duration"`
	Holidays        []string `yaml:"holidays"`
}

// DefaultBusinessHours returns Mon-Fri 08:00-16:30 America/Los_Angeles with
// one-hour slots.
func DefaultBusinessHours() BusinessHours {
	hours, err := buildBusinessHours(businessHoursFile{})
	if err != nil {
		panic("default business hours: " + err.Error())
	}
	return hours
}

// LoadBusinessHours reads a YAML schedule file. An empty path yields the
// defaults; fields missing from the file keep their default values.
func LoadBusinessHours(path string) (BusinessHours, error) {
	if strings.TrimSpace(path) == "" {
		return buildBusinessHours(businessHoursFile{})
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return BusinessHours{}, fmt.Errorf("read business hours file: %w", err)
	}
	return ParseBusinessHours(raw)
}

// ParseBusinessHours decodes a YAML schedule document.
func ParseBusinessHours(raw []byte) (BusinessHours, error) {
	var file businessHoursFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return BusinessHours{}, fmt.Errorf("parse business hours file: %w", err)
	}
	return buildBusinessHours(file)
}

func buildBusinessHours(file businessHoursFile) (BusinessHours, error) {
	tz := firstNonEmpty(file.Timezone, "America/Los_Angeles")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return BusinessHours{}, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	open, err := parseClock(firstNonEmpty(file.Open, "08:00"))
	if err != nil {
		return BusinessHours{}, err
	}
	closeAt, err := parseClock(firstNonEmpty(file.Close, "16:30"))
	if err != nil {
		return BusinessHours{}, err
	}
	if closeAt <= open {
		return BusinessHours{}, fmt.Errorf("business hours close %s must be after open %s", file.Close, file.Open)
	}

	slot, err := time.ParseDuration(firstNonEmpty(file.SlotDuration, "1h"))
	if err != nil || slot <= 0 {
		return BusinessHours{}, fmt.Errorf("invalid slot_duration %q", file.SlotDuration)
	}
	booking, err := time.ParseDuration(firstNonEmpty(file.BookingDuration, "1h"))
	if err != nil || booking <= 0 {
		return BusinessHours{}, fmt.Errorf("invalid booking_duration %q", file.BookingDuration)
	}

	holidayList := file.Holidays
	if holidayList == nil {
		holidayList = defaultHolidays
	}
	holidays := make(map[string]struct{}, len(holidayList))
	for _, day := range holidayList {
		day = strings.TrimSpace(day)
		if _, err := time.Parse(dateLayout, day); err != nil {
			return BusinessHours{}, fmt.Errorf("invalid holiday %q: want YYYY-MM-DD", day)
		}
		holidays[day] = struct{}{}
	}

	return BusinessHours{
		Location:        loc,
		Open:            open,
		Close:           closeAt,
		SlotDuration:    slot,
		BookingDuration: booking,
		Holidays:        holidays,
	}, nil
}

// IsWorkingDay reports whether t falls on a weekday that is not a holiday.
func (b BusinessHours) IsWorkingDay(t time.Time) bool {
	local := t.In(b.Location)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, closed := b.Holidays[local.Format(dateLayout)]
	return !closed
}

// OpenOn returns the opening instant of the local calendar day containing t.
func (b BusinessHours) OpenOn(t time.Time) time.Time {
	return wallClock(t.In(b.Location), b.Open)
}

// CloseOn returns the closing instant of the local calendar day containing t.
func (b BusinessHours) CloseOn(t time.Time) time.Time {
	return wallClock(t.In(b.Location), b.Close)
}

// wallClock builds the instant at offset from midnight on t's date using
// wall-clock fields, so DST transition days keep 08:00 at 08:00.
func wallClock(t time.Time, offset time.Duration) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, int(offset/time.Hour), int(offset%time.Hour/time.Minute), 0, 0, t.Location())
}

func parseClock(value string) (time.Duration, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: want HH:MM", value)
	}
	return time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
