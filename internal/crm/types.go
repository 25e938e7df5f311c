package crm

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Contact is a customer record as read from the store. CustomFields is keyed
// by the short field key ("vapi_called", not "contact.vapi_called").
type Contact struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	Source       string
	DateAdded    string
	Tags         []string
	CustomFields map[string]string
}

// Field returns a custom field value, or "" when absent.
func (c Contact) Field(key string) string {
	if c.CustomFields == nil {
		return ""
	}
	return c.CustomFields[ShortKey(key)]
}

// HasTag reports whether the contact carries tag (case-insensitive).
func (c Contact) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if strings.EqualFold(strings.TrimSpace(t), tag) {
			return true
		}
	}
	return false
}

// Appointment is a booked calendar event. Times are kept exactly as the
// store returned them; parsing belongs to the availability engine.
type Appointment struct {
	ID         string `json:"id"`
	EventID    string `json:"eventId,omitempty"`
	CalendarID string `json:"calendarId"`
	ContactID  string `json:"contactId"`
	Title      string `json:"title"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
	Status     string `json:"appointmentStatus"`
}

// IsCancelled reports whether the store marks the appointment cancelled.
func (a Appointment) IsCancelled() bool {
	switch strings.ToLower(strings.TrimSpace(a.Status)) {
	case "cancelled", "canceled":
		return true
	}
	return false
}

// Calendar is a bookable calendar.
type Calendar struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NewAppointment is the input for CreateAppointment.
type NewAppointment struct {
	CalendarID string
	ContactID  string
	StartTime  string
	EndTime    string
	Title      string
	Notes      string
	Address    string
}

// ContactUpdate carries the fields to change on a contact. Nil/empty
// members are left untouched. It doubles as the input for CreateContact.
type ContactUpdate struct {
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	Address1     string
	City         string
	State        string
	PostalCode   string
	Country      string
	Tags         []string
	CustomFields map[string]string
}

// DuplicateContactError is returned by CreateContact when the store refuses
// a new contact because one with the same phone or email already exists.
type DuplicateContactError struct {
	ContactID string
	Err       error
}

func (e *DuplicateContactError) Error() string {
	return "duplicate of contact " + e.ContactID + ": " + e.Err.Error()
}

func (e *DuplicateContactError) Unwrap() error {
	return e.Err
}

// ShortKey strips the "contact." prefix from a custom field key.
func ShortKey(key string) string {
	return strings.TrimPrefix(strings.TrimSpace(key), "contact.")
}

// FullKey returns the "contact.{key}" form used by the store.
func FullKey(key string) string {
	return "contact." + ShortKey(key)
}

// =============================================================================
// Wire formats
// =============================================================================

type contactDTO struct {
	ID           string           `json:"id"`
	FirstName    string           `json:"firstName"`
	LastName     string           `json:"lastName"`
	Email        string           `json:"email"`
	Phone        string           `json:"phone"`
	Source       string           `json:"source"`
	DateAdded    string           `json:"dateAdded"`
	Tags         flexibleTags     `json:"tags"`
	CustomFields []customFieldDTO `json:"customFields"`
}

type customFieldDTO struct {
	ID       string          `json:"id"`
	Key      string          `json:"key"`
	FieldKey string          `json:"fieldKey"`
	Value    json.RawMessage `json:"value"`
}

// flexibleTags accepts either a JSON array or a comma separated string.
type flexibleTags []string

func (t *flexibleTags) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = list
		return nil
	}
	var csv string
	if err := json.Unmarshal(data, &csv); err != nil {
		*t = nil
		return nil
	}
	*t = SplitTags(csv)
	return nil
}

// SplitTags splits a comma separated tag string.
func SplitTags(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// rawString renders a JSON scalar as a plain string.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return strings.TrimSpace(string(raw))
}

type customFieldWrite struct {
	ID         string `json:"id,omitempty"`
	Key        string `json:"key,omitempty"`
	FieldValue string `json:"field_value"`
}

type contactWrite struct {
	LocationID   string             `json:"locationId,omitempty"`
	FirstName    string             `json:"firstName,omitempty"`
	LastName     string             `json:"lastName,omitempty"`
	Email        string             `json:"email,omitempty"`
	Phone        string             `json:"phone,omitempty"`
	Address1     string             `json:"address1,omitempty"`
	City         string             `json:"city,omitempty"`
	State        string             `json:"state,omitempty"`
	PostalCode   string             `json:"postalCode,omitempty"`
	Country      string             `json:"country,omitempty"`
	Tags         []string           `json:"tags,omitempty"`
	CustomFields []customFieldWrite `json:"customFields,omitempty"`
}

func (w contactWrite) empty() bool {
	return w.FirstName == "" && w.LastName == "" && w.Email == "" && w.Phone == "" &&
		w.Address1 == "" && w.City == "" && w.State == "" && w.PostalCode == "" && w.Country == "" &&
		len(w.Tags) == 0 && len(w.CustomFields) == 0
}

type appointmentWrite struct {
	LocationID string `json:"locationId"`
	CalendarID string `json:"calendarId"`
	ContactID  string `json:"contactId"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
	Title      string `json:"title"`
	Notes      string `json:"notes,omitempty"`
	Address    string `json:"address,omitempty"`
	Status     string `json:"appointmentStatus,omitempty"`
}
