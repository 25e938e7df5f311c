package webhook

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"voicelead_backend/internal/crm"
	"voicelead_backend/platform/apperr"
)

// LeadEvent is the canonical form of a lifecycle notification. Every
// payload shape the CRM sends is reduced to this before routing.
type LeadEvent struct {
	Type        string
	LocationID  string
	ContactID   string
	Phone       string
	Tags        []string
	Source      string
	Channel     string
	Appointment *AppointmentInfo
}

// AppointmentInfo is the appointment carried by appointment notifications.
type AppointmentInfo struct {
	ID         string
	CalendarID string
	ContactID  string
	StartTime  string
	EndTime    string
	Status     string
}

// Candidate paths, most specific first. A dotted path walks nested objects.
var (
	typePaths     = []string{"type", "event", "eventType", "customData.type"}
	locationPaths = []string{"locationId", "location_id", "location.id", "customData.locationId", "data.locationId"}
	contactPaths  = []string{"contactId", "contact_id"}
	nestedContact = []string{
		"contact.id",
		"data.contactId",
		"data.contact.id",
		"customData.contactId",
		"customData.contact_id",
		"conversation.contactId",
		"lead.contactId",
		"appointment.contactId",
	}
	sourcePaths = []string{
		"leadSource", "lead_source", "source",
		"customData.leadSource", "customData.source",
		"data.source", "contact.source", "ad.platform",
	}
	channelPaths = []string{"messageType", "channel", "data.messageType", "data.channel", "conversation.type"}

	phoneContainers = []string{"", "customData", "data", "data.contact", "contact"}
	phoneKeys       = []string{"phone", "phoneNumber", "phone_number", "Phone", "PhoneNumber"}

	startKeys = []string{"startTime", "start_time", "startDate", "start"}
	endKeys   = []string{"endTime", "end_time", "endDate", "end"}
)

// ParseEvent reduces a raw notification body to a LeadEvent. Only a body
// that is not a JSON object is an error; missing fields stay empty.
func ParseEvent(raw []byte) (LeadEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var root map[string]interface{}
	if err := dec.Decode(&root); err != nil || root == nil {
		return LeadEvent{}, apperr.Validation("payload must be a JSON object")
	}

	ev := LeadEvent{
		Type:       strings.ToLower(firstString(root, typePaths...)),
		LocationID: firstString(root, locationPaths...),
		Source:     firstString(root, sourcePaths...),
		Channel:    strings.ToLower(firstString(root, channelPaths...)),
	}

	ev.ContactID = firstString(root, contactPaths...)
	if ev.ContactID == "" && strings.HasPrefix(ev.Type, "contact") {
		ev.ContactID = firstString(root, "id")
	}
	if ev.ContactID == "" {
		ev.ContactID = firstString(root, nestedContact...)
	}

	ev.Phone = findPhone(root)
	ev.Tags = findTags(root)
	ev.Appointment = findAppointment(root, ev.Type)
	if ev.ContactID == "" && ev.Appointment != nil {
		ev.ContactID = ev.Appointment.ContactID
	}
	return ev, nil
}

func findPhone(root map[string]interface{}) string {
	for _, path := range phoneContainers {
		m := objectAt(root, path)
		if m == nil {
			continue
		}
		if v := firstString(m, phoneKeys...); v != "" {
			return v
		}
	}
	for _, path := range phoneContainers {
		m := objectAt(root, path)
		if m == nil {
			continue
		}
		list, ok := m["phoneNumbers"].([]interface{})
		if !ok || len(list) == 0 {
			continue
		}
		if first, ok := list[0].(map[string]interface{}); ok {
			if v := asString(first["number"]); v != "" {
				return v
			}
		}
	}
	return ""
}

func findTags(root map[string]interface{}) []string {
	for _, path := range phoneContainers {
		m := objectAt(root, path)
		if m == nil {
			continue
		}
		var tags []string
		switch v := m["tags"].(type) {
		case string:
			tags = crm.SplitTags(v)
		case []interface{}:
			for _, item := range v {
				if s := asString(item); s != "" {
					tags = append(tags, s)
				}
			}
		}
		if len(tags) > 0 {
			return tags
		}
	}
	return nil
}

func findAppointment(root map[string]interface{}, eventType string) *AppointmentInfo {
	if m := objectAt(root, "appointment"); m != nil {
		return &AppointmentInfo{
			ID:         firstString(m, "id", "appointmentId", "eventId"),
			CalendarID: firstString(m, "calendarId", "calendar_id"),
			ContactID:  firstString(m, "contactId", "contact_id"),
			StartTime:  firstString(m, startKeys...),
			EndTime:    firstString(m, endKeys...),
			Status:     strings.ToLower(firstString(m, "appointmentStatus", "status")),
		}
	}
	// Workflow notifications describe the booking under "calendar", where
	// "id" names the calendar itself.
	if m := objectAt(root, "calendar"); m != nil {
		return &AppointmentInfo{
			ID:         firstString(m, "appointmentId", "eventId"),
			CalendarID: firstString(m, "calendarId", "id"),
			ContactID:  firstString(m, "contactId"),
			StartTime:  firstString(m, startKeys...),
			EndTime:    firstString(m, endKeys...),
			Status:     strings.ToLower(firstString(m, "appointmentStatus", "status")),
		}
	}
	if strings.HasPrefix(eventType, "appointment") {
		if m := objectAt(root, "data"); m != nil {
			return &AppointmentInfo{
				ID:         firstString(m, "id", "appointmentId"),
				CalendarID: firstString(m, "calendarId", "calendar_id"),
				ContactID:  firstString(m, "contactId"),
				StartTime:  firstString(m, startKeys...),
				EndTime:    firstString(m, endKeys...),
				Status:     strings.ToLower(firstString(m, "appointmentStatus", "status")),
			}
		}
	}
	return nil
}

// firstString returns the first non-empty value found at any path.
func firstString(root map[string]interface{}, paths ...string) string {
	for _, path := range paths {
		if v := strings.TrimSpace(asString(valueAt(root, path))); v != "" {
			return v
		}
	}
	return ""
}

func valueAt(root map[string]interface{}, path string) interface{} {
	parts := strings.Split(path, ".")
	cur := root
	for i, part := range parts {
		v, ok := cur[part]
		if !ok {
			return nil
		}
		if i == len(parts)-1 {
			return v
		}
		next, ok := v.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = next
	}
	return nil
}

// objectAt returns the object at path; the empty path is root.
func objectAt(root map[string]interface{}, path string) map[string]interface{} {
	if path == "" {
		return root
	}
	m, _ := valueAt(root, path).(map[string]interface{})
	return m
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
