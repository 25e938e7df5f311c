package crm

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"voicelead_backend/platform/apperr"
	"voicelead_backend/platform/phone"
)

const (
	searchPageLimit = 100
	maxQueryLength  = 75
)

// duplicateContactID pulls the existing contact id out of a duplicate
// rejection body, which nests it under "meta" or carries it at the top level.
var duplicateContactID = regexp.MustCompile(`"contactId"\s*:\s*"([^"]+)"`)

func (c *Client) toContact(ctx context.Context, dto contactDTO) Contact {
	return Contact{
		ID:           dto.ID,
		FirstName:    dto.FirstName,
		LastName:     dto.LastName,
		Email:        dto.Email,
		Phone:        dto.Phone,
		Source:       dto.Source,
		DateAdded:    dto.DateAdded,
		Tags:         []string(dto.Tags),
		CustomFields: c.decodeFields(ctx, dto.CustomFields),
	}
}

// GetContact fetches a contact by id.
func (c *Client) GetContact(ctx context.Context, contactID string) (Contact, error) {
	if strings.TrimSpace(contactID) == "" {
		return Contact{}, apperr.Validation("contact id is required")
	}

	var resp struct {
		Contact contactDTO `json:"contact"`
	}
	if err := c.do(ctx, "GET", "contacts/"+url.PathEscape(contactID), c.locationQuery(), nil, &resp); err != nil {
		return Contact{}, err
	}
	if resp.Contact.ID == "" {
		return Contact{}, apperr.NotFound("contact not found").WithOp("crm.GetContact")
	}
	return c.toContact(ctx, resp.Contact), nil
}

// SearchByPhone returns every contact whose phone matches number after
// digits-only normalization. The store's search is fuzzy, so results are
// filtered locally.
func (c *Client) SearchByPhone(ctx context.Context, number string) ([]Contact, error) {
	key := phone.ComparisonKey(number)
	if key == "" {
		return nil, nil
	}

	query := "phone:" + key
	if len(query) > maxQueryLength {
		query = query[:maxQueryLength]
	}
	payload := map[string]interface{}{
		"locationId": c.locationID,
		"pageLimit":  searchPageLimit,
		"query":      query,
	}

	var resp struct {
		Contacts []contactDTO `json:"contacts"`
	}
	if err := c.do(ctx, "POST", "contacts/search", nil, payload, &resp); err != nil {
		return nil, err
	}

	matches := make([]Contact, 0, len(resp.Contacts))
	for _, dto := range resp.Contacts {
		if phone.Same(number, dto.Phone) {
			matches = append(matches, c.toContact(ctx, dto))
		}
	}
	return matches, nil
}

// GetContactByEmail returns the contact whose email matches exactly,
// ignoring case.
func (c *Client) GetContactByEmail(ctx context.Context, email string) (Contact, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return Contact{}, apperr.Validation("email is required")
	}

	query := "email:" + email
	if len(query) > maxQueryLength {
		query = query[:maxQueryLength]
	}
	payload := map[string]interface{}{
		"locationId": c.locationID,
		"pageLimit":  10,
		"query":      query,
	}

	var resp struct {
		Contacts []contactDTO `json:"contacts"`
	}
	if err := c.do(ctx, "POST", "contacts/search", nil, payload, &resp); err != nil {
		return Contact{}, err
	}
	for _, dto := range resp.Contacts {
		if dto.ID != "" && strings.EqualFold(strings.TrimSpace(dto.Email), email) {
			return c.toContact(ctx, dto), nil
		}
	}
	return Contact{}, apperr.NotFound("contact not found").WithOp("crm.GetContactByEmail")
}

// ListRecentContacts returns up to limit contacts, newest first.
func (c *Client) ListRecentContacts(ctx context.Context, limit int) ([]Contact, error) {
	if limit <= 0 || limit > searchPageLimit {
		limit = searchPageLimit
	}
	query := c.locationQuery()
	query.Set("limit", strconv.Itoa(limit))
	query.Set("sortBy", "date_added")

	var resp struct {
		Contacts []contactDTO `json:"contacts"`
	}
	if err := c.do(ctx, "GET", "contacts/", query, nil, &resp); err != nil {
		return nil, err
	}

	out := make([]Contact, 0, len(resp.Contacts))
	for _, dto := range resp.Contacts {
		if dto.ID == "" {
			continue
		}
		out = append(out, Contact{ID: dto.ID, Phone: dto.Phone, FirstName: dto.FirstName, LastName: dto.LastName})
	}
	return out, nil
}

// CreateContact creates a contact. When the store rejects it as a duplicate
// the returned error is a *DuplicateContactError naming the existing contact,
// if the store disclosed it.
func (c *Client) CreateContact(ctx context.Context, in ContactUpdate) (Contact, error) {
	payload := c.contactWrite(ctx, in)
	payload.LocationID = c.locationID

	var resp struct {
		contactDTO
		Contact contactDTO `json:"contact"`
	}
	if err := c.do(ctx, "POST", "contacts/", nil, payload, &resp); err != nil {
		if id := duplicateOf(err); id != "" {
			return Contact{}, &DuplicateContactError{ContactID: id, Err: err}
		}
		return Contact{}, err
	}

	dto := resp.Contact
	if dto.ID == "" {
		dto = resp.contactDTO
	}
	if dto.ID == "" {
		return Contact{}, apperr.Unavailable("crm create contact returned no id", nil).WithOp("crm.CreateContact")
	}
	return c.toContact(ctx, dto), nil
}

func duplicateOf(err error) string {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		return ""
	}
	if appErr.Kind != apperr.KindBadRequest && appErr.Kind != apperr.KindConflict {
		return ""
	}
	if !strings.Contains(strings.ToLower(appErr.Message), "duplicat") {
		return ""
	}
	if m := duplicateContactID.FindStringSubmatch(appErr.Message); m != nil {
		return m[1]
	}
	return ""
}

// UpdateContact writes the non-empty members of update.
func (c *Client) UpdateContact(ctx context.Context, contactID string, update ContactUpdate) error {
	payload := c.contactWrite(ctx, update)
	if payload.empty() {
		return nil
	}
	return c.do(ctx, "PUT", "contacts/"+url.PathEscape(contactID), c.locationQuery(), payload, nil)
}

func (c *Client) contactWrite(ctx context.Context, in ContactUpdate) contactWrite {
	return contactWrite{
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        strings.TrimSpace(in.Email),
		Phone:        strings.TrimSpace(in.Phone),
		Address1:     strings.TrimSpace(in.Address1),
		City:         strings.TrimSpace(in.City),
		State:        strings.TrimSpace(in.State),
		PostalCode:   strings.TrimSpace(in.PostalCode),
		Country:      strings.TrimSpace(in.Country),
		Tags:         in.Tags,
		CustomFields: c.buildFieldWrites(ctx, in.CustomFields),
	}
}

// UpdateCustomFields writes custom field values on a contact.
func (c *Client) UpdateCustomFields(ctx context.Context, contactID string, fields map[string]string) error {
	return c.UpdateContact(ctx, contactID, ContactUpdate{CustomFields: fields})
}

// AddTags merges tags into the contact's existing tag set. The store
// replaces tags on update, so the contact is read first.
func (c *Client) AddTags(ctx context.Context, contactID string, tags ...string) error {
	if len(tags) == 0 {
		return nil
	}
	contact, err := c.GetContact(ctx, contactID)
	if err != nil {
		return err
	}

	merged := append([]string(nil), contact.Tags...)
	changed := false
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || contact.HasTag(tag) {
			continue
		}
		merged = append(merged, tag)
		changed = true
	}
	if !changed {
		return nil
	}
	return c.UpdateContact(ctx, contactID, ContactUpdate{Tags: merged})
}

// AddNote appends a note to the contact's timeline.
func (c *Client) AddNote(ctx context.Context, contactID, body string) error {
	payload := map[string]string{"body": body}
	return c.do(ctx, "POST", "contacts/"+url.PathEscape(contactID)+"/notes", c.locationQuery(), payload, nil)
}
