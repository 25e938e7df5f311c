package service

import (
	"context"
	"errors"
	"strings"

	"voicelead_backend/internal/crm"
	"voicelead_backend/internal/leads/domain"
	"voicelead_backend/platform/apperr"
	"voicelead_backend/platform/phone"
)

// UpsertRequest describes a caller collected during an inbound call.
type UpsertRequest struct {
	Name         string
	Phone        string
	Email        string
	Address      string
	PostalCode   string
	SMSConsent   bool
	CustomFields map[string]string
}

// UpsertResult identifies the contact that now holds the caller's details.
type UpsertResult struct {
	ContactID string
	IsNew     bool
	// PhoneKept is set when an existing contact's phone was left alone
	// because the supplied number looks like a typo of the one on file.
	PhoneKept bool
}

// Upsert finds the caller's contact by phone, then by email, and updates it;
// when neither matches a new contact is created, which requires a phone. A
// contact holding the number always wins over an email match, so a number is
// never moved onto a second contact. Intake contacts are marked inbound
// unless the caller supplied a lead source.
func (s *Service) Upsert(ctx context.Context, req UpsertRequest) (UpsertResult, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	var key string
	if strings.TrimSpace(req.Phone) != "" {
		req.Phone = phone.NormalizeE164(req.Phone)
		if key = phone.ComparisonKey(req.Phone); key == "" {
			return UpsertResult{}, apperr.Validation("phone has no digits")
		}
	}
	if key == "" && req.Email == "" {
		return UpsertResult{}, apperr.Validation("phone or email is required")
	}
	if key == "" {
		return s.upsert(ctx, req)
	}

	var res UpsertResult
	err := s.locks.WithPhoneLock(ctx, key, func(ctx context.Context) error {
		var err error
		res, err = s.upsert(ctx, req)
		return err
	})
	return res, err
}

func (s *Service) upsert(ctx context.Context, req UpsertRequest) (UpsertResult, error) {
	var byPhone []crm.Contact
	if req.Phone != "" {
		var err error
		if byPhone, err = s.store.SearchByPhone(ctx, req.Phone); err != nil {
			return UpsertResult{}, err
		}
	}

	var existing *crm.Contact
	if len(byPhone) > 0 {
		existing = &byPhone[0]
	} else if req.Email != "" {
		contact, err := s.store.GetContactByEmail(ctx, req.Email)
		switch {
		case err == nil:
			existing = &contact
		case !apperr.Is(err, apperr.KindNotFound):
			return UpsertResult{}, err
		}
	}

	fields, markInbound := intakeFields(req)
	update := s.contactUpdate(req, fields)

	if existing == nil {
		return s.create(ctx, req, update, markInbound)
	}

	res := UpsertResult{ContactID: existing.ID}
	// An email match only reaches here when no contact holds the number.
	if existing.Phone != "" && !phone.Same(existing.Phone, req.Phone) && phone.Similar(existing.Phone, req.Phone, 1) {
		s.log.Warn("phone looks like a typo of the number on file, keeping existing number",
			"contact_id", existing.ID, "existing", existing.Phone, "phone", req.Phone)
		update.Phone = ""
		res.PhoneKept = true
	}
	if err := s.updateExisting(ctx, existing.ID, update, markInbound); err != nil {
		return UpsertResult{}, err
	}
	return res, nil
}

func (s *Service) create(ctx context.Context, req UpsertRequest, update crm.ContactUpdate, markInbound bool) (UpsertResult, error) {
	if req.Phone == "" {
		return UpsertResult{}, apperr.Validation("phone is required for a new contact")
	}
	update.City = s.cfg.DefaultCity
	update.State = s.cfg.DefaultState
	update.Country = s.cfg.DefaultCountry
	if markInbound {
		update.Tags = []string{domain.TagInbound}
	}

	contact, err := s.store.CreateContact(ctx, update)
	if err == nil {
		s.log.Info("contact created", "contact_id", contact.ID, "phone", req.Phone)
		return UpsertResult{ContactID: contact.ID, IsNew: true}, nil
	}

	var dup *crm.DuplicateContactError
	if !errors.As(err, &dup) {
		return UpsertResult{}, err
	}
	s.log.Warn("store reported duplicate contact, updating it instead", "contact_id", dup.ContactID)
	update.Tags = nil
	if err := s.updateExisting(ctx, dup.ContactID, update, markInbound); err != nil {
		return UpsertResult{}, err
	}
	return UpsertResult{ContactID: dup.ContactID}, nil
}

func (s *Service) updateExisting(ctx context.Context, contactID string, update crm.ContactUpdate, markInbound bool) error {
	if err := s.store.UpdateContact(ctx, contactID, update); err != nil {
		return err
	}
	if markInbound {
		if err := s.store.AddTags(ctx, contactID, domain.TagInbound); err != nil {
			s.log.Warn("could not tag contact inbound", "contact_id", contactID, "error", err)
		}
	}
	return nil
}

func (s *Service) contactUpdate(req UpsertRequest, fields map[string]string) crm.ContactUpdate {
	first, last := splitName(req.Name)
	update := crm.ContactUpdate{
		FirstName:    first,
		LastName:     last,
		Email:        req.Email,
		Phone:        req.Phone,
		Address1:     req.Address,
		PostalCode:   req.PostalCode,
		CustomFields: fields,
	}
	if strings.TrimSpace(req.Address) != "" {
		update.City = s.cfg.DefaultCity
		update.State = s.cfg.DefaultState
		update.Country = s.cfg.DefaultCountry
	}
	return update
}

// intakeFields copies the caller's custom fields and adds the inbound lead
// source and SMS consent. It reports whether the contact should be tagged
// inbound.
func intakeFields(req UpsertRequest) (map[string]string, bool) {
	fields := make(map[string]string, len(req.CustomFields)+2)
	for k, v := range req.CustomFields {
		fields[crm.ShortKey(k)] = v
	}
	_, hasSource := fields[domain.FieldLeadSource]
	if !hasSource {
		fields[domain.FieldLeadSource] = domain.TagInbound
	}
	if req.SMSConsent {
		fields[domain.FieldSMSConsent] = "true"
	}
	return fields, !hasSource
}

func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
