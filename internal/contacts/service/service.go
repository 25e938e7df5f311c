// Package service finds or creates intake contacts and records call
// summaries on their timeline.
package service

import (
	"context"

	"voicelead_backend/internal/crm"
	"voicelead_backend/platform/logger"
)

// Store is the slice of the CRM the contact flows use.
type Store interface {
	SearchByPhone(ctx context.Context, number string) ([]crm.Contact, error)
	GetContactByEmail(ctx context.Context, email string) (crm.Contact, error)
	CreateContact(ctx context.Context, in crm.ContactUpdate) (crm.Contact, error)
	UpdateContact(ctx context.Context, contactID string, update crm.ContactUpdate) error
	UpdateCustomFields(ctx context.Context, contactID string, fields map[string]string) error
	AddTags(ctx context.Context, contactID string, tags ...string) error
	AddNote(ctx context.Context, contactID, body string) error
}

// PhoneLocker serializes work on one phone number across instances.
type PhoneLocker interface {
	WithPhoneLock(ctx context.Context, phoneKey string, fn func(context.Context) error) error
}

// Config carries the address defaults written on intake contacts.
type Config struct {
	DefaultCity    string
	DefaultState   string
	DefaultCountry string
}

// Service handles contact intake and call summaries.
type Service struct {
	store Store
	locks PhoneLocker
	cfg   Config
	log   *logger.Logger
}

// New creates the contact service.
func New(store Store, locks PhoneLocker, cfg Config, log *logger.Logger) *Service {
	return &Service{
		store: store,
		locks: locks,
		cfg:   cfg,
		log:   log.WithComponent("contacts"),
	}
}
