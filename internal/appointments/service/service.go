// Package service computes availability and books, cancels and confirms
// appointments against the CRM calendars.
package service

import (
	"context"
	"sync"
	"time"

	"voicelead_backend/internal/appointments/cache"
	"voicelead_backend/internal/crm"
	"voicelead_backend/internal/events"
	"voicelead_backend/platform/config"
	"voicelead_backend/platform/logger"
)

const (
	defaultRecentContactLimit = 100
	defaultFetchConcurrency   = 8
)

// Store is the slice of the CRM the appointment flows use.
type Store interface {
	ListRecentContacts(ctx context.Context, limit int) ([]crm.Contact, error)
	GetContact(ctx context.Context, contactID string) (crm.Contact, error)
	GetContactAppointments(ctx context.Context, contactID string) ([]crm.Appointment, error)
	ListCalendars(ctx context.Context) ([]crm.Calendar, error)
	CreateAppointment(ctx context.Context, in crm.NewAppointment) (crm.Appointment, error)
	UpdateCustomFields(ctx context.Context, contactID string, fields map[string]string) error
	AddNote(ctx context.Context, contactID, body string) error
}

// Sender delivers confirmation texts.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// Config tunes the service.
type Config struct {
	Hours        config.BusinessHours
	BusinessName string
	// RecentContactLimit bounds how many contacts are read to find
	// conflicting appointments.
	RecentContactLimit int
	// FetchConcurrency bounds the parallel per-contact appointment reads.
	FetchConcurrency int
}

type Service struct {
	store     Store
	canceller crm.AppointmentCanceller
	sender    Sender
	booked    *cache.AppointmentCache
	cancelled *cache.CancellationCache
	bus       events.Bus
	hours     config.BusinessHours
	cfg       Config
	log       *logger.Logger
	now       func() time.Time

	calMu       sync.Mutex
	calendars   []crm.Calendar
	calendarsAt time.Time

	confirmMu sync.Mutex
	confirmed map[string]time.Time
}

func New(store Store, canceller crm.AppointmentCanceller, sender Sender, booked *cache.AppointmentCache, cancelled *cache.CancellationCache, bus events.Bus, cfg Config, log *logger.Logger) *Service {
	if cfg.Hours.Location == nil {
		cfg.Hours = config.DefaultBusinessHours()
	}
	if cfg.RecentContactLimit <= 0 {
		cfg.RecentContactLimit = defaultRecentContactLimit
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = defaultFetchConcurrency
	}
	return &Service{
		store:     store,
		canceller: canceller,
		sender:    sender,
		booked:    booked,
		cancelled: cancelled,
		bus:       bus,
		hours:     cfg.Hours,
		cfg:       cfg,
		log:       log.WithComponent("appointments"),
		now:       time.Now,
		confirmed: make(map[string]time.Time),
	}
}

// RecordBooked adds an appointment reported by the CRM to the local
// booking cache. Unparseable times are ignored.
func (s *Service) RecordBooked(calendarID, startRaw, endRaw string) bool {
	start, ok := ParseTime(startRaw, s.hours.Location)
	if !ok {
		s.log.Warn("booked appointment has unparseable start", "calendar_id", calendarID, "start", startRaw)
		return false
	}
	end, ok := ParseTime(endRaw, s.hours.Location)
	if !ok {
		end = time.Time{}
	}
	s.booked.Add(calendarID, start, end)
	return true
}

// RecordCancelled remembers a cancellation reported by the CRM.
func (s *Service) RecordCancelled(contactID, appointmentID string) {
	s.cancelled.Add(contactID, appointmentID)
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.bus != nil {
		s.bus.Publish(ctx, event)
	}
}
