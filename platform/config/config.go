// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// CRMConfig provides settings for the customer-record store client.
type CRMConfig interface {
	GetCRMBaseURL() string
	GetCRMAPIKey() string
	GetCRMLocationID() string
	GetCRMAPIVersion() string
	GetCRMTimeout() time.Duration
	GetCRMRequestsPerSecond() float64
	GetCRMCancelStrategy() string
	GetCRMRecentContactLimit() int
}

// VoiceConfig provides settings for the outbound voice vendor.
type VoiceConfig interface {
	GetVoiceBaseURL() string
	GetVoiceAPIKey() string
	GetVoiceAssistantID() string
	GetVoicePhoneNumberID() string
	GetVoiceTimeout() time.Duration
}

// MessagingConfig provides settings for the text-message channel.
type MessagingConfig interface {
	GetMessagingChannel() string
	GetTwilioBaseURL() string
	GetTwilioAccountSID() string
	GetTwilioAuthToken() string
	GetTwilioFromNumber() string
	WhatsAppConfig
}

// WhatsAppConfig provides settings for the WhatsApp gateway channel.
type WhatsAppConfig interface {
	GetWhatsAppURL() string
	GetWhatsAppKey() string
	GetWhatsAppDeviceID() string
}

// SchedulerConfig provides Redis settings shared by asynq and the
// Redis-backed coordination store.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// FallbackConfig provides settings for the fallback text flow.
type FallbackConfig interface {
	GetFallbackDelay() time.Duration
	GetFallbackRecencyWindow() time.Duration
	GetDedupTTL() time.Duration
	GetLockTTL() time.Duration
	GetBusinessName() string
}

// WebhookConfig provides settings for lifecycle notification ingress.
type WebhookConfig interface {
	GetWebhookSecret() string
	GetWebhookRatePerMinute() int
	GetCRMLocationID() string
}

// ContactConfig provides the address defaults stamped on intake contacts.
type ContactConfig interface {
	GetContactDefaultCity() string
	GetContactDefaultState() string
	GetContactDefaultCountry() string
}

// BusinessHoursConfig provides the schedule used for slots and bookings.
type BusinessHoursConfig interface {
	GetBusinessHours() BusinessHours
}

// Config holds all application configuration.
type Config struct {
	Env      string
	HTTPAddr string

	CORSAllowAll   bool
	CORSOrigins    []string
	CORSAllowCreds bool

	CRMBaseURL            string
	CRMAPIKey             string
	CRMLocationID         string
	CRMAPIVersion         string
	CRMTimeout            time.Duration
	CRMRequestsPerSecond  float64
	CRMCancelStrategy     string
	CRMRecentContactLimit int

	VoiceBaseURL       string
	VoiceAPIKey        string
	VoiceAssistantID   string
	VoicePhoneNumberID string
	VoiceTimeout       time.Duration

	MessagingChannel string
	TwilioBaseURL    string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	WhatsAppURL      string
	WhatsAppKey      string
	WhatsAppDeviceID string

	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int

	FallbackDelay         time.Duration
	FallbackRecencyWindow time.Duration
	DedupTTL              time.Duration
	LockTTL               time.Duration
	BusinessName          string

	WebhookSecret        string
	WebhookRatePerMinute int

	ContactDefaultCity    string
	ContactDefaultState   string
	ContactDefaultCountry string

	BusinessHours BusinessHours
}

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// CRMConfig implementation
func (c *Config) GetCRMBaseURL() string            { return c.CRMBaseURL }
func (c *Config) GetCRMAPIKey() string             { return c.CRMAPIKey }
func (c *Config) GetCRMLocationID() string         { return c.CRMLocationID }
func (c *Config) GetCRMAPIVersion() string         { return c.CRMAPIVersion }
func (c *Config) GetCRMTimeout() time.Duration     { return c.CRMTimeout }
func (c *Config) GetCRMRequestsPerSecond() float64 { return c.CRMRequestsPerSecond }
func (c *Config) GetCRMCancelStrategy() string     { return c.CRMCancelStrategy }
func (c *Config) GetCRMRecentContactLimit() int    { return c.CRMRecentContactLimit }

// VoiceConfig implementation
func (c *Config) GetVoiceBaseURL() string        { return c.VoiceBaseURL }
func (c *Config) GetVoiceAPIKey() string         { return c.VoiceAPIKey }
func (c *Config) GetVoiceAssistantID() string    { return c.VoiceAssistantID }
func (c *Config) GetVoicePhoneNumberID() string  { return c.VoicePhoneNumberID }
func (c *Config) GetVoiceTimeout() time.Duration { return c.VoiceTimeout }

// MessagingConfig implementation
func (c *Config) GetMessagingChannel() string { return c.MessagingChannel }
func (c *Config) GetTwilioBaseURL() string    { return c.TwilioBaseURL }
func (c *Config) GetTwilioAccountSID() string { return c.TwilioAccountSID }
func (c *Config) GetTwilioAuthToken() string  { return c.TwilioAuthToken }
func (c *Config) GetTwilioFromNumber() string { return c.TwilioFromNumber }
func (c *Config) GetWhatsAppURL() string      { return c.WhatsAppURL }
func (c *Config) GetWhatsAppKey() string      { return c.WhatsAppKey }
func (c *Config) GetWhatsAppDeviceID() string { return c.WhatsAppDeviceID }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// FallbackConfig implementation
func (c *Config) GetFallbackDelay() time.Duration         { return c.FallbackDelay }
func (c *Config) GetFallbackRecencyWindow() time.Duration { return c.FallbackRecencyWindow }
func (c *Config) GetDedupTTL() time.Duration              { return c.DedupTTL }
func (c *Config) GetLockTTL() time.Duration               { return c.LockTTL }
func (c *Config) GetBusinessName() string                 { return c.BusinessName }

// WebhookConfig implementation
func (c *Config) GetWebhookSecret() string     { return c.WebhookSecret }
func (c *Config) GetWebhookRatePerMinute() int { return c.WebhookRatePerMinute }

// ContactConfig implementation
func (c *Config) GetContactDefaultCity() string    { return c.ContactDefaultCity }
func (c *Config) GetContactDefaultState() string   { return c.ContactDefaultState }
func (c *Config) GetContactDefaultCountry() string { return c.ContactDefaultCountry }

// BusinessHoursConfig implementation
func (c *Config) GetBusinessHours() BusinessHours { return c.BusinessHours }

// Load reads the environment (and an optional .env file) into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                   getEnv("APP_ENV", "development"),
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		CORSAllowAll:          corsAllowAll,
		CORSOrigins:           corsOrigins,
		CORSAllowCreds:        strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "false"), "true"),
		CRMBaseURL:            strings.TrimRight(getEnv("CRM_BASE_URL", "https://services.leadconnectorhq.com"), "/"),
		CRMAPIKey:             getEnv("CRM_API_KEY", ""),
		CRMLocationID:         getEnv("CRM_LOCATION_ID", ""),
		CRMAPIVersion:         getEnv("CRM_API_VERSION", "2021-07-28"),
		CRMTimeout:            mustDuration(getEnv("CRM_TIMEOUT", "30s")),
		CRMRequestsPerSecond:  mustFloat(getEnv("CRM_REQUESTS_PER_SECOND", "8")),
		CRMCancelStrategy:     strings.ToLower(getEnv("CRM_CANCEL_STRATEGY", "status")),
		CRMRecentContactLimit: mustInt(getEnv("CRM_RECENT_CONTACT_LIMIT", "100")),
		VoiceBaseURL:          strings.TrimRight(getEnv("VOICE_BASE_URL", "https://api.vapi.ai"), "/"),
		VoiceAPIKey:           getEnv("VOICE_API_KEY", ""),
		VoiceAssistantID:      getEnv("VOICE_ASSISTANT_ID", ""),
		VoicePhoneNumberID:    getEnv("VOICE_PHONE_NUMBER_ID", ""),
		VoiceTimeout:          mustDuration(getEnv("VOICE_TIMEOUT", "30s")),
		MessagingChannel:      strings.ToLower(getEnv("MESSAGING_CHANNEL", "sms")),
		TwilioBaseURL:         strings.TrimRight(getEnv("TWILIO_BASE_URL", "https://api.twilio.com"), "/"),
		TwilioAccountSID:      getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:       getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:      getEnv("TWILIO_FROM_NUMBER", ""),
		WhatsAppURL:           getEnv("WHATSAPP_URL", ""),
		WhatsAppKey:           getEnv("WHATSAPP_KEY", ""),
		WhatsAppDeviceID:      getEnv("WHATSAPP_DEVICE_ID", ""),
		RedisURL:              getEnv("REDIS_URL", ""),
		RedisTLSInsecure:      strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:        getEnv("ASYNQ_QUEUE", "fallback"),
		AsynqConcurrency:      mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		FallbackDelay:         mustDuration(getEnv("FALLBACK_DELAY", "45s")),
		FallbackRecencyWindow: mustDuration(getEnv("FALLBACK_RECENCY_WINDOW", "10m")),
		DedupTTL:              mustDuration(getEnv("DEDUP_TTL", "24h")),
		LockTTL:               mustDuration(getEnv("LOCK_TTL", "2m")),
		BusinessName:          getEnv("BUSINESS_NAME", "Valley View HVAC"),
		WebhookSecret:         getEnv("WEBHOOK_SECRET", ""),
		WebhookRatePerMinute:  mustInt(getEnv("WEBHOOK_RATE_PER_MINUTE", "600")),
		ContactDefaultCity:    getEnv("CONTACT_DEFAULT_CITY", "Salem"),
		ContactDefaultState:   getEnv("CONTACT_DEFAULT_STATE", "OR"),
		ContactDefaultCountry: getEnv("CONTACT_DEFAULT_COUNTRY", "United States"),
	}

	hours, err := LoadBusinessHours(getEnv("BUSINESS_HOURS_FILE", ""))
	if err != nil {
		return nil, err
	}
	cfg.BusinessHours = hours

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.CRMAPIKey == "" || c.CRMLocationID == "" {
		return fmt.Errorf("CRM_API_KEY and CRM_LOCATION_ID are required")
	}
	if c.VoiceAPIKey == "" || c.VoiceAssistantID == "" || c.VoicePhoneNumberID == "" {
		return fmt.Errorf("VOICE_API_KEY, VOICE_ASSISTANT_ID and VOICE_PHONE_NUMBER_ID are required")
	}
	switch c.MessagingChannel {
	case "sms":
		if c.TwilioAccountSID == "" || c.TwilioAuthToken == "" || c.TwilioFromNumber == "" {
			return fmt.Errorf("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER are required when MESSAGING_CHANNEL is sms")
		}
	case "whatsapp":
		if c.WhatsAppURL == "" {
			return fmt.Errorf("WHATSAPP_URL is required when MESSAGING_CHANNEL is whatsapp")
		}
	default:
		return fmt.Errorf("MESSAGING_CHANNEL must be sms or whatsapp, got %q", c.MessagingChannel)
	}
	switch c.CRMCancelStrategy {
	case "status", "delete", "note":
	default:
		return fmt.Errorf("CRM_CANCEL_STRATEGY must be status, delete or note, got %q", c.CRMCancelStrategy)
	}
	if c.FallbackDelay <= 0 {
		return fmt.Errorf("FALLBACK_DELAY must be a positive duration")
	}
	if c.FallbackRecencyWindow <= 0 {
		return fmt.Errorf("FALLBACK_RECENCY_WINDOW must be a positive duration")
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be a positive duration")
	}
	if c.CRMTimeout <= 0 || c.VoiceTimeout <= 0 {
		return fmt.Errorf("CRM_TIMEOUT and VOICE_TIMEOUT must be positive durations")
	}
	if c.CORSAllowAll && c.CORSAllowCreds {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
