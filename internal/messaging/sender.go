// Package messaging sends short text messages to customers over the
// configured channel.
package messaging

import (
	"context"
	"fmt"

	"voicelead_backend/platform/config"
	"voicelead_backend/platform/logger"
)

// Channels.
const (
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
)

// Sender delivers a text message to a phone number.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// NewSender returns the sender for the configured channel.
func NewSender(cfg config.MessagingConfig, log *logger.Logger) (Sender, error) {
	switch cfg.GetMessagingChannel() {
	case ChannelSMS, "":
		return NewTwilioClient(cfg, log), nil
	case ChannelWhatsApp:
		client := NewWhatsAppClient(cfg, log)
		if client == nil {
			return nil, fmt.Errorf("whatsapp channel selected but WHATSAPP_URL is empty")
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown messaging channel %q", cfg.GetMessagingChannel())
	}
}
