package messaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voicelead_backend/platform/apperr"
	"voicelead_backend/platform/config"
	"voicelead_backend/platform/logger"
	"voicelead_backend/platform/metrics"
	"voicelead_backend/platform/phone"
)

const whatsappVendor = "whatsapp"

// WhatsAppClient sends messages through a self-hosted WhatsApp gateway.
type WhatsAppClient struct {
	baseURL  string
	apiKey   string
	deviceID string
	http     *http.Client
	log      *logger.Logger
}

type gatewayRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// NewWhatsAppClient returns nil when no gateway URL is configured.
func NewWhatsAppClient(cfg config.WhatsAppConfig, log *logger.Logger) *WhatsAppClient {
	if cfg.GetWhatsAppURL() == "" {
		return nil
	}

	return &WhatsAppClient{
		baseURL:  strings.TrimRight(cfg.GetWhatsAppURL(), "/"),
		apiKey:   cfg.GetWhatsAppKey(),
		deviceID: cfg.GetWhatsAppDeviceID(),
		http:     &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

func (c *WhatsAppClient) Send(ctx context.Context, to, body string) error {
	normalized := strings.TrimPrefix(phone.NormalizeE164(to), "+")
	if normalized == "" {
		return apperr.Validation("destination number is required")
	}

	payload, err := json.Marshal(gatewayRequest{Phone: normalized, Message: body})
	if err != nil {
		return fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send/message", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", basicAuthHeader(c.apiKey))
	}
	if c.deviceID != "" {
		req.Header.Set("X-Device-Id", c.deviceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.VendorRequests.WithLabelValues(whatsappVendor, "transport_error").Inc()
		return apperr.Unavailable("whatsapp request failed", err).WithOp("whatsapp.Send")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		metrics.VendorRequests.WithLabelValues(whatsappVendor, http.StatusText(resp.StatusCode)).Inc()
		return apperr.FromStatus(resp.StatusCode, fmt.Sprintf("whatsapp gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))).WithOp("whatsapp.Send")
	}
	metrics.VendorRequests.WithLabelValues(whatsappVendor, "ok").Inc()

	c.log.Info("whatsapp sent", "phone", normalized)
	return nil
}

// basicAuthHeader accepts either a ready "Basic ..." value or raw
// "user:pass" credentials.
func basicAuthHeader(apiKey string) string {
	if strings.HasPrefix(strings.ToLower(apiKey), "basic ") {
		return apiKey
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(apiKey))
}
