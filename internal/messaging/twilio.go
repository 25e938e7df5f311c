package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voicelead_backend/platform/apperr"
	"voicelead_backend/platform/config"
	"voicelead_backend/platform/logger"
	"voicelead_backend/platform/metrics"
	"voicelead_backend/platform/phone"
)

const twilioVendor = "twilio"

// TwilioClient sends SMS through the Twilio Messages REST resource.
type TwilioClient struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	http       *http.Client
	log        *logger.Logger
}

type twilioMessage struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func NewTwilioClient(cfg config.MessagingConfig, log *logger.Logger) *TwilioClient {
	return &TwilioClient{
		baseURL:    strings.TrimRight(cfg.GetTwilioBaseURL(), "/"),
		accountSID: cfg.GetTwilioAccountSID(),
		authToken:  cfg.GetTwilioAuthToken(),
		from:       cfg.GetTwilioFromNumber(),
		http:       &http.Client{Timeout: 15 * time.Second},
		log:        log,
	}
}

// Send posts one message. The destination is normalized to E.164 first.
func (c *TwilioClient) Send(ctx context.Context, to, body string) error {
	normalized := phone.NormalizeE164(to)
	if normalized == "" {
		return apperr.Validation("destination number is required")
	}
	if c.from == "" {
		return apperr.Internal("sms sender number is not configured")
	}

	form := url.Values{}
	form.Set("From", c.from)
	form.Set("To", normalized)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, url.PathEscape(c.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.VendorRequests.WithLabelValues(twilioVendor, "transport_error").Inc()
		return apperr.Unavailable("sms request failed", err).WithOp("twilio.Send")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var msg twilioMessage
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	_ = json.Unmarshal(data, &msg)

	if resp.StatusCode >= http.StatusBadRequest {
		metrics.VendorRequests.WithLabelValues(twilioVendor, http.StatusText(resp.StatusCode)).Inc()
		detail := msg.Message
		if detail == "" {
			detail = strings.TrimSpace(string(data))
		}
		return apperr.FromStatus(resp.StatusCode, fmt.Sprintf("sms vendor returned %d: %s", resp.StatusCode, detail)).WithOp("twilio.Send")
	}
	metrics.VendorRequests.WithLabelValues(twilioVendor, "ok").Inc()

	c.log.Info("sms sent", "phone", normalized, "sid", msg.SID, "status", msg.Status)
	return nil
}
