// Package voice is the client for the outbound voice-call vendor.
package voice

import (
	"bytes"
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

const vendorName = "voice"

// Call is the vendor's view of a call.
type Call struct {
	ID          string
	Status      string
	EndedReason string
	Duration    time.Duration
}

// Customer identifies the person being called.
type Customer struct {
	Number string `json:"number"`
	Name   string `json:"name,omitempty"`
}

// Client creates and inspects outbound calls.
type Client struct {
	baseURL       string
	apiKey        string
	assistantID   string
	phoneNumberID string
	http          *http.Client
	log           *logger.Logger
}

type createCallRequest struct {
	AssistantID   string   `json:"assistantId"`
	PhoneNumberID string   `json:"phoneNumberId"`
	Customer      Customer `json:"customer"`
}

type callResponse struct {
	ID          string   `json:"id"`
	Status      string   `json:"status"`
	EndedReason string   `json:"endedReason"`
	Duration    *float64 `json:"duration"`
	StartedAt   string   `json:"startedAt"`
	EndedAt     string   `json:"endedAt"`
}

// NewClient builds a Client from configuration.
func NewClient(cfg config.VoiceConfig, log *logger.Logger) *Client {
	return &Client{
		baseURL:       strings.TrimRight(cfg.GetVoiceBaseURL(), "/"),
		apiKey:        cfg.GetVoiceAPIKey(),
		assistantID:   cfg.GetVoiceAssistantID(),
		phoneNumberID: cfg.GetVoicePhoneNumberID(),
		http:          &http.Client{Timeout: cfg.GetVoiceTimeout()},
		log:           log,
	}
}

// CreateCall dials customer using the configured assistant and originating
// number, returning the vendor call id.
func (c *Client) CreateCall(ctx context.Context, customer Customer) (string, error) {
	customer.Number = phone.NormalizeE164(customer.Number)
	if customer.Number == "" {
		return "", apperr.Validation("destination number is required")
	}

	var resp callResponse
	req := createCallRequest{AssistantID: c.assistantID, PhoneNumberID: c.phoneNumberID, Customer: customer}
	if err := c.do(ctx, http.MethodPost, "call", req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", apperr.Unavailable("voice vendor returned no call id", nil).WithOp("voice.CreateCall")
	}
	return resp.ID, nil
}

// GetCall fetches a call's current status, end reason and duration.
func (c *Client) GetCall(ctx context.Context, callID string) (Call, error) {
	var resp callResponse
	if err := c.do(ctx, http.MethodGet, "call/"+url.PathEscape(callID), nil, &resp); err != nil {
		return Call{}, err
	}
	return Call{
		ID:          resp.ID,
		Status:      strings.ToLower(strings.TrimSpace(resp.Status)),
		EndedReason: strings.ToLower(strings.TrimSpace(resp.EndedReason)),
		Duration:    resp.duration(),
	}, nil
}

// duration prefers the reported duration and falls back to the span
// between start and end timestamps.
func (r callResponse) duration() time.Duration {
	if r.Duration != nil {
		return time.Duration(*r.Duration * float64(time.Second))
	}
	started, err1 := time.Parse(time.RFC3339Nano, r.StartedAt)
	ended, err2 := time.Parse(time.RFC3339Nano, r.EndedAt)
	if err1 != nil || err2 != nil || ended.Before(started) {
		return 0
	}
	return ended.Sub(started)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	op := "voice " + method + " " + path

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal voice payload: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.VendorRequests.WithLabelValues(vendorName, "transport_error").Inc()
		return apperr.Unavailable("voice request failed", err).WithOp(op)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		metrics.VendorRequests.WithLabelValues(vendorName, http.StatusText(resp.StatusCode)).Inc()
		return apperr.FromStatus(resp.StatusCode, fmt.Sprintf("voice vendor returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))).WithOp(op)
	}
	metrics.VendorRequests.WithLabelValues(vendorName, "ok").Inc()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Unavailable("decode voice response", err).WithOp(op)
	}
	return nil
}
