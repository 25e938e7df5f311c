// Package crm is the client for the external customer-record store: contacts,
// custom fields, calendars, appointments and timeline notes. Every request
// carries the configured timeout and passes through a client-side rate
// limiter; failures are returned as typed apperr errors.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
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

	"golang.org/x/time/rate"
)

const vendorName = "crm"

// Client talks to the customer-record store REST API.
type Client struct {
	baseURL    string
	apiKey     string
	locationID string
	version    string
	http       *http.Client
	limiter    *rate.Limiter
	log        *logger.Logger
	fields     *fieldRegistry
}

// NewClient builds a Client from configuration.
func NewClient(cfg config.CRMConfig, log *logger.Logger) *Client {
	limit := rate.Inf
	burst := 0
	if rps := cfg.GetCRMRequestsPerSecond(); rps > 0 {
		limit = rate.Limit(rps)
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.GetCRMBaseURL(), "/"),
		apiKey:     cfg.GetCRMAPIKey(),
		locationID: cfg.GetCRMLocationID(),
		version:    cfg.GetCRMAPIVersion(),
		http:       &http.Client{Timeout: cfg.GetCRMTimeout()},
		limiter:    rate.NewLimiter(limit, burst),
		log:        log,
	}
	c.fields = newFieldRegistry(c)
	return c
}

// LocationID returns the location the client is scoped to.
func (c *Client) LocationID() string {
	return c.locationID
}

// do sends a request and decodes a JSON response into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}, out interface{}) error {
	op := method + " " + path

	if err := c.limiter.Wait(ctx); err != nil {
		return apperr.Unavailable("crm rate limiter", err).WithOp(op)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Version", c.version)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.VendorRequests.WithLabelValues(vendorName, "transport_error").Inc()
		return apperr.Unavailable("crm request failed", err).WithOp(op)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		metrics.VendorRequests.WithLabelValues(vendorName, http.StatusText(resp.StatusCode)).Inc()
		c.log.Debug("crm request rejected", "op", op, "status", resp.StatusCode, "latency_ms", time.Since(start).Milliseconds())
		return apperr.FromStatus(resp.StatusCode, fmt.Sprintf("crm returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))).WithOp(op)
	}
	metrics.VendorRequests.WithLabelValues(vendorName, "ok").Inc()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Unavailable("decode crm response", err).WithOp(op)
	}
	return nil
}

func (c *Client) locationQuery() url.Values {
	return url.Values{"locationId": []string{c.locationID}}
}
