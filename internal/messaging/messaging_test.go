package messaging

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"voicelead_backend/platform/apperr"
	"voicelead_backend/platform/logger"
)

type testConfig struct {
	channel string
	baseURL string
	waURL   string
}

func (c testConfig) GetMessagingChannel() string { return c.channel }
func (c testConfig) GetTwilioBaseURL() string    { return c.baseURL }
func (c testConfig) GetTwilioAccountSID() string { return "AC123" }
func (c testConfig) GetTwilioAuthToken() string  { return "token" }
func (c testConfig) GetTwilioFromNumber() string { return "+15035550100" }
func (c testConfig) GetWhatsAppURL() string      { return c.waURL }
func (c testConfig) GetWhatsAppKey() string      { return "user:pass" }
func (c testConfig) GetWhatsAppDeviceID() string { return "dev-1" }

func TestTwilioSendPostsForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC123/Messages.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "token" {
			t.Errorf("missing basic auth")
		}
		_ = r.ParseForm()
		if r.PostForm.Get("To") != "+16502530000" || r.PostForm.Get("From") != "+15035550100" || r.PostForm.Get("Body") != "hello" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"sid":"SM1","status":"queued"}`)
	}))
	defer srv.Close()

	sender, err := NewSender(testConfig{channel: ChannelSMS, baseURL: srv.URL}, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if err := sender.Send(context.Background(), "650-253-0000", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTwilioErrorKinds(t *testing.T) {
	tests := []struct {
		status int
		want   apperr.Kind
	}{
		{http.StatusBadRequest, apperr.KindBadRequest},
		{http.StatusServiceUnavailable, apperr.KindUnavailable},
		{http.StatusTooManyRequests, apperr.KindUnavailable},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = io.WriteString(w, `{"code":21211,"message":"bad number"}`)
		}))
		client := NewTwilioClient(testConfig{baseURL: srv.URL}, logger.Discard())
		err := client.Send(context.Background(), "+16502530000", "x")
		srv.Close()
		if !apperr.Is(err, tt.want) {
			t.Fatalf("status %d: expected %s, got %v", tt.status, tt.want, err)
		}
	}
}

func TestWhatsAppSendStripsPlus(t *testing.T) {
	var got gatewayRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Device-Id") != "dev-1" || r.Header.Get("Authorization") != "Basic dXNlcjpwYXNz" {
			t.Errorf("unexpected headers %v", r.Header)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	sender, err := NewSender(testConfig{channel: ChannelWhatsApp, waURL: srv.URL}, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if err := sender.Send(context.Background(), "+16502530000", "hi"); err != nil {
		t.Fatal(err)
	}
	if got.Phone != "16502530000" || got.Message != "hi" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestNewSenderRejectsUnknownChannel(t *testing.T) {
	if _, err := NewSender(testConfig{channel: "pigeon"}, logger.Discard()); err == nil {
		t.Fatal("expected error")
	}
	if _, err := NewSender(testConfig{channel: ChannelWhatsApp}, logger.Discard()); err == nil {
		t.Fatal("expected error for missing gateway url")
	}
}
