package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apphttp "voicelead_backend/internal/http"
	"voicelead_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type httpConfig struct {
	origins []string
}

func (c httpConfig) GetHTTPAddr() string      { return ":0" }
func (c httpConfig) GetCORSAllowAll() bool    { return false }
func (c httpConfig) GetCORSOrigins() []string { return c.origins }
func (c httpConfig) GetCORSAllowCreds() bool  { return false }

type failingHealth struct{}

func (failingHealth) Ping(context.Context) error { return errors.New("redis down") }

func serve(t *testing.T, app *apphttp.App, method, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	engine := New(app)
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReadiness(t *testing.T) {
	app := &apphttp.App{Config: httpConfig{origins: []string{"http://localhost:3000"}}, Logger: logger.Discard()}

	if rec := serve(t, app, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if rec := serve(t, app, http.MethodGet, "/readyz", nil); rec.Code != http.StatusOK {
		t.Fatalf("readyz without health checker = %d", rec.Code)
	}

	app.Health = failingHealth{}
	if rec := serve(t, app, http.MethodGet, "/readyz", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with failing redis = %d, want 503", rec.Code)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	app := &apphttp.App{Config: httpConfig{}, Logger: logger.Discard()}
	rec := serve(t, app, http.MethodGet, "/healthz", http.Header{"X-Request-Id": {"req-42"}})
	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Fatalf("request id = %q, want req-42", got)
	}
}

func TestCORSAllowedOrigin(t *testing.T) {
	app := &apphttp.App{Config: httpConfig{origins: []string{"http://localhost:3000"}}, Logger: logger.Discard()}
	rec := serve(t, app, http.MethodGet, "/healthz", http.Header{"Origin": {"http://localhost:3000"}})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("allow origin = %q", got)
	}
}
