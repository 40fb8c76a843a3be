package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sundayezeilo/shorturl/internal/config"
	"github.com/sundayezeilo/shorturl/internal/errx"
	"github.com/sundayezeilo/shorturl/internal/shortener"
)

/*** Mocks ***/

type stubService struct{}

func (stubService) Shorten(_ context.Context, req shortener.ShortenRequest) (shortener.ShortenResult, error) {
	return shortener.ShortenResult{Link: shortener.Link{
		OriginalURL: req.URL,
		ShortCode:   "abc123",
		CreatedAt:   time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC),
	}}, nil
}

func (stubService) ResolveForRedirect(_ context.Context, code string) (string, error) {
	if code == "abc123" {
		return "https://example.com", nil
	}
	return "", errx.E("stub", errx.NotFound, errors.New("no link"))
}

func (stubService) Analytics(_ context.Context, code string) (shortener.Analytics, error) {
	return shortener.Analytics{Link: shortener.Link{ShortCode: code}}, nil
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type denyAll struct{ calls int }

func (d *denyAll) Allow(context.Context, string) (bool, error) {
	d.calls++
	return false, nil
}

func (d *denyAll) RetryAfter() time.Duration { return time.Minute }

type keyRecorder struct{ keys []string }

func (k *keyRecorder) Allow(_ context.Context, key string) (bool, error) {
	k.keys = append(k.keys, key)
	return true, nil
}

func (k *keyRecorder) RetryAfter() time.Duration { return time.Minute }

/*** Helpers ***/

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:               "127.0.0.1",
			Port:               "0",
			BaseURL:            "http://sho.rt",
			ShutdownTimeout:    time.Second,
			CORSAllowedOrigins: []string{"http://localhost:3000"},
		},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
		App:     config.AppConfig{Environment: "test"},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, opts Options) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts.Handler = shortener.NewHandler(shortener.HandlerConfig{
		Service: stubService{},
		Logger:  logger,
		BaseURL: cfg.Server.BaseURL,
	})
	return New(cfg, logger, opts).Handler()
}

func serve(h http.Handler, method, path string, body io.Reader, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

/*** Tests ***/

func TestRoutes(t *testing.T) {
	h := newTestServer(t, testConfig(), Options{})

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"shorten", http.MethodPost, "/api/shorten", `{"url":"https://example.com"}`, http.StatusCreated},
		{"redirect", http.MethodGet, "/abc123", "", http.StatusFound},
		{"redirect unknown code", http.MethodGet, "/zzz999", "", http.StatusNotFound},
		{"analytics", http.MethodGet, "/api/analytics/abc123", "", http.StatusOK},
		{"unknown api route", http.MethodGet, "/api/unknown/path", "", http.StatusNotFound},
		{"nested path", http.MethodGet, "/a/b", "", http.StatusNotFound},
		{"shorten with wrong method", http.MethodPut, "/api/shorten", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, tt.method, tt.path, strings.NewReader(tt.body), nil)
			if rec.Code != tt.wantStatus {
				t.Errorf("%s %s status = %d, want %d", tt.method, tt.path, rec.Code, tt.wantStatus)
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Error("X-Request-ID header not set")
			}
			if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
				t.Error("secure headers not applied")
			}
		})
	}
}

func TestNotFoundEnvelope(t *testing.T) {
	h := newTestServer(t, testConfig(), Options{})

	rec := serve(h, http.MethodGet, "/api/nothing/here", nil, nil)

	var body struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		Code    string `json:"code"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Success || body.Error != "Route not found" || body.Code != "not_found" {
		t.Errorf("body = %+v, want route not found envelope", body)
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name        string
		store       pingerFunc
		wantStatus  int
		wantSuccess bool
		wantMessage string
	}{
		{
			name:        "no store",
			wantStatus:  http.StatusOK,
			wantSuccess: true,
			wantMessage: "Server is running",
		},
		{
			name:        "store healthy",
			store:       func(context.Context) error { return nil },
			wantStatus:  http.StatusOK,
			wantSuccess: true,
			wantMessage: "Server is running",
		},
		{
			name:        "store down",
			store:       func(context.Context) error { return errors.New("connection refused") },
			wantStatus:  http.StatusServiceUnavailable,
			wantSuccess: false,
			wantMessage: "Storage unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Options{}
			if tt.store != nil {
				opts.Store = tt.store
			}
			h := newTestServer(t, testConfig(), opts)

			rec := serve(h, http.MethodGet, "/health", nil, nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var body healthResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body.Success != tt.wantSuccess || body.Message != tt.wantMessage {
				t.Errorf("body = %+v, want success=%v message=%q", body, tt.wantSuccess, tt.wantMessage)
			}
			if body.Timestamp.IsZero() {
				t.Error("timestamp not set")
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Run("served when enabled", func(t *testing.T) {
		reg := prometheus.NewPedanticRegistry()
		h := newTestServer(t, testConfig(), Options{Gatherer: reg, Registerer: reg})

		serve(h, http.MethodGet, "/abc123", nil, nil)
		rec := serve(h, http.MethodGet, "/metrics", nil, nil)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		if !strings.Contains(rec.Body.String(), `http_requests_total{code="302",method="GET",route="GET /{code}"} 1`) {
			t.Errorf("metrics output missing redirect request count:\n%s", rec.Body)
		}
	})

	t.Run("falls through to redirect when disabled", func(t *testing.T) {
		cfg := testConfig()
		cfg.Metrics.Enabled = false
		reg := prometheus.NewPedanticRegistry()
		h := newTestServer(t, cfg, Options{Gatherer: reg, Registerer: reg})

		rec := serve(h, http.MethodGet, "/metrics", nil, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
	})
}

func TestRateLimitAppliesToAPIOnly(t *testing.T) {
	limiter := &denyAll{}
	h := newTestServer(t, testConfig(), Options{Limiter: limiter})

	rec := serve(h, http.MethodPost, "/api/shorten", strings.NewReader(`{"url":"https://example.com"}`), nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("shorten status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q, want 60", rec.Header().Get("Retry-After"))
	}

	rec = serve(h, http.MethodGet, "/api/analytics/abc123", nil, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("analytics status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}

	rec = serve(h, http.MethodGet, "/abc123", nil, nil)
	if rec.Code != http.StatusFound {
		t.Errorf("redirect status = %d, want %d", rec.Code, http.StatusFound)
	}
	rec = serve(h, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", rec.Code, http.StatusOK)
	}

	if limiter.calls != 2 {
		t.Errorf("limiter calls = %d, want 2", limiter.calls)
	}
}

func TestRateLimitKey(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		want       string
	}{
		{name: "socket address by default", want: "192.0.2.1"},
		{name: "forwarded for behind a trusted proxy", trustProxy: true, want: "203.0.113.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.RateLimit.TrustProxy = tt.trustProxy
			limiter := &keyRecorder{}
			h := newTestServer(t, cfg, Options{Limiter: limiter})

			serve(h, http.MethodGet, "/api/analytics/abc123", nil, http.Header{"X-Forwarded-For": {"203.0.113.50"}})

			if len(limiter.keys) != 1 || limiter.keys[0] != tt.want {
				t.Errorf("limiter keys = %v, want [%s]", limiter.keys, tt.want)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	h := newTestServer(t, testConfig(), Options{})

	t.Run("allowed origin preflight", func(t *testing.T) {
		rec := serve(h, http.MethodOptions, "/api/shorten", nil, http.Header{"Origin": {"http://localhost:3000"}})
		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("Access-Control-Allow-Origin = %q, want http://localhost:3000", got)
		}
	})

	t.Run("disallowed origin", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/abc123", nil, http.Header{"Origin": {"https://evil.example"}})
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
		}
	})
}

func TestShutdown_NotStarted(t *testing.T) {
	srv := New(testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)), Options{
		Handler: shortener.NewHandler(shortener.HandlerConfig{Service: stubService{}}),
	})
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() unexpected error: %v", err)
	}
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	srv := New(testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)), Options{
		Handler: shortener.NewHandler(shortener.HandlerConfig{Service: stubService{}}),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancel")
	}
}
