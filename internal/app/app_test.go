package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sundayezeilo/shorturl/internal/config"
)

func testConfig(driver string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:            "0",
			Host:            "127.0.0.1",
			BaseURL:         "http://sho.rt",
			ReadTimeout:     time.Second,
			WriteTimeout:    time.Second,
			IdleTimeout:     time.Second,
			ShutdownTimeout: time.Second,
		},
		Database: config.DatabaseConfig{
			Driver:      driver,
			AutoMigrate: true,
			SQLitePath:  ":memory:",
		},
		Shortener: config.ShortenerConfig{
			CodeLength:  6,
			MaxAttempts: 10,
		},
		Metrics: config.MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		App: config.AppConfig{
			Environment: "test",
			LogLevel:    "error",
			LogFormat:   "json",
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type envelope struct {
	Success bool `json:"success"`
	Data    struct {
		ShortCode string `json:"shortCode"`
		ShortURL  string `json:"shortUrl"`
		Clicks    int64  `json:"clicks"`
	} `json:"data"`
	Error string `json:"error"`
}

func TestBuild_ServesShortenRedirectAnalytics(t *testing.T) {
	for _, driver := range []string{config.DriverMemory, config.DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			a, err := Build(context.Background(), testConfig(driver), discardLogger())
			if err != nil {
				t.Fatalf("Build() unexpected error: %v", err)
			}
			t.Cleanup(func() {
				if err := a.Shutdown(); err != nil {
					t.Errorf("Shutdown() unexpected error: %v", err)
				}
			})
			h := a.Server.Handler()

			do := func(method, path, body string) *httptest.ResponseRecorder {
				t.Helper()
				req := httptest.NewRequest(method, path, strings.NewReader(body))
				if body != "" {
					req.Header.Set("Content-Type", "application/json")
				}
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, req)
				return rec
			}
			decode := func(rec *httptest.ResponseRecorder) envelope {
				t.Helper()
				var env envelope
				if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
					t.Fatalf("failed to decode body: %v", err)
				}
				return env
			}

			rec := do(http.MethodPost, "/api/shorten", `{"url":"https://example.com/page"}`)
			if rec.Code != http.StatusCreated {
				t.Fatalf("shorten status = %d, want %d, body %s", rec.Code, http.StatusCreated, rec.Body)
			}
			created := decode(rec)
			code := created.Data.ShortCode
			if created.Data.ShortURL != "http://sho.rt/"+code {
				t.Errorf("shortUrl = %q, want http://sho.rt/%s", created.Data.ShortURL, code)
			}

			rec = do(http.MethodPost, "/api/shorten", `{"url":"https://example.com/page/"}`)
			if rec.Code != http.StatusOK {
				t.Fatalf("reshorten status = %d, want %d", rec.Code, http.StatusOK)
			}
			if got := decode(rec).Data.ShortCode; got != code {
				t.Errorf("reused code = %q, want %q", got, code)
			}

			rec = do(http.MethodGet, "/"+code, "")
			if rec.Code != http.StatusFound {
				t.Fatalf("redirect status = %d, want %d", rec.Code, http.StatusFound)
			}
			if loc := rec.Header().Get("Location"); loc != "https://example.com/page" {
				t.Errorf("Location = %q, want https://example.com/page", loc)
			}

			rec = do(http.MethodGet, "/api/analytics/"+code, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("analytics status = %d, want %d", rec.Code, http.StatusOK)
			}
			if got := decode(rec).Data.Clicks; got != 1 {
				t.Errorf("clicks = %d, want 1", got)
			}

			rec = do(http.MethodGet, "/nope12", "")
			if rec.Code != http.StatusNotFound {
				t.Errorf("unknown code status = %d, want %d", rec.Code, http.StatusNotFound)
			}

			rec = do(http.MethodGet, "/metrics", "")
			if rec.Code != http.StatusOK {
				t.Fatalf("metrics status = %d, want %d", rec.Code, http.StatusOK)
			}
			if !strings.Contains(rec.Body.String(), "shortener_shorten_total") {
				t.Error("metrics output missing shortener_shorten_total")
			}
		})
	}
}

func TestBuild_RejectsRouteNamesAsCustomCodes(t *testing.T) {
	cfg := testConfig(config.DriverMemory)
	cfg.Metrics.Path = "/internal/metrics"
	a, err := Build(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown() })
	h := a.Server.Handler()

	for _, code := range []string{"health", "api", "metrics", "internal"} {
		req := httptest.NewRequest(http.MethodPost, "/api/shorten",
			strings.NewReader(`{"url":"https://example.com","customCode":"`+code+`"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusConflict {
			t.Errorf("customCode %q status = %d, want %d", code, rec.Code, http.StatusConflict)
		}
	}
}

func TestReservedCodes(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"/metrics", []string{"metrics"}},
		{"/internal/metrics", []string{"internal"}},
		{"/", nil},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := reservedCodes(tt.path)
			if len(got) != len(tt.want) || (len(got) == 1 && got[0] != tt.want[0]) {
				t.Errorf("reservedCodes(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestBuild_UnsupportedDriver(t *testing.T) {
	if _, err := Build(context.Background(), testConfig("mongodb"), discardLogger()); err == nil {
		t.Error("Build() expected error for unsupported driver")
	}
}

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		format    string
		wantDebug bool
		wantJSON  bool
	}{
		{"json info", "info", "json", false, true},
		{"json debug", "debug", "json", true, true},
		{"text warn", "warn", "text", false, false},
		{"unknown level falls back to info", "verbose", "json", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := setupLogger(&buf, tt.level, tt.format)

			logger.Debug("debug line")
			logger.Error("error line")

			out := buf.String()
			if got := strings.Contains(out, "debug line"); got != tt.wantDebug {
				t.Errorf("debug emitted = %v, want %v", got, tt.wantDebug)
			}
			if got := strings.HasPrefix(out, "{"); got != tt.wantJSON {
				t.Errorf("json output = %v, want %v (%q)", got, tt.wantJSON, out)
			}
		})
	}
}
