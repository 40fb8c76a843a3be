package shortener

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sundayezeilo/shorturl/internal/errx"
	"github.com/sundayezeilo/shorturl/internal/httpx"
)

// LinkService is what the HTTP handler needs from the core.
type LinkService interface {
	Shorten(ctx context.Context, req ShortenRequest) (ShortenResult, error)
	ResolveForRedirect(ctx context.Context, code string) (string, error)
	Analytics(ctx context.Context, code string) (Analytics, error)
}

// HTTPShortenRequest represents the JSON request body for shortening a URL.
type HTTPShortenRequest struct {
	URL            string `json:"url"`
	CustomCode     string `json:"customCode,omitempty"`
	ExpirationDays *int   `json:"expirationDays,omitempty"`
}

// LinkResponse is the JSON representation of a link.
type LinkResponse struct {
	OriginalURL string     `json:"originalUrl"`
	ShortCode   string     `json:"shortCode"`
	ShortURL    string     `json:"shortUrl"`
	Clicks      int64      `json:"clicks"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt"`
}

// AnalyticsResponse is a LinkResponse with its expiry status.
type AnalyticsResponse struct {
	LinkResponse
	IsExpired bool `json:"isExpired"`
}

// Handler provides HTTP handlers for the URL shortener service.
type Handler struct {
	service LinkService
	logger  *slog.Logger
	baseURL string
}

// HandlerConfig holds configuration for the handler.
type HandlerConfig struct {
	Service LinkService
	Logger  *slog.Logger
	BaseURL string // Base URL for constructing short URLs (e.g., "https://short.ly")
}

// NewHandler creates a new Handler instance.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		service: cfg.Service,
		logger:  logger,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// Shorten handles POST /api/shorten.
func (h *Handler) Shorten(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	req, err := httpx.DecodeJSON[HTTPShortenRequest](r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "error", err.Error())
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		logger.WarnContext(ctx, "request validation failed", "error", "url is required")
		httpx.WriteError(w, http.StatusBadRequest, "invalid_input", "URL is required", nil)
		return
	}

	res, err := h.service.Shorten(ctx, ShortenRequest{
		URL:            req.URL,
		CustomCode:     req.CustomCode,
		ExpirationDays: req.ExpirationDays,
	})
	if err != nil {
		h.writeError(ctx, logger, w, err, shortenMessages)
		return
	}

	status, message := http.StatusCreated, "URL shortened successfully"
	if res.Reused {
		status, message = http.StatusOK, "URL already exists"
	}

	logger.InfoContext(ctx, "link shortened",
		"short_code", res.Link.ShortCode,
		"reused", res.Reused,
		"custom_code", req.CustomCode != "",
	)

	httpx.WriteSuccess(w, status, h.linkResponse(res.Link), message)
}

// Redirect handles GET /{code}. Every successful redirect counts one click.
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	code := r.PathValue("code")
	if code == "" {
		logger.WarnContext(ctx, "missing short code in path")
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Short code is required", nil)
		return
	}

	target, err := h.service.ResolveForRedirect(ctx, code)
	if err != nil {
		h.writeError(ctx, logger.With("short_code", code), w, err, redirectMessages)
		return
	}

	logger.InfoContext(ctx, "short code resolved",
		"short_code", code,
		"user_agent", r.UserAgent(),
		"referer", r.Referer(),
	)

	http.Redirect(w, r, target, http.StatusFound)
}

// Analytics handles GET /api/analytics/{code}. It never counts a click.
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	code := r.PathValue("code")
	if code == "" {
		logger.WarnContext(ctx, "missing short code in path")
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Short code is required", nil)
		return
	}

	a, err := h.service.Analytics(ctx, code)
	if err != nil {
		h.writeError(ctx, logger.With("short_code", code), w, err, analyticsMessages)
		return
	}

	httpx.WriteSuccess(w, http.StatusOK, AnalyticsResponse{
		LinkResponse: h.linkResponse(a.Link),
		IsExpired:    a.IsExpired,
	}, "")
}

func (h *Handler) requestLogger(r *http.Request) *slog.Logger {
	return h.logger.With(
		"request_id", httpx.GetRequestID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
	)
}

func (h *Handler) linkResponse(l Link) LinkResponse {
	return LinkResponse{
		OriginalURL: l.OriginalURL,
		ShortCode:   l.ShortCode,
		ShortURL:    fmt.Sprintf("%s/%s", h.baseURL, l.ShortCode),
		Clicks:      l.Clicks,
		CreatedAt:   l.CreatedAt,
		ExpiresAt:   l.ExpiresAt,
	}
}

// Client facing messages per error kind. Kinds missing from a table fall
// back to the server error message of that table.
type errorMessages struct {
	byKind      map[errx.Kind]string
	serverError string
}

var shortenMessages = errorMessages{
	byKind: map[errx.Kind]string{
		errx.Conflict:  "Custom code already in use. Please choose another",
		errx.Exhausted: "Failed to generate unique short code. Please try again",
	},
	serverError: "Server error while creating short URL",
}

var redirectMessages = errorMessages{
	byKind: map[errx.Kind]string{
		errx.NotFound: "URL not found",
		errx.Expired:  "This URL has expired",
	},
	serverError: "Server error while redirecting",
}

var analyticsMessages = errorMessages{
	byKind: map[errx.Kind]string{
		errx.NotFound: "URL not found",
	},
	serverError: "Server error while fetching analytics",
}

// writeError maps err to its status and envelope. Client errors are logged
// as warnings and server errors as errors.
func (h *Handler) writeError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, err error, msgs errorMessages) {
	kind := errx.KindOf(err)
	status := httpx.ErrorKindToStatus(kind)

	logAttrs := []any{
		"error", err.Error(),
		"error_kind", kind,
		"operation", errx.OpOf(err),
		"status", status,
	}

	message, ok := msgs.byKind[kind]
	if httpx.IsClientError(kind) {
		logger.WarnContext(ctx, "request rejected", logAttrs...)
		if !ok {
			// Validation messages are written for the caller already.
			message = innermost(err)
		}
	} else {
		logger.ErrorContext(ctx, "request failed", logAttrs...)
		if !ok {
			message = msgs.serverError
		}
	}

	httpx.WriteError(w, status, httpx.ErrorKindToCode(kind), message, nil)
}

// innermost returns the message of the error at the bottom of err's chain,
// without the op prefixes added on the way up.
func innermost(err error) string {
	for {
		e, ok := err.(*errx.Error)
		if !ok || e.Err == nil {
			return err.Error()
		}
		err = e.Err
	}
}
