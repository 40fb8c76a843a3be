package shortener

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sundayezeilo/shorturl/codegen"
	"github.com/sundayezeilo/shorturl/internal/errx"
)

// MaxExpirationDays bounds ExpirationDays so the expiry stays a valid timestamp.
const MaxExpirationDays = 36500

var ErrExpirationTooLong = fmt.Errorf("expiration days cannot exceed %d", MaxExpirationDays)

// ShortenRequest represents the parameters for shortening a URL.
type ShortenRequest struct {
	URL        string
	CustomCode string // Optional: if empty, a code is generated
	// ExpirationDays is optional: nil falls back to the configured default,
	// and zero or less means the link never expires.
	ExpirationDays *int
}

// ShortenResult is the link a shorten request produced or reused.
type ShortenResult struct {
	Link   Link
	Reused bool
}

// Analytics is a link plus its expiry status at read time.
type Analytics struct {
	Link      Link
	IsExpired bool
}

// ServiceConfig holds configuration for the service.
type ServiceConfig struct {
	DefaultExpirationDays int
	Logger                *slog.Logger
	Metrics               *Metrics
}

// Service is the inbound boundary of the shortener core.
type Service struct {
	allocator   *Allocator
	registry    *Registry
	defaultDays int
	logger      *slog.Logger
	metrics     *Metrics
}

// NewService creates a new service instance.
func NewService(allocator *Allocator, registry *Registry, cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}

	return &Service{
		allocator:   allocator,
		registry:    registry,
		defaultDays: cfg.DefaultExpirationDays,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
}

// Shorten returns a link for req.URL.
//
// Without a custom code an unexpired link for the same normalized URL is
// reused as is, whatever expiration was asked for. With a custom code the
// request is honoured verbatim or fails with errx.Conflict.
func (s *Service) Shorten(ctx context.Context, req ShortenRequest) (ShortenResult, error) {
	const op = "shortener.service.Shorten"

	res, err := s.shorten(ctx, req)
	s.metrics.Shortens.WithLabelValues(shortenOutcome(res, err)).Inc()
	if err != nil {
		return ShortenResult{}, errx.Wrap(op, err)
	}
	return res, nil
}

func (s *Service) shorten(ctx context.Context, req ShortenRequest) (ShortenResult, error) {
	url := NormalizeURL(req.URL)
	if err := ValidateURL(url); err != nil {
		return ShortenResult{}, errx.E("shortener.service.validate", errx.Invalid, err)
	}

	days := s.defaultDays
	if req.ExpirationDays != nil {
		days = *req.ExpirationDays
	}
	if days > MaxExpirationDays {
		return ShortenResult{}, errx.E("shortener.service.validate", errx.Invalid, ErrExpirationTooLong)
	}
	expiresAt := s.registry.ComputeExpiration(days)

	if req.CustomCode != "" {
		code, err := s.allocator.Allocate(ctx, req.CustomCode)
		if err != nil {
			return ShortenResult{}, err
		}
		link, err := s.registry.Create(ctx, url, code, expiresAt)
		if errx.Is(err, errx.Duplicate) {
			// Someone claimed the code between our check and our insert.
			return ShortenResult{}, errx.E("shortener.service.custom", errx.Conflict, ErrCodeConflict)
		}
		if err != nil {
			return ShortenResult{}, err
		}
		return ShortenResult{Link: link}, nil
	}

	// Reuse needs no code, so check before allocating one.
	existing, ok, err := s.registry.FindReusable(ctx, url)
	if err != nil {
		return ShortenResult{}, err
	}
	if ok {
		return ShortenResult{Link: existing, Reused: true}, nil
	}

	attempts := s.allocator.MaxAttempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		code, err := s.allocator.Allocate(ctx, "")
		if err != nil {
			return ShortenResult{}, err
		}

		// CreateOrReuse looks again in case the same URL was stored meanwhile.
		link, reused, err := s.registry.CreateOrReuse(ctx, url, code, expiresAt)
		if err == nil {
			return ShortenResult{Link: link, Reused: reused}, nil
		}
		if !errx.Is(err, errx.Duplicate) {
			return ShortenResult{}, err
		}

		s.metrics.InsertRetries.Inc()
		s.logger.InfoContext(ctx, "short code collided on insert, re-allocating",
			"short_code", code,
			"attempt", attempt,
		)
	}

	return ShortenResult{}, errx.E("shortener.service.generate", errx.Exhausted, ErrGenerationExhausted)
}

// ResolveForRedirect returns the target URL for code and records the click.
func (s *Service) ResolveForRedirect(ctx context.Context, code string) (string, error) {
	const op = "shortener.service.ResolveForRedirect"

	if err := codegen.Valid(code, MaxCodeLength); err != nil {
		// A code that could never have been issued is simply not found.
		s.metrics.Redirects.WithLabelValues(OutcomeNotFound).Inc()
		return "", errx.E(op, errx.NotFound, err)
	}

	link, err := s.registry.RecordClick(ctx, code)
	s.metrics.Redirects.WithLabelValues(redirectOutcome(err)).Inc()
	if err != nil {
		return "", errx.Wrap(op, err)
	}
	return link.OriginalURL, nil
}

// Analytics returns the link for code with its expiry status. Expired links
// stay readable here.
func (s *Service) Analytics(ctx context.Context, code string) (Analytics, error) {
	const op = "shortener.service.Analytics"

	if err := codegen.Valid(code, MaxCodeLength); err != nil {
		return Analytics{}, errx.E(op, errx.NotFound, err)
	}

	link, err := s.registry.Resolve(ctx, code)
	if err != nil {
		return Analytics{}, errx.Wrap(op, err)
	}
	return Analytics{
		Link:      link,
		IsExpired: IsExpired(link, s.registry.Now()),
	}, nil
}

func shortenOutcome(res ShortenResult, err error) string {
	switch {
	case err == nil && res.Reused:
		return OutcomeReused
	case err == nil:
		return OutcomeCreated
	}
	switch errx.KindOf(err) {
	case errx.Invalid:
		return OutcomeInvalid
	case errx.Conflict:
		return OutcomeConflict
	case errx.Exhausted:
		return OutcomeExhausted
	default:
		return OutcomeError
	}
}

func redirectOutcome(err error) string {
	switch errx.KindOf(err) {
	case errx.Unknown:
		if err == nil {
			return OutcomeRedirect
		}
		return OutcomeError
	case errx.NotFound:
		return OutcomeNotFound
	case errx.Expired:
		return OutcomeExpired
	default:
		return OutcomeError
	}
}
