package shortener

import (
	"context"
	"errors"
	"time"

	"github.com/sundayezeilo/shorturl/internal/errx"
)

var ErrLinkExpired = errors.New("link has expired")

// RegistryConfig holds configuration for the registry.
type RegistryConfig struct {
	Clock   Clock     // default: time.Now
	Cache   LinkCache // optional
	Metrics *Metrics
}

// Registry owns the rules for creating, resolving and clicking links.
type Registry struct {
	store   Store
	now     Clock
	cache   LinkCache
	metrics *Metrics
}

// NewRegistry creates a registry backed by store.
func NewRegistry(store Store, cfg RegistryConfig) *Registry {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Cache == nil {
		cfg.Cache = noopCache{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}

	return &Registry{
		store:   store,
		now:     cfg.Clock,
		cache:   cfg.Cache,
		metrics: cfg.Metrics,
	}
}

// Now returns the registry's current time.
func (r *Registry) Now() time.Time { return r.now() }

// FindReusable returns the unexpired link stored for url. The bool is false
// when there is none.
func (r *Registry) FindReusable(ctx context.Context, url string) (Link, bool, error) {
	const op = "shortener.registry.FindReusable"

	existing, err := r.store.FindByURL(ctx, url)
	switch {
	case err == nil:
		if IsExpired(existing, r.now()) {
			return Link{}, false, nil
		}
		return existing, true, nil
	case errx.Is(err, errx.NotFound):
		return Link{}, false, nil
	default:
		return Link{}, false, errx.Wrap(op, err)
	}
}

// CreateOrReuse returns the existing unexpired link for url if there is one,
// otherwise inserts a new link under code. The bool reports reuse.
func (r *Registry) CreateOrReuse(ctx context.Context, url, code string, expiresAt *time.Time) (Link, bool, error) {
	const op = "shortener.registry.CreateOrReuse"

	existing, ok, err := r.FindReusable(ctx, url)
	if err != nil {
		return Link{}, false, errx.Wrap(op, err)
	}
	if ok {
		return existing, true, nil
	}

	created, err := r.Create(ctx, url, code, expiresAt)
	if err != nil {
		return Link{}, false, errx.Wrap(op, err)
	}
	return created, false, nil
}

// Create inserts a new link with zero clicks. A concurrent insert of the same
// code surfaces as errx.Duplicate.
func (r *Registry) Create(ctx context.Context, url, code string, expiresAt *time.Time) (Link, error) {
	const op = "shortener.registry.Create"

	created, err := r.store.Insert(ctx, Link{
		OriginalURL: url,
		ShortCode:   code,
		CreatedAt:   r.now(),
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		return Link{}, errx.Wrap(op, err)
	}

	r.cache.Set(ctx, toCached(created))
	return created, nil
}

// Resolve looks up the link for code without touching it.
func (r *Registry) Resolve(ctx context.Context, code string) (Link, error) {
	const op = "shortener.registry.Resolve"

	link, err := r.store.FindByCode(ctx, code)
	if err != nil {
		return Link{}, errx.Wrap(op, err)
	}
	r.cache.Set(ctx, toCached(link))
	return link, nil
}

// RecordClick adds one click to an unexpired link and returns it updated.
// Expired links are left untouched and reported as errx.Expired.
func (r *Registry) RecordClick(ctx context.Context, code string) (Link, error) {
	const op = "shortener.registry.RecordClick"

	now := r.now()
	if cached, ok := r.cache.Get(ctx, code); ok && cached.ExpiresAt != nil && now.After(*cached.ExpiresAt) {
		return Link{}, errx.E(op, errx.Expired, ErrLinkExpired)
	}

	link, err := r.store.IncrementClicks(ctx, code, now)
	if err == nil {
		return link, nil
	}
	if !errx.Is(err, errx.NotFound) {
		return Link{}, errx.Wrap(op, err)
	}

	// Nothing matched: either the code is unknown or the link is expired.
	existing, err := r.Resolve(ctx, code)
	if err != nil {
		return Link{}, errx.Wrap(op, err)
	}
	if IsExpired(existing, now) {
		return Link{}, errx.E(op, errx.Expired, ErrLinkExpired)
	}
	// Both reads used the same now, so a miss here means the store rounded
	// expires_at differently from the clock. Try once more.
	link, err = r.store.IncrementClicks(ctx, code, now)
	if err != nil {
		return Link{}, errx.Wrap(op, err)
	}
	return link, nil
}

// ComputeExpiration returns now plus days calendar days, or nil for days <= 0.
func (r *Registry) ComputeExpiration(days int) *time.Time {
	if days <= 0 {
		return nil
	}
	t := r.now().AddDate(0, 0, days)
	return &t
}
