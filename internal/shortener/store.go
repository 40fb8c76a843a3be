package shortener

import (
	"context"
	"time"
)

// Store is the persistence collaborator for links.
//
// Implementations must enforce uniqueness of ShortCode at write time and
// report a violation as errx.Duplicate; that constraint, not any
// application-level check, decides which concurrent create wins. Clicks must
// be incremented atomically in the store. Missing rows are errx.NotFound and
// every other failure is errx.Unavailable.
type Store interface {
	FindByCode(ctx context.Context, code string) (Link, error)
	// FindByURL returns the most recently created link for url.
	FindByURL(ctx context.Context, url string) (Link, error)
	Insert(ctx context.Context, link Link) (Link, error)
	// IncrementClicks adds one click to the link for code, but only if it is
	// not expired at now. No matching row is reported as errx.NotFound.
	IncrementClicks(ctx context.Context, code string, now time.Time) (Link, error)
	Ping(ctx context.Context) error
}

// LinkCache holds immutable link fields keyed by code.
// Implementations treat their own failures as misses.
type LinkCache interface {
	Get(ctx context.Context, code string) (CachedLink, bool)
	Set(ctx context.Context, link CachedLink)
}

type noopCache struct{}

func (noopCache) Get(context.Context, string) (CachedLink, bool) { return CachedLink{}, false }
func (noopCache) Set(context.Context, CachedLink)                {}
