package shortener

import (
	"time"

	"github.com/google/uuid"
)

// Link binds a short code to its target URL.
// Only Clicks changes after creation.
type Link struct {
	ID          uuid.UUID  `db:"id"`
	OriginalURL string     `db:"original_url"`
	ShortCode   string     `db:"short_code"`
	Clicks      int64      `db:"clicks"`
	CreatedAt   time.Time  `db:"created_at"`
	ExpiresAt   *time.Time `db:"expires_at"`
}

// IsExpired reports whether link has an expiration and now is strictly after it.
func IsExpired(link Link, now time.Time) bool {
	return link.ExpiresAt != nil && now.After(*link.ExpiresAt)
}

// Clock returns the current time. Tests inject a fixed one.
type Clock func() time.Time

// CachedLink is the immutable part of a Link. It has no Clicks, so a cache
// never serves a counter.
type CachedLink struct {
	OriginalURL string     `json:"original_url"`
	ShortCode   string     `json:"short_code"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func toCached(l Link) CachedLink {
	return CachedLink{
		OriginalURL: l.OriginalURL,
		ShortCode:   l.ShortCode,
		CreatedAt:   l.CreatedAt,
		ExpiresAt:   l.ExpiresAt,
	}
}
