// Package cache keeps immutable link fields in redis so hot codes skip the database.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/sundayezeilo/shorturl/internal/shortener"
)

// connectTimeout is the timeout for establishing the redis connection.
const connectTimeout = 15 * time.Second

const (
	DefaultKeyPrefix = "link"
	DefaultTTL       = time.Hour
)

// Options configures the redis client.
type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// Connect creates a redis client and waits until the server answers.
func Connect(ctx context.Context, logger *slog.Logger, opts Options) (*redis.Client, error) {
	if opts.Addr == "" {
		return nil, errors.New("cache: missing redis address")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		err := rdb.Ping(ctx).Err()
		if err == nil {
			return rdb, nil
		}

		logger.Warn("unable to reach redis, retrying...", "addr", opts.Addr, "error", err)

		select {
		case <-ctx.Done():
			_ = rdb.Close()
			return nil, fmt.Errorf("cache: redis connection timed out or was cancelled: %w (last error: %v)", ctx.Err(), err)
		case <-ticker.C:
		}
	}
}

// Config configures a LinkCache.
type Config struct {
	KeyPrefix string
	TTL       time.Duration
}

// LinkCache is a shortener.LinkCache on redis. Redis errors are logged and
// reported as misses.
type LinkCache struct {
	rdb     redis.Cmdable
	logger  *slog.Logger
	prefix  string
	ttl     time.Duration
	metrics Metrics
}

// NewLinkCache creates a cache on rdb and registers its metrics with reg (if non-nil).
func NewLinkCache(rdb redis.Cmdable, logger *slog.Logger, cfg Config, reg prometheus.Registerer) *LinkCache {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &LinkCache{
		rdb:     rdb,
		logger:  logger,
		prefix:  cfg.KeyPrefix,
		ttl:     cfg.TTL,
		metrics: NewMetrics(reg),
	}
}

// Get returns the cached link for code.
func (c *LinkCache) Get(ctx context.Context, code string) (shortener.CachedLink, bool) {
	val, err := c.rdb.Get(ctx, c.key(code)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "cache get failed", "short_code", code, "error", err)
			c.metrics.Errors.WithLabelValues(c.prefix).Inc()
		}
		c.metrics.Misses.WithLabelValues(c.prefix).Inc()
		return shortener.CachedLink{}, false
	}

	var link shortener.CachedLink
	if err := json.Unmarshal(val, &link); err != nil {
		c.logger.WarnContext(ctx, "cache entry is corrupt, ignoring", "short_code", code, "error", err)
		c.metrics.Errors.WithLabelValues(c.prefix).Inc()
		c.metrics.Misses.WithLabelValues(c.prefix).Inc()
		return shortener.CachedLink{}, false
	}

	c.metrics.Hits.WithLabelValues(c.prefix).Inc()
	return link, true
}

// Set stores link under its code.
func (c *LinkCache) Set(ctx context.Context, link shortener.CachedLink) {
	val, err := json.Marshal(link)
	if err != nil {
		c.logger.WarnContext(ctx, "cache encode failed", "short_code", link.ShortCode, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, c.key(link.ShortCode), val, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "cache set failed", "short_code", link.ShortCode, "error", err)
		c.metrics.Errors.WithLabelValues(c.prefix).Inc()
	}
}

func (c *LinkCache) key(code string) string {
	return fmt.Sprintf("%s:%s", c.prefix, code)
}
