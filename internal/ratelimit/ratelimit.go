// Package ratelimit is a token bucket rate limiter shared through redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrLimiterUnavailable = errors.New("rate limiter unavailable")

// The bucket is refilled lazily on every call. State lives in a hash that
// expires after two idle refill periods.
var tokenBucket = redis.NewScript(`
	local key = KEYS[1]
	local capacity = tonumber(ARGV[1])
	local refill_rate = tonumber(ARGV[2])
	local refill_period = tonumber(ARGV[3])
	local now = tonumber(ARGV[4])

	local bucket = redis.call('HMGET', key, 'tokens', 'last_refill')
	local tokens = tonumber(bucket[1]) or capacity
	local last_refill = tonumber(bucket[2]) or now

	local elapsed = now - last_refill
	local periods = math.floor(elapsed / refill_period)
	if periods > 0 then
		tokens = math.min(capacity, tokens + (periods * refill_rate))
		last_refill = last_refill + (periods * refill_period)
	end

	local allowed = tokens > 0
	if allowed then
		tokens = tokens - 1
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_refill', last_refill)
	redis.call('EXPIRE', key, refill_period * 2)

	return allowed and 1 or 0
`)

const (
	DefaultKeyPrefix    = "rate_limit:"
	DefaultCapacity     = 100
	DefaultRefillRate   = 100
	DefaultRefillPeriod = 15 * time.Minute
)

// Config holds the rate limiter configuration.
type Config struct {
	KeyPrefix    string        // redis key prefix
	Capacity     int           // maximum tokens in a bucket
	RefillRate   int           // tokens added per period
	RefillPeriod time.Duration // how often tokens are added, whole seconds
}

// Limiter is a redis backed token bucket keyed by caller.
type Limiter struct {
	logger *slog.Logger
	rdb    redis.Scripter
	config Config
	now    func() time.Time
}

// New creates a limiter on rdb, filling unset config with defaults.
func New(logger *slog.Logger, rdb redis.Scripter, config Config) *Limiter {
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultKeyPrefix
	}
	if config.Capacity <= 0 {
		config.Capacity = DefaultCapacity
	}
	if config.RefillRate <= 0 {
		config.RefillRate = DefaultRefillRate
	}
	if config.RefillPeriod < time.Second {
		config.RefillPeriod = DefaultRefillPeriod
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Limiter{
		logger: logger,
		rdb:    rdb,
		config: config,
		now:    time.Now,
	}
}

// Allow takes one token from key's bucket and reports whether there was one.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	result, err := tokenBucket.Run(ctx, l.rdb, []string{l.config.KeyPrefix + key},
		l.config.Capacity,
		l.config.RefillRate,
		int(l.config.RefillPeriod.Seconds()),
		l.now().Unix(),
	).Int64()
	if err != nil {
		l.logger.ErrorContext(ctx, "redis eval failed", "key", key, "error", err)
		return false, fmt.Errorf("%w: %w", ErrLimiterUnavailable, err)
	}
	return result == 1, nil
}

// RetryAfter is how long a denied caller should wait before trying again.
func (l *Limiter) RetryAfter() time.Duration {
	return l.config.RefillPeriod
}
