package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter implements sliding window rate limiting using Redis
// ⭐ SSOT: 레이트 리밋은 여기서만
type RateLimiter struct {
	client *Client
	prefix string
}

// RateLimitConfig defines rate limit parameters
type RateLimitConfig struct {
	Key    string        // provider name, e.g. "eastmoney"
	Limit  int           // Maximum requests allowed
	Window time.Duration // Time window
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(client *Client, prefix string) *RateLimiter {
	return &RateLimiter{
		client: client,
		prefix: prefix,
	}
}

// Allow checks if a request is allowed under the rate limit
// Returns (allowed, remaining, error)
func (r *RateLimiter) Allow(ctx context.Context, cfg RateLimitConfig) (bool, int, error) {
	if !r.client.Enabled() {
		// If Redis is disabled, allow all requests
		return true, cfg.Limit, nil
	}

	key := fmt.Sprintf("%s:ratelimit:%s", r.prefix, cfg.Key)
	now := time.Now().UnixMilli()
	windowStart := now - cfg.Window.Milliseconds()

	result, err := slidingWindow.Run(ctx, r.client.Redis(), []string{key},
		now,
		windowStart,
		cfg.Limit,
		cfg.Window.Milliseconds(),
	).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit script failed: %w", err)
	}

	allowed := result[0].(int64) == 1
	remaining := int(result[1].(int64))

	return allowed, remaining, nil
}

// slidingWindow trims entries older than the window, then admits the
// request only while the set holds fewer than limit members.
var slidingWindow = redis.NewScript(`
		local key = KEYS[1]
		local now = tonumber(ARGV[1])
		local window_start = tonumber(ARGV[2])
		local limit = tonumber(ARGV[3])
		local window_ms = tonumber(ARGV[4])

		-- Remove old entries outside the window
		redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

		-- Count current requests in window
		local count = redis.call('ZCARD', key)

		if count < limit then
			-- Add current request
			redis.call('ZADD', key, now, now)
			redis.call('PEXPIRE', key, window_ms)
			return {1, limit - count - 1}
		else
			return {0, 0}
		end
`)

// Wait blocks until a request is allowed or context is cancelled
func (r *RateLimiter) Wait(ctx context.Context, cfg RateLimitConfig) error {
	for {
		allowed, _, err := r.Allow(ctx, cfg)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		// Wait before retrying
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
			// Retry
		}
	}
}

// Predefined rate limit configs for upstream providers. Limits are
// conservative: a cycle issues a few dozen calls per provider at most.
var (
	EastmoneyRateLimit = RateLimitConfig{
		Key:    "eastmoney",
		Limit:  10,
		Window: time.Second,
	}

	SinaRateLimit = RateLimitConfig{
		Key:    "sina",
		Limit:  5,
		Window: time.Second,
	}

	ShiborRateLimit = RateLimitConfig{
		Key:    "shibor",
		Limit:  30,
		Window: time.Minute,
	}
)

var providerLimits = map[string]RateLimitConfig{
	EastmoneyRateLimit.Key: EastmoneyRateLimit,
	SinaRateLimit.Key:      SinaRateLimit,
	ShiborRateLimit.Key:    ShiborRateLimit,
}

// ProviderRateLimit returns the shared budget of a provider. Providers
// without a predefined config get perSec requests per second.
func ProviderRateLimit(name string, perSec int) RateLimitConfig {
	if cfg, ok := providerLimits[name]; ok {
		return cfg
	}
	return RateLimitConfig{Key: name, Limit: perSec, Window: time.Second}
}
