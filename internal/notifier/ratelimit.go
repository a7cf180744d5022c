package notifier

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// RateLimiter paces notification deliveries with a token bucket.
type RateLimiter struct {
	limiter *rate.Limiter
	enabled bool
	allowed atomic.Int64
	dropped atomic.Int64
}

// RateLimitConfig holds rate limiter configuration.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"` // Sustained deliveries per second (default: 20)
	Burst     int     `yaml:"burst"`      // Deliveries allowed at once (default: 10)
	Enabled   bool    `yaml:"enabled"`    // Whether rate limiting is enabled
}

// DefaultRateLimitConfig returns default rate limit settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		PerSecond: 20,
		Burst:     10,
		Enabled:   true,
	}
}

// NewRateLimiter creates a rate limiter with the given configuration.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.PerSecond <= 0 {
		config.PerSecond = 20
	}
	if config.Burst <= 0 {
		config.Burst = 10
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(config.PerSecond), config.Burst),
		enabled: config.Enabled,
	}
}

// Wait blocks until a delivery may proceed or ctx is done. A nil limiter
// never blocks.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil || !r.enabled {
		return nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		r.dropped.Add(1)
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	r.allowed.Add(1)
	return nil
}

// Allow reports whether a delivery may proceed right now without waiting.
func (r *RateLimiter) Allow() bool {
	if r == nil || !r.enabled {
		return true
	}
	if !r.limiter.Allow() {
		r.dropped.Add(1)
		return false
	}
	r.allowed.Add(1)
	return true
}

// Stats returns rate limiter statistics.
func (r *RateLimiter) Stats() RateLimitStats {
	if r == nil {
		return RateLimitStats{}
	}
	return RateLimitStats{
		Allowed:   r.allowed.Load(),
		Dropped:   r.dropped.Load(),
		PerSecond: float64(r.limiter.Limit()),
		Burst:     r.limiter.Burst(),
		Enabled:   r.enabled,
	}
}

// RateLimitStats contains rate limiter statistics.
type RateLimitStats struct {
	Allowed   int64   // Deliveries let through
	Dropped   int64   // Deliveries refused
	PerSecond float64 // Sustained rate
	Burst     int     // Bucket size
	Enabled   bool    // Whether rate limiting is enabled
}
