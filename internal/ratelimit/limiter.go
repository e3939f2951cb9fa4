// Package ratelimit bounds the request rate per caller tier using atomic
// counters in a shared external store. Each caller tier carries two
// independent bounds: a short rolling window rate and a daily quota.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Limiter is the interface for rate limiting.
type Limiter interface {
	// Allow checks whether one more request from identity in the given
	// tier is within both the window rate and the daily quota.
	Allow(ctx context.Context, tier, identity string) (*Result, error)

	// Reset clears the counters for identity in the given tier.
	Reset(ctx context.Context, tier, identity string) error
}

// Result is the outcome of a rate limit check. The three numeric fields
// are echoed to callers as X-RateLimit-* headers.
type Result struct {
	// Allowed indicates whether the request may proceed.
	Allowed bool

	// Limit is the bound that applied to this check.
	Limit int

	// Remaining is the number of requests left in the window, floored
	// at zero.
	Remaining int

	// ResetAfter is the duration until the window expires.
	ResetAfter time.Duration

	// RetryAfter is the duration to wait before retrying. Set only when
	// the request was throttled.
	RetryAfter time.Duration

	// QuotaExhausted indicates the daily quota tripped rather than the
	// short window rate.
	QuotaExhausted bool

	// FailedOpen indicates the shared store was unavailable and the
	// fail-open policy admitted the request without counting it.
	FailedOpen bool
}

// ResetSeconds returns ResetAfter rounded up to whole seconds, as
// propagated in the X-RateLimit-Reset header.
func (r *Result) ResetSeconds() int {
	if r.ResetAfter <= 0 {
		return 0
	}
	secs := int(r.ResetAfter.Seconds())
	if r.ResetAfter%time.Second != 0 {
		secs++
	}
	return secs
}

// Tier configures the bounds for one caller class.
type Tier struct {
	// Requests is the maximum number of requests in one window.
	Requests int `yaml:"requests" json:"requests"`

	// Window is the short rolling window length.
	Window time.Duration `yaml:"window" json:"window"`

	// DailyQuota is the maximum number of requests per UTC day. Zero
	// disables the quota bound.
	DailyQuota int `yaml:"dailyQuota" json:"dailyQuota"`
}

// Tier names used by the gatekeeper.
const (
	TierPublic   = "PUBLIC"
	TierOperator = "OPERATOR"
	TierAdmin    = "ADMIN"
)

// Config holds configuration for the tiered limiter.
type Config struct {
	// Tiers maps tier names to their bounds.
	Tiers map[string]Tier `yaml:"tiers" json:"tiers"`

	// FailOpen admits requests when the shared store is unavailable.
	// This is a deliberate policy choice favoring availability of the
	// business path over strict enforcement; disabling it turns a store
	// outage into throttling of every request.
	FailOpen bool `yaml:"failOpen" json:"failOpen"`
}

// DefaultConfig returns a Config with default tiers and fail-open
// enabled.
func DefaultConfig() *Config {
	return &Config{
		FailOpen: true,
		Tiers: map[string]Tier{
			TierPublic:   {Requests: 50, Window: time.Minute, DailyQuota: 1000},
			TierOperator: {Requests: 200, Window: time.Minute, DailyQuota: 20000},
			TierAdmin:    {Requests: 500, Window: time.Minute, DailyQuota: 100000},
		},
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if len(c.Tiers) == 0 {
		return fmt.Errorf("at least one tier is required")
	}
	for name, tier := range c.Tiers {
		if tier.Requests <= 0 {
			return fmt.Errorf("tier %s: requests must be positive", name)
		}
		if tier.Window <= 0 {
			return fmt.Errorf("tier %s: window must be positive", name)
		}
		if tier.DailyQuota < 0 {
			return fmt.Errorf("tier %s: dailyQuota must not be negative", name)
		}
	}
	return nil
}

// NoopLimiter is a limiter that always allows requests.
type NoopLimiter struct{}

// NewNoopLimiter creates a new noop limiter.
func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

// Allow implements Limiter.
func (l *NoopLimiter) Allow(_ context.Context, _, _ string) (*Result, error) {
	return &Result{Allowed: true}, nil
}

// Reset implements Limiter.
func (l *NoopLimiter) Reset(_ context.Context, _, _ string) error {
	return nil
}
