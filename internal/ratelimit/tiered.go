package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/transitops/gatekeeper/internal/observability"
	"github.com/transitops/gatekeeper/internal/ratelimit/store"
)

// TieredLimiter enforces per-tier window rates and daily quotas against
// a shared store. It holds no per-request state: every check is one
// atomic increment-and-read against the store, so concurrent stateless
// workers racing on the same identity stay consistent.
type TieredLimiter struct {
	config  *Config
	store   store.Store
	breaker *gobreaker.CircuitBreaker
	logger  observability.Logger
	metrics *Metrics
	now     func() time.Time
}

// TieredLimiterOption is a functional option for the limiter.
type TieredLimiterOption func(*TieredLimiter)

// WithLimiterLogger sets the logger.
func WithLimiterLogger(logger observability.Logger) TieredLimiterOption {
	return func(l *TieredLimiter) {
		l.logger = logger
	}
}

// WithLimiterMetrics sets the metrics.
func WithLimiterMetrics(metrics *Metrics) TieredLimiterOption {
	return func(l *TieredLimiter) {
		l.metrics = metrics
	}
}

// WithLimiterClock sets the time source, for tests.
func WithLimiterClock(now func() time.Time) TieredLimiterOption {
	return func(l *TieredLimiter) {
		l.now = now
	}
}

// NewTieredLimiter creates a new tiered limiter backed by the given
// store. Store calls run behind a circuit breaker so a dead store fails
// fast into the fail-open path instead of stalling every request on
// connection timeouts.
func NewTieredLimiter(config *Config, st store.Store, opts ...TieredLimiterOption) (*TieredLimiter, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate limit config: %w", err)
	}
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}

	l := &TieredLimiter{
		config: config,
		store:  st,
		logger: observability.NopLogger(),
		now:    time.Now,
	}

	l.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ratelimit-store",
		MaxRequests: 1,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	for _, opt := range opts {
		opt(l)
	}

	if l.metrics == nil {
		l.metrics = NewMetrics("gatekeeper")
	}

	return l, nil
}

// Allow implements Limiter.
func (l *TieredLimiter) Allow(ctx context.Context, tier, identity string) (*Result, error) {
	tierCfg, ok := l.config.Tiers[tier]
	if !ok {
		return nil, fmt.Errorf("unknown tier: %s", tier)
	}

	now := l.now()

	// Short window bound first; the cheaper counter trips most abuse.
	rateCount, err := l.increment(ctx, rateKey(tier, identity, now, tierCfg.Window), tierCfg.Window)
	if err != nil {
		return l.degrade(tier, err), nil
	}

	reset := windowReset(now, tierCfg.Window)
	remaining := tierCfg.Requests - int(rateCount)
	if remaining < 0 {
		remaining = 0
	}

	if int(rateCount) > tierCfg.Requests {
		l.metrics.RecordCheck(tier, "throttled")
		return &Result{
			Allowed:    false,
			Limit:      tierCfg.Requests,
			Remaining:  0,
			ResetAfter: reset,
			RetryAfter: reset,
		}, nil
	}

	if tierCfg.DailyQuota > 0 {
		quotaCount, err := l.increment(ctx, quotaKey(tier, identity, now), quotaReset(now))
		if err != nil {
			return l.degrade(tier, err), nil
		}

		if int(quotaCount) > tierCfg.DailyQuota {
			qReset := quotaReset(now)
			l.metrics.RecordCheck(tier, "quota_exceeded")
			return &Result{
				Allowed:        false,
				Limit:          tierCfg.DailyQuota,
				Remaining:      0,
				ResetAfter:     qReset,
				RetryAfter:     qReset,
				QuotaExhausted: true,
			}, nil
		}
	}

	l.metrics.RecordCheck(tier, "allowed")
	return &Result{
		Allowed:    true,
		Limit:      tierCfg.Requests,
		Remaining:  remaining,
		ResetAfter: reset,
	}, nil
}

// Reset implements Limiter.
func (l *TieredLimiter) Reset(ctx context.Context, tier, identity string) error {
	tierCfg, ok := l.config.Tiers[tier]
	if !ok {
		return fmt.Errorf("unknown tier: %s", tier)
	}

	now := l.now()
	if err := l.store.Delete(ctx, rateKey(tier, identity, now, tierCfg.Window)); err != nil {
		return err
	}
	return l.store.Delete(ctx, quotaKey(tier, identity, now))
}

// increment runs the atomic increment behind the circuit breaker.
func (l *TieredLimiter) increment(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	count, err := l.breaker.Execute(func() (interface{}, error) {
		return l.store.IncrementWithExpiry(ctx, key, 1, expiry)
	})
	if err != nil {
		return 0, err
	}
	return count.(int64), nil
}

// degrade resolves a store failure per the fail-open policy. The
// business path takes priority over strict enforcement: the request is
// admitted uncounted, and the degradation is logged and metered so the
// outage is visible. With FailOpen disabled the request is throttled
// instead. The store error is never surfaced to the caller.
func (l *TieredLimiter) degrade(tier string, err error) *Result {
	if l.config.FailOpen {
		l.metrics.RecordCheck(tier, "fail_open")
		l.metrics.RecordDegradation()
		l.logger.Warn("rate limit store unavailable, failing open",
			observability.String("tier", tier),
			observability.Error(err),
		)
		return &Result{Allowed: true, FailedOpen: true}
	}

	l.metrics.RecordCheck(tier, "fail_closed")
	l.metrics.RecordDegradation()
	l.logger.Error("rate limit store unavailable, failing closed",
		observability.String("tier", tier),
		observability.Error(err),
	)
	return &Result{Allowed: false, RetryAfter: time.Minute}
}

// Ensure TieredLimiter implements Limiter.
var _ Limiter = (*TieredLimiter)(nil)
