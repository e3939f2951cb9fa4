package authz

import (
	"errors"
	"time"

	"github.com/transitops/gatekeeper/internal/auth"
	"github.com/transitops/gatekeeper/internal/observability"
)

// Emitter turns validator and matcher output into a Decision. Every
// validator or matcher failure collapses to Deny before any business
// logic runs; the specific reason is retained in the decision context
// and logs only.
type Emitter struct {
	logger  observability.Logger
	metrics *Metrics
	now     func() time.Time
}

// EmitterOption is a functional option for the emitter.
type EmitterOption func(*Emitter)

// WithEmitterLogger sets the logger.
func WithEmitterLogger(logger observability.Logger) EmitterOption {
	return func(e *Emitter) {
		e.logger = logger
	}
}

// WithEmitterMetrics sets the metrics.
func WithEmitterMetrics(metrics *Metrics) EmitterOption {
	return func(e *Emitter) {
		e.metrics = metrics
	}
}

// WithEmitterClock sets the time source, for tests.
func WithEmitterClock(now func() time.Time) EmitterOption {
	return func(e *Emitter) {
		e.now = now
	}
}

// NewEmitter creates a new decision emitter.
func NewEmitter(opts ...EmitterOption) *Emitter {
	e := &Emitter{
		logger: observability.NopLogger(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.metrics == nil {
		e.metrics = NewMetrics("gatekeeper")
	}

	return e
}

// Deny builds a Deny decision for a validation failure. Only context
// already resolved before the failure is carried; an invalid credential
// contributes nothing.
func (e *Emitter) Deny(resource string, claims *auth.Claims, cause error) Decision {
	decision := Decision{
		Effect:   EffectDeny,
		Resource: resource,
		Context: DecisionContext{
			Reason: denyReason(cause),
		},
	}

	if claims != nil {
		decision.Context.CallerID = claims.Subject
		decision.Context.Role = claims.Role
		decision.Context.OwnerScope = claims.OwnerScope
	}

	e.metrics.RecordDecision(string(EffectDeny), decision.Context.Reason)
	e.logger.Info("request denied",
		observability.String("resource", resource),
		observability.String("reason", decision.Context.Reason),
		observability.Error(cause),
	)

	return decision
}

// Emit builds a Decision from successful validation plus a match result.
func (e *Emitter) Emit(resource string, claims *auth.Claims, match MatchResult) Decision {
	if !match.Matched {
		return e.Deny(resource, claims, ErrNoMatchingRule)
	}
	if !match.Allowed {
		return e.Deny(resource, claims, ErrRoleNotPermitted)
	}

	decision := Decision{
		Effect:   EffectAllow,
		Resource: resource,
		Context: DecisionContext{
			CallerID:     claims.Subject,
			Role:         claims.Role,
			OwnerScope:   claims.OwnerScope,
			AuthorizedAt: e.now(),
			MatchedRule:  match.Rule.Description,
		},
	}

	e.metrics.RecordDecision(string(EffectAllow), "")
	e.logger.Debug("request allowed",
		observability.String("resource", resource),
		observability.String("caller", claims.Subject),
		observability.String("rule", match.Rule.Description),
	)

	return decision
}

// denyReason maps a failure to the human-readable reason carried in the
// decision context.
func denyReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingCredential):
		return "credential missing"
	case errors.Is(err, auth.ErrExpiredCredential):
		return "credential expired"
	case errors.Is(err, auth.ErrUnknownRole):
		return "unknown role"
	case errors.Is(err, auth.ErrUnsupportedAlgorithm),
		errors.Is(err, auth.ErrInvalidCredential),
		errors.Is(err, auth.ErrKeyNotFound):
		return "credential invalid"
	case errors.Is(err, ErrMalformedPath):
		return "malformed path"
	case errors.Is(err, ErrNoMatchingRule):
		return "no rule defined for this endpoint"
	case errors.Is(err, ErrRoleNotPermitted):
		return "role not permitted"
	default:
		return "request denied"
	}
}
