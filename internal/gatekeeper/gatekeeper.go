// Package gatekeeper composes path normalization, credential
// validation, rule matching and decision emission into the single
// evaluation every inbound request passes through.
package gatekeeper

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/transitops/gatekeeper/internal/auth"
	"github.com/transitops/gatekeeper/internal/authz"
	"github.com/transitops/gatekeeper/internal/observability"
)

// pipelineTracer traces every pipeline evaluation.
var pipelineTracer = otel.Tracer("gatekeeper/authz")

// Gatekeeper evaluates inbound requests against the credential
// configuration and the ordered rule table. It is stateless across
// requests; every evaluation starts from the raw request descriptor.
type Gatekeeper struct {
	validator auth.Validator
	matcher   *authz.Matcher
	emitter   *authz.Emitter
	logger    observability.Logger
}

// Option is a functional option for the gatekeeper.
type Option func(*Gatekeeper)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gatekeeper) {
		g.logger = logger
	}
}

// WithEmitter sets the decision emitter.
func WithEmitter(emitter *authz.Emitter) Option {
	return func(g *Gatekeeper) {
		g.emitter = emitter
	}
}

// New creates a gatekeeper over the given validator and matcher.
func New(validator auth.Validator, matcher *authz.Matcher, opts ...Option) (*Gatekeeper, error) {
	if validator == nil {
		return nil, errors.New("validator is required")
	}
	if matcher == nil {
		return nil, errors.New("matcher is required")
	}

	g := &Gatekeeper{
		validator: validator,
		matcher:   matcher,
		logger:    observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.emitter == nil {
		g.emitter = authz.NewEmitter()
	}

	return g, nil
}

// Evaluate runs the full authorization pipeline for one request. Every
// failure along the way resolves to a Deny decision; no error escapes
// that could fall through to an implicit allow. Claims are returned
// alongside the decision when the credential validated, so callers can
// derive the rate limit tier and identity without re-parsing the token.
func (g *Gatekeeper) Evaluate(ctx context.Context, method, rawPath, credential string) (authz.Decision, *auth.Claims) {
	ctx, span := pipelineTracer.Start(ctx, "gatekeeper.evaluate",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	resource := fmt.Sprintf("%s %s", method, rawPath)

	normalized, err := authz.NormalizePath(rawPath)
	if err != nil {
		g.logger.Debug("path normalization failed",
			observability.String("path", rawPath),
			observability.Error(err),
		)
		return g.deny(span, resource, nil, err), nil
	}
	resource = fmt.Sprintf("%s %s", method, normalized)

	claims, err := g.validator.Validate(ctx, credential)
	if err != nil {
		return g.deny(span, resource, nil, err), nil
	}

	match := g.matcher.Match(method, normalized, claims.Role)
	decision := g.emitter.Emit(resource, claims, match)

	span.SetAttributes(
		attribute.String("authz.resource", resource),
		attribute.String("authz.role", string(claims.Role)),
		attribute.String("authz.effect", string(decision.Effect)),
	)
	if decision.Allowed() {
		span.SetAttributes(attribute.String("authz.rule", decision.Context.MatchedRule))
	} else {
		span.SetAttributes(attribute.String("authz.reason", decision.Context.Reason))
	}

	g.logger.Debug("request evaluated",
		observability.String("resource", resource),
		observability.String("role", string(claims.Role)),
		observability.String("effect", string(decision.Effect)),
	)

	return decision, claims
}

// deny emits a Deny decision and records the outcome on the span.
func (g *Gatekeeper) deny(span trace.Span, resource string, claims *auth.Claims, cause error) authz.Decision {
	decision := g.emitter.Deny(resource, claims, cause)
	span.SetAttributes(
		attribute.String("authz.resource", resource),
		attribute.String("authz.effect", string(decision.Effect)),
		attribute.String("authz.reason", decision.Context.Reason),
	)
	return decision
}
