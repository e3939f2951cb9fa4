package authz

import (
	"strconv"
	"time"

	"github.com/transitops/gatekeeper/internal/auth"
)

// Effect is the outcome of an authorization decision.
type Effect string

// Decision effects.
const (
	EffectAllow Effect = "Allow"
	EffectDeny  Effect = "Deny"
)

// Decision is the typed authorization decision for one request. It is
// computed fresh per request and never persisted. The invoking
// infrastructure may cache it for a bounded time, keyed by credential.
type Decision struct {
	// Effect is Allow or Deny.
	Effect Effect

	// Resource is the resource identifier the decision applies to.
	Resource string

	// Context carries the caller context resolved during evaluation.
	Context DecisionContext
}

// DecisionContext is the strongly typed caller context. String
// flattening happens only at the wire boundary (WireContext); business
// code works with this struct.
type DecisionContext struct {
	// CallerID is the authenticated subject, when resolved.
	CallerID string

	// Role is the caller's role, when resolved.
	Role auth.Role

	// OwnerScope is the caller's owner-scope, when resolved.
	OwnerScope string

	// AuthorizedAt is when the decision was made.
	AuthorizedAt time.Time

	// MatchedRule is the description of the matched rule, on Allow.
	MatchedRule string

	// Reason is the human-readable reason, on Deny.
	Reason string
}

// Allowed reports whether the decision permits the request.
func (d *Decision) Allowed() bool {
	return d.Effect == EffectAllow
}

// WireContext flattens the decision context to the map<string,string>
// shape the invoking infrastructure requires. The consumer cannot carry
// structured values, so every field is coerced to a string here and
// nowhere else. Empty fields are omitted.
func (d *Decision) WireContext() map[string]string {
	ctx := make(map[string]string, 6)

	if d.Context.CallerID != "" {
		ctx["callerId"] = d.Context.CallerID
	}
	if d.Context.Role != "" {
		ctx["role"] = string(d.Context.Role)
	}
	if d.Context.OwnerScope != "" {
		ctx["ownerScope"] = d.Context.OwnerScope
	}
	if !d.Context.AuthorizedAt.IsZero() {
		ctx["authorizedAt"] = strconv.FormatInt(d.Context.AuthorizedAt.Unix(), 10)
	}
	if d.Context.MatchedRule != "" {
		ctx["matchedRule"] = d.Context.MatchedRule
	}
	if d.Context.Reason != "" {
		ctx["reason"] = d.Context.Reason
	}

	return ctx
}
