package authz

import (
	"strings"
	"time"

	"github.com/transitops/gatekeeper/internal/auth"
	"github.com/transitops/gatekeeper/internal/observability"
)

// MatchResult is the outcome of resolving a request against the rule
// table.
type MatchResult struct {
	// Matched indicates a rule structurally matched (method + pattern).
	Matched bool

	// Rule is the matched rule, when Matched is true.
	Rule *Rule

	// Allowed indicates the caller's role is in the matched rule's role
	// set. Always false when Matched is false.
	Allowed bool
}

// Matcher resolves the single applicable rule for a request. The rule
// table is injected at construction and never mutated, so a Matcher is
// safe for concurrent use with zero prior in-process state.
type Matcher struct {
	rules   []compiledRule
	logger  observability.Logger
	metrics *Metrics
}

// MatcherOption is a functional option for the matcher.
type MatcherOption func(*Matcher)

// WithMatcherLogger sets the logger.
func WithMatcherLogger(logger observability.Logger) MatcherOption {
	return func(m *Matcher) {
		m.logger = logger
	}
}

// WithMatcherMetrics sets the metrics.
func WithMatcherMetrics(metrics *Metrics) MatcherOption {
	return func(m *Matcher) {
		m.metrics = metrics
	}
}

// NewMatcher compiles the ordered rule table and returns a matcher.
func NewMatcher(rules []Rule, opts ...MatcherOption) (*Matcher, error) {
	compiled, err := compileRules(rules)
	if err != nil {
		return nil, err
	}

	m := &Matcher{
		rules:  compiled,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.metrics == nil {
		m.metrics = NewMetrics("gatekeeper")
	}

	return m, nil
}

// Match resolves (method, normalized path, role) against the table. The
// scan is linear and the first rule whose method and pattern match is
// authoritative; later rules are not consulted even if they would grant
// broader access. No match is an explicit deny, never an implicit allow.
func (m *Matcher) Match(method, path string, role auth.Role) MatchResult {
	start := time.Now()
	method = strings.ToUpper(method)

	for i := range m.rules {
		cr := &m.rules[i]
		if cr.method != method || !cr.pattern.Match(path) {
			continue
		}

		_, allowed := cr.roles[role]
		m.metrics.RecordMatch(matchStatus(allowed), time.Since(start))
		m.logger.Debug("rule matched",
			observability.String("rule", cr.rule.Description),
			observability.String("method", method),
			observability.String("path", path),
			observability.String("role", role.String()),
			observability.Bool("allowed", allowed),
		)

		return MatchResult{Matched: true, Rule: &cr.rule, Allowed: allowed}
	}

	m.metrics.RecordMatch("no_rule", time.Since(start))
	m.logger.Debug("no rule matched",
		observability.String("method", method),
		observability.String("path", path),
	)

	return MatchResult{}
}

// Rules returns a copy of the declared rule table.
func (m *Matcher) Rules() []Rule {
	rules := make([]Rule, len(m.rules))
	for i := range m.rules {
		rules[i] = m.rules[i].rule
	}
	return rules
}

func matchStatus(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}
