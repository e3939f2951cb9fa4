package authz

import (
	"fmt"
	"strings"

	"github.com/transitops/gatekeeper/internal/auth"
)

// Rule declares one authorization rule: an HTTP method, a path pattern
// and the roles permitted to invoke it. Rules are evaluated in
// declaration order and the first structural match is authoritative.
type Rule struct {
	// Method is the HTTP method, matched case-insensitively.
	Method string `yaml:"method" json:"method"`

	// Pattern is the path pattern source (see CompilePattern).
	Pattern string `yaml:"pattern" json:"pattern"`

	// Roles is the set of roles permitted by this rule.
	Roles []auth.Role `yaml:"roles" json:"roles"`

	// Description names the rule in decisions and logs.
	Description string `yaml:"description" json:"description"`
}

// Validate checks the rule for authorship errors.
func (r *Rule) Validate() error {
	if r.Method == "" {
		return fmt.Errorf("rule %q: method is required", r.Description)
	}
	if r.Pattern == "" {
		return fmt.Errorf("rule %q: pattern is required", r.Description)
	}
	if len(r.Roles) == 0 {
		return fmt.Errorf("rule %q: at least one role is required", r.Description)
	}
	for _, role := range r.Roles {
		if _, err := auth.ParseRole(string(role)); err != nil {
			return fmt.Errorf("rule %q: %w", r.Description, err)
		}
	}
	return nil
}

// compiledRule pairs a rule with its compiled pattern and a role set for
// O(1) membership checks.
type compiledRule struct {
	rule    Rule
	method  string
	pattern *Pattern
	roles   map[auth.Role]struct{}
}

// compileRules validates and compiles a rule table. The returned slice
// preserves declaration order; it is built once at startup and treated
// as immutable afterwards.
func compileRules(rules []Rule) ([]compiledRule, error) {
	compiled := make([]compiledRule, 0, len(rules))

	for i, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}

		pattern, err := CompilePattern(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rule.Description, err)
		}

		roles := make(map[auth.Role]struct{}, len(rule.Roles))
		for _, role := range rule.Roles {
			roles[role] = struct{}{}
		}

		compiled = append(compiled, compiledRule{
			rule:    rule,
			method:  strings.ToUpper(rule.Method),
			pattern: pattern,
			roles:   roles,
		})
	}

	return compiled, nil
}
