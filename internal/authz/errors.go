package authz

import "errors"

// Sentinel errors for authorization.
var (
	// ErrMalformedPath indicates the raw path has too few segments to
	// carry a stage prefix and a resource.
	ErrMalformedPath = errors.New("malformed path")

	// ErrNoMatchingRule indicates no rule is defined for the endpoint.
	ErrNoMatchingRule = errors.New("no rule defined for this endpoint")

	// ErrRoleNotPermitted indicates the matched rule does not allow the
	// caller's role.
	ErrRoleNotPermitted = errors.New("role not permitted")

	// ErrInvalidPattern indicates a rule's path pattern cannot be compiled.
	ErrInvalidPattern = errors.New("invalid path pattern")
)
