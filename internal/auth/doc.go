// Package auth verifies bearer credentials and extracts caller claims.
//
// Tokens are compact JWS strings verified against a configured secret or
// key set, restricted to an explicit allow-list of signing algorithms.
// Claims carry the caller's subject, single role, email and owner-scope.
// An absent role claim defaults to the lowest-privilege role when the
// AllowMissingRole leniency is enabled, and is rejected otherwise.
package auth
