package auth

import (
	"encoding/json"
	"fmt"
	"time"
)

// Claims are the decoded identity attributes carried by a credential.
// They are immutable once issued and verified fresh on every request;
// the gatekeeper never persists them.
type Claims struct {
	// Subject is the unique caller id.
	Subject string `json:"sub"`

	// Role is the single role carried by the credential.
	Role Role `json:"role"`

	// Email is the caller's email address.
	Email string `json:"email,omitempty"`

	// OwnerScope is the identity that caller-scoped resources are
	// attributed to. Defaults to Subject for self-owning roles.
	OwnerScope string `json:"owner_scope,omitempty"`

	// IssuedAt is when the credential was issued.
	IssuedAt time.Time `json:"-"`

	// ExpiresAt is when the credential expires.
	ExpiresAt time.Time `json:"-"`
}

// rawClaims is the wire shape of the token payload.
type rawClaims struct {
	Subject    string      `json:"sub"`
	Role       string      `json:"role"`
	Email      string      `json:"email"`
	OwnerScope string      `json:"owner_scope"`
	IssuedAt   json.Number `json:"iat"`
	ExpiresAt  json.Number `json:"exp"`
}

// parseClaims decodes a token payload into Claims. Role and owner-scope
// defaulting is applied by the validator, not here, so the leniency flag
// stays in one place.
func parseClaims(payload []byte) (*Claims, string, error) {
	var raw rawClaims
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, "", fmt.Errorf("failed to parse payload: %w", err)
	}

	claims := &Claims{
		Subject:    raw.Subject,
		Email:      raw.Email,
		OwnerScope: raw.OwnerScope,
	}

	if raw.IssuedAt != "" {
		iat, err := raw.IssuedAt.Float64()
		if err != nil {
			return nil, "", fmt.Errorf("invalid iat claim: %w", err)
		}
		claims.IssuedAt = time.Unix(int64(iat), 0)
	}

	if raw.ExpiresAt != "" {
		exp, err := raw.ExpiresAt.Float64()
		if err != nil {
			return nil, "", fmt.Errorf("invalid exp claim: %w", err)
		}
		claims.ExpiresAt = time.Unix(int64(exp), 0)
	}

	return claims, raw.Role, nil
}

// Expired reports whether the claims have expired at the given instant,
// allowing the configured clock skew. A zero expiry never expires.
func (c *Claims) Expired(now time.Time, skew time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return now.After(c.ExpiresAt.Add(skew))
}
