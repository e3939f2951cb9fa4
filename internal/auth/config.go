package auth

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"fmt"
	"time"
)

// Config holds token validation configuration.
type Config struct {
	// Algorithms is the explicit allow-list of signing algorithms. A token
	// whose header names any other algorithm (including "none") is
	// rejected before signature verification.
	Algorithms []string `yaml:"algorithms" json:"algorithms"`

	// HMACSecret is the shared secret for HS* algorithms.
	HMACSecret []byte `yaml:"-" json:"-"`

	// RSAKeys maps key ids to RSA public keys for RS* algorithms.
	RSAKeys map[string]*rsa.PublicKey `yaml:"-" json:"-"`

	// ECDSAKeys maps key ids to ECDSA public keys for ES* algorithms.
	ECDSAKeys map[string]*ecdsa.PublicKey `yaml:"-" json:"-"`

	// ClockSkew is the allowed clock skew for expiry checks.
	ClockSkew time.Duration `yaml:"clockSkew" json:"clockSkew"`

	// AllowMissingRole controls the leniency for credentials without a
	// role claim. When true the role defaults to DefaultRole; when false
	// such credentials are rejected with ErrUnknownRole.
	AllowMissingRole bool `yaml:"allowMissingRole" json:"allowMissingRole"`

	// DefaultRole is the role assumed when AllowMissingRole is true and
	// the role claim is absent.
	DefaultRole Role `yaml:"defaultRole" json:"defaultRole"`
}

// DefaultConfig returns a Config with default values. The missing-role
// leniency mirrors the historical behavior of the service: absent role
// claims fall back to the lowest-privilege role.
func DefaultConfig() *Config {
	return &Config{
		Algorithms:       []string{AlgHS256},
		ClockSkew:        30 * time.Second,
		AllowMissingRole: true,
		DefaultRole:      RoleViewer,
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if len(c.Algorithms) == 0 {
		return fmt.Errorf("at least one allowed algorithm is required")
	}

	for _, alg := range c.Algorithms {
		switch alg {
		case AlgHS256, AlgHS384, AlgHS512:
			if len(c.HMACSecret) == 0 {
				return fmt.Errorf("algorithm %s requires an HMAC secret", alg)
			}
		case AlgRS256, AlgRS384, AlgRS512:
			if len(c.RSAKeys) == 0 {
				return fmt.Errorf("algorithm %s requires RSA public keys", alg)
			}
		case AlgES256, AlgES384, AlgES512:
			if len(c.ECDSAKeys) == 0 {
				return fmt.Errorf("algorithm %s requires ECDSA public keys", alg)
			}
		default:
			return fmt.Errorf("unsupported algorithm in allow-list: %s", alg)
		}
	}

	if c.DefaultRole != "" {
		if _, err := ParseRole(string(c.DefaultRole)); err != nil {
			return err
		}
	}

	return nil
}

// GetEffectiveClockSkew returns the clock skew, defaulting when unset.
func (c *Config) GetEffectiveClockSkew() time.Duration {
	if c.ClockSkew <= 0 {
		return 30 * time.Second
	}
	return c.ClockSkew
}
