package auth

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"hash"
	"math/big"
	"strings"
	"time"

	"github.com/transitops/gatekeeper/internal/observability"
)

// Validator verifies bearer credentials and extracts caller claims.
type Validator interface {
	// Validate verifies a bearer credential (with or without the scheme
	// prefix) and returns the caller claims.
	Validate(ctx context.Context, credential string) (*Claims, error)
}

// validator implements the Validator interface.
type validator struct {
	config  *Config
	logger  observability.Logger
	metrics *Metrics
	now     func() time.Time
}

// ValidatorOption is a functional option for the validator.
type ValidatorOption func(*validator)

// WithValidatorLogger sets the logger for the validator.
func WithValidatorLogger(logger observability.Logger) ValidatorOption {
	return func(v *validator) {
		v.logger = logger
	}
}

// WithValidatorMetrics sets the metrics for the validator.
func WithValidatorMetrics(metrics *Metrics) ValidatorOption {
	return func(v *validator) {
		v.metrics = metrics
	}
}

// WithValidatorClock sets the time source, for tests.
func WithValidatorClock(now func() time.Time) ValidatorOption {
	return func(v *validator) {
		v.now = now
	}
}

// NewValidator creates a new token validator.
func NewValidator(config *Config, opts ...ValidatorOption) (Validator, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid validator config: %w", err)
	}

	v := &validator{
		config: config,
		logger: observability.NopLogger(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(v)
	}

	if v.metrics == nil {
		v.metrics = NewMetrics("gatekeeper")
	}

	return v, nil
}

// tokenHeader represents the token header.
type tokenHeader struct {
	Algorithm string `json:"alg"`
	Type      string `json:"typ"`
	KeyID     string `json:"kid"`
}

// Validate verifies a bearer credential and returns the caller claims.
func (v *validator) Validate(ctx context.Context, credential string) (*Claims, error) {
	start := v.now()

	token, err := ExtractBearer(credential)
	if err != nil {
		v.metrics.RecordValidation("error", "missing", time.Since(start))
		return nil, err
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		v.metrics.RecordValidation("error", "malformed", time.Since(start))
		return nil, NewValidationError("token is not a compact JWS", ErrInvalidCredential)
	}

	header, err := v.decodeHeader(parts[0])
	if err != nil {
		v.metrics.RecordValidation("error", "invalid_header", time.Since(start))
		return nil, NewValidationError("failed to decode header", ErrInvalidCredential)
	}

	if err := v.validateAlgorithm(header.Algorithm); err != nil {
		v.metrics.RecordValidation("error", "invalid_algorithm", time.Since(start))
		return nil, err
	}

	claims, roleClaim, err := v.decodePayload(parts[1])
	if err != nil {
		v.metrics.RecordValidation("error", "invalid_payload", time.Since(start))
		return nil, NewValidationError("failed to decode payload", ErrInvalidCredential)
	}

	if err := v.verifySignature(header, parts[0]+"."+parts[1], parts[2]); err != nil {
		v.metrics.RecordValidation("error", "invalid_signature", time.Since(start))
		return nil, err
	}

	if claims.Expired(v.now(), v.config.GetEffectiveClockSkew()) {
		v.metrics.RecordValidation("error", "expired", time.Since(start))
		return nil, NewValidationError("token has expired", ErrExpiredCredential)
	}

	if err := v.resolveRole(claims, roleClaim); err != nil {
		v.metrics.RecordValidation("error", "unknown_role", time.Since(start))
		return nil, err
	}

	// Operators own the vehicles attributed to their own subject unless the
	// issuer scoped them elsewhere.
	if claims.OwnerScope == "" && claims.Role.SelfOwning() {
		claims.OwnerScope = claims.Subject
	}

	v.metrics.RecordValidation("success", header.Algorithm, time.Since(start))
	v.logger.Debug("credential validated",
		observability.String("subject", claims.Subject),
		observability.String("role", claims.Role.String()),
	)

	return claims, nil
}

// resolveRole applies the configured missing-role leniency.
func (v *validator) resolveRole(claims *Claims, roleClaim string) error {
	if roleClaim == "" {
		if !v.config.AllowMissingRole {
			return NewValidationError("role claim is absent", ErrUnknownRole)
		}
		claims.Role = v.config.DefaultRole
		return nil
	}

	role, err := ParseRole(roleClaim)
	if err != nil {
		return NewValidationError("role claim is invalid", err)
	}
	claims.Role = role
	return nil
}

// decodeHeader decodes the token header.
func (v *validator) decodeHeader(encoded string) (*tokenHeader, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}

	var header tokenHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	return &header, nil
}

// decodePayload decodes the token payload.
func (v *validator) decodePayload(encoded string) (*Claims, string, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode payload: %w", err)
	}

	return parseClaims(data)
}

// validateAlgorithm enforces the algorithm allow-list. "none" and any
// algorithm outside the list are rejected before any key lookup.
func (v *validator) validateAlgorithm(alg string) error {
	for _, allowed := range v.config.Algorithms {
		if alg == allowed {
			return nil
		}
	}

	return NewValidationError(fmt.Sprintf("algorithm %q is not allowed", alg), ErrUnsupportedAlgorithm)
}

// verifySignature verifies the token signature.
func (v *validator) verifySignature(header *tokenHeader, signingInput, signature string) error {
	sigBytes, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return NewValidationError("failed to decode signature", ErrInvalidCredential)
	}

	switch header.Algorithm {
	case AlgHS256:
		return v.verifyHMAC(signingInput, sigBytes, sha256.New)
	case AlgHS384:
		return v.verifyHMAC(signingInput, sigBytes, sha512.New384)
	case AlgHS512:
		return v.verifyHMAC(signingInput, sigBytes, sha512.New)
	case AlgRS256:
		return v.verifyRSA(header.KeyID, signingInput, sigBytes, crypto.SHA256)
	case AlgRS384:
		return v.verifyRSA(header.KeyID, signingInput, sigBytes, crypto.SHA384)
	case AlgRS512:
		return v.verifyRSA(header.KeyID, signingInput, sigBytes, crypto.SHA512)
	case AlgES256:
		return v.verifyECDSA(header.KeyID, signingInput, sigBytes, crypto.SHA256)
	case AlgES384:
		return v.verifyECDSA(header.KeyID, signingInput, sigBytes, crypto.SHA384)
	case AlgES512:
		return v.verifyECDSA(header.KeyID, signingInput, sigBytes, crypto.SHA512)
	default:
		return NewValidationError(fmt.Sprintf("unsupported algorithm: %s", header.Algorithm), ErrUnsupportedAlgorithm)
	}
}

// verifyHMAC verifies an HMAC signature.
func (v *validator) verifyHMAC(signingInput string, signature []byte, hashFunc func() hash.Hash) error {
	mac := hmac.New(hashFunc, v.config.HMACSecret)
	mac.Write([]byte(signingInput))
	expected := mac.Sum(nil)

	if !hmac.Equal(signature, expected) {
		return NewValidationError("HMAC signature verification failed", ErrInvalidCredential)
	}

	return nil
}

// verifyRSA verifies an RSA PKCS#1 v1.5 signature.
func (v *validator) verifyRSA(keyID, signingInput string, signature []byte, hashAlg crypto.Hash) error {
	key, err := v.rsaKey(keyID)
	if err != nil {
		return err
	}

	h := hashAlg.New()
	h.Write([]byte(signingInput))
	hashed := h.Sum(nil)

	if err := rsa.VerifyPKCS1v15(key, hashAlg, hashed, signature); err != nil {
		return NewValidationError("RSA signature verification failed", ErrInvalidCredential)
	}

	return nil
}

// verifyECDSA verifies an ECDSA signature. JWS carries the signature as
// the raw r || s concatenation, not ASN.1.
func (v *validator) verifyECDSA(keyID, signingInput string, signature []byte, hashAlg crypto.Hash) error {
	key, err := v.ecdsaKey(keyID)
	if err != nil {
		return err
	}

	keySize := (key.Curve.Params().BitSize + 7) / 8
	if len(signature) != 2*keySize {
		return NewValidationError("invalid ECDSA signature length", ErrInvalidCredential)
	}

	h := hashAlg.New()
	h.Write([]byte(signingInput))
	hashed := h.Sum(nil)

	r := new(big.Int).SetBytes(signature[:keySize])
	s := new(big.Int).SetBytes(signature[keySize:])

	if !ecdsa.Verify(key, hashed, r, s) {
		return NewValidationError("ECDSA signature verification failed", ErrInvalidCredential)
	}

	return nil
}

// rsaKey resolves an RSA verification key by id. An empty kid is accepted
// when exactly one key is configured.
func (v *validator) rsaKey(keyID string) (*rsa.PublicKey, error) {
	if key, ok := v.config.RSAKeys[keyID]; ok {
		return key, nil
	}
	if keyID == "" && len(v.config.RSAKeys) == 1 {
		for _, key := range v.config.RSAKeys {
			return key, nil
		}
	}
	return nil, NewValidationError(fmt.Sprintf("no RSA key for kid %q", keyID), ErrKeyNotFound)
}

// ecdsaKey resolves an ECDSA verification key by id.
func (v *validator) ecdsaKey(keyID string) (*ecdsa.PublicKey, error) {
	if key, ok := v.config.ECDSAKeys[keyID]; ok {
		return key, nil
	}
	if keyID == "" && len(v.config.ECDSAKeys) == 1 {
		for _, key := range v.config.ECDSAKeys {
			return key, nil
		}
	}
	return nil, NewValidationError(fmt.Sprintf("no ECDSA key for kid %q", keyID), ErrKeyNotFound)
}

// Ensure validator implements Validator.
var _ Validator = (*validator)(nil)
