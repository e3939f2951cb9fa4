package auth

import (
	"errors"
	"fmt"
)

// Signing algorithm constants.
const (
	AlgHS256 = "HS256"
	AlgHS384 = "HS384"
	AlgHS512 = "HS512"
	AlgRS256 = "RS256"
	AlgRS384 = "RS384"
	AlgRS512 = "RS512"
	AlgES256 = "ES256"
	AlgES384 = "ES384"
	AlgES512 = "ES512"
)

// Sentinel errors for credential validation.
var (
	// ErrMissingCredential indicates no bearer credential was presented.
	ErrMissingCredential = errors.New("credential is missing")

	// ErrInvalidCredential indicates the credential is malformed or its
	// signature does not verify.
	ErrInvalidCredential = errors.New("credential is invalid")

	// ErrExpiredCredential indicates the credential has expired.
	ErrExpiredCredential = errors.New("credential has expired")

	// ErrUnknownRole indicates the role claim carries a value outside the
	// closed role set.
	ErrUnknownRole = errors.New("role is not recognized")

	// ErrUnsupportedAlgorithm indicates the signing algorithm is not in the
	// configured allow-list.
	ErrUnsupportedAlgorithm = errors.New("signing algorithm is not allowed")

	// ErrKeyNotFound indicates no verification key matched the token.
	ErrKeyNotFound = errors.New("verification key not found")
)

// ValidationError wraps a credential validation failure with detail.
type ValidationError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("token validation error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("token validation error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok || errors.Is(e.Cause, target)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string, cause error) *ValidationError {
	return &ValidationError{Message: message, Cause: cause}
}
