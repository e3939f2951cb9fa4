package auth

import "strings"

// bearerPrefix is the credential scheme prefix stripped before validation.
const bearerPrefix = "Bearer "

// ExtractBearer extracts the raw token from a bearer credential string.
// The scheme prefix is optional; a request may present the token bare.
func ExtractBearer(credential string) (string, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return "", ErrMissingCredential
	}

	if len(credential) >= len(bearerPrefix) &&
		strings.EqualFold(credential[:len(bearerPrefix)], bearerPrefix) {
		credential = strings.TrimSpace(credential[len(bearerPrefix):])
	}

	if credential == "" {
		return "", ErrMissingCredential
	}

	return credential, nil
}
