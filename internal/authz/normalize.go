package authz

import (
	"fmt"
	"strings"
)

// NormalizePath strips the leading deployment-stage segment from a raw
// resource path so rules stay stage-independent. "/stage1/admin/routes"
// becomes "/admin/routes". Pure function; a path with fewer than two
// segments is malformed rather than guessed at.
func NormalizePath(raw string) (string, error) {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "", fmt.Errorf("%w: %q", ErrMalformedPath, raw)
	}

	segments := strings.Split(trimmed, "/")
	if len(segments) < 2 {
		return "", fmt.Errorf("%w: %q has no resource beyond the stage prefix", ErrMalformedPath, raw)
	}

	return "/" + strings.Join(segments[1:], "/"), nil
}
