// Package ownership enforces instance-level access on owner-scoped
// entities. It runs after role authorization: a caller whose role
// permits the operation can still be forbidden on a specific entity it
// does not own.
package ownership

import (
	"context"
	"errors"
	"fmt"

	"github.com/transitops/gatekeeper/internal/observability"
)

// ErrEntityNotFound indicates the entity does not exist. OwnerFetcher
// implementations return it (or wrap it) for absent ids.
var ErrEntityNotFound = errors.New("entity not found")

// Status is the outcome of an ownership check.
type Status int

const (
	// StatusNotFound means the entity does not exist. Surfaced as 404.
	StatusNotFound Status = iota

	// StatusForbidden means the entity exists but belongs to a different
	// owner scope. Surfaced as 403, deliberately distinct from NotFound
	// so a caller denied on an existing entity is not told it is absent.
	StatusForbidden

	// StatusOwned means the caller owns the entity and may proceed.
	StatusOwned
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusNotFound:
		return "NotFound"
	case StatusForbidden:
		return "Forbidden"
	case StatusOwned:
		return "Owned"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// OwnerFetcher fetches only the owner projection of an entity, not the
// full record. Returns ErrEntityNotFound when the id does not exist.
type OwnerFetcher interface {
	FetchOwner(ctx context.Context, id string) (string, error)
}

// OwnerFetcherFunc adapts a function to the OwnerFetcher interface.
type OwnerFetcherFunc func(ctx context.Context, id string) (string, error)

// FetchOwner implements OwnerFetcher.
func (f OwnerFetcherFunc) FetchOwner(ctx context.Context, id string) (string, error) {
	return f(ctx, id)
}

// Guard checks entity ownership against the caller's owner scope.
type Guard struct {
	fetcher OwnerFetcher
	logger  observability.Logger
}

// GuardOption is a functional option for the guard.
type GuardOption func(*Guard)

// WithGuardLogger sets the logger.
func WithGuardLogger(logger observability.Logger) GuardOption {
	return func(g *Guard) {
		g.logger = logger
	}
}

// NewGuard creates a guard over the given owner projection.
func NewGuard(fetcher OwnerFetcher, opts ...GuardOption) (*Guard, error) {
	if fetcher == nil {
		return nil, errors.New("owner fetcher is required")
	}

	g := &Guard{
		fetcher: fetcher,
		logger:  observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// Check resolves the entity's owner and compares it to the caller's
// owner scope. Fetch errors other than ErrEntityNotFound are returned
// to the caller; ownership cannot be decided without the projection.
func (g *Guard) Check(ctx context.Context, id, callerScope string) (Status, error) {
	owner, err := g.fetcher.FetchOwner(ctx, id)
	if err != nil {
		if errors.Is(err, ErrEntityNotFound) {
			return StatusNotFound, nil
		}
		return StatusNotFound, fmt.Errorf("fetch owner for %s: %w", id, err)
	}

	if owner != callerScope {
		g.logger.Debug("ownership mismatch",
			observability.String("entityId", id),
			observability.String("owner", owner),
			observability.String("callerScope", callerScope),
		)
		return StatusForbidden, nil
	}

	return StatusOwned, nil
}
