package transit

import "context"

// Repository is the durable store for transit entities. Writes must be
// committed before any cache invalidation runs.
type Repository interface {
	CreateRoute(ctx context.Context, route Route) error
	GetRoute(ctx context.Context, id string) (Route, error)
	ListRoutes(ctx context.Context) ([]Route, error)
	DeleteRoute(ctx context.Context, id string) error

	CreateBus(ctx context.Context, bus Bus) error
	GetBus(ctx context.Context, id string) (Bus, error)
	ListBuses(ctx context.Context) ([]Bus, error)
	ListBusesByOwner(ctx context.Context, owner string) ([]Bus, error)
	UpdateBus(ctx context.Context, bus Bus) error
	DeleteBus(ctx context.Context, id string) error

	// BusOwner returns only the owner projection of a bus, for the
	// ownership check ahead of mutations.
	BusOwner(ctx context.Context, id string) (string, error)

	UpsertPosition(ctx context.Context, pos Position) error
	GetPosition(ctx context.Context, busID string) (Position, error)
}
