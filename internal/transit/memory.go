package transit

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository is an in-memory Repository for tests and
// single-process deployments.
type MemoryRepository struct {
	mu        sync.RWMutex
	routes    map[string]Route
	buses     map[string]Bus
	positions map[string]Position
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		routes:    make(map[string]Route),
		buses:     make(map[string]Bus),
		positions: make(map[string]Position),
	}
}

// CreateRoute implements Repository.
func (r *MemoryRepository) CreateRoute(_ context.Context, route Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[route.ID] = route
	return nil
}

// GetRoute implements Repository.
func (r *MemoryRepository) GetRoute(_ context.Context, id string) (Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	route, ok := r.routes[id]
	if !ok {
		return Route{}, ErrNotFound
	}
	return route, nil
}

// ListRoutes implements Repository.
func (r *MemoryRepository) ListRoutes(_ context.Context) ([]Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make([]Route, 0, len(r.routes))
	for _, route := range r.routes {
		routes = append(routes, route)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].ID < routes[j].ID })
	return routes, nil
}

// DeleteRoute implements Repository.
func (r *MemoryRepository) DeleteRoute(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.routes[id]; !ok {
		return ErrNotFound
	}
	delete(r.routes, id)
	return nil
}

// CreateBus implements Repository.
func (r *MemoryRepository) CreateBus(_ context.Context, bus Bus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buses[bus.ID] = bus
	return nil
}

// GetBus implements Repository.
func (r *MemoryRepository) GetBus(_ context.Context, id string) (Bus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bus, ok := r.buses[id]
	if !ok {
		return Bus{}, ErrNotFound
	}
	return bus, nil
}

// ListBuses implements Repository.
func (r *MemoryRepository) ListBuses(_ context.Context) ([]Bus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	buses := make([]Bus, 0, len(r.buses))
	for _, bus := range r.buses {
		buses = append(buses, bus)
	}
	sort.Slice(buses, func(i, j int) bool { return buses[i].ID < buses[j].ID })
	return buses, nil
}

// ListBusesByOwner implements Repository.
func (r *MemoryRepository) ListBusesByOwner(_ context.Context, owner string) ([]Bus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	buses := make([]Bus, 0)
	for _, bus := range r.buses {
		if bus.Owner == owner {
			buses = append(buses, bus)
		}
	}
	sort.Slice(buses, func(i, j int) bool { return buses[i].ID < buses[j].ID })
	return buses, nil
}

// UpdateBus implements Repository.
func (r *MemoryRepository) UpdateBus(_ context.Context, bus Bus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.buses[bus.ID]; !ok {
		return ErrNotFound
	}
	r.buses[bus.ID] = bus
	return nil
}

// DeleteBus implements Repository.
func (r *MemoryRepository) DeleteBus(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.buses[id]; !ok {
		return ErrNotFound
	}
	delete(r.buses, id)
	delete(r.positions, id)
	return nil
}

// BusOwner implements Repository.
func (r *MemoryRepository) BusOwner(_ context.Context, id string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bus, ok := r.buses[id]
	if !ok {
		return "", ErrNotFound
	}
	return bus.Owner, nil
}

// UpsertPosition implements Repository.
func (r *MemoryRepository) UpsertPosition(_ context.Context, pos Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.buses[pos.BusID]; !ok {
		return ErrNotFound
	}
	r.positions[pos.BusID] = pos
	return nil
}

// GetPosition implements Repository.
func (r *MemoryRepository) GetPosition(_ context.Context, busID string) (Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pos, ok := r.positions[busID]
	if !ok {
		return Position{}, ErrNotFound
	}
	return pos, nil
}

// Ensure MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)
