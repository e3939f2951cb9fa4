package transit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/transitops/gatekeeper/internal/cache"
	"github.com/transitops/gatekeeper/internal/observability"
	"github.com/transitops/gatekeeper/internal/ownership"
)

// Service exposes the transit operations invoked by the HTTP handlers.
// Role authorization has already happened by the time a service method
// runs; the service enforces only the instance-level ownership check,
// then writes, then invalidates the read cache. Invalidation always
// runs after the repository write returns, never before.
type Service struct {
	repo        Repository
	guard       *ownership.Guard
	coordinator *cache.Coordinator
	readCache   cache.Cache
	logger      observability.Logger
	now         func() time.Time
}

// ServiceOption is a functional option for the service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger.
func WithServiceLogger(logger observability.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithServiceClock sets the time source, for tests.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates the transit service. The ownership guard reads the
// owner projection straight from the repository.
func NewService(repo Repository, readCache cache.Cache, opts ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("repository is required")
	}
	if readCache == nil {
		readCache = cache.NewMemoryCache(nil)
	}

	s := &Service{
		repo:      repo,
		readCache: readCache,
		logger:    observability.NopLogger(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	guard, err := ownership.NewGuard(
		ownership.OwnerFetcherFunc(func(ctx context.Context, id string) (string, error) {
			owner, err := repo.BusOwner(ctx, id)
			if errors.Is(err, ErrNotFound) {
				return "", ownership.ErrEntityNotFound
			}
			return owner, err
		}),
		ownership.WithGuardLogger(s.logger),
	)
	if err != nil {
		return nil, err
	}
	s.guard = guard

	s.coordinator = cache.NewCoordinator(readCache,
		cache.WithCoordinatorLogger(s.logger),
		cache.WithAggregateViews(KindBus, ViewAll, ViewLive),
		cache.WithAggregateViews(KindRoute, ViewAll),
	)

	return s, nil
}

// CreateRoute creates a route with a fresh id.
func (s *Service) CreateRoute(ctx context.Context, name string, stops []string) (Route, error) {
	if name == "" {
		return Route{}, fmt.Errorf("%w: route name is required", ErrInvalidArgument)
	}

	route := Route{ID: uuid.NewString(), Name: name, Stops: stops}
	if err := s.repo.CreateRoute(ctx, route); err != nil {
		return Route{}, err
	}

	s.coordinator.EntityChanged(ctx, KindRoute, route.ID, "")
	return route, nil
}

// GetRoute returns one route, read through the cache.
func (s *Service) GetRoute(ctx context.Context, id string) (Route, error) {
	var route Route
	if s.cachedGet(ctx, cache.EntityKey(KindRoute, id), &route) {
		return route, nil
	}

	route, err := s.repo.GetRoute(ctx, id)
	if err != nil {
		return Route{}, err
	}

	s.cachedSet(ctx, cache.EntityKey(KindRoute, id), route)
	return route, nil
}

// ListRoutes returns all routes, read through the cache.
func (s *Service) ListRoutes(ctx context.Context) ([]Route, error) {
	var routes []Route
	if s.cachedGet(ctx, cache.AggregateKey(KindRoute, ViewAll), &routes) {
		return routes, nil
	}

	routes, err := s.repo.ListRoutes(ctx)
	if err != nil {
		return nil, err
	}

	s.cachedSet(ctx, cache.AggregateKey(KindRoute, ViewAll), routes)
	return routes, nil
}

// DeleteRoute removes a route.
func (s *Service) DeleteRoute(ctx context.Context, id string) error {
	if err := s.repo.DeleteRoute(ctx, id); err != nil {
		return err
	}

	s.coordinator.EntityChanged(ctx, KindRoute, id, "")
	return nil
}

// CreateBus creates a bus under the given owner scope. Ownership is
// fixed here and never changes afterwards. An empty scope is rejected
// as invalid input, not as an internal failure; admin credentials carry
// no scope of their own and must name one explicitly.
func (s *Service) CreateBus(ctx context.Context, routeID, ownerScope string) (Bus, error) {
	if ownerScope == "" {
		return Bus{}, fmt.Errorf("%w: bus owner is required", ErrInvalidArgument)
	}
	if _, err := s.repo.GetRoute(ctx, routeID); err != nil {
		return Bus{}, fmt.Errorf("route %s: %w", routeID, err)
	}

	bus := Bus{ID: uuid.NewString(), RouteID: routeID, Owner: ownerScope}
	if err := s.repo.CreateBus(ctx, bus); err != nil {
		return Bus{}, err
	}

	s.coordinator.EntityChanged(ctx, KindBus, bus.ID, bus.Owner)
	return bus, nil
}

// GetBus returns one bus, read through the cache.
func (s *Service) GetBus(ctx context.Context, id string) (Bus, error) {
	var bus Bus
	if s.cachedGet(ctx, cache.EntityKey(KindBus, id), &bus) {
		return bus, nil
	}

	bus, err := s.repo.GetBus(ctx, id)
	if err != nil {
		return Bus{}, err
	}

	s.cachedSet(ctx, cache.EntityKey(KindBus, id), bus)
	return bus, nil
}

// ListBuses returns all buses, read through the cache.
func (s *Service) ListBuses(ctx context.Context) ([]Bus, error) {
	var buses []Bus
	if s.cachedGet(ctx, cache.AggregateKey(KindBus, ViewAll), &buses) {
		return buses, nil
	}

	buses, err := s.repo.ListBuses(ctx)
	if err != nil {
		return nil, err
	}

	s.cachedSet(ctx, cache.AggregateKey(KindBus, ViewAll), buses)
	return buses, nil
}

// ListBusesForOwner returns the caller's buses, read through the cache.
func (s *Service) ListBusesForOwner(ctx context.Context, ownerScope string) ([]Bus, error) {
	var buses []Bus
	if s.cachedGet(ctx, cache.OwnerListKey(KindBus, ownerScope), &buses) {
		return buses, nil
	}

	buses, err := s.repo.ListBusesByOwner(ctx, ownerScope)
	if err != nil {
		return nil, err
	}

	s.cachedSet(ctx, cache.OwnerListKey(KindBus, ownerScope), buses)
	return buses, nil
}

// ListLiveBuses returns buses currently marked live, read through the
// cache.
func (s *Service) ListLiveBuses(ctx context.Context) ([]Bus, error) {
	var live []Bus
	if s.cachedGet(ctx, cache.AggregateKey(KindBus, ViewLive), &live) {
		return live, nil
	}

	buses, err := s.repo.ListBuses(ctx)
	if err != nil {
		return nil, err
	}

	live = make([]Bus, 0)
	for _, bus := range buses {
		if bus.Live {
			live = append(live, bus)
		}
	}

	s.cachedSet(ctx, cache.AggregateKey(KindBus, ViewLive), live)
	return live, nil
}

// SetBusLive flips a bus's live flag. Ownership-guarded.
func (s *Service) SetBusLive(ctx context.Context, id, callerScope string, live bool) (Bus, error) {
	if err := s.checkOwnership(ctx, id, callerScope); err != nil {
		return Bus{}, err
	}

	bus, err := s.repo.GetBus(ctx, id)
	if err != nil {
		return Bus{}, err
	}

	bus.Live = live
	if err := s.repo.UpdateBus(ctx, bus); err != nil {
		return Bus{}, err
	}

	s.coordinator.EntityChanged(ctx, KindBus, bus.ID, bus.Owner)
	return bus, nil
}

// DeleteBus removes a bus. Ownership-guarded.
func (s *Service) DeleteBus(ctx context.Context, id, callerScope string) error {
	if err := s.checkOwnership(ctx, id, callerScope); err != nil {
		return err
	}

	bus, err := s.repo.GetBus(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteBus(ctx, id); err != nil {
		return err
	}

	s.coordinator.EntityChanged(ctx, KindBus, id, bus.Owner)
	return nil
}

// ReportPosition records a bus's live position. Ownership-guarded.
func (s *Service) ReportPosition(ctx context.Context, busID, callerScope string, lat, lon float64) (Position, error) {
	if err := s.checkOwnership(ctx, busID, callerScope); err != nil {
		return Position{}, err
	}

	pos := Position{BusID: busID, Lat: lat, Lon: lon, At: s.now().UTC()}
	if err := s.repo.UpsertPosition(ctx, pos); err != nil {
		return Position{}, err
	}

	bus, err := s.repo.GetBus(ctx, busID)
	if err != nil {
		return Position{}, err
	}

	s.coordinator.EntityChanged(ctx, KindBus, busID, bus.Owner)
	return pos, nil
}

// GetPosition returns a bus's last reported position.
func (s *Service) GetPosition(ctx context.Context, busID string) (Position, error) {
	return s.repo.GetPosition(ctx, busID)
}

// checkOwnership maps the guard's tri-state onto the domain errors the
// handlers translate to 404 and 403.
func (s *Service) checkOwnership(ctx context.Context, id, callerScope string) error {
	status, err := s.guard.Check(ctx, id, callerScope)
	if err != nil {
		return err
	}

	switch status {
	case ownership.StatusNotFound:
		return fmt.Errorf("bus %s: %w", id, ErrNotFound)
	case ownership.StatusForbidden:
		return fmt.Errorf("bus %s: %w", id, ErrForbidden)
	default:
		return nil
	}
}

// cachedGet loads and decodes a cache entry. A miss or a decode failure
// falls back to the repository.
func (s *Service) cachedGet(ctx context.Context, key string, out interface{}) bool {
	data, err := s.readCache.Get(ctx, key)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.logger.Warn("discarding undecodable cache entry",
			observability.String("key", key),
			observability.Error(err),
		)
		_ = s.readCache.Delete(ctx, key)
		return false
	}
	return true
}

// cachedSet encodes and stores a cache entry, best-effort.
func (s *Service) cachedSet(ctx context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.readCache.Set(ctx, key, data, 0); err != nil {
		s.logger.Warn("cache set failed",
			observability.String("key", key),
			observability.Error(err),
		)
	}
}
