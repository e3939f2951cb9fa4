// Package transit holds the transit-tracking domain: routes, buses and
// live positions, plus the repository and service over them. Buses are
// owner-scoped entities; their owner is set at creation and never
// transferred.
package transit

import (
	"errors"
	"time"
)

// Entity kinds used in cache keys.
const (
	KindRoute = "route"
	KindBus   = "bus"
)

// Aggregate view names used in cache keys.
const (
	ViewAll  = "all"
	ViewLive = "live"
)

// Domain errors mapped to HTTP status codes by the handlers.
var (
	// ErrNotFound indicates the entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates the entity exists but belongs to a
	// different owner scope.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidArgument indicates a request that passed authorization
	// but carries unusable input.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Route is a transit line with an ordered list of stops.
type Route struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Stops []string `json:"stops"`
}

// Bus is a vehicle assigned to a route. Owner is the operator's owner
// scope, fixed at creation.
type Bus struct {
	ID      string `json:"id"`
	RouteID string `json:"routeId"`
	Owner   string `json:"owner"`
	Live    bool   `json:"live"`
}

// Position is the last reported location of a bus.
type Position struct {
	BusID string    `json:"busId"`
	Lat   float64   `json:"lat"`
	Lon   float64   `json:"lon"`
	At    time.Time `json:"at"`
}
