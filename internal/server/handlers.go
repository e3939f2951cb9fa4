package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/transitops/gatekeeper/internal/observability"
	"github.com/transitops/gatekeeper/internal/transit"
)

// Handlers holds the transit HTTP handlers. Role authorization and rate
// limiting have already run by the time a handler executes; the
// handlers pass the caller's owner scope down for the instance-level
// check.
type Handlers struct {
	svc    *transit.Service
	logger observability.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(svc *transit.Service, logger observability.Logger) *Handlers {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Handlers{svc: svc, logger: logger}
}

type createRouteRequest struct {
	Name  string   `json:"name" binding:"required"`
	Stops []string `json:"stops"`
}

type createBusRequest struct {
	RouteID string `json:"routeId" binding:"required"`

	// Owner is honored only for callers without an owner scope of
	// their own (admins). Operators always own the buses they create.
	Owner string `json:"owner"`
}

type updateBusRequest struct {
	Live bool `json:"live"`
}

type positionRequest struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// AdminRoutes returns the administration view of the route table.
func (h *Handlers) AdminRoutes(c *gin.Context) {
	routes, err := h.svc.ListRoutes(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"routes": routes, "count": len(routes)})
}

// ListRoutes returns all routes.
func (h *Handlers) ListRoutes(c *gin.Context) {
	routes, err := h.svc.ListRoutes(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, routes)
}

// CreateRoute creates a route.
func (h *Handlers) CreateRoute(c *gin.Context) {
	var req createRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	route, err := h.svc.CreateRoute(c.Request.Context(), req.Name, req.Stops)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, route)
}

// GetRoute returns one route.
func (h *Handlers) GetRoute(c *gin.Context) {
	route, err := h.svc.GetRoute(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, route)
}

// DeleteRoute removes a route.
func (h *Handlers) DeleteRoute(c *gin.Context) {
	if err := h.svc.DeleteRoute(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListBuses returns buses. The view query parameter selects the "live"
// subset or the caller's own buses ("mine"); absent, all buses.
func (h *Handlers) ListBuses(c *gin.Context) {
	var (
		buses []transit.Bus
		err   error
	)

	switch view := c.Query("view"); view {
	case "":
		buses, err = h.svc.ListBuses(c.Request.Context())
	case "live":
		buses, err = h.svc.ListLiveBuses(c.Request.Context())
	case "mine":
		claims := ClaimsFrom(c)
		if claims == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "credential missing"})
			return
		}
		buses, err = h.svc.ListBusesForOwner(c.Request.Context(), claims.OwnerScope)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown view: " + view})
		return
	}

	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, buses)
}

// CreateBus creates a bus. An operator's bus is owned by the operator's
// own scope regardless of the request body; an admin names the owner in
// the body.
func (h *Handlers) CreateBus(c *gin.Context) {
	claims := ClaimsFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "credential missing"})
		return
	}

	var req createBusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	owner := claims.OwnerScope
	if owner == "" {
		owner = req.Owner
	}

	bus, err := h.svc.CreateBus(c.Request.Context(), req.RouteID, owner)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bus)
}

// GetBus returns one bus.
func (h *Handlers) GetBus(c *gin.Context) {
	bus, err := h.svc.GetBus(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bus)
}

// UpdateBus flips a bus's live flag, ownership-guarded.
func (h *Handlers) UpdateBus(c *gin.Context) {
	claims := ClaimsFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "credential missing"})
		return
	}

	var req updateBusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	bus, err := h.svc.SetBusLive(c.Request.Context(), c.Param("id"), claims.OwnerScope, req.Live)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bus)
}

// DeleteBus removes a bus, ownership-guarded.
func (h *Handlers) DeleteBus(c *gin.Context) {
	claims := ClaimsFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "credential missing"})
		return
	}

	if err := h.svc.DeleteBus(c.Request.Context(), c.Param("id"), claims.OwnerScope); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ReportPosition records a bus position, ownership-guarded.
func (h *Handlers) ReportPosition(c *gin.Context) {
	claims := ClaimsFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "credential missing"})
		return
	}

	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	pos, err := h.svc.ReportPosition(c.Request.Context(), c.Param("id"), claims.OwnerScope, req.Lat, req.Lon)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pos)
}

// GetPosition returns a bus's last reported position.
func (h *Handlers) GetPosition(c *gin.Context) {
	pos, err := h.svc.GetPosition(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pos)
}

// respondError maps domain errors onto status codes. NotFound and
// Forbidden stay distinct so a caller denied on an existing entity is
// not told it is absent.
func (h *Handlers) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, transit.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, transit.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, transit.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	default:
		h.logger.Error("handler failed",
			observability.String("path", c.Request.URL.Path),
			observability.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
