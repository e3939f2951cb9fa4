package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/transitops/gatekeeper/internal/gatekeeper"
	"github.com/transitops/gatekeeper/internal/observability"
	"github.com/transitops/gatekeeper/internal/ratelimit"
)

// RouterDeps carries everything the router needs.
type RouterDeps struct {
	Gatekeeper *gatekeeper.Gatekeeper
	Limiter    ratelimit.Limiter
	Handlers   *Handlers
	Logger     observability.Logger

	// Gatherers are the per-package metric registries exposed on
	// /metrics.
	Gatherers []prometheus.Gatherer
}

// NewRouter builds the gin engine. Health and metrics endpoints sit
// outside the stage group and bypass the gatekeeper; everything under
// the stage prefix runs the full pipeline.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	logger := deps.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	engine := gin.New()
	engine.Use(RequestID(), Tracing(), Recovery(logger), Logging(logger))

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if len(deps.Gatherers) > 0 {
		handler := promhttp.HandlerFor(prometheus.Gatherers(deps.Gatherers), promhttp.HandlerOpts{})
		engine.GET("/metrics", gin.WrapH(handler))
	}

	stage := engine.Group("/:stage")
	stage.Use(Gatekeeper(deps.Gatekeeper))
	if deps.Limiter != nil {
		stage.Use(RateLimit(deps.Limiter))
	}

	h := deps.Handlers

	stage.GET("/admin/routes", h.AdminRoutes)

	stage.GET("/routes", h.ListRoutes)
	stage.POST("/routes", h.CreateRoute)
	stage.GET("/routes/:id", h.GetRoute)
	stage.DELETE("/routes/:id", h.DeleteRoute)

	stage.GET("/buses", h.ListBuses)
	stage.POST("/buses", h.CreateBus)
	stage.GET("/buses/:id", h.GetBus)
	stage.PUT("/buses/:id", h.UpdateBus)
	stage.DELETE("/buses/:id", h.DeleteBus)
	stage.PUT("/buses/:id/position", h.ReportPosition)
	stage.GET("/buses/:id/position", h.GetPosition)

	return engine
}
