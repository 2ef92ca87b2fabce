package api

import (
	"github.com/Conceptual-Machines/variation-explorer/internal/api/handlers"
	apimiddleware "github.com/Conceptual-Machines/variation-explorer/internal/api/middleware"
	"github.com/Conceptual-Machines/variation-explorer/internal/config"
	"github.com/Conceptual-Machines/variation-explorer/internal/generation"
	"github.com/Conceptual-Machines/variation-explorer/internal/metrics"
	"github.com/Conceptual-Machines/variation-explorer/internal/session"
	webhandlers "github.com/Conceptual-Machines/variation-explorer/internal/web/handlers"
	"github.com/gin-gonic/gin"
)

// Dependencies are the long-lived services the router is built on
type Dependencies struct {
	Sessions *session.Registry
	Store    generation.Store
	// StoreKind is reported by /health ("memory" or "postgres")
	StoreKind string
	Recorder  *metrics.Recorder
}

func SetupRouter(deps Dependencies, cfg *config.Config, version string) (*gin.Engine, error) {
	auth, err := apimiddleware.Auth(cfg)
	if err != nil {
		return nil, err
	}

	router := gin.New()

	// Recovery middleware (must be first)
	router.Use(apimiddleware.RecoverWithSentry())

	// Sentry middleware for error tracking
	router.Use(apimiddleware.SentryMiddleware())

	// Request tracking, structured logging and request metrics
	var recorder apimiddleware.RequestRecorder
	if deps.Recorder != nil {
		recorder = deps.Recorder
	}
	router.Use(apimiddleware.RequestTracking(recorder))

	// CORS middleware
	router.Use(apimiddleware.CORS())

	// Health check
	healthHandler := handlers.NewHealthHandler(cfg.BackendURL, deps.Sessions, deps.StoreKind)
	router.GET("/health", healthHandler.HealthCheck)

	// Metrics endpoints
	metricsHandler := handlers.NewMetricsHandler(version, cfg.BackendURL, deps.Sessions)
	router.GET("/api/metrics", metricsHandler.GetMetrics)
	router.GET("/metrics", gin.WrapH(metrics.PrometheusHandler()))

	// Web pages
	webHandler := webhandlers.NewWebHandler(deps.Sessions)
	router.GET("/", auth, webHandler.Home)
	router.GET("/sessions/:id", auth, webHandler.Session)

	v1 := router.Group("/api/v1")
	v1.Use(auth)
	{
		h := handlers.NewExplorationHandler(deps.Sessions, deps.Store)
		v1.POST("/sessions", h.CreateSession)
		v1.GET("/sessions/:id", h.GetSession)
		v1.DELETE("/sessions/:id", h.DeleteSession)
		v1.PATCH("/sessions/:id/center", h.UpdateCenter)
		v1.POST("/sessions/:id/locks/:field/toggle", h.ToggleLock)
		v1.POST("/sessions/:id/refresh", h.Refresh)
		v1.POST("/sessions/:id/cancel", h.Cancel)
		v1.POST("/sessions/:id/cells/:index/promote", h.Promote)
		v1.POST("/sessions/:id/sync", h.Sync)
		v1.GET("/sessions/:id/promotions", h.Promotions)
		v1.GET("/sessions/:id/ws", h.Stream)
	}

	return router, nil
}
