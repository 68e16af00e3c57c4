package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"ridehail/internal/handler"
	"ridehail/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	SessionHandler *handler.SessionHandler
	DriverHandler  *handler.DriverHandler
	WSHub          *handler.WSHub
	RedisClient    *redis.Client
	NewRelicApp    *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.MetricsMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	if deps.RedisClient != nil {
		router.Use(middleware.IdempotencyMiddleware(deps.RedisClient))
	}

	// Health check and metrics.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if deps.WSHub != nil {
		router.GET("/ws", deps.WSHub.Handle)
	}

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		// Ride session routes.
		rides := v1.Group("/rides")
		{
			rides.POST("", deps.SessionHandler.Book)
			rides.GET("/:id", deps.SessionHandler.Get)
			rides.GET("/:id/route", deps.SessionHandler.Route)
			rides.POST("/:id/accept", deps.SessionHandler.Accept)
			rides.PUT("/:id/status", deps.SessionHandler.UpdateStatus)
			rides.POST("/:id/start", deps.SessionHandler.Start)
			rides.POST("/:id/complete", deps.SessionHandler.Complete)
			rides.POST("/:id/cancel", deps.SessionHandler.Cancel)
		}

		// Driver location routes.
		driver := v1.Group("/driver")
		{
			driver.POST("/location", deps.DriverHandler.UpdateLocation)
			driver.POST("/location/status", deps.DriverHandler.UpdateStatus)
			driver.GET("/:id/location", deps.DriverHandler.GetLocation)
		}
	}

	return router
}
