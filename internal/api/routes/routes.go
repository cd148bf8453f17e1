package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/cityhop/ride-hailing/internal/api/handlers"
	"github.com/cityhop/ride-hailing/internal/api/middleware"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, auth *middleware.Auth, nrApp *newrelic.Application) {
	// Add New Relic middleware if enabled
	if nrApp != nil {
		r.Use(nrgin.Middleware(nrApp))
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "healthy"})
	})

	// API v1 routes, all authenticated
	v1 := r.Group("/v1")
	v1.Use(auth.Authenticate())
	{
		// WebSocket connection
		v1.GET("/ws", h.HandleWebSocket)

		// Ride endpoints
		rides := v1.Group("/rides")
		{
			rides.POST("/request", middleware.Require(middleware.OpRequestRide), h.RequestRide)
			rides.GET("/available", middleware.Require(middleware.OpListAvailable), h.GetAvailableRides)
			rides.GET("/history", middleware.Require(middleware.OpViewHistory), h.GetRideHistory)
			rides.GET("/all-rides", middleware.Require(middleware.OpListAllRides), h.GetAllRides)
			rides.GET("/:id", middleware.Require(middleware.OpViewRide), h.GetRide)
			rides.POST("/:id/accept", middleware.Require(middleware.OpAcceptRide), h.AcceptRide)
			rides.PATCH("/:id/status", middleware.Require(middleware.OpAdvanceRide), h.UpdateRideStatus)
			rides.POST("/:id/cancel", middleware.Require(middleware.OpCancelRide), h.CancelRide)
			rides.POST("/:id/rate", middleware.Require(middleware.OpRateRide), h.RateRide)
		}

		// Driver endpoints
		drivers := v1.Group("/drivers")
		{
			drivers.POST("/profile", middleware.Require(middleware.OpCreateProfile), h.CreateDriverProfile)
			drivers.GET("/profile", middleware.Require(middleware.OpViewDashboard), h.GetDriverProfile)
			drivers.PATCH("/status", middleware.Require(middleware.OpSetOnlineStatus), h.SetOnlineStatus)
			drivers.PATCH("/location", middleware.Require(middleware.OpUpdateLocation), h.UpdateDriverLocation)
			drivers.GET("/dashboard", middleware.Require(middleware.OpViewDashboard), h.GetDriverDashboard)
			drivers.GET("/earnings", middleware.Require(middleware.OpViewEarnings), h.GetDriverEarnings)
			drivers.GET("/stats", middleware.Require(middleware.OpViewStats), h.GetDriverStats)
			drivers.GET("/online", middleware.Require(middleware.OpListOnline), h.GetOnlineDrivers)
			drivers.GET("/all-drivers", middleware.Require(middleware.OpListAllDrivers), h.GetAllDrivers)
			drivers.POST("/:id/earnings", middleware.Require(middleware.OpAddEarning), h.AddDriverEarning)
			drivers.PATCH("/:id/stats", middleware.Require(middleware.OpUpdateStats), h.UpdateDriverStats)
			drivers.DELETE("/:id", middleware.Require(middleware.OpDeleteDriver), h.DeleteDriver)
		}

		// Admin endpoints
		admin := v1.Group("/admin")
		{
			admin.POST("/drivers/:id/recompute-rating", middleware.Require(middleware.OpRecomputeRating), h.RecomputeDriverRating)
		}
	}
}
