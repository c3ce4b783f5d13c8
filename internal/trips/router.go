package trips

import (
	"busline/internal/shared/config"
	"busline/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupTripRoutes configures all trip-related routes
func SetupTripRoutes(rg *gin.RouterGroup, controller *Controller, cfg *config.Config) {
	auth := middleware.JWTAuthWithConfig(cfg)

	trips := rg.Group("/trips")
	{
		trips.GET("", controller.ListTrips)    // GET /api/v1/trips
		trips.GET("/:id", controller.GetTrip)  // GET /api/v1/trips/:id
	}

	admin := rg.Group("/admin/trips")
	admin.Use(auth, middleware.RequireAdmin())
	{
		admin.POST("", controller.CreateTrip) // POST /api/v1/admin/trips
	}
}
