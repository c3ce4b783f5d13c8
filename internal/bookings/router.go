package bookings

import (
	"busline/internal/shared/config"
	"busline/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupBookingRoutes configures all booking-related routes
func SetupBookingRoutes(rg *gin.RouterGroup, controller *Controller, cfg *config.Config) {
	auth := middleware.JWTAuthWithConfig(cfg)

	bookings := rg.Group("/bookings")
	bookings.Use(auth, middleware.RequireRoles(middleware.RoleUser, middleware.RoleAdmin))
	{
		bookings.POST("", controller.CreateBooking) // POST /api/v1/bookings
		bookings.GET("/:id", controller.GetBooking) // GET /api/v1/bookings/:id
	}

	users := rg.Group("/users")
	users.Use(auth, middleware.RequireRoles(middleware.RoleUser, middleware.RoleAdmin))
	{
		users.GET("/bookings", controller.GetUserBookings) // GET /api/v1/users/bookings
	}

	admin := rg.Group("/admin/bookings")
	admin.Use(auth, middleware.RequireAdmin())
	{
		admin.PATCH("/:id/status", controller.AdminSetStatus) // PATCH /api/v1/admin/bookings/:id/status
	}
}
