package tickets

import (
	"busline/internal/shared/config"
	"busline/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupTicketRoutes configures all ticket-related routes
func SetupTicketRoutes(rg *gin.RouterGroup, controller *Controller, cfg *config.Config) {
	auth := middleware.JWTAuthWithConfig(cfg)

	tickets := rg.Group("/tickets")
	tickets.Use(auth, middleware.RequireRoles(middleware.RoleUser, middleware.RoleAdmin))
	{
		tickets.GET("/:id", controller.GetTicket)            // GET /api/v1/tickets/:id
		tickets.POST("/:id/cancel", controller.CancelTicket) // POST /api/v1/tickets/:id/cancel
	}

	users := rg.Group("/users")
	users.Use(auth, middleware.RequireRoles(middleware.RoleUser, middleware.RoleAdmin))
	{
		users.GET("/tickets", controller.GetUserTickets) // GET /api/v1/users/tickets
	}

	// Scheduler hooks, admin only
	admin := rg.Group("/admin/trips")
	admin.Use(auth, middleware.RequireAdmin())
	{
		admin.POST("/:id/mark-used", controller.MarkTripUsed)       // POST /api/v1/admin/trips/:id/mark-used
		admin.POST("/:id/mark-expired", controller.MarkTripExpired) // POST /api/v1/admin/trips/:id/mark-expired
	}
}
