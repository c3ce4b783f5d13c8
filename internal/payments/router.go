package payments

import (
	"busline/internal/shared/config"
	"busline/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupPaymentRoutes configures all payment-related routes
func SetupPaymentRoutes(rg *gin.RouterGroup, controller *Controller, cfg *config.Config) {
	auth := middleware.JWTAuthWithConfig(cfg)

	payments := rg.Group("/payments")
	{
		// Gateway callback, authenticated by payload signature
		payments.POST("/webhook", controller.HandleWebhook) // POST /api/v1/payments/webhook
	}

	admin := rg.Group("/admin")
	admin.Use(auth, middleware.RequireAdmin())
	{
		admin.GET("/payments/:orderCode", controller.GetPayment)                // GET /api/v1/admin/payments/:orderCode
		admin.POST("/payments/:orderCode/cancel", controller.CancelLink)        // POST /api/v1/admin/payments/:orderCode/cancel
		admin.GET("/payments/:orderCode/refunds", controller.GetRefundsForPayment) // GET /api/v1/admin/payments/:orderCode/refunds
		admin.GET("/refunds", controller.ListRefunds)                           // GET /api/v1/admin/refunds
		admin.POST("/refunds/:orderCode/process", controller.ProcessRefund)     // POST /api/v1/admin/refunds/:orderCode/process
	}
}
