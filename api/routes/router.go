package routes

import (
	"net/http"
	"time"

	"busline/internal/bookings"
	"busline/internal/notifications"
	"busline/internal/payments"
	"busline/internal/saga"
	"busline/internal/shared/config"
	"busline/internal/shared/database"
	"busline/internal/tickets"
	"busline/internal/trips"

	"github.com/gin-gonic/gin"
)

// Router holds all route dependencies
type Router struct {
	config   *config.Config
	db       *database.DB
	notifier notifications.Sender
	bus      saga.Bus
	locker   bookings.TripLocker
}

// NewRouter creates a new router instance
func NewRouter(cfg *config.Config, db *database.DB, notifier notifications.Sender, bus saga.Bus, locker bookings.TripLocker) *Router {
	return &Router{
		config:   cfg,
		db:       db,
		notifier: notifier,
		bus:      bus,
		locker:   locker,
	}
}

// SetupRoutes wires the services together and registers every route.
// The saga coordinator is subscribed to the bus here; the caller
// starts the bus once setup returns.
func (r *Router) SetupRoutes(engine *gin.Engine) {
	r.setupHealthRoutes(engine)

	pg := r.db.GetPostgreSQL()

	// Repositories
	tripRepo := trips.NewRepository(pg)
	bookingRepo := bookings.NewRepository(pg)
	paymentRepo := payments.NewRepository(pg)
	ticketRepo := tickets.NewRepository(pg)

	// Services
	tripService := trips.NewService(tripRepo)

	gateway := payments.NewHTTPGateway(payments.GatewayClientConfig{
		BaseURL:     r.config.Gateway.BaseURL,
		ClientID:    r.config.Gateway.ClientID,
		APIKey:      r.config.Gateway.APIKey,
		ChecksumKey: r.config.Gateway.ChecksumKey,
		Timeout:     r.config.Gateway.Timeout,
	})
	paymentService := payments.NewService(paymentRepo, gateway, payments.ServiceConfig{
		ChecksumKey: r.config.Gateway.ChecksumKey,
		ReturnURL:   r.config.Gateway.ReturnURL,
		CancelURL:   r.config.Gateway.CancelURL,
	}, saga.NewPaymentPublisher(r.bus), r.notifier)

	ticketService := tickets.NewService(ticketRepo, paymentService, saga.NewTicketPublisher(r.bus), r.notifier)

	bookingService := bookings.NewService(bookingRepo, tripService, ticketService, r.locker, r.config.Booking.DefaultSeatPrice)

	// The services reference each other in both directions, so the
	// remaining edges are attached after construction.
	bookingService.SetPaymentLinker(paymentService)
	bookingService.SetTicketCanceller(ticketService)
	ticketService.SetBookingResolver(bookingService)

	coordinator := saga.NewCoordinator(bookingService, ticketService, paymentService, r.notifier)
	paymentService.SetCompletedReaction(coordinator)
	r.bus.Subscribe(coordinator)

	// Controllers and routes
	api := engine.Group(r.config.GetAPIBasePath())
	{
		trips.SetupTripRoutes(api, trips.NewController(tripService), r.config)
		bookings.SetupBookingRoutes(api, bookings.NewController(bookingService), r.config)
		tickets.SetupTicketRoutes(api, tickets.NewController(ticketService), r.config)
		payments.SetupPaymentRoutes(api, payments.NewController(paymentService), r.config)
	}
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "busline-backend",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "busline-backend",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})
}
