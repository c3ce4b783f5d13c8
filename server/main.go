package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"busline/api/routes"
	"busline/internal/bookings"
	"busline/internal/notifications"
	"busline/internal/saga"
	"busline/internal/shared/config"
	"busline/internal/shared/database"
	"busline/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	appLogger := logger.GetDefault()

	// Smart environment loading
	if err := godotenv.Load(); err != nil {
		if os.Getenv("GIN_MODE") == "release" || os.Getenv("DOCKER_CONTAINER") == "true" {
			appLogger.Info("Production environment: using container environment variables")
		} else {
			appLogger.Info("No .env file found, using system environment variables")
		}
	} else {
		appLogger.Info("Development environment: loaded .env file")
	}

	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	db, err := database.InitDB(cfg)
	if err != nil {
		appLogger.Error("failed to connect:", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Per-trip reservation lock. Redis serializes across instances;
	// the local locker only covers a single process.
	var locker bookings.TripLocker
	if db.Redis != nil {
		locker = bookings.NewRedisTripLocker(db.Redis, cfg.Redis.TripLockTTL)
		appLogger.Info("Redis trip locker initialized")
	} else {
		locker = bookings.NewLocalTripLocker()
		appLogger.Info("Local trip locker initialized (single instance only)")
	}

	// Notification sender
	var notifier notifications.Sender
	if cfg.Kafka.Enabled {
		senderConfig := notifications.DefaultKafkaSenderConfig()
		senderConfig.Brokers = cfg.Kafka.Brokers
		senderConfig.Topic = cfg.Kafka.NotificationTopic

		notifier, err = notifications.NewKafkaSender(senderConfig)
		if err != nil {
			appLogger.Error("Failed to initialize Kafka notification sender", slog.Any("error", err))
			appLogger.Info("Falling back to log-only notifications")
			notifier = notifications.NewLogSender(appLogger)
		} else {
			appLogger.Info("Kafka notification sender initialized")
		}
	} else {
		notifier = notifications.NewLogSender(appLogger)
		appLogger.Info("Log-only notification sender initialized")
	}
	defer notifier.Close()

	// Saga event bus
	var bus saga.Bus
	if cfg.Kafka.Enabled {
		busConfig := saga.DefaultKafkaBusConfig()
		busConfig.Brokers = cfg.Kafka.Brokers
		busConfig.Topic = cfg.Kafka.SagaTopic
		busConfig.GroupID = cfg.Kafka.ConsumerGroup

		kafkaBus, err := saga.NewKafkaBus(busConfig)
		if err != nil {
			appLogger.Error("Failed to initialize Kafka saga bus", slog.Any("error", err))
			os.Exit(1)
		}
		bus = kafkaBus
		appLogger.Info("Kafka saga bus initialized", slog.String("topic", cfg.Kafka.SagaTopic))
	} else {
		bus = saga.NewInProcessBus(0)
		appLogger.Info("In-process saga bus initialized")
	}

	// Setup router; this subscribes the saga coordinator to the bus
	router := setupRouter(cfg, db, notifier, bus, locker)

	// Start dispatching saga events
	busCtx, busCancel := context.WithCancel(context.Background())
	if err := bus.Start(busCtx); err != nil {
		appLogger.Error("Failed to start saga bus", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		busCancel()
		if err := bus.Close(); err != nil {
			appLogger.Error("Error closing saga bus", slog.Any("error", err))
		}
	}()

	// HTTP server
	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		appLogger.Info("🚀 Server running",
			slog.String("address", cfg.GetServerAddress()),
			slog.String("health_check", fmt.Sprintf("http://localhost:%s/health", cfg.Port)),
			slog.String("version", cfg.APIVersion),
			slog.Bool("kafka", cfg.Kafka.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed", slog.Any("error", err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Forced shutdown", slog.Any("error", err))
	}

	appLogger.Info("Server exited gracefully")
}

func setupRouter(cfg *config.Config, db *database.DB, notifier notifications.Sender, bus saga.Bus, locker bookings.TripLocker) *gin.Engine {
	engine := gin.New()
	appLogger := logger.GetDefault()

	// Built-in middleware: logs requests + recovers from panics
	engine.Use(RequestLoggerMiddleware(appLogger), gin.Recovery())

	// CORS configuration
	engine.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	appRouter := routes.NewRouter(cfg, db, notifier, bus, locker)
	appRouter.SetupRoutes(engine)

	return engine
}

func RequestLoggerMiddleware(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		l.LogHTTPRequest(c, duration)
	}
}
