package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-core/internal/cache"
	"github.com/smarttransit/seat-booking-core/internal/config"
	"github.com/smarttransit/seat-booking-core/internal/database"
	"github.com/smarttransit/seat-booking-core/internal/events"
	"github.com/smarttransit/seat-booking-core/internal/handlers"
	"github.com/smarttransit/seat-booking-core/internal/middleware"
	"github.com/smarttransit/seat-booking-core/internal/notify"
	"github.com/smarttransit/seat-booking-core/internal/services"
	"github.com/smarttransit/seat-booking-core/pkg/jwt"
	"github.com/smarttransit/seat-booking-core/pkg/qr"
	"github.com/smarttransit/seat-booking-core/pkg/sms"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting SmartTransit Seat Booking Service")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	// Optional infrastructure; each piece degrades to a no-op when unconfigured
	redisClient := cache.NewRedisClient(cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
		logger.Info("Redis idempotency guard enabled")
	} else {
		logger.Warn("Redis not configured, relying on the database idempotency key only")
	}
	guard := cache.NewIdempotencyGuard(redisClient, cfg.Booking.IdempotencyTTL)

	producer, err := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix, logger)
	if err != nil {
		logger.Fatalf("Failed to create payment event producer: %v", err)
	}
	defer producer.Close()

	notifier, closeNotifier := buildNotifier(cfg, logger)
	defer closeNotifier()

	logger.Info("Initializing services...")
	settings := services.NewBookingSettings(cfg.Booking)
	audit := services.NewAuditService(store, logger)
	tickets := services.NewTicketService(qr.NewPNGRenderer(cfg.Ticket.QRSize), cfg.Ticket.QRSigningKey, settings.Location)
	seatService := services.NewSeatService(store, audit, settings, logger)
	reservationService := services.NewReservationService(store, audit, settings, logger)
	coordinator := services.NewBookingCoordinator(store, tickets, notifier, producer, audit, guard, settings, logger)
	cancellationService := services.NewCancellationService(store, tickets, notifier, producer, audit, settings, logger)

	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	limiter := middleware.NewRateLimiter(
		cfg.RateLimit.Requests,
		time.Duration(cfg.RateLimit.WindowSeconds)*time.Second,
		logger,
	)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.RequestMeta())

	router.GET("/health", healthCheckHandler(store))

	handlers.RegisterRoutes(
		router.Group("/api/v1"),
		handlers.Handlers{
			Seats:        handlers.NewSeatHandler(seatService, logger),
			Bookings:     handlers.NewBookingHandler(coordinator, cancellationService, logger),
			Reservations: handlers.NewReservationHandler(reservationService, logger),
			Tickets:      handlers.NewTicketHandler(tickets, logger),
		},
		middleware.AuthMiddleware(jwtService, logger),
		limiter.Middleware(),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go sweepLimiters(sweepCtx, limiter, logger)

	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

func openStore(cfg *config.Config, logger *logrus.Logger) (database.Store, error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("Using the in-memory store; data is lost on restart")
		return database.NewMemoryStore(), nil
	}

	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		return nil, err
	}
	logger.Info("Database connection established")

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := database.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("Database schema applied")
	}
	return database.NewPostgresStore(db), nil
}

// buildNotifier fans ticket and cancellation notices out to the log, SMS and mailer queue
func buildNotifier(cfg *config.Config, logger *logrus.Logger) (notify.Dispatcher, func()) {
	var gateway sms.Gateway
	if cfg.SMS.Mode == "production" {
		gateway = sms.NewDialogURLGateway(cfg.SMS.APIURL, cfg.SMS.ESMSQK, cfg.SMS.Mask, logger)
		logger.Info("Dialog SMS gateway enabled")
	} else {
		gateway = sms.NewLogGateway(logger)
		logger.Info("SMS running in dev mode, messages are logged only")
	}

	dispatchers := notify.Multi{
		notify.NewLogDispatcher(logger),
		notify.NewSMSDispatcher(gateway, cfg.Booking.Location()),
	}
	closeFn := func() {}

	if cfg.AMQP.URL != "" {
		mailer, err := notify.NewAMQPDispatcher(cfg.AMQP.URL, cfg.AMQP.Queue, logger)
		if err != nil {
			logger.WithError(err).Warn("RabbitMQ unavailable, email notifications disabled")
		} else {
			dispatchers = append(dispatchers, mailer)
			closeFn = func() {
				if err := mailer.Close(); err != nil {
					logger.WithError(err).Warn("Failed to close RabbitMQ connection")
				}
			}
		}
	}
	return dispatchers, closeFn
}

func sweepLimiters(ctx context.Context, limiter *middleware.RateLimiter, logger *logrus.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := limiter.Sweep(); removed > 0 {
				logger.WithField("removed", removed).Debug("Swept idle rate limiters")
			}
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(store database.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
