package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-inventory/internal/config"
	"github.com/smarttransit/seat-inventory/internal/database"
	"github.com/smarttransit/seat-inventory/internal/events"
	"github.com/smarttransit/seat-inventory/internal/handlers"
	"github.com/smarttransit/seat-inventory/internal/middleware"
	"github.com/smarttransit/seat-inventory/internal/services"
	"github.com/smarttransit/seat-inventory/pkg/jwt"
	"github.com/smarttransit/seat-inventory/pkg/sms"
	"github.com/smarttransit/seat-inventory/pkg/validator"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting SmartTransit Seat Inventory")
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

	// Storage
	ctx := context.Background()
	logger.WithField("driver", cfg.Database.Driver).Info("Opening storage...")
	store, err := database.OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	// Inventory core
	ledger := services.NewHoldLedger(store, logger)
	inventory := services.NewInventoryService(store, ledger, services.InventoryConfig{
		HoldTTL:         cfg.Inventory.HoldTTL,
		MaxSeatsPerHold: cfg.Inventory.MaxSeatsPerHold,
		DefaultCurrency: cfg.Payment.Currency,
	}, logger)

	// Payments
	var payments services.PaymentGateway
	payable := services.NewPAYableGateway(&cfg.Payment, logger)
	if payable.IsConfigured() {
		logger.WithField("environment", cfg.Payment.Environment).Info("✓ PAYable payment gateway configured")
		payments = payable
	} else {
		logger.Warn("⚠️  Payment gateway not configured - using sandbox gateway")
		payments = services.NewSandboxPaymentGateway(logger)
	}

	coordinator := services.NewBookingCoordinator(inventory, payments, validator.NewPassengerValidator(), logger)

	// Notifications
	notifiers := services.MultiNotifier{services.NewSMSNotifier(newSMSGateway(cfg, logger), logger)}
	if cfg.Events.Enabled {
		wmLogger := events.NewLogrusAdapter(logger)
		redisClient := events.NewRedisClient(cfg.Events)
		defer redisClient.Close()

		publisher, err := events.NewRedisPublisher(redisClient, wmLogger)
		if err != nil {
			logger.Fatalf("Failed to create event publisher: %v", err)
		}
		defer publisher.Close()

		bus, err := events.NewEventBus(publisher, cfg.Events.TopicPrefix, wmLogger)
		if err != nil {
			logger.Fatalf("Failed to create event bus: %v", err)
		}
		notifiers = append(notifiers, services.NewEventNotifier(bus))
		logger.WithField("redis", cfg.Events.RedisAddr).Info("✓ Booking events enabled")
	}

	rateLimiter := services.NewRateLimitService(services.RateLimitConfig{
		MaxOwnerRequests: cfg.Inventory.MaxHoldsPerOwner,
		OwnerWindow:      cfg.Inventory.HoldTTL,
		MaxIPRequests:    cfg.Inventory.MaxHoldsPerIP,
		IPWindow:         time.Hour,
	})

	// Background jobs
	cronService := services.NewCronService(inventory, services.CronSchedules{
		Sweep:      cfg.Inventory.SweepSchedule,
		Evict:      cfg.Inventory.EvictSchedule,
		EvictAfter: cfg.Inventory.EvictAfter,
	}, logger).WithRateLimiter(rateLimiter)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}
	defer cronService.Stop()

	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenExpiry)

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Server.EnableRequestLog {
		router.Use(middleware.RequestLogger(logger))
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: !containsWildcard(cfg.CORS.AllowedOrigins),
		MaxAge:           12 * time.Hour,
	}))

	handlers.RegisterRoutes(router, handlers.Handlers{
		Health:    handlers.NewHealthHandler(store, version),
		Inventory: handlers.NewInventoryHandler(inventory, logger),
		Checkout:  handlers.NewCheckoutHandler(coordinator, notifiers, rateLimiter, jwtService, logger),
		Booking:   handlers.NewBookingHandler(inventory, notifiers, services.NewTicketRenderer(colomboLocation(logger)), logger),
	}, jwtService, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

func newSMSGateway(cfg *config.Config, logger *logrus.Logger) sms.SMSGateway {
	if cfg.SMS.Mode != "production" {
		logger.Info("SMS Gateway in development mode (no actual SMS will be sent)")
		return sms.NewLogGateway(logger)
	}

	if cfg.SMS.Method == "url" {
		logger.Info("Using Dialog URL method (GET request with esmsqk)")
		return sms.NewDialogURLGateway(sms.DefaultDialogURLEndpoint, cfg.SMS.ESMSQK, cfg.SMS.Mask)
	}

	logger.Info("Using Dialog API v2 method (POST with authentication)")
	return sms.NewDialogGateway(sms.DialogConfig{
		APIURL:   cfg.SMS.APIURL,
		Username: cfg.SMS.Username,
		Password: cfg.SMS.Password,
		Mask:     cfg.SMS.Mask,
	})
}

func colomboLocation(logger *logrus.Logger) *time.Location {
	loc, err := time.LoadLocation("Asia/Colombo")
	if err != nil {
		logger.WithError(err).Warn("Asia/Colombo timezone unavailable, tickets use UTC")
		return time.UTC
	}
	return loc
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
