package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spokeshare/service-booking/internal/application"
	"github.com/spokeshare/service-booking/internal/auth"
	"github.com/spokeshare/service-booking/internal/config"
	"github.com/spokeshare/service-booking/internal/database"
	bookingEvents "github.com/spokeshare/service-booking/internal/events"
	"github.com/spokeshare/service-booking/internal/gateway"
	"github.com/spokeshare/service-booking/internal/handler"
	"github.com/spokeshare/service-booking/internal/health"
	"github.com/spokeshare/service-booking/internal/kafka"
	"github.com/spokeshare/service-booking/internal/logger"
	"github.com/spokeshare/service-booking/internal/middleware"
	"github.com/spokeshare/service-booking/internal/repository"
	"github.com/spokeshare/service-booking/internal/scheduler"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewNamed(cfg.AppEnv, "service-booking")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting service-booking",
		zap.String("port", cfg.Port),
	)

	// Connect to database
	db, err := database.Connect(cfg.DB.DSN(), log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	// Run database migrations
	if cfg.AppEnv == "development" {
		if err := db.AutoMigrate(
			&repository.BookingModel{},
			&repository.PaymentModel{},
			&repository.CreditModel{},
			&repository.AuditLogModel{},
		); err != nil {
			log.Fatal("failed to run auto-migration", zap.Error(err))
		}
		log.Info("database migration completed (dev auto-migrate)")
	} else {
		if err := database.RunMigrations(cfg.DB.DatabaseURL(), "migrations", log); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, 15*time.Minute)

	// Initialize Kafka producer
	kafkaProducer := kafka.NewProducer(cfg.Kafka.Brokers, log)
	defer func() { _ = kafkaProducer.Close() }()

	// Initialize repositories
	bookingRepo := repository.NewGormBookingRepository(db)
	paymentRepo := repository.NewGormPaymentRepository(db)
	creditRepo := repository.NewGormCreditRepository(db)
	auditRepo := repository.NewGormAuditRepository(db)

	// Initialize outbound gateways
	paymentsGateway := gateway.NewPaymentsClient(cfg.Gateway.PaymentsBaseURL, cfg.Gateway.PaymentsAPIKey)
	var settlementGateway gateway.SettlementGateway
	if cfg.Gateway.SettlementURL != "" {
		settlementGateway = gateway.NewSettlementClient(cfg.Gateway.SettlementURL)
	}

	// Initialize application services
	creditLedger := application.NewCreditLedger(creditRepo, cfg.Currency, log)
	refundOrchestrator := application.NewRefundOrchestrator(bookingRepo, paymentRepo, creditLedger, paymentsGateway, log)
	settlementTrigger := application.NewSettlementTrigger(bookingRepo, auditRepo, settlementGateway, kafkaProducer, log)

	bookingService := application.NewBookingService(
		bookingRepo,
		paymentRepo,
		auditRepo,
		creditLedger,
		refundOrchestrator,
		settlementTrigger,
		kafkaProducer,
		log,
		cfg.DepositAmountCents,
		cfg.RebookCreditCents,
		cfg.Currency,
	)
	adminService := application.NewAdminService(bookingRepo, auditRepo, settlementTrigger, log)

	// Initialize and start payment event consumer in a goroutine
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	groupID := cfg.Kafka.GroupPrefix + "booking-service"
	paymentConsumer := bookingEvents.NewPaymentEventConsumer(
		cfg.Kafka.Brokers,
		groupID,
		bookingService,
		log,
	)
	defer func() { _ = paymentConsumer.Close() }()

	go func() {
		log.Info("starting payment event consumer")
		if err := paymentConsumer.Start(ctx); err != nil && err != context.Canceled {
			log.Error("payment event consumer error", zap.Error(err))
		}
	}()

	// Schedule the acceptance-expiry sweep
	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.SweepSchedule, "acceptance-expiry-sweep", func() {
		sweepCtx, sweepCancel := context.WithTimeout(ctx, 2*time.Minute)
		defer sweepCancel()
		if _, err := bookingService.SweepExpiredAcceptances(sweepCtx, cfg.SweepPageSize); err != nil {
			log.Error("acceptance-expiry sweep failed", zap.Error(err))
		}
	}); err != nil {
		log.Fatal("failed to schedule acceptance-expiry sweep", zap.Error(err))
	}
	sched.Start()
	defer sched.Stop()

	// Initialize HTTP handlers
	bookingHandler := handler.NewBookingHandler(bookingService)
	adminHandler := handler.NewAdminHandler(adminService)
	opsHandler := handler.NewOpsHandler(bookingService, cfg.SweepPageSize)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	// Register health check routes
	healthHandler := health.NewHandler(db, "service-booking")
	healthHandler.RegisterRoutes(router)

	// Register routes
	bookingHandler.RegisterRoutes(&router.RouterGroup, jwtManager)
	adminHandler.RegisterRoutes(&router.RouterGroup, jwtManager, cfg.AdminUserID)
	opsHandler.RegisterRoutes(&router.RouterGroup, cfg.OpsSecret)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down service-booking...")

	// Cancel the consumer context
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced shutdown", zap.Error(err))
	}

	log.Info("service-booking stopped")
}
