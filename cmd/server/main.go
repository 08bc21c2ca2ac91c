package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/veloevents/service-booking-flow/internal/application"
	"github.com/veloevents/service-booking-flow/internal/auth"
	"github.com/veloevents/service-booking-flow/internal/config"
	"github.com/veloevents/service-booking-flow/internal/database"
	"github.com/veloevents/service-booking-flow/internal/domain/partner"
	bookingEvents "github.com/veloevents/service-booking-flow/internal/events"
	"github.com/veloevents/service-booking-flow/internal/handler"
	"github.com/veloevents/service-booking-flow/internal/health"
	"github.com/veloevents/service-booking-flow/internal/kafka"
	"github.com/veloevents/service-booking-flow/internal/logger"
	"github.com/veloevents/service-booking-flow/internal/middleware"
	"github.com/veloevents/service-booking-flow/internal/repository"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize logger
	zapLogger, err := logger.NewNamed(cfg.AppEnv, "service-booking-flow")
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("starting service-booking-flow",
		zap.String("port", cfg.Port),
	)

	// Connect to database
	db, err := database.Connect(cfg.DBConfig, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	// Run database migrations
	if cfg.AppEnv == "development" {
		if err := db.AutoMigrate(
			&repository.EventModel{},
			&repository.EventMetaModel{},
			&repository.ProductModel{},
			&repository.PartnerUserModel{},
			&repository.CouponModel{},
			&repository.EntryModel{},
			&repository.CartItemModel{},
			&repository.CartCouponModel{},
			&repository.OrderModel{},
			&repository.OrderMetaModel{},
			&repository.OrderItemModel{},
			&repository.OrderItemMetaModel{},
		); err != nil {
			zapLogger.Fatal("failed to auto-migrate", zap.Error(err))
		}
		zapLogger.Info("database migration completed (dev auto-migrate)")
	}

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(
		cfg.JWT.Secret,
		15*time.Minute,
		7*24*time.Hour,
	)

	// Initialize Kafka producer
	kafkaProducer := kafka.NewProducer(cfg.Kafka.Brokers, "service-booking-flow", zapLogger)
	defer kafkaProducer.Close()

	// Initialize repositories
	eventRepo := repository.NewGormEventRepository(db)
	productRepo := repository.NewGormProductRepository(db)
	entryRepo := repository.NewGormEntryRepository(db)
	cartStore := repository.NewGormCartStore(db)
	userStore := repository.NewGormUserStore(db)
	couponStore := repository.NewGormCouponStore(db)
	orderRepo := repository.NewGormOrderRepository(db)

	// Initialize domain and application services
	partnerResolver := partner.NewResolver(userStore, couponStore, zapLogger)
	submissionService := application.NewSubmissionService(
		eventRepo, productRepo, entryRepo, cartStore, kafkaProducer,
		cfg.Fields,
		application.ProductFallback{
			TDGSlugs:      cfg.Products.TDGSlugs,
			GuidedSlugs:   cfg.Products.GuidedSlugs,
			TDGProduct:    cfg.Products.TDGProduct,
			GuidedProduct: cfg.Products.GuidedProduct,
		},
		nil,
		zapLogger,
	)
	quoteService := application.NewQuoteService(eventRepo, nil, zapLogger)
	configService := application.NewEventConfigService(eventRepo, zapLogger)
	partnerService := application.NewPartnerService(partnerResolver, userStore, zapLogger)
	ledgerService := application.NewLedgerService(orderRepo, userStore, couponStore, kafkaProducer, zapLogger)

	// Initialize Kafka consumer for commerce order events
	consumerGroupID := cfg.Kafka.GroupPrefix + "booking-flow-service"
	orderConsumer := bookingEvents.NewOrderEventConsumer(
		cfg.Kafka.Brokers,
		consumerGroupID,
		ledgerService,
		zapLogger,
	)
	defer orderConsumer.Close()

	// Start Kafka consumer in a goroutine
	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()

	go func() {
		zapLogger.Info("starting order event consumer")
		if err := orderConsumer.Start(consumerCtx); err != nil {
			if consumerCtx.Err() == nil {
				zapLogger.Error("order event consumer failed", zap.Error(err))
			}
		}
	}()

	// Initialize HTTP handlers
	submissionHandler := handler.NewSubmissionHandler(submissionService, partnerService, entryRepo, cfg.Fields)
	eventHandler := handler.NewEventHandler(quoteService, configService)
	partnerHandler := handler.NewPartnerHandler(partnerService)
	orderHandler := handler.NewOrderHandler(ledgerService)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RecoveryMiddleware(zapLogger))
	router.Use(middleware.LoggerMiddleware(zapLogger))
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	// Register health check routes
	healthHandler := health.NewHandler(db, "service-booking-flow")
	healthHandler.RegisterRoutes(router)

	// Register API routes
	apiV1 := router.Group("/api/v1")
	submissionHandler.RegisterRoutes(apiV1, jwtManager)
	eventHandler.RegisterRoutes(apiV1, jwtManager)
	partnerHandler.RegisterRoutes(apiV1, jwtManager)
	orderHandler.RegisterRoutes(apiV1, jwtManager)

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
		zapLogger.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down service-booking-flow...")

	// Cancel Kafka consumer
	consumerCancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("service-booking-flow stopped")
}
