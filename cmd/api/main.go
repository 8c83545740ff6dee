package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pos-platform/ledger-service/pkg/cloudevents"
	"github.com/pos-platform/ledger-service/pkg/idempotency"
	"github.com/pos-platform/ledger-service/pkg/kafka"
	"github.com/pos-platform/ledger-service/pkg/logging"
	"github.com/pos-platform/ledger-service/pkg/metrics"
	"github.com/pos-platform/ledger-service/pkg/middleware"
	"github.com/pos-platform/ledger-service/pkg/mongodb"
	"github.com/pos-platform/ledger-service/pkg/outbox"
	"github.com/pos-platform/ledger-service/pkg/tracing"

	"github.com/pos-platform/ledger-service/internal/application"
	mongoRepo "github.com/pos-platform/ledger-service/internal/infrastructure/mongodb"
)

const serviceName = "ledger-service"

func main() {
	// Setup structured logger
	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting ledger-service API")

	config := loadConfig()
	ctx := context.Background()

	// Initialize OpenTelemetry tracing
	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	tracingConfig.Environment = getEnv("ENVIRONMENT", "development")
	tracingConfig.Enabled = getEnv("TRACING_ENABLED", "true") == "true"

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		// Continue without tracing
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "endpoint", tracingConfig.OTLPEndpoint)
	}

	// Initialize Prometheus metrics
	m := metrics.New(metrics.DefaultConfig(serviceName))
	logger.Info("Metrics initialized")

	// Initialize MongoDB with instrumentation
	mongoClient, err := mongodb.NewClient(ctx, config.MongoDB)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer mongoClient.Close(ctx)
	db := mongodb.NewInstrumentedDatabase(mongoClient.Database(), m, logger)
	cbMongo := mongodb.NewCircuitBreakerClient(mongoClient, logger)
	logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

	// Initialize idempotency key storage
	if err := idempotency.InitializeIndexes(ctx, mongoClient.Database()); err != nil {
		logger.WithError(err).Warn("Failed to initialize idempotency indexes")
	}
	idempotencyKeyRepo := idempotency.NewMongoKeyRepository(mongoClient.Database())
	idempotencyMetrics := idempotency.NewMetrics(m.Registry())

	// Initialize Kafka producer chain with instrumentation and circuit breaking
	producer := kafka.NewProducer(config.Kafka)
	instrumentedProducer := kafka.NewInstrumentedProducer(producer, m, logger)
	cbProducer := kafka.NewCircuitBreakerProducer(instrumentedProducer, logger)
	defer cbProducer.Close()
	logger.Info("Kafka producer initialized", "brokers", config.Kafka.Brokers)

	// Initialize CloudEvents factory
	eventFactory := cloudevents.NewEventFactory(cloudevents.SourceLedger)

	// Initialize repositories
	entryRepo := mongoRepo.NewLedgerEntryRepository(db, eventFactory)
	productRepo := mongoRepo.NewProductRepository(db)
	auditRepo := mongoRepo.NewAuditRepository(db)
	uow := mongoRepo.NewUnitOfWork(mongoClient.Client())

	// Start the outbox publisher relaying staged events to Kafka
	outboxPublisher := outbox.NewPublisher(
		entryRepo.GetOutboxRepository(),
		cbProducer,
		logger,
		m,
		&outbox.PublisherConfig{
			PollInterval: config.OutboxPollInterval,
			BatchSize:    config.OutboxBatchSize,
		},
	)
	if err := outboxPublisher.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start outbox publisher")
		os.Exit(1)
	}
	defer outboxPublisher.Stop()
	logger.Info("Outbox publisher started")

	// Initialize application service
	ledgerService := application.NewLedgerApplicationService(
		entryRepo,
		productRepo,
		auditRepo,
		uow,
		cbProducer,
		eventFactory,
		m,
		logger,
		config.BulkTimeout,
	)

	// Setup Gin router
	router := gin.New()
	middleware.Setup(router, middleware.Config{
		ServiceName:    serviceName,
		Logger:         logger.Logger,
		EnableTracing:  tracingConfig.Enabled,
		AllowedOrigins: config.AllowedOrigins,
	})
	router.Use(middleware.MetricsMiddleware(m))

	// Health check endpoints
	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, map[string]func() error{
		"mongodb": func() error {
			probeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return cbMongo.HealthCheck(probeCtx)
		},
	}))
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	// POS terminals retry aggressively on flaky store networks, so every
	// mutating route honors the Idempotency-Key header
	idempotencyConfig := &idempotency.Config{
		ServiceName:     serviceName,
		Repository:      idempotencyKeyRepo,
		RequireKey:      false,
		OnlyMutating:    true,
		MaxKeyLength:    255,
		LockTimeout:     5 * time.Minute,
		RetentionPeriod: 24 * time.Hour,
		MaxResponseSize: 1024 * 1024,
		Metrics:         idempotencyMetrics,
	}

	api := router.Group("/api/v1")
	api.Use(idempotency.Middleware(idempotencyConfig))
	{
		ledger := api.Group("/ledger")
		{
			ledger.POST("/entries", recordEntryHandler(ledgerService))
			ledger.POST("/entries/bulk", recordBulkHandler(ledgerService))
			ledger.GET("/entries", listEntriesHandler(ledgerService))
			ledger.GET("/entries/:entryId", getEntryHandler(ledgerService))
			ledger.GET("/references/:referenceId", getEntriesByReferenceHandler(ledgerService))
		}

		products := api.Group("/products")
		{
			products.GET("/:productId/stock", getProductStockHandler(ledgerService))
		}
	}

	// Start server
	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server error")
		}
	}()
	logger.Info("Server started", "addr", config.ServerAddr)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server stopped")
}

// Config holds application configuration
type Config struct {
	ServerAddr         string
	AllowedOrigins     []string
	BulkTimeout        time.Duration
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	MongoDB            *mongodb.Config
	Kafka              *kafka.Config
}

func loadConfig() *Config {
	return &Config{
		ServerAddr:         getEnv("SERVER_ADDR", ":8080"),
		AllowedOrigins:     splitEnv("ALLOWED_ORIGINS", "*"),
		BulkTimeout:        getDurationEnv("BULK_TIMEOUT", application.DefaultBulkTimeout),
		OutboxPollInterval: getDurationEnv("OUTBOX_POLL_INTERVAL", 1*time.Second),
		OutboxBatchSize:    100,
		MongoDB: &mongodb.Config{
			URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGODB_DATABASE", "pos_ledger"),
			ConnectTimeout: 10 * time.Second,
			MaxPoolSize:    100,
			MinPoolSize:    10,
		},
		Kafka: &kafka.Config{
			Brokers:      splitEnv("KAFKA_BROKERS", "localhost:9092"),
			ClientID:     serviceName,
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: -1,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitEnv(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
