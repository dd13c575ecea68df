package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	eventapp "github.com/erp/inventory/internal/application/event"
	inventoryapp "github.com/erp/inventory/internal/application/inventory"
	orderapp "github.com/erp/inventory/internal/application/order"
	"github.com/erp/inventory/internal/application/saga"
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/erp/inventory/internal/infrastructure/cache"
	"github.com/erp/inventory/internal/infrastructure/config"
	"github.com/erp/inventory/internal/infrastructure/event"
	"github.com/erp/inventory/internal/infrastructure/logger"
	"github.com/erp/inventory/internal/infrastructure/messaging"
	"github.com/erp/inventory/internal/infrastructure/persistence"
	"github.com/erp/inventory/internal/infrastructure/scheduler"
	"github.com/erp/inventory/internal/infrastructure/storage"
	"github.com/erp/inventory/internal/infrastructure/telemetry"
	"github.com/erp/inventory/internal/interfaces/http/handler"
	"github.com/erp/inventory/internal/interfaces/http/middleware"
	"github.com/erp/inventory/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	_ "github.com/erp/inventory/docs"
)

//	@title			Inventory Service API
//	@version		1.0
//	@description	Inventory reservation ledger and the order saga that drives it
//	@termsOfService	http://swagger.io/terms/

//	@contact.name	API Support
//	@contact.url	https://github.com/erp/inventory

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@externalDocs.description	OpenAPI
//	@externalDocs.url			https://swagger.io/resources/open-api/

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Bootstrap logger, replaced once the OTLP log bridge is available
	logCfg := logger.FromAppConfig(cfg)
	bootLog, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()
	providers, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    cfg.App.Version,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		Insecure:          cfg.Telemetry.Insecure,
		TracesEnabled:     cfg.Telemetry.Enabled,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		MetricsEnabled:    cfg.Telemetry.MetricsEnabled,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
		LogsEnabled:       cfg.Telemetry.LogsEnabled,
	}, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize telemetry", zap.Error(err))
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		bootLog.Fatal("Invalid log level", zap.Error(err))
	}
	log, err := logger.New(logCfg, providers.ZapCore(level))
	if err != nil {
		bootLog.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer func() {
		_ = log.Sync()
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down telemetry", zap.Error(err))
		}
	}()

	log.Info("Starting inventory service",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("port", cfg.App.Port),
		zap.String("delivery", cfg.Event.Delivery),
		zap.String("transport", cfg.Event.Transport),
	)

	profiler, err := telemetry.StartProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.ProfilingAddress,
		ApplicationName: cfg.Telemetry.ServiceName,
		SpanProfiles:    providers.TracesEnabled(),
	}, providers, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()

	// Database
	gormLog := logger.NewGormLogger(log, logger.GormLevel(cfg.Log.Level), logger.WithSlowThreshold(cfg.Database.SlowQuery))
	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithGormLogger(gormLog),
		persistence.WithTracing(cfg.Telemetry.DBTraceEnabled),
	)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if cfg.Database.Driver == config.DriverSQLite {
		// Postgres schemas are managed by cmd/migrate
		if err := db.AutoMigrate(&shared.OutboxEntry{}); err != nil {
			log.Fatal("Failed to migrate sqlite schema", zap.Error(err))
		}
	}
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	meter := providers.Meter("inventory")
	metrics, err := telemetry.NewInventoryMetrics(meter, log)
	if err != nil {
		log.Fatal("Failed to create inventory metrics", zap.Error(err))
	}
	defer metrics.Stop()

	// Events
	serializer := event.NewEventSerializer()
	eventBus, err := newEventBus(cfg, serializer, log)
	if err != nil {
		log.Fatal("Failed to create event bus", zap.Error(err))
	}

	outboxRepo := event.NewGormOutboxRepository(db.DB)
	var repoOpts []persistence.RepositoryOption
	if cfg.Event.Delivery == config.DeliveryOutbox {
		repoOpts = append(repoOpts, persistence.WithOutbox(event.NewOutboxPublisher(serializer, event.WithMaxRetries(cfg.Event.MaxRetries))))
	}
	inventoryRepo := persistence.NewGormInventoryItemRepository(db.DB, repoOpts...)
	orderRepo := persistence.NewGormOrderRepository(db.DB, repoOpts...)

	inventoryOpts := []inventoryapp.ServiceOption{inventoryapp.WithMetrics(metrics)}
	var orderOpts []orderapp.ServiceOption
	if cfg.Event.Delivery == config.DeliveryDirect {
		log.Warn("Direct event delivery is at-most-once; handler failures are logged and dropped")
		inventoryOpts = append(inventoryOpts, inventoryapp.WithEventPublisher(eventBus))
		orderOpts = append(orderOpts, orderapp.WithEventPublisher(eventBus))
	}
	inventoryService := inventoryapp.NewInventoryService(inventoryRepo, inventoryapp.ServiceConfig{
		MaxRetries:               cfg.Inventory.MaxRetries,
		DefaultReservationExpiry: cfg.Reservation.DefaultExpiry,
	}, log, inventoryOpts...)
	orderService := orderapp.NewOrderService(orderRepo, log, orderOpts...)

	idempotencyStore, err := cache.NewIdempotencyStoreFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	).CreateStore(ctx)
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}

	handlers := event.WrapHandlersWithIdempotency([]shared.EventHandler{
		saga.NewOrderConfirmedHandler(inventoryService, metrics, log, saga.WithFulfillmentWindow(cfg.Saga.FulfillmentWindow)),
		saga.NewOrderShippedHandler(inventoryService, metrics, log),
		saga.NewOrderCancelledHandler(inventoryService, metrics, log),
		inventoryapp.NewStockAlertHandler(inventoryapp.NewLoggingStockAlertNotifier(log), metrics, log),
	}, idempotencyStore, log, event.WithIdempotencyConfig(shared.IdempotencyConfig{
		TTL:     cfg.Event.IdempotencyTTL,
		Enabled: true,
	}))
	for _, h := range handlers {
		eventBus.Subscribe(h)
		log.Info("Event handler registered", zap.Strings("event_types", h.EventTypes()))
	}

	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	if cfg.Event.Delivery == config.DeliveryOutbox {
		processorOpts := []event.OutboxProcessorOption{event.WithOutboxMetrics(metrics)}
		if cfg.Storage.ArchiveEnabled {
			archive, err := storage.NewS3Archive(ctx, &cfg.Storage, storage.WithLogger(log))
			if err != nil {
				log.Fatal("Failed to create outbox archive", zap.Error(err))
			}
			if err := archive.EnsureBucket(ctx); err != nil {
				log.Fatal("Failed to prepare outbox archive bucket", zap.Error(err))
			}
			processorOpts = append(processorOpts, event.WithArchiver(archive))
		}

		processorConfig := event.OutboxProcessorConfig{
			BatchSize:        cfg.Event.BatchSize,
			PollInterval:     cfg.Event.PollInterval,
			ClaimLease:       cfg.Event.ClaimLease,
			CleanupEnabled:   cfg.Event.CleanupEnabled,
			CleanupRetention: cfg.Event.CleanupRetention,
			CleanupInterval:  cfg.Event.CleanupInterval,
		}
		outboxProcessor := event.NewOutboxProcessor(outboxRepo, eventBus, serializer, processorConfig, log, processorOpts...)
		if err := outboxProcessor.Start(ctx); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
		defer func() {
			if err := outboxProcessor.Stop(context.Background()); err != nil {
				log.Error("Error stopping outbox processor", zap.Error(err))
			}
		}()
		log.Info("Outbox processor started",
			zap.Int("batch_size", processorConfig.BatchSize),
			zap.Duration("poll_interval", processorConfig.PollInterval),
			zap.Bool("archive", cfg.Storage.ArchiveEnabled),
		)
	}

	systemOpts := []handler.SystemOption{
		handler.WithOutboxService(eventapp.NewOutboxService(outboxRepo, log)),
	}
	if cfg.Reservation.ReclaimEnabled {
		expiration := inventoryapp.NewReservationExpirationService(inventoryRepo, inventoryService, log)
		reclaimScheduler, err := scheduler.NewIntervalScheduler(scheduler.Config{
			Interval: cfg.Reservation.ReclaimInterval,
		}, scheduler.NewReclaimJob(expiration, log), log)
		if err != nil {
			log.Fatal("Failed to create reclaim scheduler", zap.Error(err))
		}
		if err := reclaimScheduler.Start(ctx); err != nil {
			log.Fatal("Failed to start reclaim scheduler", zap.Error(err))
		}
		defer func() {
			if err := reclaimScheduler.Stop(context.Background()); err != nil {
				log.Error("Error stopping reclaim scheduler", zap.Error(err))
			}
		}()
		systemOpts = append(systemOpts, handler.WithReclaimTrigger(reclaimScheduler))
		log.Info("Reservation reclaim scheduler started", zap.Duration("interval", cfg.Reservation.ReclaimInterval))
	}

	metrics.StartLowStockCollection(ctx, inventoryRepo, cfg.Telemetry.MetricsInterval)

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine, err := router.NewEngine(router.EngineConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: providers.TracesEnabled(),
		Meter:          meter,
		MaxBodyBytes:   middleware.DefaultMaxBodyBytes,
		RequestTimeout: cfg.HTTP.WriteTimeout,
	}, log)
	if err != nil {
		log.Fatal("Failed to create HTTP engine", zap.Error(err))
	}

	systemHandler := handler.NewSystemHandler(cfg.App.Version, db, systemOpts...)
	systemHandler.RegisterHealthRoutes(engine)

	router.NewRouter(engine, router.WithAPIVersion("v1")).
		Register(handler.NewInventoryHandler(inventoryService)).
		Register(handler.NewOrderHandler(orderService)).
		Register(systemHandler).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("Shutting down server", zap.String("signal", sig.String()))
	case err := <-serveErr:
		log.Error("Server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited")
}

// newEventBus builds the bus for the configured transport
func newEventBus(cfg *config.Config, serializer *event.EventSerializer, log *zap.Logger) (shared.EventBus, error) {
	switch cfg.Event.Transport {
	case config.TransportKafka:
		return messaging.NewKafkaEventBus(messaging.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
			Retry:   consumerRetry(cfg),
		}, serializer, log), nil
	case config.TransportRabbitMQ:
		bus, err := messaging.DialRabbitMQ(messaging.RabbitMQConfig{
			URL:      cfg.RabbitMQ.URL,
			Exchange: cfg.RabbitMQ.Exchange,
			Queue:    cfg.RabbitMQ.Queue,
			Retry:    consumerRetry(cfg),
		}, serializer, log)
		if err != nil {
			return nil, err
		}
		return bus, nil
	case config.TransportMemory:
		return event.NewInMemoryEventBus(log), nil
	default:
		return nil, fmt.Errorf("unknown event transport %q", cfg.Event.Transport)
	}
}

func consumerRetry(cfg *config.Config) messaging.RetryPolicy {
	return messaging.RetryPolicy{
		Initial: cfg.Event.ConsumerRetryInitial,
		Max:     cfg.Event.ConsumerRetryMax,
	}
}
