package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"order-fulfillment/config"
	"order-fulfillment/internal/api"
	"order-fulfillment/internal/broker"
	"order-fulfillment/internal/memstore"
	"order-fulfillment/internal/redisclient"
	"order-fulfillment/internal/seed"
	"order-fulfillment/internal/service"
	"order-fulfillment/internal/store"
	"order-fulfillment/internal/util"
	"order-fulfillment/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// backends groups the storage adapters selected by configuration.
type backends struct {
	catalog         service.ProductCatalog
	customers       service.CustomerDirectory
	orders          service.OrderRepository
	payments        service.PaymentRepository
	notifications   service.NotificationRepository
	outbox          service.OutboxRepository
	inventorySource service.InventorySource
	ledger          service.InventoryLedger
	locker          worker.Locker
	checks          map[string]api.ReadinessCheck
	closers         []func() error
}

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogFile); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting order fulfillment service",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("inventory", cfg.Storage.Inventory),
		zap.Strings("kafka_brokers", cfg.Kafka.Brokers),
		zap.Duration("payment_timeout", cfg.Payment.Timeout),
		zap.Int("notification_workers", cfg.Notification.Workers),
		zap.Bool("notification_failure_injection", cfg.Notification.FailureInjection))

	tp, err := util.InitTracer("order-fulfillment", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	ctx := context.Background()
	b, err := buildBackends(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer func() {
		for i := len(b.closers) - 1; i >= 0; i-- {
			if err := b.closers[i](); err != nil {
				logger.Warn("Error closing backend", zap.Error(err))
			}
		}
	}()

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrderConfirmed)
	defer producer.Close()
	deadLetter := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicDeadLetter)
	defer deadLetter.Close()
	logger.Info("Kafka producers initialized",
		zap.String("topic", cfg.Kafka.TopicOrderConfirmed),
		zap.String("dlt", cfg.Kafka.TopicDeadLetter))

	eventPublisher := broker.NewEventPublisher(producer)

	faults := &service.FaultInjection{}
	faults.SetNotificationFailure(cfg.Notification.FailureInjection)
	faults.SetPaymentDelay(cfg.Payment.InjectedDelay)

	inventoryClient := service.NewInventoryClient(b.ledger)
	paymentService := service.NewPaymentService(b.payments, faults, cfg.Payment.Timeout, cfg.Payment.DeclineThreshold)
	sagaOrchestrator := service.NewSagaOrchestrator(
		b.catalog,
		inventoryClient,
		paymentService,
		eventPublisher,
		b.orders,
		b.outbox,
		service.SagaOptions{ReleaseOnPartialReserve: cfg.Saga.ReleaseOnPartialReserve},
	)
	orderService := service.NewOrderService(sagaOrchestrator)
	notificationService := service.NewNotificationService(
		b.customers, b.notifications, service.NewLogNotificationSender(), faults)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	var wg sync.WaitGroup

	workers := make([]*worker.NotificationWorker, 0, cfg.Notification.Workers)
	for i := 0; i < cfg.Notification.Workers; i++ {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrderConfirmed, cfg.Kafka.ConsumerGroup,
			deadLetter, broker.RetryPolicy{
				MaxAttempts: cfg.Notification.MaxAttempts,
				Backoff:     cfg.Notification.RetryBackoff,
			})
		w := worker.NewNotificationWorker(i, consumer, notificationService)
		workers = append(workers, w)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Start(workerCtx); err != nil && workerCtx.Err() == nil {
				logger.Error("Notification worker error", zap.Error(err))
			}
		}()
	}

	relay := worker.NewOutboxRelay(b.outbox, eventPublisher, b.locker, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := relay.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Error("Outbox relay error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orderService, b.checks)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	wg.Wait()
	for _, w := range workers {
		if err := w.Stop(); err != nil {
			logger.Warn("Error stopping worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

func buildBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	logger := util.GetLogger()
	b := &backends{checks: map[string]api.ReadinessCheck{}}

	switch cfg.Storage.Backend {
	case "memory":
		catalog := memstore.NewCatalog()
		ledger := memstore.NewInventoryLedger()
		if err := seed.Demo(ctx, memstore.SeedTarget{Catalog: catalog, Ledger: ledger}); err != nil {
			return nil, err
		}

		b.catalog = catalog
		b.customers = catalog
		b.orders = memstore.NewOrderRepository()
		b.payments = memstore.NewPaymentRepository()
		b.notifications = memstore.NewNotificationRepository()
		b.outbox = memstore.NewOutboxRepository()
		b.inventorySource = ledger
		b.ledger = ledger
		logger.Info("Using in-memory storage")

	case "postgres":
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		if err := db.InitSchema(ctx); err != nil {
			return nil, err
		}
		if cfg.Storage.SeedDemo {
			if err := seed.Demo(ctx, db); err != nil {
				return nil, err
			}
			logger.Info("Demo fixtures loaded into Postgres")
		}

		b.catalog = db
		b.customers = db
		b.orders = db
		b.payments = db
		b.notifications = db
		b.outbox = db
		b.inventorySource = db
		b.ledger = db
		b.checks["postgres"] = db.Ping
		logger.Info("Database connected")

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	switch cfg.Storage.Inventory {
	case "redis":
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, redisClient.Close)
		b.checks["redis"] = redisClient.Ping
		logger.Info("Redis connected")

		if err := service.NewInventoryClient(redisClient).SyncInventory(ctx, b.inventorySource, redisClient); err != nil {
			logger.Warn("Failed to sync inventory to Redis", zap.Error(err))
		}
		b.ledger = redisClient
		b.locker = redisClient

	case "postgres":
		if cfg.Storage.Backend != "postgres" {
			return nil, fmt.Errorf("inventory backend postgres requires STORAGE=postgres")
		}

	case "memory":
		if _, ok := b.ledger.(*memstore.InventoryLedger); !ok {
			ledger := memstore.NewInventoryLedger()
			records, err := b.inventorySource.ListInventory(ctx)
			if err != nil {
				return nil, err
			}
			for _, r := range records {
				ledger.SetStock(r.ProductID, r.AvailableStock, r.ReservedStock)
			}
			b.ledger = ledger
		}

	default:
		return nil, fmt.Errorf("unknown inventory backend %q", cfg.Storage.Inventory)
	}

	return b, nil
}
