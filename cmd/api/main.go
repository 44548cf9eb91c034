package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/deliverhub/webhook-relay/internal/config"
	"github.com/deliverhub/webhook-relay/internal/events"
	"github.com/deliverhub/webhook-relay/internal/handler"
	"github.com/deliverhub/webhook-relay/internal/infra/postgresql"
	"github.com/deliverhub/webhook-relay/internal/infra/postgresql/migrations"
	infraredis "github.com/deliverhub/webhook-relay/internal/infra/redis"
	"github.com/deliverhub/webhook-relay/internal/observability"
	"github.com/deliverhub/webhook-relay/internal/queue"
	"github.com/deliverhub/webhook-relay/internal/repository"
	"github.com/deliverhub/webhook-relay/internal/sender"
	"github.com/deliverhub/webhook-relay/internal/service"
	"github.com/deliverhub/webhook-relay/internal/transport"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	consumerPrefetch = 10
	shutdownTimeout  = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	rateLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	webhookRepo := repository.NewGormWebhookRepo(db)
	deliveryRepo := repository.NewGormDeliveryRepo(db)
	logRepo := repository.NewGormLogRepo(db)

	publisher := queue.NewRabbitMQPublisher(rabbit)
	consumer := queue.NewRabbitMQConsumer(rabbit, consumerPrefetch, logger)

	metrics := observability.NewMetrics()
	broker := events.NewBroker(logger)

	httpSender := sender.NewHTTPSender()

	webhookService, err := service.NewWebhookService(webhookRepo, deliveryRepo, publisher, httpSender, broker, logger)
	if err != nil {
		logger.Fatal("webhook service initialization failed", zap.Error(err))
	}

	deliveryService, err := service.NewDeliveryService(deliveryRepo, logRepo, publisher, broker, logger)
	if err != nil {
		logger.Fatal("delivery service initialization failed", zap.Error(err))
	}

	retryScanner, err := service.NewRetryScanner(
		deliveryRepo,
		publisher,
		time.Duration(cfg.RetryScanIntervalSec)*time.Second,
		cfg.RetryScanLimit,
		logger,
	)
	if err != nil {
		logger.Fatal("retry scanner initialization failed", zap.Error(err))
	}

	sweeper, err := service.NewAbandonSweeper(
		deliveryRepo,
		broker,
		time.Duration(cfg.AbandonScanIntervalSec)*time.Second,
		time.Duration(cfg.AbandonAfterHours)*time.Hour,
		cfg.AbandonScanLimit,
		logger,
	)
	if err != nil {
		logger.Fatal("abandon sweeper initialization failed", zap.Error(err))
	}
	sweeper.SetMetrics(metrics)

	workers, err := service.NewWorkerService(
		deliveryRepo,
		webhookRepo,
		logRepo,
		consumer,
		httpSender,
		rateLimiter,
		cfg.WorkerConcurrency,
		logger,
	)
	if err != nil {
		logger.Fatal("worker service initialization failed", zap.Error(err))
	}
	workers.SetMetrics(metrics)
	workers.SetBroker(broker)

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if err := handler.RegisterWebhookRoutes(app, webhookService, deliveryService, broker); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error { return broker.Start(groupCtx) })
	g.Go(func() error { return retryScanner.Start(groupCtx) })
	g.Go(func() error { return sweeper.Start(groupCtx) })
	g.Go(func() error { return workers.Start(groupCtx) })

	g.Go(func() error {
		logger.Info("webhook-relay api started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("http server stopped: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("service stopped with error", zap.Error(err))
	}
	logger.Info("webhook-relay stopped")
}
