package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wbklx250-ops/provision-engine/internal/artifact"
	"github.com/wbklx250-ops/provision-engine/internal/config"
	"github.com/wbklx250-ops/provision-engine/internal/fsm"
	"github.com/wbklx250-ops/provision-engine/internal/handler"
	"github.com/wbklx250-ops/provision-engine/internal/infra/postgresql"
	"github.com/wbklx250-ops/provision-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/wbklx250-ops/provision-engine/internal/infra/redis"
	"github.com/wbklx250-ops/provision-engine/internal/observability"
	"github.com/wbklx250-ops/provision-engine/internal/provider"
	"github.com/wbklx250-ops/provision-engine/internal/queue"
	"github.com/wbklx250-ops/provision-engine/internal/repository"
	"github.com/wbklx250-ops/provision-engine/internal/service"
	"github.com/wbklx250-ops/provision-engine/internal/transport"
)

const consumerPrefetch = 16

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
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

	rateLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	rmq, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rmq.Close()

	publisher := queue.NewRabbitMQPublisher(rmq)
	consumer := queue.NewRabbitMQConsumer(rmq, consumerPrefetch, logger)

	dnsProvider, err := provider.NewDNSHostProvider(cfg.DNSAPIURL, cfg.DNSAPIToken)
	if err != nil {
		logger.Fatal("dns provider initialization failed", zap.Error(err))
	}
	mailboxProvider, err := provider.NewMailboxPlatformProvider(cfg.MailboxAPIURL)
	if err != nil {
		logger.Fatal("mailbox provider initialization failed", zap.Error(err))
	}
	sequencerProvider, err := provider.NewSequencerProvider(cfg.SequencerAPIURL)
	if err != nil {
		logger.Fatal("sequencer provider initialization failed", zap.Error(err))
	}

	batchRepo := repository.NewGormBatchRepo(db)
	stepRepo := repository.NewGormStepRepo(db)
	activityRepo := repository.NewGormActivityRepo(db)
	provisionRepo := repository.NewGormProvisionRepo(db)
	jobRepo := repository.NewGormJobRepo(db)
	uploadRepo := repository.NewGormUploadHistoryRepo(db)

	engine, err := artifact.NewEngine(cfg.MailboxesPerTenant)
	if err != nil {
		logger.Fatal("artifact engine initialization failed", zap.Error(err))
	}

	jobService, err := service.NewJobService(jobRepo, provisionRepo, sequencerProvider, publisher, logger)
	if err != nil {
		logger.Fatal("job service initialization failed", zap.Error(err))
	}

	executors, err := service.NewStepExecutors(service.StepDeps{
		Provision:          provisionRepo,
		DNS:                dnsProvider,
		Mailbox:            mailboxProvider,
		Jobs:               jobService,
		RateLimiter:        rateLimiter,
		MailboxesPerTenant: cfg.MailboxesPerTenant,
	})
	if err != nil {
		logger.Fatal("step executor initialization failed", zap.Error(err))
	}

	orchestrator, err := service.NewOrchestrator(
		batchRepo, stepRepo, activityRepo, provisionRepo,
		engine, fsm.New(), executors, cfg.StepConcurrency, logger,
	)
	if err != nil {
		logger.Fatal("orchestrator initialization failed", zap.Error(err))
	}

	worker, err := service.NewJobWorker(
		jobRepo, uploadRepo, provisionRepo,
		dnsProvider, mailboxProvider, sequencerProvider,
		consumer, rateLimiter, cfg.JobConcurrency, logger,
	)
	if err != nil {
		logger.Fatal("job worker initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	orchestrator.SetMetrics(metrics)
	worker.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	handler.RegisterHealthRoutes(app, handler.PostgresProbe(sqlDB), handler.RedisProbe(rdb))
	if err := handler.RegisterBatchRoutes(app, orchestrator); err != nil {
		logger.Fatal("batch route registration failed", zap.Error(err))
	}
	if err := handler.RegisterJobRoutes(app, jobService); err != nil {
		logger.Fatal("job route registration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("provision-engine api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})

	group.Go(func() error {
		logger.Info("job worker started", zap.Int("concurrency", cfg.JobConcurrency))
		return worker.Start(groupCtx)
	})

	group.Go(func() error {
		<-groupCtx.Done()
		return app.Shutdown()
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("provision-engine terminated", zap.Error(err))
	}
	logger.Info("provision-engine stopped")
}
