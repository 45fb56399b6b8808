package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/vibes-market-backend/internal/coinqueue"
	"github.com/angelmondragon/vibes-market-backend/internal/cron"
	"github.com/angelmondragon/vibes-market-backend/internal/customers"
	"github.com/angelmondragon/vibes-market-backend/internal/inventory"
	"github.com/angelmondragon/vibes-market-backend/internal/notifications"
	"github.com/angelmondragon/vibes-market-backend/internal/orders"
	"github.com/angelmondragon/vibes-market-backend/internal/settings"
	"github.com/angelmondragon/vibes-market-backend/pkg/coin"
	"github.com/angelmondragon/vibes-market-backend/pkg/config"
	"github.com/angelmondragon/vibes-market-backend/pkg/db"
	"github.com/angelmondragon/vibes-market-backend/pkg/instance"
	"github.com/angelmondragon/vibes-market-backend/pkg/logger"
	"github.com/angelmondragon/vibes-market-backend/pkg/metrics"
	"github.com/angelmondragon/vibes-market-backend/pkg/migrate"
	"github.com/angelmondragon/vibes-market-backend/pkg/outbox"
	"github.com/angelmondragon/vibes-market-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	coinClient, err := coin.NewClient(cfg.Coin)
	if err != nil {
		logg.Error(context.Background(), "failed to create coin client", err)
		os.Exit(1)
	}

	gormDB := dbClient.DB()
	paymentMetrics := metrics.NewPayments(prometheus.DefaultRegisterer)
	outboxRepo := outbox.NewRepository(gormDB)

	settingsService, err := settings.NewService(gormDB, redisClient, cfg.Settings.CacheTTL, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create settings service", err)
		os.Exit(1)
	}

	ledger, err := inventory.NewLedger(inventory.LedgerParams{
		DB:     gormDB,
		Tx:     dbClient,
		Outbox: outbox.NewService(outboxRepo, logg),
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory ledger", err)
		os.Exit(1)
	}

	coinQueue, err := coinqueue.NewService(coinqueue.ServiceParams{
		Repo:    coinqueue.NewRepository(gormDB),
		Coin:    coinClient,
		AssetID: coinClient.AssetID(),
		Users:   customers.NewRepository(gormDB),
		Mailer:  notifications.NewLogMailer(logg),
		Metrics: paymentMetrics,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create coin action queue", err)
		os.Exit(1)
	}

	lockExpiry, err := cron.NewLockExpiryJob(cron.LockExpiryJobParams{
		Logger:   logg,
		Ledger:   ledger,
		Settings: settingsService,
		Metrics:  paymentMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create lock expiry job", err)
		os.Exit(1)
	}
	coinJob, err := cron.NewCoinQueueJob(cron.CoinQueueJobParams{Logger: logg, Queue: coinQueue})
	if err != nil {
		logg.Error(context.Background(), "failed to create coin queue job", err)
		os.Exit(1)
	}
	orphanAudit, err := cron.NewOrphanAuditJob(cron.OrphanAuditJobParams{
		Logger:  logg,
		Finder:  orders.NewRepository(gormDB),
		Metrics: paymentMetrics,
		Timeout: cfg.Cron.OrphanTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orphan audit job", err)
		os.Exit(1)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outboxRepo,
		Retention:  cfg.Outbox.Retention,
		BatchSize:  cfg.Outbox.RetentionBatch,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron"), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(lockExpiry, coinJob, orphanAudit, retention),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return service.Run(gctx)
	})
	g.Go(func() error {
		return metrics.Serve(gctx, cfg.App.MetricsAddr, prometheus.DefaultGatherer, logg)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
