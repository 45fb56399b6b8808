package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/vibes-market-backend/api/routes"
	"github.com/angelmondragon/vibes-market-backend/internal/cart"
	"github.com/angelmondragon/vibes-market-backend/internal/coinqueue"
	"github.com/angelmondragon/vibes-market-backend/internal/customers"
	"github.com/angelmondragon/vibes-market-backend/internal/gateway"
	"github.com/angelmondragon/vibes-market-backend/internal/inventory"
	"github.com/angelmondragon/vibes-market-backend/internal/notifications"
	"github.com/angelmondragon/vibes-market-backend/internal/orders"
	"github.com/angelmondragon/vibes-market-backend/internal/payments"
	"github.com/angelmondragon/vibes-market-backend/internal/payouts"
	"github.com/angelmondragon/vibes-market-backend/internal/settings"
	stripewebhook "github.com/angelmondragon/vibes-market-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/vibes-market-backend/pkg/coin"
	"github.com/angelmondragon/vibes-market-backend/pkg/config"
	"github.com/angelmondragon/vibes-market-backend/pkg/db"
	"github.com/angelmondragon/vibes-market-backend/pkg/env"
	"github.com/angelmondragon/vibes-market-backend/pkg/instance"
	"github.com/angelmondragon/vibes-market-backend/pkg/logger"
	"github.com/angelmondragon/vibes-market-backend/pkg/metrics"
	"github.com/angelmondragon/vibes-market-backend/pkg/migrate"
	"github.com/angelmondragon/vibes-market-backend/pkg/outbox"
	"github.com/angelmondragon/vibes-market-backend/pkg/redis"
	"github.com/angelmondragon/vibes-market-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}
	paymentGateway, err := gateway.NewStripe(stripeClient.API(), stripeClient.Currency(), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment gateway", err)
		os.Exit(1)
	}

	coinClient, err := coin.NewClient(cfg.Coin)
	if err != nil {
		logg.Error(context.Background(), "failed to create coin client", err)
		os.Exit(1)
	}

	gormDB := dbClient.DB()
	paymentMetrics := metrics.NewPayments(prometheus.DefaultRegisterer)
	mailer := notifications.NewLogMailer(logg)
	outboxService := outbox.NewService(outbox.NewRepository(gormDB), logg)
	catalog := cart.NewCatalogRepository(gormDB)
	customerRepo := customers.NewRepository(gormDB)

	settingsService, err := settings.NewService(gormDB, redisClient, cfg.Settings.CacheTTL, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create settings service", err)
		os.Exit(1)
	}

	ledger, err := inventory.NewLedger(inventory.LedgerParams{
		DB:     gormDB,
		Tx:     dbClient,
		Outbox: outboxService,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory ledger", err)
		os.Exit(1)
	}

	aggregator, err := cart.NewService(catalog)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart aggregator", err)
		os.Exit(1)
	}

	coinQueue, err := coinqueue.NewService(coinqueue.ServiceParams{
		Repo:    coinqueue.NewRepository(gormDB),
		Coin:    coinClient,
		AssetID: coinClient.AssetID(),
		Users:   customerRepo,
		Mailer:  mailer,
		Metrics: paymentMetrics,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create coin action queue", err)
		os.Exit(1)
	}

	paymentsService, err := payments.NewService(payments.ServiceParams{
		DB:        dbClient,
		Orders:    orders.NewRepository(gormDB),
		Customers: customerRepo,
		Cart:      aggregator,
		Shops:     catalog,
		Inventory: ledger,
		Settings:  settingsService,
		Gateway:   paymentGateway,
		Coin:      coinClient,
		CoinQueue: coinQueue,
		Outbox:    outboxService,
		Mailer:    mailer,
		Metrics:   paymentMetrics,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	payoutService, err := payouts.NewService(payouts.ServiceParams{
		DB:      dbClient,
		Repo:    payouts.NewRepository(gormDB),
		Shops:   catalog,
		Gateway: paymentGateway,
		Outbox:  outboxService,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payout service", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Payments:          paymentsService,
		Payouts:           payoutService,
		TransactionRunner: dbClient,
		Metrics:           paymentMetrics,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}
	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Webhooks.IdempotencyTTL, "stripe-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"instance":   instance.GetID(),
		"stripe_env": stripeClient.Environment(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			ledger,
			paymentsService,
			payoutService,
			catalog,
			stripeClient,
			webhookService,
			webhookGuard,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}
