package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/vibes-market-backend/api/controllers"
	checkoutcontrollers "github.com/angelmondragon/vibes-market-backend/api/controllers/checkout"
	paymentcontrollers "github.com/angelmondragon/vibes-market-backend/api/controllers/payments"
	webhookcontrollers "github.com/angelmondragon/vibes-market-backend/api/controllers/webhooks"
	"github.com/angelmondragon/vibes-market-backend/api/middleware"
	stripewebhook "github.com/angelmondragon/vibes-market-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/vibes-market-backend/pkg/config"
	"github.com/angelmondragon/vibes-market-backend/pkg/logger"
	"github.com/angelmondragon/vibes-market-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/vibes-market-backend/pkg/redis"
	"github.com/angelmondragon/vibes-market-backend/pkg/stripe"
)

// RedisStore is the slice of the redis client the HTTP layer needs.
type RedisStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

// InventoryLedger serves the lock and display-stock endpoints.
type InventoryLedger interface {
	checkoutcontrollers.LockLedger
	checkoutcontrollers.RemainingLoader
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisStore RedisStore,
	ledger InventoryLedger,
	paymentsService paymentcontrollers.Service,
	payoutService controllers.PayoutRequester,
	shops controllers.ShopReader,
	stripeClient *stripe.Client,
	stripeWebhookService webhookcontrollers.StripeWebhookService,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSOrigins),
	)

	paymentPolicy := middleware.NewRateLimitPolicy("payments", cfg.HTTP.PaymentRateWindow, cfg.HTTP.PaymentRateLimit)
	inventoryPolicy := middleware.NewRateLimitPolicy("inventory", cfg.HTTP.PaymentRateWindow, cfg.HTTP.InventoryRateLimit)

	readiness := map[string]controllers.Pinger{"db": dbP}
	var limiter middleware.RateLimitStore
	var idempotency pkgredis.IdempotencyStore
	if redisStore != nil {
		readiness["redis"] = redisStore
		limiter = redisStore
		idempotency = redisStore
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler(nil))

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	if stripeClient != nil {
		r.Route("/api/v1/webhooks", func(r chi.Router) {
			r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, logg))
		})
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotency, logg))
		r.Get("/ping", controllers.PrivatePing())

		r.Route("/v1", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(inventoryPolicy, limiter, logg))
				r.Post("/checkout/locks", checkoutcontrollers.EnterCheckout(ledger, logg))
				r.Delete("/checkout/locks", checkoutcontrollers.LeaveCheckout(ledger, logg))
				r.Post("/cart/locks", checkoutcontrollers.LockCart(ledger, logg))
				r.Get("/inventory/remaining", checkoutcontrollers.Remaining(ledger, logg))
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(paymentPolicy, limiter, logg))
				r.Post("/payments/intents", paymentcontrollers.CreateIntent(paymentsService, logg))
				r.Post("/payments/confirm-sec", paymentcontrollers.ConfirmSec(paymentsService, logg))
				r.Post("/shops/{shopId}/payouts", controllers.ShopPayout(payoutService, shops, logg))
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(logg))
			r.Get("/ping", controllers.PrivatePing())
		})
	})

	return r
}
