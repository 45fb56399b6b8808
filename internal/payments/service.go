package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vibes-market-backend/internal/cart"
	"github.com/angelmondragon/vibes-market-backend/internal/coinqueue"
	"github.com/angelmondragon/vibes-market-backend/internal/customers"
	"github.com/angelmondragon/vibes-market-backend/internal/gateway"
	"github.com/angelmondragon/vibes-market-backend/internal/inventory"
	"github.com/angelmondragon/vibes-market-backend/internal/notifications"
	"github.com/angelmondragon/vibes-market-backend/internal/orders"
	"github.com/angelmondragon/vibes-market-backend/internal/settings"
	"github.com/angelmondragon/vibes-market-backend/pkg/coin"
	"github.com/angelmondragon/vibes-market-backend/pkg/db/models"
	"github.com/angelmondragon/vibes-market-backend/pkg/logger"
	"github.com/angelmondragon/vibes-market-backend/pkg/metrics"
	"github.com/angelmondragon/vibes-market-backend/pkg/outbox"
)

// Service drives checkout from payment intent creation to settlement.
type Service interface {
	CreatePaymentIntent(ctx context.Context, input CreatePaymentIntentInput) (*PaymentIntentResult, error)
	ConfirmPayBySec(ctx context.Context, userID uuid.UUID, paymentIntentID string) (*ConfirmResult, error)
	SettleFiatLeg(ctx context.Context, paymentIntentID, chargeID string) error
	FailFiatLeg(ctx context.Context, tx *gorm.DB, paymentIntentID, reason string) (bool, error)
	CompleteLegTransfer(ctx context.Context, tx *gorm.DB, paymentTransactionID int64) (bool, error)
	HandleOrders(ctx context.Context, tx *gorm.DB, group *models.OrderGroup, orderRows []models.Order) (*Settlement, error)
	CreatePaymentTransfers(ctx context.Context, tx *gorm.DB, book TransferBook) (int64, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type settingsReader interface {
	PaymentSettings(ctx context.Context) (settings.PaymentSettings, error)
}

type shopReader interface {
	FindShops(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Shop, error)
}

type ServiceParams struct {
	DB        txRunner
	Orders    orders.Repository
	Customers customers.Repository
	Cart      cart.Aggregator
	Shops     shopReader
	Inventory inventory.Ledger
	Settings  settingsReader
	Gateway   gateway.PaymentGateway
	Coin      coin.Ledger
	CoinQueue coinqueue.Enqueuer
	Outbox    outbox.Emitter
	Mailer    notifications.Mailer
	Metrics   *metrics.Payments
	Logger    *logger.Logger
	// Async runs lock bookkeeping off the request path. Defaults to a goroutine.
	Async func(fn func())
}

type service struct {
	db        txRunner
	orders    orders.Repository
	customers customers.Repository
	cart      cart.Aggregator
	shops     shopReader
	inventory inventory.Ledger
	settings  settingsReader
	gateway   gateway.PaymentGateway
	coin      coin.Ledger
	coinQueue coinqueue.Enqueuer
	outbox    outbox.Emitter
	mailer    notifications.Mailer
	metrics   *metrics.Payments
	logg      *logger.Logger
	async     func(fn func())
	now       func() time.Time
}

// NewService wires the payment orchestrator.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Customers == nil:
		return nil, fmt.Errorf("customers repository required")
	case params.Cart == nil:
		return nil, fmt.Errorf("cart aggregator required")
	case params.Shops == nil:
		return nil, fmt.Errorf("shop reader required")
	case params.Inventory == nil:
		return nil, fmt.Errorf("inventory ledger required")
	case params.Settings == nil:
		return nil, fmt.Errorf("settings reader required")
	case params.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case params.Coin == nil:
		return nil, fmt.Errorf("coin ledger required")
	case params.CoinQueue == nil:
		return nil, fmt.Errorf("coin queue required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	async := params.Async
	if async == nil {
		async = func(fn func()) { go fn() }
	}
	return &service{
		db:        params.DB,
		orders:    params.Orders,
		customers: params.Customers,
		cart:      params.Cart,
		shops:     params.Shops,
		inventory: params.Inventory,
		settings:  params.Settings,
		gateway:   params.Gateway,
		coin:      params.Coin,
		coinQueue: params.CoinQueue,
		outbox:    params.Outbox,
		mailer:    params.Mailer,
		metrics:   params.Metrics,
		logg:      logg,
		async:     async,
		now:       time.Now,
	}, nil
}

