package payments

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
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
	dbpkg "github.com/angelmondragon/vibes-market-backend/pkg/db"
	"github.com/angelmondragon/vibes-market-backend/pkg/db/dbtest"
	"github.com/angelmondragon/vibes-market-backend/pkg/db/models"
	"github.com/angelmondragon/vibes-market-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vibes-market-backend/pkg/errors"
	"github.com/angelmondragon/vibes-market-backend/pkg/logger"
	"github.com/angelmondragon/vibes-market-backend/pkg/outbox"
)

type fakeGateway struct {
	mu        sync.Mutex
	intents   []gateway.PaymentIntentParams
	transfers []gateway.TransferParams
	// transfers are deduplicated by idempotency key the way the gateway does
	byKey map[string]string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{byKey: map[string]string{}}
}

func (g *fakeGateway) CreatePaymentIntent(_ context.Context, params gateway.PaymentIntentParams) (*gateway.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents = append(g.intents, params)
	id := fmt.Sprintf("pi_%d", len(g.intents))
	return &gateway.PaymentIntent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (g *fakeGateway) CreateTransfer(_ context.Context, params gateway.TransferParams) (*gateway.Transfer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := g.byKey[params.IdempotencyKey]; ok {
		return &gateway.Transfer{ID: id}, nil
	}
	g.transfers = append(g.transfers, params)
	id := fmt.Sprintf("tr_%d", len(g.transfers))
	g.byKey[params.IdempotencyKey] = id
	return &gateway.Transfer{ID: id}, nil
}

func (g *fakeGateway) CreatePayout(context.Context, gateway.PayoutParams) (*gateway.Payout, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not used")
}

type fakeCoin struct {
	mu       sync.Mutex
	balances map[string]int64
	spends   []coin.OperationRequest
}

func (c *fakeCoin) Spend(_ context.Context, req coin.OperationRequest) (*coin.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.balances[req.UserExternalID] < req.Amount {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientCoin, "insufficient coin balance")
	}
	c.balances[req.UserExternalID] -= req.Amount
	c.spends = append(c.spends, req)
	return &coin.Receipt{TransactionID: fmt.Sprintf("ctx_%d", len(c.spends))}, nil
}

func (c *fakeCoin) Credit(context.Context, coin.OperationRequest) (*coin.Receipt, error) {
	return &coin.Receipt{TransactionID: "credit"}, nil
}

func (c *fakeCoin) Balance(_ context.Context, userExternalID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balances[userExternalID], nil
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []notifications.Message
}

func (m *recordingMailer) Send(_ context.Context, msg notifications.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// failingLedger breaks lock cleanup so settlement fails after stock moved.
type failingLedger struct {
	inventory.Ledger
}

func (failingLedger) DeleteUserLocks(context.Context, *gorm.DB, uuid.UUID, []inventory.Item) error {
	return pkgerrors.New(pkgerrors.CodeDependency, "lock table unavailable")
}

type fixture struct {
	db      *gorm.DB
	svc     Service
	ledger  inventory.Ledger
	gateway *fakeGateway
	coin    *fakeCoin
	mailer  *recordingMailer
	buyer   *models.User
	address *models.ShippingAddress
}

type fixtureOption func(*ServiceParams)

func withFailingLocks() fixtureOption {
	return func(p *ServiceParams) { p.Inventory = failingLedger{Ledger: p.Inventory} }
}

// withQueuedAsync holds background work until the test runs it.
func withQueuedAsync(queue *[]func()) fixtureOption {
	return func(p *ServiceParams) { p.Async = func(fn func()) { *queue = append(*queue, fn) } }
}

func newFixture(t *testing.T, opts ...fixtureOption) fixture {
	t.Helper()
	db := dbtest.Open(t)
	logg := logger.Nop()
	emitter := outbox.NewService(outbox.NewRepository(db), logg)

	ledger, err := inventory.NewLedger(inventory.LedgerParams{DB: db, Tx: dbpkg.FromGorm(db), Outbox: emitter, Logger: logg})
	require.NoError(t, err)
	catalog := cart.NewCatalogRepository(db)
	aggregator, err := cart.NewService(catalog)
	require.NoError(t, err)
	settingsSvc, err := settings.NewService(db, nil, 0, logg)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, settingsSvc.Set(ctx, settings.KeyStripeFeePercents, "3"))
	require.NoError(t, settingsSvc.Set(ctx, settings.KeyPlatformFeePercents, "10"))
	require.NoError(t, settingsSvc.Set(ctx, settings.KeyCoinRewardRate, "1"))

	fc := &fakeCoin{balances: map[string]int64{}}
	queue, err := coinqueue.NewService(coinqueue.ServiceParams{
		Repo:    coinqueue.NewRepository(db),
		Coin:    fc,
		AssetID: "vibes-coin",
		Logger:  logg,
	})
	require.NoError(t, err)

	gw := newFakeGateway()
	mailer := &recordingMailer{}
	params := ServiceParams{
		DB:        dbpkg.FromGorm(db),
		Orders:    orders.NewRepository(db),
		Customers: customers.NewRepository(db),
		Cart:      aggregator,
		Shops:     catalog,
		Inventory: ledger,
		Settings:  settingsSvc,
		Gateway:   gw,
		Coin:      fc,
		CoinQueue: queue,
		Outbox:    emitter,
		Mailer:    mailer,
		Logger:    logg,
		Async:     func(fn func()) { fn() },
	}
	for _, opt := range opts {
		opt(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)

	buyer := &models.User{ExternalID: "ext-buyer", Email: "buyer@example.com", DisplayName: "Buyer"}
	require.NoError(t, db.Create(buyer).Error)
	address := &models.ShippingAddress{UserID: buyer.ID, RecipientName: "Taro", PostalCode: "100-0001", CountryCode: "JP", City: "Chiyoda", Line1: "1-1"}
	require.NoError(t, db.Create(address).Error)
	require.NoError(t, db.Create(&models.PaymentCustomer{UserID: buyer.ID, StripeCustomerID: "cus_buyer", IsDefault: true}).Error)

	return fixture{
		db:      db,
		svc:     svc,
		ledger:  ledger,
		gateway: gw,
		coin:    fc,
		mailer:  mailer,
		buyer:   buyer,
		address: address,
	}
}

func (f fixture) shop(t *testing.T, percents int64, account string) models.Shop {
	t.Helper()
	shop := models.Shop{
		OwnerUserID:      uuid.New(),
		Name:             "shop-" + account,
		Email:            account + "@shops.example.com",
		StripeAccountID:  dbtest.String(account),
		PlatformPercents: decimal.NewNullDecimal(decimal.NewFromInt(percents)),
	}
	require.NoError(t, f.db.Create(&shop).Error)
	return shop
}

func (f fixture) product(t *testing.T, shopID uuid.UUID, price int64, quantity *int64) models.Product {
	t.Helper()
	product := models.Product{ShopID: shopID, Title: "item", Price: price, Quantity: quantity, Status: enums.ProductStatusPublished}
	require.NoError(t, f.db.Create(&product).Error)
	return product
}

// twoShopCart seeds the 600 + 400 purchase across a 10% and a 15% shop.
func (f fixture) twoShopCart(t *testing.T) (models.Product, models.Product, []cart.LineItem) {
	t.Helper()
	shopA := f.shop(t, 10, "acct_A")
	shopB := f.shop(t, 15, "acct_B")
	a := f.product(t, shopA.ID, 600, dbtest.Int64(5))
	b := f.product(t, shopB.ID, 400, dbtest.Int64(5))
	return a, b, []cart.LineItem{
		{ProductID: a.ID, Quantity: 1},
		{ProductID: b.ID, Quantity: 1},
	}
}

func (f fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func (f fixture) ordersOf(t *testing.T, groupID int64) []models.Order {
	t.Helper()
	var rows []models.Order
	require.NoError(t, f.db.Preload("Items").Where("order_group_id = ?", groupID).Order("id ASC").Find(&rows).Error)
	return rows
}

func (f fixture) legsOf(t *testing.T, groupID int64) []models.PaymentTransaction {
	t.Helper()
	var rows []models.PaymentTransaction
	require.NoError(t, f.db.Where("order_group_id = ?", groupID).Order("id ASC").Find(&rows).Error)
	return rows
}

func (f fixture) productQuantity(t *testing.T, id uuid.UUID) (int64, int64) {
	t.Helper()
	var p models.Product
	require.NoError(t, f.db.Where("id = ?", id).First(&p).Error)
	var qty int64
	if p.Quantity != nil {
		qty = *p.Quantity
	}
	return qty, p.PurchasedCount
}
