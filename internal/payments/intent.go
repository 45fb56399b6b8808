package payments

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/vibes-market-backend/internal/cart"
	"github.com/angelmondragon/vibes-market-backend/internal/fees"
	"github.com/angelmondragon/vibes-market-backend/internal/gateway"
	"github.com/angelmondragon/vibes-market-backend/internal/inventory"
	"github.com/angelmondragon/vibes-market-backend/internal/orders"
	"github.com/angelmondragon/vibes-market-backend/internal/settings"
	"github.com/angelmondragon/vibes-market-backend/pkg/db/models"
	"github.com/angelmondragon/vibes-market-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vibes-market-backend/pkg/errors"
)

const (
	pseudoIntentIDLength = 28
	pseudoIntentEntropy  = 30
)

var nonWordChars = regexp.MustCompile(`\W`)

// CreatePaymentIntentInput is a checkout request.
type CreatePaymentIntentInput struct {
	UserID    uuid.UUID
	AddressID uuid.UUID
	Items     []cart.LineItem
	UsedCoins int64
}

// PaymentIntentResult is what the client needs to finish paying.
type PaymentIntentResult struct {
	PaymentIntentID string         `json:"paymentIntentId"`
	ClientSecret    string         `json:"clientSecret,omitempty"`
	OrderGroupID    int64          `json:"orderGroupId"`
	ItemType        enums.ItemType `json:"itemType"`
	TotalAmount     int64          `json:"totalAmount"`
	FiatAmount      int64          `json:"fiatAmount"`
	UsedCoins       int64          `json:"usedCoins"`
	EarnedCoins     int64          `json:"earnedCoins"`
	// CoinOnly marks a local pseudo intent that no gateway knows about.
	CoinOnly bool `json:"coinOnly"`
}

type checkoutContext struct {
	user       *models.User
	address    *models.ShippingAddress
	settings   settings.PaymentSettings
	customerID string
}

// CreatePaymentIntent turns the cart into payment legs, an order group, a
// payment intent and per-shop orders. A checkout worth nothing in both fiat
// and coins returns (nil, nil) and writes nothing.
func (s *service) CreatePaymentIntent(ctx context.Context, input CreatePaymentIntentInput) (*PaymentIntentResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user is required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "products are required")
	}
	if input.AddressID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is required")
	}
	if input.UsedCoins < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "used coins must not be negative")
	}
	ctx = s.logg.WithUserID(ctx, input.UserID.String())

	cc, err := s.loadCheckoutContext(ctx, input)
	if err != nil {
		return nil, err
	}

	checkout, err := s.cart.GroupByShop(ctx, cart.GroupInput{
		User:    cc.user,
		Address: cc.address,
		Items:   input.Items,
		Fees: cart.FeeSettings{
			DefaultPlatformPercents: cc.settings.PlatformFeePercents,
			StripeFeePercents:       cc.settings.StripeFeePercents,
		},
		OrderedAt: s.now(),
	})
	if err != nil {
		return nil, err
	}

	status, unit, err := s.inventory.ValidateDemand(ctx, cart.InventoryItems(input.Items), input.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate stock")
	}
	if status != enums.StockStatusInStock && unit != nil {
		return nil, inventory.StockError(status, *unit)
	}

	if input.UsedCoins > checkout.TotalAmount {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "used coins exceed the order total")
	}
	fiatAmount := checkout.TotalAmount - input.UsedCoins
	if fiatAmount == 0 && input.UsedCoins == 0 {
		s.logg.Info(ctx, "zero value checkout skipped")
		return nil, nil
	}
	if input.UsedCoins > 0 {
		balance, err := s.coin.Balance(ctx, cc.user.ExternalID)
		if err != nil {
			return nil, err
		}
		if balance < input.UsedCoins {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientCoin, "insufficient coin balance").
				WithDetails(map[string]any{"balance": balance, "usedCoins": input.UsedCoins})
		}
	}
	if cc.customerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment customer profile is required")
	}

	earnedCoins := fees.CoinReward(fiatAmount, cc.settings.CoinRewardRate)
	fiatTransfer, coinTransfer := fees.LegTransfers(fiatAmount, checkout.TransferAmount)

	var (
		group *models.OrderGroup
		legs  []*models.PaymentTransaction
	)
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		if fiatAmount > 0 {
			leg := &models.PaymentTransaction{
				UserID:            input.UserID,
				Amount:            fiatAmount,
				StripeFeePercents: cc.settings.StripeFeePercents,
				ApplicationFee:    fiatAmount - fiatTransfer,
				TransferAmount:    fiatTransfer,
				IsFiat:            true,
			}
			if err := repo.CreatePaymentTransaction(ctx, leg); err != nil {
				return fmt.Errorf("create fiat payment transaction: %w", err)
			}
			legs = append(legs, leg)
		}
		if input.UsedCoins > 0 {
			leg := &models.PaymentTransaction{
				UserID:            input.UserID,
				Amount:            input.UsedCoins,
				StripeFeePercents: cc.settings.StripeFeePercents,
				ApplicationFee:    input.UsedCoins - coinTransfer,
				TransferAmount:    coinTransfer,
				IsFiat:            false,
			}
			if err := repo.CreatePaymentTransaction(ctx, leg); err != nil {
				return fmt.Errorf("create coin payment transaction: %w", err)
			}
			legs = append(legs, leg)
		}

		group = &models.OrderGroup{
			UserID:               input.UserID,
			ItemType:             checkout.ItemType,
			Status:               enums.OrderGroupStatusCreated,
			PaymentTransactionID: legs[0].ID,
			UsedCoins:            input.UsedCoins,
			FiatAmount:           fiatAmount,
			EarnedCoins:          earnedCoins,
			Amount:               checkout.Amount,
			ShippingFee:          checkout.ShippingFee,
			TotalAmount:          checkout.TotalAmount,
		}
		if err := repo.CreateOrderGroup(ctx, group); err != nil {
			return fmt.Errorf("create order group: %w", err)
		}
		ids := make([]int64, 0, len(legs))
		for _, leg := range legs {
			ids = append(ids, leg.ID)
		}
		return repo.LinkTransactionsToGroup(ctx, ids, group.ID)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment transactions")
	}

	result := &PaymentIntentResult{
		OrderGroupID: group.ID,
		ItemType:     checkout.ItemType,
		TotalAmount:  checkout.TotalAmount,
		FiatAmount:   fiatAmount,
		UsedCoins:    input.UsedCoins,
		EarnedCoins:  earnedCoins,
	}
	if fiatAmount > 0 {
		intent, err := s.gateway.CreatePaymentIntent(ctx, gateway.PaymentIntentParams{
			Amount:               fiatAmount,
			CustomerID:           cc.customerID,
			TransferGroup:        transferGroup(group.ID),
			ApplicationFee:       fiatAmount - fiatTransfer,
			UserID:               input.UserID.String(),
			PaymentTransactionID: legs[0].ID,
			OrderGroupID:         group.ID,
			ItemType:             string(checkout.ItemType),
			IdempotencyKey:       fmt.Sprintf("payment-transaction-%d", legs[0].ID),
		})
		if err != nil {
			return nil, err
		}
		result.PaymentIntentID = intent.ID
		result.ClientSecret = intent.ClientSecret
	} else {
		id, err := newPseudoIntentID()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate payment intent id")
		}
		result.PaymentIntentID = id
		result.CoinOnly = true
	}
	ctx = s.logg.WithPaymentIntentID(ctx, result.PaymentIntentID)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.orders.SetGroupPaymentIntent(gctx, group.ID, result.PaymentIntentID)
	})
	for _, leg := range legs {
		g.Go(func() error {
			return s.orders.SetTransactionPaymentIntent(gctx, leg.ID, result.PaymentIntentID)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "attach payment intent")
	}

	orderRows := make([]models.Order, 0, len(checkout.Orders))
	for _, shopOrder := range checkout.Orders {
		order := shopOrder.Order
		order.OrderGroupID = group.ID
		order.PaymentIntentID = &result.PaymentIntentID
		orderRows = append(orderRows, order)
	}
	if err := s.orders.CreateOrders(ctx, orderRows); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create orders")
	}

	s.attachLocksAsync(ctx, input.UserID, result.PaymentIntentID, cart.InventoryItems(input.Items))

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_group_id": group.ID,
		"fiat_amount":    fiatAmount,
		"used_coins":     input.UsedCoins,
		"orders":         len(orderRows),
	}), "payment intent created")
	return result, nil
}

// loadCheckoutContext fetches the buyer, the destination, the fee settings
// and the gateway customer concurrently.
func (s *service) loadCheckoutContext(ctx context.Context, input CreatePaymentIntentInput) (*checkoutContext, error) {
	cc := &checkoutContext{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		user, err := s.customers.FindUser(gctx, input.UserID)
		if orders.IsNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeValidation, "user not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
		}
		cc.user = user
		return nil
	})
	g.Go(func() error {
		address, err := s.customers.FindAddress(gctx, input.UserID, input.AddressID)
		if orders.IsNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeValidation, "shipping address not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipping address")
		}
		cc.address = address
		return nil
	})
	g.Go(func() error {
		ps, err := s.settings.PaymentSettings(gctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment settings")
		}
		cc.settings = ps
		return nil
	})
	g.Go(func() error {
		id, err := s.customers.DefaultPaymentCustomerID(gctx, input.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment customer")
		}
		cc.customerID = id
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return cc, nil
}

// attachLocksAsync converts the buyer's locks to ordering locks carrying the
// intent id. The response does not wait for it. A checkout that settled in the
// meantime has already released its locks, so nothing is attached, and locks
// attached while settlement committed are removed again.
func (s *service) attachLocksAsync(ctx context.Context, userID uuid.UUID, intentID string, items []inventory.Item) {
	detached := s.logg.WithPaymentIntentID(context.WithoutCancel(ctx), intentID)
	s.async(func() {
		if s.groupSettled(detached, intentID) {
			return
		}
		if err := s.inventory.AttachPaymentIntent(detached, userID, intentID, items); err != nil {
			s.logg.Error(detached, "attach payment intent to locks", err)
			return
		}
		if !s.groupSettled(detached, intentID) {
			return
		}
		if err := s.db.WithTx(detached, func(tx *gorm.DB) error {
			return s.inventory.DeleteUserLocks(detached, tx, userID, items)
		}); err != nil {
			s.logg.Error(detached, "release locks of settled checkout", err)
		}
	})
}

func (s *service) groupSettled(ctx context.Context, intentID string) bool {
	group, err := s.orders.FindGroupByIntent(ctx, intentID)
	if err != nil {
		s.logg.Error(ctx, "load order group for lock attach", err)
		return false
	}
	return group.Status == enums.OrderGroupStatusCompleted
}

func transferGroup(groupID int64) string {
	return fmt.Sprintf("order_group_%d", groupID)
}

// newPseudoIntentID returns 28 URL-safe word characters for checkouts paid
// entirely in coins.
func newPseudoIntentID() (string, error) {
	buf := make([]byte, pseudoIntentEntropy)
	for {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		id := nonWordChars.ReplaceAllString(base64.URLEncoding.EncodeToString(buf), "")
		if len(id) >= pseudoIntentIDLength {
			return id[:pseudoIntentIDLength], nil
		}
	}
}
