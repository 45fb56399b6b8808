package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/vibes-market-backend/internal/fees"
	"github.com/angelmondragon/vibes-market-backend/internal/gateway"
	"github.com/angelmondragon/vibes-market-backend/internal/orders"
	"github.com/angelmondragon/vibes-market-backend/internal/settings"
	"github.com/angelmondragon/vibes-market-backend/pkg/coin"
	dbpkg "github.com/angelmondragon/vibes-market-backend/pkg/db"
	"github.com/angelmondragon/vibes-market-backend/pkg/db/models"
	"github.com/angelmondragon/vibes-market-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vibes-market-backend/pkg/errors"
	"github.com/angelmondragon/vibes-market-backend/pkg/metrics"
	"github.com/angelmondragon/vibes-market-backend/pkg/outbox"
)

// ConfirmResult reports the coin leg after confirmation.
type ConfirmResult struct {
	PaymentTransactionID int64                          `json:"paymentTransactionId"`
	OrderGroupID         int64                          `json:"orderGroupId"`
	Status               enums.PaymentTransactionStatus `json:"status"`
	Settled              bool                           `json:"settled"`
}

// legContext is everything needed to pay one leg out to the shops.
type legContext struct {
	leg      *models.PaymentTransaction
	group    *models.OrderGroup
	orders   []models.Order
	legs     []models.PaymentTransaction
	user     *models.User
	shops    map[uuid.UUID]models.Shop
	settings settings.PaymentSettings
}

// ConfirmPayBySec pays the coin leg of a checkout: it spends the coins,
// transfers each shop's share and records both correlation ids on the leg.
func (s *service) ConfirmPayBySec(ctx context.Context, userID uuid.UUID, paymentIntentID string) (*ConfirmResult, error) {
	paymentIntentID = strings.TrimSpace(paymentIntentID)
	if userID == uuid.Nil || paymentIntentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user and payment intent id are required")
	}
	ctx = s.logg.WithPaymentIntentID(s.logg.WithUserID(ctx, userID.String()), paymentIntentID)

	leg, err := s.orders.FindTransactionByIntent(ctx, paymentIntentID, false)
	if orders.IsNotFound(err) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transaction")
	}
	if leg.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment transaction belongs to another user")
	}

	lc, err := s.loadLegContext(ctx, leg, paymentIntentID)
	if err != nil {
		return nil, err
	}
	if len(lc.orders) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "orders not found for payment intent")
	}
	if leg.Status != enums.PaymentTransactionStatusCreated {
		return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "payment transaction is already %s", leg.Status)
	}

	receipt, err := s.coin.Spend(ctx, coin.OperationRequest{
		UserExternalID: lc.user.ExternalID,
		Amount:         leg.Amount,
		Action:         string(enums.PurchaseFor(lc.group.ItemType)),
		IdempotencyKey: fmt.Sprintf("payment-transaction-%d", leg.ID),
	})
	if err != nil {
		return nil, err
	}

	refs, err := s.transferLeg(ctx, lc, "")
	if err != nil {
		return nil, err
	}

	settled, err := s.commitLeg(ctx, lc, receipt.TransactionID, refs)
	if err != nil {
		return nil, err
	}
	return &ConfirmResult{
		PaymentTransactionID: leg.ID,
		OrderGroupID:         lc.group.ID,
		Status:               enums.PaymentTransactionStatusInTransit,
		Settled:              settled,
	}, nil
}

// SettleFiatLeg handles a succeeded gateway charge. Redelivery for a leg that
// already left created is a no-op.
func (s *service) SettleFiatLeg(ctx context.Context, paymentIntentID, chargeID string) error {
	ctx = s.logg.WithPaymentIntentID(ctx, paymentIntentID)
	leg, err := s.orders.FindTransactionByIntent(ctx, paymentIntentID, true)
	if orders.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transaction")
	}
	if leg.Status != enums.PaymentTransactionStatusCreated {
		s.logg.Info(ctx, "fiat leg already processed")
		return nil
	}

	lc, err := s.loadLegContext(ctx, leg, paymentIntentID)
	if err != nil {
		return err
	}
	if len(lc.orders) == 0 {
		// Orders land right after the intent is created; let the gateway retry.
		return pkgerrors.New(pkgerrors.CodeStateConflict, "orders not yet recorded for payment intent")
	}
	refs, err := s.transferLeg(ctx, lc, chargeID)
	if err != nil {
		return err
	}
	_, err = s.commitLeg(ctx, lc, chargeID, refs)
	return err
}

// FailFiatLeg marks the fiat leg failed while it is still created.
func (s *service) FailFiatLeg(ctx context.Context, tx *gorm.DB, paymentIntentID, reason string) (bool, error) {
	if tx == nil {
		return false, dbpkg.ErrTxRequired
	}
	repo := s.orders.WithTx(tx)
	leg, err := repo.FindTransactionByIntent(ctx, paymentIntentID, true)
	if orders.IsNotFound(err) {
		return false, pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
	}
	if err != nil {
		return false, err
	}
	updates := map[string]any{}
	if reason != "" {
		updates["failure_reason"] = reason
	}
	moved, err := repo.TransitionTransaction(ctx, leg.ID, enums.PaymentTransactionStatusCreated, enums.PaymentTransactionStatusFailed, updates)
	if err != nil || !moved {
		return false, err
	}
	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentLegFailed,
		AggregateType: enums.AggregatePaymentTransaction,
		AggregateID:   fmt.Sprint(leg.ID),
		Data: outbox.PaymentLegFailed{
			PaymentTransactionID: leg.ID,
			PaymentIntentID:      paymentIntentID,
			Reason:               reason,
		},
	})
	if err != nil {
		return false, err
	}
	s.metrics.Settlement(groupItemType(ctx, repo, leg), metrics.ResultFailure)
	return true, nil
}

// CompleteLegTransfer moves an in-transit leg to completed once the gateway
// reports its transfer.
func (s *service) CompleteLegTransfer(ctx context.Context, tx *gorm.DB, paymentTransactionID int64) (bool, error) {
	if tx == nil {
		return false, dbpkg.ErrTxRequired
	}
	return s.orders.WithTx(tx).TransitionTransaction(ctx, paymentTransactionID,
		enums.PaymentTransactionStatusInTransit, enums.PaymentTransactionStatusCompleted, nil)
}

func (s *service) loadLegContext(ctx context.Context, leg *models.PaymentTransaction, paymentIntentID string) (*legContext, error) {
	if leg.OrderGroupID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order group not found")
	}
	lc := &legContext{leg: leg}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		group, err := s.orders.FindGroup(gctx, *leg.OrderGroupID)
		if orders.IsNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order group not found")
		}
		lc.group = group
		return err
	})
	g.Go(func() error {
		rows, err := s.orders.FindOrdersByIntent(gctx, paymentIntentID)
		if err != nil {
			return err
		}
		lc.orders = rows
		if len(rows) == 0 {
			return nil
		}
		lc.shops, err = s.shops.FindShops(gctx, shopIDs(rows))
		return err
	})
	g.Go(func() error {
		ps, err := s.settings.PaymentSettings(gctx)
		lc.settings = ps
		return err
	})
	g.Go(func() error {
		legs, err := s.orders.FindTransactionsByGroup(gctx, *leg.OrderGroupID)
		lc.legs = legs
		return err
	})
	g.Go(func() error {
		user, err := s.customers.FindUser(gctx, leg.UserID)
		if orders.IsNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		lc.user = user
		return err
	})
	if err := g.Wait(); err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment context")
	}
	return lc, nil
}

// legShares returns this leg's part of every order, aligned with lc.orders.
func legShares(lc *legContext) []fees.LegShare {
	var (
		hasFiat      bool
		fiatTransfer int64
	)
	for _, l := range lc.legs {
		if l.IsFiat {
			hasFiat = true
			fiatTransfer = l.TransferAmount
		}
	}
	return sharesFor(lc.orders, hasFiat, fiatTransfer, lc.leg.IsFiat)
}

func sharesFor(orderRows []models.Order, hasFiat bool, fiatTransfer int64, fiatLeg bool) []fees.LegShare {
	orderFees := make([]fees.TransferFees, 0, len(orderRows))
	for _, o := range orderRows {
		orderFees = append(orderFees, fees.TransferFees{
			TotalAmount:    o.TotalAmount,
			TransferAmount: o.TotalAmount - o.PlatformFee,
			PlatformFee:    o.PlatformFee,
		})
	}
	splits := fees.SplitLegs(orderFees, fiatTransfer, hasFiat)
	out := make([]fees.LegShare, len(splits))
	for i, split := range splits {
		if fiatLeg {
			out[i] = split.Fiat
		} else {
			out[i] = split.Coin
		}
	}
	return out
}

// transferLeg creates one gateway transfer per order with a non-zero share
// and returns the transfer ids by order id.
func (s *service) transferLeg(ctx context.Context, lc *legContext, sourceTransaction string) (map[int64]string, error) {
	refs := make(map[int64]string)
	shares := legShares(lc)
	for i, order := range lc.orders {
		share := shares[i]
		if share.TransferAmount <= 0 {
			continue
		}
		shop, ok := lc.shops[order.ShopID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shop not found").WithDetails(map[string]any{"shopId": order.ShopID})
		}
		if shop.StripeAccountID == nil || strings.TrimSpace(*shop.StripeAccountID) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "shop has no connected payout account").
				WithDetails(map[string]any{"shopId": order.ShopID})
		}
		tr, err := s.gateway.CreateTransfer(ctx, gateway.TransferParams{
			Amount:               share.TransferAmount,
			Destination:          *shop.StripeAccountID,
			SourceTransaction:    sourceTransaction,
			TransferGroup:        transferGroup(lc.group.ID),
			PaymentTransactionID: lc.leg.ID,
			OrderID:              order.ID,
			IdempotencyKey:       fmt.Sprintf("transfer-%d-%d", lc.leg.ID, order.ID),
		})
		if err != nil {
			return nil, err
		}
		refs[order.ID] = tr.ID
	}
	return refs, nil
}

// commitLeg marks the leg in transit with its correlation ids and settles the
// group in the same transaction when every leg has been paid.
func (s *service) commitLeg(ctx context.Context, lc *legContext, serviceTxID string, refs map[int64]string) (bool, error) {
	updates := map[string]any{}
	if serviceTxID != "" {
		updates["payment_service_tx_id"] = serviceTxID
	}
	for _, order := range lc.orders {
		if id, ok := refs[order.ID]; ok {
			updates["transfer_id"] = id
			break
		}
	}
	if len(refs) > 0 {
		raw, err := json.Marshal(refs)
		if err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode transfer refs")
		}
		updates["transfer_refs"] = string(raw)
	}

	var settlement *Settlement
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := s.orders.WithTx(tx).TransitionTransaction(ctx, lc.leg.ID,
			enums.PaymentTransactionStatusCreated, enums.PaymentTransactionStatusInTransit, updates)
		if err != nil {
			return err
		}
		if !moved {
			return nil
		}
		settlement, err = s.settleIfPaid(ctx, tx, lc)
		return err
	})
	if err != nil {
		s.metrics.Settlement(string(lc.group.ItemType), metrics.ResultFailure)
		if pkgerrors.As(err) != nil {
			return false, err
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payment transaction")
	}
	if settlement == nil {
		return false, nil
	}
	s.metrics.Settlement(string(settlement.Group.ItemType), metrics.ResultSuccess)
	s.notifySettled(ctx, settlement, lc.shops)
	return true, nil
}

func groupItemType(ctx context.Context, repo orders.Repository, leg *models.PaymentTransaction) string {
	if leg.OrderGroupID == nil {
		return ""
	}
	group, err := repo.FindGroup(ctx, *leg.OrderGroupID)
	if err != nil {
		return ""
	}
	return string(group.ItemType)
}

func shopIDs(orderRows []models.Order) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(orderRows))
	ids := make([]uuid.UUID, 0, len(orderRows))
	for _, o := range orderRows {
		if _, ok := seen[o.ShopID]; ok {
			continue
		}
		seen[o.ShopID] = struct{}{}
		ids = append(ids, o.ShopID)
	}
	return ids
}
