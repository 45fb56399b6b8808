package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vibes-market-backend/internal/gateway"
	dbpkg "github.com/angelmondragon/vibes-market-backend/pkg/db"
	"github.com/angelmondragon/vibes-market-backend/pkg/db/models"
	"github.com/angelmondragon/vibes-market-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vibes-market-backend/pkg/errors"
	"github.com/angelmondragon/vibes-market-backend/pkg/logger"
	"github.com/angelmondragon/vibes-market-backend/pkg/outbox"
)

// Service schedules seller withdrawals and follows them through the gateway.
type Service interface {
	Request(ctx context.Context, shopID uuid.UUID, amount int64) (*models.PayoutTransaction, error)
	ApplyGatewayStatus(ctx context.Context, tx *gorm.DB, gatewayPayoutID string, status enums.PayoutStatus, reason string) (bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type shopReader interface {
	FindShops(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Shop, error)
}

type ServiceParams struct {
	DB      txRunner
	Repo    Repository
	Shops   shopReader
	Gateway gateway.PaymentGateway
	Outbox  outbox.Emitter
	Logger  *logger.Logger
}

type service struct {
	db      txRunner
	repo    Repository
	shops   shopReader
	gateway gateway.PaymentGateway
	outbox  outbox.Emitter
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("payout repository required")
	case params.Shops == nil:
		return nil, fmt.Errorf("shop reader required")
	case params.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		db:      params.DB,
		repo:    params.Repo,
		shops:   params.Shops,
		gateway: params.Gateway,
		outbox:  params.Outbox,
		logg:    logg,
		now:     time.Now,
	}, nil
}

// Request creates a payout for shopID unless an earlier one is still open.
// A gateway failure leaves the row failed and is returned to the caller.
func (s *service) Request(ctx context.Context, shopID uuid.UUID, amount int64) (*models.PayoutTransaction, error) {
	if shopID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop is required")
	}
	if amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout amount must be positive")
	}
	ctx = s.logg.WithShopID(ctx, shopID.String())

	shops, err := s.shops.FindShops(ctx, []uuid.UUID{shopID})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shop")
	}
	shop, ok := shops[shopID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
	}
	if shop.StripeAccountID == nil || strings.TrimSpace(*shop.StripeAccountID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "shop has no connected payout account")
	}

	row := &models.PayoutTransaction{ShopID: shopID, Amount: amount, Status: enums.PayoutStatusCreated}
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.LockShop(ctx, shopID); err != nil {
			return err
		}
		latest, err := repo.FindLatestByShop(ctx, shopID)
		if err != nil {
			return err
		}
		if latest != nil && latest.Status.IsOpen() {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "payout %d is still %s", latest.ID, latest.Status)
		}
		return repo.Create(ctx, row)
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		// The open-payout index catches requests that slipped past the shop lock.
		if pkgerrors.Classify(err).Code() == pkgerrors.CodeConflict {
			return nil, pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "shop already has an open payout")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payout")
	}
	ctx = s.logg.WithField(ctx, "payout_transaction_id", row.ID)

	po, gwErr := s.gateway.CreatePayout(ctx, gateway.PayoutParams{
		Amount:              amount,
		ConnectedAccount:    *shop.StripeAccountID,
		PayoutTransactionID: row.ID,
		IdempotencyKey:      fmt.Sprintf("payout-%d", row.ID),
	})
	if gwErr != nil {
		reason := gwErr.Error()
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			return s.transition(ctx, tx, row, enums.PayoutStatusCreated, enums.PayoutStatusFailed, map[string]any{"failure_reason": reason})
		})
		if err != nil {
			s.logg.Error(ctx, "mark payout failed", err)
		}
		return nil, gwErr
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.transition(ctx, tx, row, enums.PayoutStatusCreated, enums.PayoutStatusInTransit, map[string]any{"stripe_payout_id": po.ID})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payout")
	}
	row.StripePayoutID = &po.ID
	s.logg.Info(s.logg.WithField(ctx, "payout_id", po.ID), "payout requested")
	return row, nil
}

// ApplyGatewayStatus records a terminal gateway status for an in-transit
// payout. Anything else is left alone.
func (s *service) ApplyGatewayStatus(ctx context.Context, tx *gorm.DB, gatewayPayoutID string, status enums.PayoutStatus, reason string) (bool, error) {
	if tx == nil {
		return false, dbpkg.ErrTxRequired
	}
	if status != enums.PayoutStatusPaid && status != enums.PayoutStatusFailed {
		return false, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported payout status %q", status)
	}
	row, err := s.repo.WithTx(tx).FindByGatewayID(ctx, gatewayPayoutID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
	}
	if err != nil {
		return false, err
	}
	updates := map[string]any{}
	if status == enums.PayoutStatusFailed && reason != "" {
		updates["failure_reason"] = reason
	}
	before := row.Status
	if err := s.transition(ctx, tx, row, enums.PayoutStatusInTransit, status, updates); err != nil {
		return false, err
	}
	return row.Status != before, nil
}

// transition moves row from one status to another and emits the change in
// the same transaction. row.Status is updated only when the row moved.
func (s *service) transition(ctx context.Context, tx *gorm.DB, row *models.PayoutTransaction, from, to enums.PayoutStatus, updates map[string]any) error {
	moved, err := s.repo.WithTx(tx).Transition(ctx, row.ID, from, to, updates)
	if err != nil || !moved {
		return err
	}
	row.Status = to
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPayoutStatusChanged,
		AggregateType: enums.AggregatePayout,
		AggregateID:   fmt.Sprint(row.ID),
		Data: outbox.PayoutStatusChanged{
			PayoutID: row.ID,
			ShopID:   row.ShopID,
			Status:   string(to),
		},
		OccurredAt: s.now().UTC(),
	})
}
