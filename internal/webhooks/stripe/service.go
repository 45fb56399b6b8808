package stripewebhook

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/vibes-market-backend/internal/gateway"
	"github.com/angelmondragon/vibes-market-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vibes-market-backend/pkg/errors"
	"github.com/angelmondragon/vibes-market-backend/pkg/logger"
	"github.com/angelmondragon/vibes-market-backend/pkg/metrics"
)

type paymentsService interface {
	SettleFiatLeg(ctx context.Context, paymentIntentID, chargeID string) error
	FailFiatLeg(ctx context.Context, tx *gorm.DB, paymentIntentID, reason string) (bool, error)
	CompleteLegTransfer(ctx context.Context, tx *gorm.DB, paymentTransactionID int64) (bool, error)
}

type payoutsService interface {
	ApplyGatewayStatus(ctx context.Context, tx *gorm.DB, gatewayPayoutID string, status enums.PayoutStatus, reason string) (bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Payments          paymentsService
	Payouts           payoutsService
	TransactionRunner txRunner
	Metrics           *metrics.Payments
	Logger            *logger.Logger
}

// Service reconciles payment state with gateway events. Every handler is gated
// on the stored status, so a redelivered event changes nothing.
type Service struct {
	payments paymentsService
	payouts  payoutsService
	txRunner txRunner
	metrics  *metrics.Payments
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	if params.Payouts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payouts service required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		payments: params.Payments,
		payouts:  params.Payouts,
		txRunner: params.TransactionRunner,
		metrics:  params.Metrics,
		logg:     logg,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	eventType := string(event.Type)
	ctx = s.logg.WithFields(ctx, map[string]any{"stripe_event_id": event.ID, "stripe_event_type": eventType})

	handled, err := s.dispatch(ctx, event)
	switch {
	case err != nil:
		s.metrics.WebhookEvent(eventType, metrics.ResultFailure)
		s.logg.Error(ctx, "stripe event failed", err)
	case handled:
		s.metrics.WebhookEvent(eventType, metrics.ResultSuccess)
	default:
		s.metrics.WebhookEvent(eventType, metrics.ResultSkipped)
	}
	return err
}

// dispatch reports whether the event changed any state.
func (s *Service) dispatch(ctx context.Context, event *stripe.Event) (bool, error) {
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
		}
		var chargeID string
		if pi.LatestCharge != nil {
			chargeID = pi.LatestCharge.ID
		}
		err := s.payments.SettleFiatLeg(s.logg.WithPaymentIntentID(ctx, pi.ID), pi.ID, chargeID)
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			s.logg.Info(ctx, "payment intent has no local leg")
			return false, nil
		}
		return err == nil, err

	case stripe.EventTypePaymentIntentPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
		}
		reason := ""
		if pi.LastPaymentError != nil {
			reason = pi.LastPaymentError.Msg
		}
		return s.inTx(ctx, func(tx *gorm.DB) (bool, error) {
			moved, err := s.payments.FailFiatLeg(ctx, tx, pi.ID, reason)
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return false, nil
			}
			return moved, err
		})

	case stripe.EventTypeTransferCreated:
		var tr stripe.Transfer
		if err := json.Unmarshal(event.Data.Raw, &tr); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode transfer event")
		}
		raw := strings.TrimSpace(tr.Metadata[gateway.MetaPaymentTransactionID])
		if raw == "" {
			return false, nil
		}
		txnID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return false, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid payment transaction id %q", raw)
		}
		return s.inTx(ctx, func(tx *gorm.DB) (bool, error) {
			return s.payments.CompleteLegTransfer(ctx, tx, txnID)
		})

	case stripe.EventTypePayoutPaid, stripe.EventTypePayoutFailed:
		var po stripe.Payout
		if err := json.Unmarshal(event.Data.Raw, &po); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payout event")
		}
		status := enums.PayoutStatusPaid
		if event.Type == stripe.EventTypePayoutFailed {
			status = enums.PayoutStatusFailed
		}
		return s.inTx(ctx, func(tx *gorm.DB) (bool, error) {
			moved, err := s.payouts.ApplyGatewayStatus(ctx, tx, po.ID, status, po.FailureMessage)
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return false, nil
			}
			return moved, err
		})

	default:
		return false, nil
	}
}

func (s *Service) inTx(ctx context.Context, fn func(tx *gorm.DB) (bool, error)) (bool, error) {
	var moved bool
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		moved, err = fn(tx)
		return err
	})
	return moved, err
}
