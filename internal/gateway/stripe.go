package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/vibes-market-backend/pkg/errors"
	"github.com/angelmondragon/vibes-market-backend/pkg/logger"
)

// PaymentGateway is the subset of the payment provider the marketplace calls.
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (*PaymentIntent, error)
	CreateTransfer(ctx context.Context, params TransferParams) (*Transfer, error)
	CreatePayout(ctx context.Context, params PayoutParams) (*Payout, error)
}

type PaymentIntent struct {
	ID           string
	ClientSecret string
}

type Transfer struct {
	ID string
}

type Payout struct {
	ID     string
	Status string
}

// Stripe implements PaymentGateway on stripe-go.
type Stripe struct {
	api      *stripe.Client
	currency string
	logg     *logger.Logger
}

func NewStripe(api *stripe.Client, currency string, logg *logger.Logger) (*Stripe, error) {
	if api == nil {
		return nil, errors.New("stripe api client required")
	}
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		currency = string(stripe.CurrencyJPY)
	}
	return &Stripe{api: api, currency: currency, logg: logg}, nil
}

func (s *Stripe) CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (*PaymentIntent, error) {
	if params.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent amount must be positive")
	}
	req := params.toStripe(s.currency, ensureIdempotencyKey("payment_intent", params.IdempotencyKey))
	s.log(ctx, "request", "create_payment_intent", map[string]any{
		"amount":                 params.Amount,
		"order_group_id":         params.OrderGroupID,
		"payment_transaction_id": params.PaymentTransactionID,
	})

	pi, err := s.api.V1PaymentIntents.Create(ctx, req)
	if err != nil {
		s.log(ctx, "error", "create_payment_intent", map[string]any{"error": err.Error()})
		return nil, mapStripeError(err, "create payment intent")
	}
	s.log(ctx, "response", "create_payment_intent", map[string]any{"payment_intent_id": pi.ID})
	return &PaymentIntent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (s *Stripe) CreateTransfer(ctx context.Context, params TransferParams) (*Transfer, error) {
	if params.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transfer amount must be positive")
	}
	if strings.TrimSpace(params.Destination) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transfer destination account is required")
	}
	req := params.toStripe(s.currency, ensureIdempotencyKey("transfer", params.IdempotencyKey))
	s.log(ctx, "request", "create_transfer", map[string]any{
		"amount":                 params.Amount,
		"order_id":               params.OrderID,
		"payment_transaction_id": params.PaymentTransactionID,
	})

	tr, err := s.api.V1Transfers.Create(ctx, req)
	if err != nil {
		s.log(ctx, "error", "create_transfer", map[string]any{"error": err.Error()})
		return nil, mapStripeError(err, "create transfer")
	}
	s.log(ctx, "response", "create_transfer", map[string]any{"transfer_id": tr.ID})
	return &Transfer{ID: tr.ID}, nil
}

func (s *Stripe) CreatePayout(ctx context.Context, params PayoutParams) (*Payout, error) {
	if params.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout amount must be positive")
	}
	if strings.TrimSpace(params.ConnectedAccount) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "connected account is required")
	}
	req := params.toStripe(s.currency, ensureIdempotencyKey("payout", params.IdempotencyKey))
	s.log(ctx, "request", "create_payout", map[string]any{
		"amount":                params.Amount,
		"payout_transaction_id": params.PayoutTransactionID,
	})

	po, err := s.api.V1Payouts.Create(ctx, req)
	if err != nil {
		s.log(ctx, "error", "create_payout", map[string]any{"error": err.Error()})
		return nil, mapStripeError(err, "create payout")
	}
	s.log(ctx, "response", "create_payout", map[string]any{"payout_id": po.ID, "status": po.Status})
	return &Payout{ID: po.ID, Status: string(po.Status)}, nil
}

func (s *Stripe) log(ctx context.Context, phase, op string, fields map[string]any) {
	if s == nil || s.logg == nil {
		return
	}
	logFields := map[string]any{"operation": op, "phase": phase}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = s.logg.WithFields(ctx, logFields)
	if phase == "error" {
		s.logg.Error(ctx, fmt.Sprintf("stripe %s", op), errors.New(fmt.Sprint(fields["error"])))
		return
	}
	s.logg.Debug(ctx, fmt.Sprintf("stripe %s", phase))
}

func ensureIdempotencyKey(prefix, provided string) string {
	if strings.TrimSpace(provided) != "" {
		return provided
	}
	return fmt.Sprintf("%s-%s", prefix, ulid.Make().String())
}

func mapStripeError(err error, op string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		code := pkgerrors.CodeDependency
		switch {
		case stripeErr.Type == stripe.ErrorTypeIdempotency:
			code = pkgerrors.CodeIdempotency
		case stripeErr.HTTPStatusCode == http.StatusUnauthorized:
			code = pkgerrors.CodeUnauthorized
		case stripeErr.HTTPStatusCode == http.StatusBadRequest && stripeErr.Type == stripe.ErrorTypeInvalidRequest:
			code = pkgerrors.CodeValidation
		}
		return pkgerrors.Wrap(code, err, fmt.Sprintf("stripe %s failed", op))
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("stripe %s failed", op))
}
