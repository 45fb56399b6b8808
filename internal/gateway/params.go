package gateway

import (
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v84"
)

// Metadata keys attached to gateway objects so webhooks can correlate back to
// local rows without a reverse lookup table.
const (
	MetaUserID               = "userId"
	MetaPaymentTransactionID = "paymentTransactionId"
	MetaOrderGroupID         = "orderGroupId"
	MetaOrderID              = "orderId"
	MetaItemType             = "itemType"
	MetaApplicationFee       = "applicationFee"
	MetaPayoutTransactionID  = "payoutTransactionId"
)

// PaymentIntentParams describes the fiat leg charged on the platform account.
// Shops are paid with separate transfers after settlement, so the application
// fee is carried as metadata instead of application_fee_amount.
type PaymentIntentParams struct {
	Amount               int64
	CustomerID           string
	TransferGroup        string
	ApplicationFee       int64
	UserID               string
	PaymentTransactionID int64
	OrderGroupID         int64
	ItemType             string
	IdempotencyKey       string
}

func (p PaymentIntentParams) toStripe(currency, idempotencyKey string) *stripe.PaymentIntentCreateParams {
	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(p.Amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if v := strings.TrimSpace(p.CustomerID); v != "" {
		params.Customer = stripe.String(v)
	}
	if v := strings.TrimSpace(p.TransferGroup); v != "" {
		params.TransferGroup = stripe.String(v)
	}
	params.AddMetadata(MetaUserID, p.UserID)
	params.AddMetadata(MetaPaymentTransactionID, strconv.FormatInt(p.PaymentTransactionID, 10))
	params.AddMetadata(MetaOrderGroupID, strconv.FormatInt(p.OrderGroupID, 10))
	params.AddMetadata(MetaItemType, p.ItemType)
	params.AddMetadata(MetaApplicationFee, strconv.FormatInt(p.ApplicationFee, 10))
	params.SetIdempotencyKey(idempotencyKey)
	return params
}

// TransferParams moves a shop's net share to its connected account.
type TransferParams struct {
	Amount               int64
	Destination          string
	SourceTransaction    string
	TransferGroup        string
	PaymentTransactionID int64
	OrderID              int64
	IdempotencyKey       string
}

func (p TransferParams) toStripe(currency, idempotencyKey string) *stripe.TransferCreateParams {
	params := &stripe.TransferCreateParams{
		Amount:      stripe.Int64(p.Amount),
		Currency:    stripe.String(currency),
		Destination: stripe.String(p.Destination),
	}
	if v := strings.TrimSpace(p.SourceTransaction); v != "" {
		params.SourceTransaction = stripe.String(v)
	}
	if v := strings.TrimSpace(p.TransferGroup); v != "" {
		params.TransferGroup = stripe.String(v)
	}
	params.AddMetadata(MetaPaymentTransactionID, strconv.FormatInt(p.PaymentTransactionID, 10))
	params.AddMetadata(MetaOrderID, strconv.FormatInt(p.OrderID, 10))
	params.SetIdempotencyKey(idempotencyKey)
	return params
}

// PayoutParams withdraws a connected account's balance to its bank.
type PayoutParams struct {
	Amount              int64
	ConnectedAccount    string
	PayoutTransactionID int64
	IdempotencyKey      string
}

func (p PayoutParams) toStripe(currency, idempotencyKey string) *stripe.PayoutCreateParams {
	params := &stripe.PayoutCreateParams{
		Amount:   stripe.Int64(p.Amount),
		Currency: stripe.String(currency),
	}
	params.AddMetadata(MetaPayoutTransactionID, strconv.FormatInt(p.PayoutTransactionID, 10))
	params.SetStripeAccount(p.ConnectedAccount)
	params.SetIdempotencyKey(idempotencyKey)
	return params
}
