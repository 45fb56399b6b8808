package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/vibes-market-backend/pkg/errors"
)

type capturedRequest struct {
	path    string
	form    url.Values
	headers http.Header
}

func newFakeStripe(t *testing.T, status int, body string) (*Stripe, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		captured = append(captured, capturedRequest{path: r.URL.Path, form: r.PostForm, headers: r.Header.Clone()})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	backends := stripe.NewBackendsWithConfig(&stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	api := stripe.NewClient("sk_test_123", stripe.WithBackends(backends))
	gw, err := NewStripe(api, "", nil)
	require.NoError(t, err)
	return gw, &captured
}

func TestCreatePaymentIntentSendsMetadata(t *testing.T) {
	gw, captured := newFakeStripe(t, http.StatusOK, `{"id":"pi_123","object":"payment_intent","client_secret":"pi_123_secret"}`)

	pi, err := gw.CreatePaymentIntent(context.Background(), PaymentIntentParams{
		Amount:               1000,
		CustomerID:           "cus_1",
		TransferGroup:        "order_group_9",
		ApplicationFee:       150,
		UserID:               "user-1",
		PaymentTransactionID: 7,
		OrderGroupID:         9,
		ItemType:             "product",
		IdempotencyKey:       "payment-transaction-7",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", pi.ID)
	assert.Equal(t, "pi_123_secret", pi.ClientSecret)

	require.Len(t, *captured, 1)
	req := (*captured)[0]
	assert.Equal(t, "/v1/payment_intents", req.path)
	assert.Equal(t, "1000", req.form.Get("amount"))
	assert.Equal(t, "jpy", req.form.Get("currency"))
	assert.Equal(t, "cus_1", req.form.Get("customer"))
	assert.Equal(t, "order_group_9", req.form.Get("transfer_group"))
	assert.Equal(t, "7", req.form.Get("metadata[paymentTransactionId]"))
	assert.Equal(t, "9", req.form.Get("metadata[orderGroupId]"))
	assert.Equal(t, "user-1", req.form.Get("metadata[userId]"))
	assert.Equal(t, "product", req.form.Get("metadata[itemType]"))
	assert.Equal(t, "150", req.form.Get("metadata[applicationFee]"))
	assert.Equal(t, "payment-transaction-7", req.headers.Get("Idempotency-Key"))
}

func TestCreateTransferUsesSourceTransaction(t *testing.T) {
	gw, captured := newFakeStripe(t, http.StatusOK, `{"id":"tr_1","object":"transfer"}`)

	tr, err := gw.CreateTransfer(context.Background(), TransferParams{
		Amount:               522,
		Destination:          "acct_A",
		SourceTransaction:    "ch_1",
		PaymentTransactionID: 7,
		OrderID:              3,
	})
	require.NoError(t, err)
	assert.Equal(t, "tr_1", tr.ID)

	req := (*captured)[0]
	assert.Equal(t, "/v1/transfers", req.path)
	assert.Equal(t, "acct_A", req.form.Get("destination"))
	assert.Equal(t, "ch_1", req.form.Get("source_transaction"))
	assert.Equal(t, "3", req.form.Get("metadata[orderId]"))
	assert.NotEmpty(t, req.headers.Get("Idempotency-Key"))
}

func TestCreatePayoutOnConnectedAccount(t *testing.T) {
	gw, captured := newFakeStripe(t, http.StatusOK, `{"id":"po_1","object":"payout","status":"pending"}`)

	po, err := gw.CreatePayout(context.Background(), PayoutParams{Amount: 5000, ConnectedAccount: "acct_A", PayoutTransactionID: 4})
	require.NoError(t, err)
	assert.Equal(t, "po_1", po.ID)
	assert.Equal(t, "pending", po.Status)
	assert.Equal(t, "acct_A", (*captured)[0].headers.Get("Stripe-Account"))
}

func TestStripeErrorsAreMapped(t *testing.T) {
	gw, _ := newFakeStripe(t, http.StatusBadRequest, `{"error":{"type":"invalid_request_error","message":"No such destination"}}`)

	_, err := gw.CreateTransfer(context.Background(), TransferParams{Amount: 1, Destination: "acct_missing"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestGatewayValidatesBeforeCalling(t *testing.T) {
	gw, captured := newFakeStripe(t, http.StatusOK, `{}`)
	ctx := context.Background()

	_, err := gw.CreatePaymentIntent(ctx, PaymentIntentParams{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = gw.CreateTransfer(ctx, TransferParams{Amount: 10})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = gw.CreatePayout(ctx, PayoutParams{Amount: 10})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Empty(t, *captured)
}
