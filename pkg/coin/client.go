package coin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"

	"github.com/angelmondragon/vibes-market-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/vibes-market-backend/pkg/errors"
)

const (
	defaultTimeout          = 10 * time.Second
	serviceTokenTTL         = time.Minute
	serviceAudience         = "coin-service"
	responseBodyReadLimit   = 1024
	idempotencyHeader       = "Idempotency-Key"
	spendPath               = "spend"
	creditPath              = "credit"
	balancePathSegment      = "balances"
	insufficientBalanceCode = "insufficient_balance"
)

var (
	errBaseURLRequired = errors.New("coin service base url is required")
	errSecretRequired  = errors.New("coin service secret is required")
)

// Ledger is the capability the payment and queue code depends on.
type Ledger interface {
	Spend(ctx context.Context, req OperationRequest) (*Receipt, error)
	Credit(ctx context.Context, req OperationRequest) (*Receipt, error)
	Balance(ctx context.Context, userExternalID string) (int64, error)
}

// OperationRequest moves Amount coins for a user. An empty IdempotencyKey is
// replaced with a fresh ULID.
type OperationRequest struct {
	UserExternalID string `json:"userExternalId"`
	Amount         int64  `json:"amount"`
	Action         string `json:"action"`
	IdempotencyKey string `json:"-"`
}

// Receipt identifies the ledger transaction created by the coin service.
type Receipt struct {
	TransactionID string `json:"transactionId"`
}

// Client talks to the internal coin ledger over JSON/HTTP, authenticating with
// short-lived HS256 service tokens.
type Client struct {
	httpClient *http.Client
	baseURL    string
	assetID    string
	secret     []byte
	issuer     string
	now        func() time.Time
}

// Option configures optional client behavior.
type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewClient(cfg config.CoinConfig, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	if strings.TrimSpace(cfg.ServiceSecret) == "" {
		return nil, errSecretRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		assetID:    cfg.AssetID,
		secret:     []byte(cfg.ServiceSecret),
		issuer:     cfg.ServiceIssuer,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// AssetID is the coin asset every operation targets.
func (c *Client) AssetID() string {
	return c.assetID
}

// Spend burns coins from the user's wallet.
func (c *Client) Spend(ctx context.Context, req OperationRequest) (*Receipt, error) {
	return c.operate(ctx, spendPath, req)
}

// Credit mints coins into the user's wallet (cashback, charge).
func (c *Client) Credit(ctx context.Context, req OperationRequest) (*Receipt, error) {
	return c.operate(ctx, creditPath, req)
}

// Balance returns the user's spendable coins.
func (c *Client) Balance(ctx context.Context, userExternalID string) (int64, error) {
	userExternalID = strings.TrimSpace(userExternalID)
	if userExternalID == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user external id is required")
	}
	endpoint := c.assetURL(balancePathSegment, url.PathEscape(userExternalID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build coin balance request")
	}

	var out struct {
		Balance int64 `json:"balance"`
	}
	if err := c.do(httpReq, &out); err != nil {
		return 0, err
	}
	return out.Balance, nil
}

func (c *Client) operate(ctx context.Context, op string, req OperationRequest) (*Receipt, error) {
	if strings.TrimSpace(req.UserExternalID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user external id is required")
	}
	if req.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coin amount must be positive")
	}
	key := req.IdempotencyKey
	if key == "" {
		key = ulid.Make().String()
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal coin request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.assetURL(op), bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build coin request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(idempotencyHeader, key)

	var receipt Receipt
	if err := c.do(httpReq, &receipt); err != nil {
		return nil, err
	}
	if receipt.TransactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "coin service returned no transaction id")
	}
	return &receipt, nil
}

func (c *Client) do(httpReq *http.Request, out any) error {
	token, err := c.serviceToken()
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sign coin service token")
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute coin request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		if isInsufficient(resp.StatusCode, body) {
			return pkgerrors.New(pkgerrors.CodeInsufficientCoin, "insufficient coin balance")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			"coin request failed")
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode coin response")
	}
	return nil
}

func isInsufficient(status int, body []byte) bool {
	if status == http.StatusPaymentRequired {
		return true
	}
	var apiErr struct {
		Code string `json:"code"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Code == insufficientBalanceCode {
		return true
	}
	return false
}

func (c *Client) serviceToken() (string, error) {
	now := c.now()
	claims := jwt.RegisteredClaims{
		Issuer:    c.issuer,
		Audience:  jwt.ClaimStrings{serviceAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(serviceTokenTTL)),
		ID:        ulid.Make().String(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

func (c *Client) assetURL(parts ...string) string {
	segments := append([]string{c.baseURL, "v1", "assets", url.PathEscape(c.assetID)}, parts...)
	return strings.Join(segments, "/")
}
