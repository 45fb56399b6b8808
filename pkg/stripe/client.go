package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/vibes-market-backend/pkg/config"
	"github.com/angelmondragon/vibes-market-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"

	defaultTolerance = 5 * time.Minute
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Client holds the Stripe API client, the webhook signing secrets and the
// settlement currency used for every intent.
type Client struct {
	api         *stripe.Client
	environment string
	// secrets are tried in order; the platform endpoint comes first.
	secrets   []string
	tolerance time.Duration
	currency  string
}

func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}
	secrets := signingSecrets(cfg.Secret, cfg.ConnectSecret)
	if len(secrets) == 0 {
		return nil, errSecretRequired
	}

	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = string(stripe.CurrencyJPY)
	}
	tolerance := cfg.WebhookTolerance
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}

	backendCfg := &stripe.BackendConfig{}
	if cfg.MaxRetries > 0 {
		backendCfg.MaxNetworkRetries = stripe.Int64(cfg.MaxRetries)
	}
	api := stripe.NewClient(apiKey, stripe.WithBackends(stripe.NewBackendsWithConfig(backendCfg)))

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"stripe_env":      env,
			"currency":        currency,
			"webhook_secrets": len(secrets),
		}), "stripe client initialized")
	}
	return &Client{
		api:         api,
		environment: env,
		secrets:     secrets,
		tolerance:   tolerance,
		currency:    currency,
	}, nil
}

func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

func (c *Client) Currency() string {
	if c == nil {
		return ""
	}
	return c.currency
}

// VerifyEvent checks the Stripe-Signature header against the raw body with
// each configured secret and decodes the event on the first match.
func (c *Client) VerifyEvent(payload []byte, signature string) (stripe.Event, error) {
	if c == nil || len(c.secrets) == 0 {
		return stripe.Event{}, errSecretRequired
	}
	opts := webhook.ConstructEventOptions{
		Tolerance:                c.tolerance,
		IgnoreAPIVersionMismatch: true,
	}
	var lastErr error
	for _, secret := range c.secrets {
		event, err := webhook.ConstructEventWithOptions(payload, signature, secret, opts)
		if err == nil {
			return event, nil
		}
		lastErr = err
		// Only a signature mismatch is worth retrying with the next secret.
		if !errors.Is(err, webhook.ErrNoValidSignature) {
			return stripe.Event{}, err
		}
	}
	return stripe.Event{}, lastErr
}

func signingSecrets(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	prefix := "sk_" + env
	restricted := "rk_" + env
	if strings.HasPrefix(key, prefix) || strings.HasPrefix(key, restricted) {
		return nil
	}
	return fmt.Errorf("stripe environment %q requires a %s secret key", env, env)
}
