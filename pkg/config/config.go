package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
	Coin         CoinConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	Webhooks     WebhookConfig
	Settings     SettingsConfig
	HTTP         HTTPConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"VIBES_APP_ENV" required:"true"`
	Port         string `envconfig:"VIBES_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"VIBES_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"VIBES_LOG_WARN_STACK" default:"false"`
	// MetricsAddr is where background workers expose /metrics; empty disables it.
	MetricsAddr string `envconfig:"VIBES_METRICS_ADDR" default:":9090"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"VIBES_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"VIBES_DB_DSN"`

	LegacyHost     string `envconfig:"VIBES_DB_HOST"`
	LegacyPort     int    `envconfig:"VIBES_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"VIBES_DB_USER"`
	LegacyPassword string `envconfig:"VIBES_DB_PASSWORD"`
	LegacyName     string `envconfig:"VIBES_DB_NAME"`
	LegacySSLMode  string `envconfig:"VIBES_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"VIBES_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VIBES_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VIBES_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VIBES_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	TxAttempts         int           `envconfig:"VIBES_DB_TX_ATTEMPTS" default:"3"`
	SlowQueryThreshold time.Duration `envconfig:"VIBES_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"VIBES_REDIS_URL"`
	Address      string        `envconfig:"VIBES_REDIS_ADDR"`
	Password     string        `envconfig:"VIBES_REDIS_PASSWORD"`
	DB           int           `envconfig:"VIBES_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VIBES_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VIBES_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VIBES_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VIBES_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VIBES_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies access tokens minted by the SSO service.
type JWTConfig struct {
	Secret string `envconfig:"VIBES_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"VIBES_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"VIBES_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"VIBES_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DomainTopic string `envconfig:"VIBES_PUBSUB_DOMAIN_TOPIC" default:"vibes-domain-events"`
}

type StripeConfig struct {
	APIKey   string `envconfig:"VIBES_STRIPE_API_KEY"`
	Secret   string `envconfig:"VIBES_STRIPE_SECRET"`
	Env      string `envconfig:"VIBES_STRIPE_ENV" default:"test"`
	Currency string `envconfig:"VIBES_STRIPE_CURRENCY" default:"jpy"`
	// ConnectSecret signs events delivered for connected accounts
	// (transfers and payouts) when they use a separate endpoint.
	ConnectSecret    string        `envconfig:"VIBES_STRIPE_CONNECT_SECRET"`
	WebhookTolerance time.Duration `envconfig:"VIBES_STRIPE_WEBHOOK_TOLERANCE" default:"5m"`
	MaxRetries       int64         `envconfig:"VIBES_STRIPE_MAX_RETRIES" default:"2"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// CoinConfig points at the internal coin ledger microservice.
type CoinConfig struct {
	BaseURL       string        `envconfig:"VIBES_COIN_BASE_URL"`
	AssetID       string        `envconfig:"VIBES_COIN_ASSET_ID" default:"vibes-coin"`
	ServiceSecret string        `envconfig:"VIBES_COIN_SERVICE_SECRET"`
	ServiceIssuer string        `envconfig:"VIBES_COIN_SERVICE_ISSUER" default:"vibes-market"`
	Timeout       time.Duration `envconfig:"VIBES_COIN_TIMEOUT" default:"10s"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"VIBES_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"VIBES_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"VIBES_OUTBOX_MAX_ATTEMPTS" default:"10"`
	// Retention is how long published rows are kept before the cron worker deletes them.
	Retention      time.Duration `envconfig:"VIBES_OUTBOX_RETENTION" default:"720h"`
	RetentionBatch int           `envconfig:"VIBES_OUTBOX_RETENTION_BATCH" default:"1000"`
}

type CronConfig struct {
	Interval      time.Duration `envconfig:"VIBES_CRON_INTERVAL" default:"1m"`
	LockTTL       time.Duration `envconfig:"VIBES_CRON_LOCK_TTL" default:"5m"`
	OrphanTimeout time.Duration `envconfig:"VIBES_CRON_ORPHAN_TIMEOUT" default:"1h"`
}

type WebhookConfig struct {
	IdempotencyTTL time.Duration `envconfig:"VIBES_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

// SettingsConfig controls the read-through cache over app_settings.
type SettingsConfig struct {
	CacheTTL time.Duration `envconfig:"VIBES_SETTINGS_CACHE_TTL" default:"30s"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}

// HTTPConfig tunes the API surface.
type HTTPConfig struct {
	CORSOrigins        []string      `envconfig:"VIBES_CORS_ALLOWED_ORIGINS"`
	PaymentRateWindow  time.Duration `envconfig:"VIBES_PAYMENT_RATE_WINDOW" default:"1m"`
	PaymentRateLimit   int           `envconfig:"VIBES_PAYMENT_RATE_LIMIT" default:"10"`
	InventoryRateLimit int           `envconfig:"VIBES_INVENTORY_RATE_LIMIT" default:"120"`
}
