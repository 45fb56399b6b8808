package config

const EnvPrefix = "VIBES"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv      = "VIBES_APP_ENV"
	EnvPort        = "VIBES_APP_PORT"
	EnvLogLevel    = "VIBES_LOG_LEVEL"
	EnvDBDSN       = "VIBES_DB_DSN"
	EnvDBHost      = "VIBES_DB_HOST"
	EnvDBUser      = "VIBES_DB_USER"
	EnvDBName      = "VIBES_DB_NAME"
	EnvDBPassword  = "VIBES_DB_PASSWORD"
	EnvRedisURL    = "VIBES_REDIS_URL"
	EnvJWTSecret   = "VIBES_JWT_SECRET"
	EnvJWTIssuer   = "VIBES_JWT_ISSUER"
	EnvStripeKey   = "VIBES_STRIPE_API_KEY"
	EnvStripeEnv   = "VIBES_STRIPE_ENV"
	EnvCoinBaseURL = "VIBES_COIN_BASE_URL"
	EnvCronPeriod  = "VIBES_CRON_INTERVAL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
