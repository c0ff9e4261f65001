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
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
	Outbox       OutboxConfig
	Payments     PaymentsConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Payments.validate(cfg.Stripe.APIKey != ""); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"COMMUNITY_APP_ENV" required:"true"`
	Port         string `envconfig:"COMMUNITY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"COMMUNITY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"COMMUNITY_LOG_WARN_STACK" default:"false"`
	// CORSOrigins is a comma separated allow list for browser clients.
	CORSOrigins []string `envconfig:"COMMUNITY_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev) || strings.EqualFold(a.Env, "development")
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"COMMUNITY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"COMMUNITY_DB_DSN"`
	Driver string `envconfig:"COMMUNITY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"COMMUNITY_DB_HOST"`
	LegacyPort     int    `envconfig:"COMMUNITY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"COMMUNITY_DB_USER"`
	LegacyPassword string `envconfig:"COMMUNITY_DB_PASSWORD"`
	LegacyName     string `envconfig:"COMMUNITY_DB_NAME"`
	LegacySSLMode  string `envconfig:"COMMUNITY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"COMMUNITY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"COMMUNITY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"COMMUNITY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"COMMUNITY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"COMMUNITY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"COMMUNITY_REDIS_ADDR"`
	Password     string        `envconfig:"COMMUNITY_REDIS_PASSWORD"`
	DB           int           `envconfig:"COMMUNITY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"COMMUNITY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"COMMUNITY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"COMMUNITY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"COMMUNITY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"COMMUNITY_REDIS_WRITE_TIMEOUT" default:"5s"`
	// KeyPrefix namespaces every key so environments can share one instance.
	KeyPrefix string `envconfig:"COMMUNITY_REDIS_KEY_PREFIX" default:"cm"`
}

type JWTConfig struct {
	Secret            string `envconfig:"COMMUNITY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"COMMUNITY_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"COMMUNITY_JWT_EXPIRATION_MINUTES" default:"60"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"COMMUNITY_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL  time.Duration `envconfig:"COMMUNITY_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	RequestIdempotencyTTL time.Duration `envconfig:"COMMUNITY_REQUEST_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"COMMUNITY_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"COMMUNITY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"COMMUNITY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic   string `envconfig:"COMMUNITY_PUBSUB_ORDERS_TOPIC" default:"cm-order-events"`
	PaymentsTopic string `envconfig:"COMMUNITY_PUBSUB_PAYMENTS_TOPIC" default:"cm-payment-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"COMMUNITY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"COMMUNITY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"COMMUNITY_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type StripeConfig struct {
	APIKey string `envconfig:"COMMUNITY_STRIPE_API_KEY"`
	Secret string `envconfig:"COMMUNITY_STRIPE_WEBHOOK_SECRET"`
	Env    string `envconfig:"COMMUNITY_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type PaymentsConfig struct {
	MinAmountCents   int64         `envconfig:"COMMUNITY_PAYMENTS_MIN_AMOUNT_CENTS" default:"50"`
	MaxAmountCents   int64         `envconfig:"COMMUNITY_PAYMENTS_MAX_AMOUNT_CENTS" default:"100000"`
	MockEnabled      bool          `envconfig:"COMMUNITY_PAYMENTS_MOCK_ENABLED" default:"false"`
	DefaultProvider  string        `envconfig:"COMMUNITY_PAYMENTS_DEFAULT_PROVIDER"`
	StaleAfter       time.Duration `envconfig:"COMMUNITY_PAYMENTS_STALE_AFTER" default:"24h"`
	ProviderTimeout  time.Duration `envconfig:"COMMUNITY_PAYMENTS_PROVIDER_TIMEOUT" default:"10s"`
	IntentRateLimit  int           `envconfig:"COMMUNITY_PAYMENTS_INTENT_RATE_LIMIT" default:"10"`
	IntentRateWindow time.Duration `envconfig:"COMMUNITY_PAYMENTS_INTENT_RATE_WINDOW" default:"1m"`
}

// validate rejects a default provider that would never be registered. An
// empty default lets the intent factory pick among the enabled providers.
func (p PaymentsConfig) validate(stripeConfigured bool) error {
	if p.MinAmountCents <= 0 {
		return fmt.Errorf("%s must be positive", EnvPaymentsMinAmount)
	}
	if p.MaxAmountCents < p.MinAmountCents {
		return fmt.Errorf("%s must be >= %s", EnvPaymentsMaxAmount, EnvPaymentsMinAmount)
	}
	switch strings.ToLower(strings.TrimSpace(p.DefaultProvider)) {
	case "":
	case "mock":
		if !p.MockEnabled {
			return fmt.Errorf("%s=mock requires %s", EnvPaymentsDefaultProvider, EnvPaymentsMockEnabled)
		}
	case "stripe":
		if !stripeConfigured {
			return fmt.Errorf("%s=stripe requires %s", EnvPaymentsDefaultProvider, EnvStripeAPIKey)
		}
	default:
		return fmt.Errorf("%s must be mock or stripe", EnvPaymentsDefaultProvider)
	}
	return nil
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"COMMUNITY_CRON_INTERVAL" default:"15m"`
	LockTTL         time.Duration `envconfig:"COMMUNITY_CRON_LOCK_TTL" default:"10m"`
	SweepMinAge     time.Duration `envconfig:"COMMUNITY_CRON_SWEEP_MIN_AGE" default:"24h"`
	SweepBatchSize  int           `envconfig:"COMMUNITY_CRON_SWEEP_BATCH_SIZE" default:"200"`
	OutboxRetention time.Duration `envconfig:"COMMUNITY_CRON_OUTBOX_RETENTION" default:"720h"`
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
