package config

const EnvPrefix = "COMMUNITY"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "COMMUNITY_APP_ENV"
	EnvPort     = "COMMUNITY_APP_PORT"
	EnvLogLevel = "COMMUNITY_LOG_LEVEL"

	EnvDBDSN  = "COMMUNITY_DB_DSN"
	EnvDBHost = "COMMUNITY_DB_HOST"
	EnvDBUser = "COMMUNITY_DB_USER"
	EnvDBName = "COMMUNITY_DB_NAME"

	EnvRedisURL = "COMMUNITY_REDIS_URL"

	EnvJWTSecret  = "COMMUNITY_JWT_SECRET"
	EnvJWTIssuer  = "COMMUNITY_JWT_ISSUER"
	EnvJWTExpMins = "COMMUNITY_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID = "COMMUNITY_GCP_PROJECT_ID"

	EnvPubSubOrdersTopic   = "COMMUNITY_PUBSUB_ORDERS_TOPIC"
	EnvPubSubPaymentsTopic = "COMMUNITY_PUBSUB_PAYMENTS_TOPIC"

	EnvStripeAPIKey = "COMMUNITY_STRIPE_API_KEY"
	EnvStripeSecret = "COMMUNITY_STRIPE_WEBHOOK_SECRET"

	EnvPaymentsMinAmount       = "COMMUNITY_PAYMENTS_MIN_AMOUNT_CENTS"
	EnvPaymentsMaxAmount       = "COMMUNITY_PAYMENTS_MAX_AMOUNT_CENTS"
	EnvPaymentsMockEnabled     = "COMMUNITY_PAYMENTS_MOCK_ENABLED"
	EnvPaymentsDefaultProvider = "COMMUNITY_PAYMENTS_DEFAULT_PROVIDER"
	EnvPaymentsStaleAfter      = "COMMUNITY_PAYMENTS_STALE_AFTER"

	EnvCronSweepMinAge = "COMMUNITY_CRON_SWEEP_MIN_AGE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
