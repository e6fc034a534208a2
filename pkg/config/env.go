package config

const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "STOREFRONT_APP_ENV"
	EnvPort     = "STOREFRONT_APP_PORT"
	EnvLogLevel = "STOREFRONT_LOG_LEVEL"

	EnvDBDSN  = "STOREFRONT_DB_DSN"
	EnvDBHost = "STOREFRONT_DB_HOST"
	EnvDBUser = "STOREFRONT_DB_USER"
	EnvDBName = "STOREFRONT_DB_NAME"

	EnvRedisURL = "STOREFRONT_REDIS_URL"

	EnvJWTSecret   = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer   = "STOREFRONT_JWT_ISSUER"
	EnvAdminEmails = "STOREFRONT_ADMIN_EMAILS"

	EnvCashfreeWebhookSecret = "STOREFRONT_CASHFREE_WEBHOOK_SECRET"
	EnvCashfreeTimeout       = "STOREFRONT_CASHFREE_TIMEOUT"
	EnvPayPalWebhookID       = "STOREFRONT_PAYPAL_WEBHOOK_ID"

	EnvNotifyPaymentURL = "STOREFRONT_NOTIFY_PAYMENT_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
