package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Admin         AdminConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	Cashfree      CashfreeConfig
	PayPal        PayPalConfig
	Payments      PaymentsConfig
	Webhooks      WebhooksConfig
	Notifications NotificationsConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	BigQuery      BigQueryConfig
	Outbox        OutboxConfig
	Cron          CronConfig
	RateLimit     RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate enforces the settings production cannot run without. Webhooks fail
// closed when secrets are missing, so dev may leave them empty.
func (c *Config) validate() error {
	if !c.App.IsProd() {
		return nil
	}
	missing := []string{}
	if strings.TrimSpace(c.Cashfree.WebhookSecret) == "" {
		missing = append(missing, EnvCashfreeWebhookSecret)
	}
	if strings.TrimSpace(c.PayPal.WebhookID) == "" {
		missing = append(missing, EnvPayPalWebhookID)
	}
	if len(missing) > 0 {
		return fmt.Errorf("production config missing %s", strings.Join(missing, ", "))
	}
	return nil
}

type AppConfig struct {
	Env           string   `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port          string   `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	PublicBaseURL string   `envconfig:"STOREFRONT_PUBLIC_BASE_URL" default:"http://localhost:3000"`
	BrandName     string   `envconfig:"STOREFRONT_BRAND_NAME" default:"AI Digital Agency"`
	LogLevel      string   `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack  bool     `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	MetricsAddr   string   `envconfig:"STOREFRONT_METRICS_ADDR"`
	CORSOrigins   []string `envconfig:"STOREFRONT_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	env := strings.ToLower(strings.TrimSpace(a.Env))
	return env == AppEnvProd || env == "production"
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig configures verification of identity tokens issued by the auth provider.
type JWTConfig struct {
	Secret            string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" default:"60"`
}

// AdminConfig narrows the admin role to an explicit allowlist when set.
type AdminConfig struct {
	Emails []string `envconfig:"STOREFRONT_ADMIN_EMAILS"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"STOREFRONT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type CashfreeConfig struct {
	ClientID        string        `envconfig:"STOREFRONT_CASHFREE_CLIENT_ID"`
	ClientSecret    string        `envconfig:"STOREFRONT_CASHFREE_CLIENT_SECRET"`
	BaseURL         string        `envconfig:"STOREFRONT_CASHFREE_BASE_URL" default:"https://api.cashfree.com/pg"`
	CheckoutBaseURL string        `envconfig:"STOREFRONT_CASHFREE_CHECKOUT_URL" default:"https://payments.cashfree.com/pay"`
	APIVersion      string        `envconfig:"STOREFRONT_CASHFREE_API_VERSION" default:"2023-08-01"`
	WebhookSecret   string        `envconfig:"STOREFRONT_CASHFREE_WEBHOOK_SECRET"`
	Timeout         time.Duration `envconfig:"STOREFRONT_CASHFREE_TIMEOUT" default:"10s"`
}

// PayPalConfig configures the REST client and webhook verification.
// TransmissionTolerance bounds how old a signed delivery may be.
type PayPalConfig struct {
	ClientID              string        `envconfig:"STOREFRONT_PAYPAL_CLIENT_ID"`
	ClientSecret          string        `envconfig:"STOREFRONT_PAYPAL_CLIENT_SECRET"`
	BaseURL               string        `envconfig:"STOREFRONT_PAYPAL_BASE_URL" default:"https://api-m.paypal.com"`
	WebhookID             string        `envconfig:"STOREFRONT_PAYPAL_WEBHOOK_ID"`
	Timeout               time.Duration `envconfig:"STOREFRONT_PAYPAL_TIMEOUT" default:"10s"`
	TransmissionTolerance time.Duration `envconfig:"STOREFRONT_PAYPAL_TRANSMISSION_TOLERANCE" default:"15m"`
}

type PaymentsConfig struct {
	SessionTimeout time.Duration `envconfig:"STOREFRONT_PAYMENTS_SESSION_TIMEOUT" default:"15s"`
}

type WebhooksConfig struct {
	EventTTL time.Duration `envconfig:"STOREFRONT_WEBHOOKS_EVENT_TTL" default:"72h"`
}

// NotificationsConfig holds the automation endpoints; an empty URL disables that event.
// InlineBudget caps the payment_completed delivery made before a webhook is
// answered, retries included.
type NotificationsConfig struct {
	NewOrderURL      string        `envconfig:"STOREFRONT_NOTIFY_NEW_ORDER_URL"`
	OrderCompleteURL string        `envconfig:"STOREFRONT_NOTIFY_ORDER_COMPLETE_URL"`
	PaymentURL       string        `envconfig:"STOREFRONT_NOTIFY_PAYMENT_URL"`
	GenericURL       string        `envconfig:"STOREFRONT_NOTIFY_GENERIC_URL"`
	Timeout          time.Duration `envconfig:"STOREFRONT_NOTIFY_TIMEOUT" default:"5s"`
	MaxAttempts      int           `envconfig:"STOREFRONT_NOTIFY_MAX_ATTEMPTS" default:"2"`
	InlineBudget     time.Duration `envconfig:"STOREFRONT_NOTIFY_INLINE_BUDGET" default:"3s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"STOREFRONT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STOREFRONT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic              string `envconfig:"STOREFRONT_PUBSUB_DOMAIN_TOPIC" default:"storefront-domain-events"`
	NotificationSubscription string `envconfig:"STOREFRONT_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"storefront-notifications"`
	AnalyticsSubscription    string `envconfig:"STOREFRONT_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"storefront-analytics"`
}

type BigQueryConfig struct {
	Dataset            string `envconfig:"STOREFRONT_BIGQUERY_DATASET" default:"storefront"`
	PaymentEventsTable string `envconfig:"STOREFRONT_BIGQUERY_PAYMENT_TABLE" default:"payment_events"`
	BatchSize          int    `envconfig:"STOREFRONT_BIGQUERY_BATCH_SIZE" default:"1"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"1h"`
	OutboxRetentionDays int           `envconfig:"STOREFRONT_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	DLQRetentionDays    int           `envconfig:"STOREFRONT_CRON_DLQ_RETENTION_DAYS" default:"90"`
}

// RateLimitConfig throttles order creation and payment session starts.
type RateLimitConfig struct {
	CheckoutWindow    time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_CHECKOUT_WINDOW" default:"1m"`
	CheckoutIPLimit   int           `envconfig:"STOREFRONT_RATE_LIMIT_CHECKOUT_IP_LIMIT" default:"30"`
	CheckoutUserLimit int           `envconfig:"STOREFRONT_RATE_LIMIT_CHECKOUT_USER_LIMIT" default:"10"`
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
