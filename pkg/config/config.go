package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvDBDSN  = "FANLINK_DB_DSN"
	EnvDBHost = "FANLINK_DB_HOST"
	EnvDBUser = "FANLINK_DB_USER"
	EnvDBName = "FANLINK_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Checkout     CheckoutConfig
	FeatureFlags FeatureFlagsConfig
	RateLimit    RateLimitConfig
	Stripe       StripeConfig
	Square       SquareConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
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
	Env          string `envconfig:"FANLINK_APP_ENV" required:"true"`
	Port         string `envconfig:"FANLINK_APP_PORT" required:"true"`
	BaseURL      string `envconfig:"FANLINK_APP_BASE_URL" default:"http://localhost:8080"`
	LogLevel     string `envconfig:"FANLINK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FANLINK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"FANLINK_DB_DSN"`
	Driver string `envconfig:"FANLINK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FANLINK_DB_HOST"`
	LegacyPort     int    `envconfig:"FANLINK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FANLINK_DB_USER"`
	LegacyPassword string `envconfig:"FANLINK_DB_PASSWORD"`
	LegacyName     string `envconfig:"FANLINK_DB_NAME"`
	LegacySSLMode  string `envconfig:"FANLINK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FANLINK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FANLINK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FANLINK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FANLINK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FANLINK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FANLINK_REDIS_ADDR"`
	Password     string        `envconfig:"FANLINK_REDIS_PASSWORD"`
	DB           int           `envconfig:"FANLINK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FANLINK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FANLINK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FANLINK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FANLINK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FANLINK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"FANLINK_JWT_SECRET"`
	Issuer            string `envconfig:"FANLINK_JWT_ISSUER" default:"fanlink"`
	ExpirationMinutes int    `envconfig:"FANLINK_JWT_EXPIRATION_MINUTES" default:"60"`
}

// CheckoutConfig bounds the per-session checkout state held in Redis.
type CheckoutConfig struct {
	SessionTTL      time.Duration `envconfig:"FANLINK_CHECKOUT_SESSION_TTL" default:"2h"`
	CartTTL         time.Duration `envconfig:"FANLINK_CART_TTL" default:"720h"`
	FinalizeTTL     time.Duration `envconfig:"FANLINK_FINALIZE_GUARD_TTL" default:"168h"`
	DefaultCurrency string        `envconfig:"FANLINK_CHECKOUT_CURRENCY" default:"usd"`
}

// RateLimitConfig throttles payment-creation endpoints per client IP.
type RateLimitConfig struct {
	PaymentLimit  int64         `envconfig:"FANLINK_PAYMENT_RATE_LIMIT" default:"20"`
	PaymentWindow time.Duration `envconfig:"FANLINK_PAYMENT_RATE_WINDOW" default:"1m"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"FANLINK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"FANLINK_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey string `envconfig:"FANLINK_STRIPE_API_KEY"`
	Secret string `envconfig:"FANLINK_STRIPE_SECRET"`
	Env    string `envconfig:"FANLINK_STRIPE_ENV" default:"test"`
	// MembershipProduct is the Stripe product that membership subscription
	// prices are created under (inline price_data).
	MembershipProduct string `envconfig:"FANLINK_STRIPE_MEMBERSHIP_PRODUCT"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SquareConfig struct {
	AccessToken   string `envconfig:"FANLINK_SQUARE_ACCESS_TOKEN"`
	WebhookSecret string `envconfig:"FANLINK_SQUARE_WEBHOOK_SECRET"`
	Env           string `envconfig:"FANLINK_SQUARE_ENV" default:"sandbox"`
	LocationID    string `envconfig:"FANLINK_SQUARE_LOCATION_ID"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type GCPConfig struct {
	ProjectID       string `envconfig:"FANLINK_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"FANLINK_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"FANLINK_PUBSUB_ORDERS_TOPIC" default:"fl-order-events"`
	OrdersSubscription string `envconfig:"FANLINK_PUBSUB_ORDERS_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FANLINK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FANLINK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FANLINK_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
