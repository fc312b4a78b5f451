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
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Stripe       StripeConfig
	Webhook      WebhookConfig
	FeatureFlags FeatureFlagsConfig
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
	Env          string `envconfig:"FRESHFOLD_APP_ENV" required:"true"`
	Port         string `envconfig:"FRESHFOLD_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FRESHFOLD_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FRESHFOLD_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"FRESHFOLD_DB_DSN"`
	Driver string `envconfig:"FRESHFOLD_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FRESHFOLD_DB_HOST"`
	LegacyPort     int    `envconfig:"FRESHFOLD_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FRESHFOLD_DB_USER"`
	LegacyPassword string `envconfig:"FRESHFOLD_DB_PASSWORD"`
	LegacyName     string `envconfig:"FRESHFOLD_DB_NAME"`
	LegacySSLMode  string `envconfig:"FRESHFOLD_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FRESHFOLD_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FRESHFOLD_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FRESHFOLD_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FRESHFOLD_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FRESHFOLD_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FRESHFOLD_REDIS_ADDR"`
	Password     string        `envconfig:"FRESHFOLD_REDIS_PASSWORD"`
	DB           int           `envconfig:"FRESHFOLD_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FRESHFOLD_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FRESHFOLD_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FRESHFOLD_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FRESHFOLD_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FRESHFOLD_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"FRESHFOLD_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FRESHFOLD_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FRESHFOLD_JWT_EXPIRATION_MINUTES" default:"60"`
}

type StripeConfig struct {
	APIKey         string        `envconfig:"FRESHFOLD_STRIPE_API_KEY"`
	WebhookSecret  string        `envconfig:"FRESHFOLD_STRIPE_WEBHOOK_SECRET"`
	Env            string        `envconfig:"FRESHFOLD_STRIPE_ENV" default:"test"`
	Currency       string        `envconfig:"FRESHFOLD_STRIPE_CURRENCY" default:"usd"`
	RequestTimeout time.Duration `envconfig:"FRESHFOLD_STRIPE_REQUEST_TIMEOUT" default:"15s"`

	// Browser destinations for the hosted checkout round trip.
	SuccessURL       string        `envconfig:"FRESHFOLD_STRIPE_SUCCESS_URL" required:"true"`
	CancelURL        string        `envconfig:"FRESHFOLD_STRIPE_CANCEL_URL" required:"true"`
	OrderPageURL     string        `envconfig:"FRESHFOLD_ORDER_PAGE_URL" required:"true"`
	SuccessPageURL   string        `envconfig:"FRESHFOLD_SUCCESS_PAGE_URL" required:"true"`
	SessionCookieAge time.Duration `envconfig:"FRESHFOLD_REDIRECT_COOKIE_AGE" default:"10m"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type WebhookConfig struct {
	MaxStoreRetries int           `envconfig:"FRESHFOLD_WEBHOOK_MAX_STORE_RETRIES" default:"3"`
	RetryBackoff    time.Duration `envconfig:"FRESHFOLD_WEBHOOK_RETRY_BACKOFF" default:"200ms"`
	IdempotencyTTL  time.Duration `envconfig:"FRESHFOLD_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FRESHFOLD_AUTO_MIGRATE" default:"false"`
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
