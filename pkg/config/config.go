package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Wallet       WalletConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
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
	if err := cfg.Wallet.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"KITCHENPAY_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"KITCHENPAY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"KITCHENPAY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"KITCHENPAY_SERVICE_KIND" default:"cron-worker"`
}

type DBConfig struct {
	DSN string `envconfig:"KITCHENPAY_DB_DSN"`

	LegacyHost     string `envconfig:"KITCHENPAY_DB_HOST"`
	LegacyPort     int    `envconfig:"KITCHENPAY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"KITCHENPAY_DB_USER"`
	LegacyPassword string `envconfig:"KITCHENPAY_DB_PASSWORD"`
	LegacyName     string `envconfig:"KITCHENPAY_DB_NAME"`
	LegacySSLMode  string `envconfig:"KITCHENPAY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"KITCHENPAY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"KITCHENPAY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"KITCHENPAY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"KITCHENPAY_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"KITCHENPAY_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"KITCHENPAY_REDIS_URL"`
	Address      string        `envconfig:"KITCHENPAY_REDIS_ADDR"`
	Password     string        `envconfig:"KITCHENPAY_REDIS_PASSWORD"`
	DB           int           `envconfig:"KITCHENPAY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"KITCHENPAY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"KITCHENPAY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"KITCHENPAY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"KITCHENPAY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"KITCHENPAY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// WalletConfig holds the platform defaults used when no stored setting exists.
type WalletConfig struct {
	DefaultCommissionRate string        `envconfig:"KITCHENPAY_WALLET_DEFAULT_COMMISSION_RATE" default:"10"`
	DefaultHoldHours      int           `envconfig:"KITCHENPAY_WALLET_DEFAULT_HOLD_HOURS" default:"3"`
	Currency              string        `envconfig:"KITCHENPAY_WALLET_CURRENCY" default:"USD"`
	SettingsCacheTTL      time.Duration `envconfig:"KITCHENPAY_WALLET_SETTINGS_CACHE_TTL" default:"5m"`
}

// CommissionRate parses the default commission percentage.
func (w WalletConfig) CommissionRate() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(w.DefaultCommissionRate))
	if err != nil {
		return decimal.NewFromInt(10)
	}
	return rate
}

func (w WalletConfig) validate() error {
	rate, err := decimal.NewFromString(strings.TrimSpace(w.DefaultCommissionRate))
	if err != nil {
		return fmt.Errorf("%s must be numeric: %w", EnvWalletCommissionRate, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%s must be between 0 and 100", EnvWalletCommissionRate)
	}
	if w.DefaultHoldHours < 0 {
		return fmt.Errorf("%s must not be negative", EnvWalletHoldHours)
	}
	return nil
}

type CronConfig struct {
	Interval       time.Duration `envconfig:"KITCHENPAY_CRON_INTERVAL" default:"5m"`
	LockTTL        time.Duration `envconfig:"KITCHENPAY_CRON_LOCK_TTL" default:"10m"`
	SweepBatchSize int           `envconfig:"KITCHENPAY_CRON_SWEEP_BATCH_SIZE" default:"500"`
	ReconcileBatch int           `envconfig:"KITCHENPAY_CRON_RECONCILE_BATCH_SIZE" default:"200"`
	OpsPort        string        `envconfig:"KITCHENPAY_CRON_OPS_PORT" default:"9090"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"KITCHENPAY_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"KITCHENPAY_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	NotificationTopic       string        `envconfig:"KITCHENPAY_PUBSUB_NOTIFICATION_TOPIC" default:"kp-notification-events"`
	AuditTopic              string        `envconfig:"KITCHENPAY_PUBSUB_AUDIT_TOPIC" default:"kp-wallet-audit"`
	MarketplaceSubscription string        `envconfig:"KITCHENPAY_PUBSUB_MARKETPLACE_SUBSCRIPTION" default:"kp-wallet-marketplace-events"`
	IdempotencyTTL          time.Duration `envconfig:"KITCHENPAY_PUBSUB_IDEMPOTENCY_TTL" default:"168h"`
}

type OutboxConfig struct {
	BatchSize      int    `envconfig:"KITCHENPAY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"KITCHENPAY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"KITCHENPAY_OUTBOX_MAX_ATTEMPTS" default:"10"`
	OpsPort        string `envconfig:"KITCHENPAY_OUTBOX_OPS_PORT" default:"9091"`
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
