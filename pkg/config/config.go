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
	Outbox       OutboxConfig
	Purchases    PurchasesConfig
	Gateway      GatewayConfig
	Paystack     PaystackConfig
	Flutterwave  FlutterwaveConfig
	Stripe       StripeConfig
	USSD         USSDConfig
	RateLimit    RateLimitConfig
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

// LoadTokenTooling reads only what minting local tokens needs, so tooling
// runs without database or redis settings.
func LoadTokenTooling() (AppEnvConfig, JWTConfig, error) {
	var app AppEnvConfig
	var jwt JWTConfig
	if err := envconfig.Process(EnvPrefix, &app); err != nil {
		return app, jwt, fmt.Errorf("parsing app env: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, &jwt); err != nil {
		return app, jwt, fmt.Errorf("parsing jwt config: %w", err)
	}
	return app, jwt, nil
}

// AppEnvConfig is the environment name on its own.
type AppEnvConfig struct {
	Env string `envconfig:"EASEVOTE_APP_ENV" default:"dev"`
}

func (a AppEnvConfig) IsProd() bool {
	return AppConfig{Env: a.Env}.IsProd()
}

type AppConfig struct {
	Env          string `envconfig:"EASEVOTE_APP_ENV" required:"true"`
	Port         string `envconfig:"EASEVOTE_APP_PORT" required:"true"`
	FrontendURL  string `envconfig:"EASEVOTE_FRONTEND_URL" default:"http://localhost:3000"`
	LogLevel     string `envconfig:"EASEVOTE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"EASEVOTE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"EASEVOTE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"EASEVOTE_DB_DSN"`
	Driver string `envconfig:"EASEVOTE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"EASEVOTE_DB_HOST"`
	LegacyPort     int    `envconfig:"EASEVOTE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"EASEVOTE_DB_USER"`
	LegacyPassword string `envconfig:"EASEVOTE_DB_PASSWORD"`
	LegacyName     string `envconfig:"EASEVOTE_DB_NAME"`
	LegacySSLMode  string `envconfig:"EASEVOTE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"EASEVOTE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"EASEVOTE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"EASEVOTE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"EASEVOTE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"EASEVOTE_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"EASEVOTE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"EASEVOTE_REDIS_ADDR"`
	Password     string        `envconfig:"EASEVOTE_REDIS_PASSWORD"`
	DB           int           `envconfig:"EASEVOTE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"EASEVOTE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"EASEVOTE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"EASEVOTE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"EASEVOTE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"EASEVOTE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"EASEVOTE_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"EASEVOTE_JWT_ISSUER" required:"true"`
	// ExpirationMinutes only matters for tokens minted by this service (tests, tooling).
	ExpirationMinutes int `envconfig:"EASEVOTE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"EASEVOTE_AUTO_MIGRATE" default:"false"`
	EnableUSSD  bool `envconfig:"EASEVOTE_FEATURE_USSD" default:"true"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"EASEVOTE_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"EASEVOTE_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	PurchasesTopic string `envconfig:"EASEVOTE_PUBSUB_PURCHASES_TOPIC" default:"ev-purchase-events"`
	TicketsTopic   string `envconfig:"EASEVOTE_PUBSUB_TICKETS_TOPIC" default:"ev-ticket-events"`
	VotesTopic     string `envconfig:"EASEVOTE_PUBSUB_VOTES_TOPIC" default:"ev-vote-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"EASEVOTE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"EASEVOTE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"EASEVOTE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"EASEVOTE_OUTBOX_RETENTION_DAYS" default:"30"`

	DLQRetentionDays int `envconfig:"EASEVOTE_OUTBOX_DLQ_RETENTION_DAYS" default:"90"`
}

type PurchasesConfig struct {
	HoldDuration    time.Duration `envconfig:"EASEVOTE_PURCHASE_HOLD_DURATION" default:"30m30s"`
	ReaperInterval  time.Duration `envconfig:"EASEVOTE_PURCHASE_REAPER_INTERVAL" default:"1m"`
	ReaperBatchSize int           `envconfig:"EASEVOTE_PURCHASE_REAPER_BATCH_SIZE" default:"200"`
	DefaultCurrency string        `envconfig:"EASEVOTE_PURCHASE_DEFAULT_CURRENCY" default:"GHS"`
	CallbackPath    string        `envconfig:"EASEVOTE_PURCHASE_CALLBACK_PATH" default:"/payment/callback"`
}

// CallbackURL joins the frontend origin with the payment callback path.
func (c *Config) CallbackURL() string {
	base := strings.TrimRight(c.App.FrontendURL, "/")
	path := c.Purchases.CallbackPath
	if path == "" {
		path = "/payment/callback"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

type GatewayConfig struct {
	Default          string        `envconfig:"EASEVOTE_GATEWAY_DEFAULT" default:"paystack"`
	HTTPTimeout      time.Duration `envconfig:"EASEVOTE_GATEWAY_HTTP_TIMEOUT" default:"15s"`
	WebhookDedupeTTL time.Duration `envconfig:"EASEVOTE_GATEWAY_WEBHOOK_DEDUPE_TTL" default:"72h"`
}

type PaystackConfig struct {
	SecretKey string `envconfig:"EASEVOTE_PAYSTACK_SECRET_KEY"`
	BaseURL   string `envconfig:"EASEVOTE_PAYSTACK_BASE_URL" default:"https://api.paystack.co"`
}

// Enabled reports whether the paystack variant has credentials.
func (p PaystackConfig) Enabled() bool {
	return strings.TrimSpace(p.SecretKey) != ""
}

type FlutterwaveConfig struct {
	SecretKey  string `envconfig:"EASEVOTE_FLUTTERWAVE_SECRET_KEY"`
	SecretHash string `envconfig:"EASEVOTE_FLUTTERWAVE_SECRET_HASH"`
	BaseURL    string `envconfig:"EASEVOTE_FLUTTERWAVE_BASE_URL" default:"https://api.flutterwave.com/v3"`
}

// Enabled reports whether the flutterwave variant has credentials.
func (f FlutterwaveConfig) Enabled() bool {
	return strings.TrimSpace(f.SecretKey) != "" && strings.TrimSpace(f.SecretHash) != ""
}

type StripeConfig struct {
	APIKey     string `envconfig:"EASEVOTE_STRIPE_API_KEY"`
	Secret     string `envconfig:"EASEVOTE_STRIPE_SECRET"`
	Env        string `envconfig:"EASEVOTE_STRIPE_ENV" default:"test"`
	CancelPath string `envconfig:"EASEVOTE_STRIPE_CANCEL_PATH" default:"/payment/cancelled"`
}

// Enabled reports whether the stripe variant has credentials.
func (s StripeConfig) Enabled() bool {
	return strings.TrimSpace(s.APIKey) != "" && strings.TrimSpace(s.Secret) != ""
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type USSDConfig struct {
	SessionTTL   time.Duration `envconfig:"EASEVOTE_USSD_SESSION_TTL" default:"3m"`
	DefaultEmail string        `envconfig:"EASEVOTE_USSD_DEFAULT_EMAIL" default:"ussd@easevote.app"`
}

// RateLimitConfig throttles the public reservation endpoints.
type RateLimitConfig struct {
	ReservationWindow     time.Duration `envconfig:"EASEVOTE_RATE_LIMIT_RESERVATION_WINDOW" default:"1m"`
	ReservationIPLimit    int           `envconfig:"EASEVOTE_RATE_LIMIT_RESERVATION_IP" default:"30"`
	ReservationEmailLimit int           `envconfig:"EASEVOTE_RATE_LIMIT_RESERVATION_EMAIL" default:"10"`
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
