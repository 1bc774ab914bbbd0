package infra

import (
	"fmt"
	"math"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"

	"github.com/attaboy/walletcore/internal/domain"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`
	PGHost      string `env:"PGHOST" envDefault:"localhost"`
	PGPort      int    `env:"PGPORT" envDefault:"5435"`
	PGUser      string `env:"PGUSER" envDefault:"walletcore"`
	PGPassword  string `env:"PGPASSWORD" envDefault:"walletcore"`
	PGDatabase  string `env:"PGDATABASE" envDefault:"walletcore"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`

	// Pool sizing. Every balance write holds its wallet row lock for the
	// whole unit of work; PG_LOCK_TIMEOUT bounds how long a second writer
	// waits for it.
	PGMaxConns    int           `env:"PG_MAX_CONNS" envDefault:"20"`
	PGMinConns    int           `env:"PG_MIN_CONNS" envDefault:"2"`
	PGLockTimeout time.Duration `env:"PG_LOCK_TIMEOUT" envDefault:"5s"`
	MigrationsDir string        `env:"MIGRATIONS_DIR" envDefault:"db/migrations"`

	// Redis
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6380"`

	// JWT
	JWTSecret       string `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTPlayerExpiry string `env:"JWT_PLAYER_EXPIRY" envDefault:"24h"`
	JWTAdminExpiry  string `env:"JWT_ADMIN_EXPIRY" envDefault:"8h"`

	// Server
	APIPort int `env:"API_PORT" envDefault:"3100"`

	// Kafka
	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled bool   `env:"KAFKA_ENABLED" envDefault:"false"`

	// CORS
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`

	// Wallet rules
	DefaultCurrency     string `env:"DEFAULT_CURRENCY" envDefault:"BDT"`
	BonusTimezone       string `env:"BONUS_TIMEZONE" envDefault:"Asia/Dhaka"`
	DepositMin          string `env:"DEPOSIT_MIN" envDefault:"10"`
	DepositMax          string `env:"DEPOSIT_MAX" envDefault:"50000"`
	WageringRequirement string `env:"WAGERING_REQUIREMENT" envDefault:"500"`
	MobileNumberPattern string `env:"MOBILE_NUMBER_PATTERN"`
	DepositBonusEnabled bool   `env:"DEPOSIT_BONUS_ENABLED" envDefault:"false"`
	RequestRateLimit    int    `env:"REQUEST_RATE_LIMIT" envDefault:"10"`

	// Agent numbers that receive manual deposits, per method.
	AgentBkash  string `env:"AGENT_BKASH" envDefault:"01700000000"`
	AgentNagad  string `env:"AGENT_NAGAD" envDefault:"01800000000"`
	AgentRocket string `env:"AGENT_ROCKET" envDefault:"01900000000"`
	AgentUSDT   string `env:"AGENT_USDT"`

	// Payment channels
	BkashAppKey      string `env:"BKASH_APP_KEY"`
	BkashAppSecret   string `env:"BKASH_APP_SECRET"`
	BkashUsername    string `env:"BKASH_USERNAME"`
	BkashPassword    string `env:"BKASH_PASSWORD"`
	BkashSandbox     bool   `env:"BKASH_SANDBOX" envDefault:"true"`
	NagadMerchantID  string `env:"NAGAD_MERCHANT_ID"`
	NagadSandbox     bool   `env:"NAGAD_SANDBOX" envDefault:"true"`
	CoinGeckoURL     string `env:"COINGECKO_URL" envDefault:"https://api.coingecko.com/api/v3"`
	SettlementSecret string `env:"SETTLEMENT_WEBHOOK_SECRET"`

	// PayoutClaimTimeout is how long a dispatched payout with no provider
	// ref blocks a retry.
	PayoutClaimTimeout time.Duration `env:"PAYOUT_CLAIM_TIMEOUT" envDefault:"10m"`

	// Game engine callbacks; the /games routes are mounted only when set.
	GameCallbackSecret string `env:"GAME_CALLBACK_SECRET"`

	// Workers
	ReconcileInterval   time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1m"`
	StreakSweepInterval time.Duration `env:"STREAK_SWEEP_INTERVAL" envDefault:"1h"`
	OutboxPollInterval  time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"1s"`
	OutboxBatchSize     int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure configuration that must not run in production.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass the secret checks (local dev only).
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	for name, v := range map[string]string{
		"DEPOSIT_MIN":          c.DepositMin,
		"DEPOSIT_MAX":          c.DepositMax,
		"WAGERING_REQUIREMENT": c.WageringRequirement,
	} {
		if _, err := decimal.NewFromString(v); err != nil {
			return fmt.Errorf("%s is not a decimal: %q", name, v)
		}
	}
	if c.StoreDriver != "postgres" && c.StoreDriver != "memory" {
		return fmt.Errorf("STORE_DRIVER must be postgres or memory, got %q", c.StoreDriver)
	}
	if c.StoreDriver == "postgres" {
		if c.PGMaxConns < 1 || c.PGMaxConns > math.MaxInt32 {
			return fmt.Errorf("PG_MAX_CONNS must be positive, got %d", c.PGMaxConns)
		}
		if c.PGMinConns < 0 || c.PGMinConns > c.PGMaxConns {
			return fmt.Errorf("PG_MIN_CONNS must be between 0 and PG_MAX_CONNS, got %d", c.PGMinConns)
		}
	}
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}

// Location resolves BONUS_TIMEZONE.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.BonusTimezone)
	if err != nil {
		return nil, fmt.Errorf("BONUS_TIMEZONE %q: %w", c.BonusTimezone, err)
	}
	return loc, nil
}

// AgentNumbers returns the configured receiving number per method.
func (c *Config) AgentNumbers() map[domain.PaymentMethod]string {
	return map[domain.PaymentMethod]string{
		domain.MethodBkash:  c.AgentBkash,
		domain.MethodNagad:  c.AgentNagad,
		domain.MethodRocket: c.AgentRocket,
		domain.MethodUSDT:   c.AgentUSDT,
	}
}

// Decimal parses one of the validated decimal settings. Call Validate first.
func (c *Config) Decimal(v string) decimal.Decimal {
	d, _ := decimal.NewFromString(v)
	return d
}
