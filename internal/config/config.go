package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/skybid/internal/fees"
	"github.com/kiranshivaraju/skybid/pkg/models"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the SkyBid engine.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Gateway    GatewayConfig
	Accounts   AccountsConfig
	Settlement SettlementConfig
	Outbox     OutboxConfig
	RateLimit  RateLimitConfig
	Fees       fees.Policy
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type GatewayConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type AccountsConfig struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

type SettlementConfig struct {
	Interval       time.Duration
	HoldDuration   time.Duration
	BatchSize      int
	Concurrency    int
	ItemTimeout    time.Duration
	ClaimLease     time.Duration
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

type OutboxConfig struct {
	Interval     time.Duration
	BatchSize    int
	Stream       string
	StreamMaxLen int64
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	policy, err := loadFees()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("SKYBID_PORT", 8080),
			Env:  envString("SKYBID_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Gateway: GatewayConfig{
			BaseURL: os.Getenv("GATEWAY_BASE_URL"),
			APIKey:  os.Getenv("GATEWAY_API_KEY"),
			Timeout: envDuration("GATEWAY_TIMEOUT", 10*time.Second),
		},
		Accounts: AccountsConfig{
			BaseURL:  os.Getenv("ACCOUNTS_BASE_URL"),
			Timeout:  envDuration("ACCOUNTS_TIMEOUT", 3*time.Second),
			CacheTTL: envDuration("ACCOUNTS_CACHE_TTL", 5*time.Minute),
		},
		Settlement: SettlementConfig{
			Interval:       envDuration("SETTLEMENT_INTERVAL", time.Hour),
			HoldDuration:   envDuration("SETTLEMENT_HOLD_DURATION", 48*time.Hour),
			BatchSize:      envInt("SETTLEMENT_BATCH_SIZE", 100),
			Concurrency:    envInt("SETTLEMENT_CONCURRENCY", 4),
			ItemTimeout:    envDuration("SETTLEMENT_ITEM_TIMEOUT", 30*time.Second),
			ClaimLease:     envDuration("SETTLEMENT_CLAIM_LEASE", 5*time.Minute),
			MaxAttempts:    envInt("SETTLEMENT_MAX_ATTEMPTS", 5),
			BackoffInitial: envDuration("SETTLEMENT_BACKOFF_INITIAL", 15*time.Minute),
			BackoffMax:     envDuration("SETTLEMENT_BACKOFF_MAX", 24*time.Hour),
		},
		Outbox: OutboxConfig{
			Interval:     envDuration("OUTBOX_INTERVAL", 5*time.Second),
			BatchSize:    envInt("OUTBOX_BATCH_SIZE", 200),
			Stream:       envString("OUTBOX_STREAM", "skybid:audit"),
			StreamMaxLen: int64(envInt("OUTBOX_STREAM_MAXLEN", 100000)),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: envInt("RATE_LIMIT_PER_MIN", 60),
		},
		Fees: policy,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if err := validateBaseURL("GATEWAY_BASE_URL", c.Gateway.BaseURL); err != nil {
		return err
	}
	if c.Server.Env == "production" && c.Gateway.APIKey == "" {
		return fmt.Errorf("GATEWAY_API_KEY is required when SKYBID_ENV is production")
	}
	if err := validateBaseURL("ACCOUNTS_BASE_URL", c.Accounts.BaseURL); err != nil {
		return err
	}

	s := c.Settlement
	if s.HoldDuration <= 0 {
		return fmt.Errorf("SETTLEMENT_HOLD_DURATION must be positive, got %s", s.HoldDuration)
	}
	if s.Interval <= 0 {
		return fmt.Errorf("SETTLEMENT_INTERVAL must be positive, got %s", s.Interval)
	}
	if s.BatchSize <= 0 || s.Concurrency <= 0 || s.MaxAttempts <= 0 {
		return fmt.Errorf("SETTLEMENT_BATCH_SIZE, SETTLEMENT_CONCURRENCY and SETTLEMENT_MAX_ATTEMPTS must be positive")
	}
	if s.ItemTimeout <= 0 {
		return fmt.Errorf("SETTLEMENT_ITEM_TIMEOUT must be positive, got %s", s.ItemTimeout)
	}
	if s.ClaimLease <= s.ItemTimeout {
		return fmt.Errorf("SETTLEMENT_CLAIM_LEASE (%s) must exceed SETTLEMENT_ITEM_TIMEOUT (%s)", s.ClaimLease, s.ItemTimeout)
	}

	if c.Outbox.Stream == "" {
		return fmt.Errorf("OUTBOX_STREAM must not be empty")
	}

	if err := c.Fees.Validate(); err != nil {
		return fmt.Errorf("fee policy: %w", err)
	}

	return nil
}

func validateBaseURL(key, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", key)
	}
	if !strings.HasPrefix(v, "http://") && !strings.HasPrefix(v, "https://") {
		return fmt.Errorf("%s must start with http:// or https://, got %q", key, v)
	}
	return nil
}

// loadFees overrides the default fee policy with any FEE_* variables set.
func loadFees() (fees.Policy, error) {
	p := fees.DefaultPolicy()

	overrides := []struct {
		key string
		dst *decimal.Decimal
	}{
		{"FEE_MIN_BUDGET", &p.MinBudget},
		{"FEE_MIN_BID", &p.MinBid},
	}
	for _, o := range overrides {
		if err := envDecimal(o.key, o.dst); err != nil {
			return fees.Policy{}, err
		}
	}

	for _, t := range []models.JobType{models.JobTypeCustom, models.JobTypeSponsored} {
		s := p.Schedules[t]
		prefix := "FEE_" + strings.ToUpper(string(t))
		if err := envDecimal(prefix+"_POSTING", &s.PostingFee); err != nil {
			return fees.Policy{}, err
		}
		if err := envDecimal(prefix+"_RATE", &s.CommissionRate); err != nil {
			return fees.Policy{}, err
		}
		p.Schedules[t] = s
	}
	return p, nil
}

func envDecimal(key string, dst *decimal.Decimal) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return fmt.Errorf("%s must be a decimal number, got %q", key, v)
	}
	*dst = d
	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
