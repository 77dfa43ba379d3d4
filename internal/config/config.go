package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	// HTTP
	Port string

	// Database. Empty means the in-memory store (single instance only).
	DatabaseURL string

	// Fees
	ListingFee     decimal.Decimal // flat fee debited when an item is listed
	PlatformFee    decimal.Decimal // flat fee reserved with every bid, kept on a win
	FeeSinkAccount string          // account credited with fees; empty burns them

	// Settlement scheduler
	SettlementInterval    time.Duration
	SettlementMaxFailures int // consecutive failures before an operator alert
	SettlementWorkers     int
	SettlementBatchSize   int

	// Admin collaborator
	AdminAPIKey string

	// Bid rate limiting per user
	BidRateLimitRPS   float64
	BidRateLimitBurst int

	// Static price oracle
	TokenUSDPrice decimal.Decimal

	LogLevel    string
	Environment string // "development", "production" or "test"
}

// Load reads configuration from the environment, after loading a .env file if
// one is present
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables with defaults
func FromEnv() (*Config, error) {
	cfg := Default()

	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.AdminAPIKey = os.Getenv("ADMIN_API_KEY")
	if v, ok := os.LookupEnv("FEE_SINK_ACCOUNT"); ok {
		cfg.FeeSinkAccount = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}

	var err error
	if cfg.ListingFee, err = decimalEnv("LISTING_FEE", cfg.ListingFee); err != nil {
		return nil, err
	}
	if cfg.PlatformFee, err = decimalEnv("PLATFORM_FEE", cfg.PlatformFee); err != nil {
		return nil, err
	}
	if cfg.TokenUSDPrice, err = decimalEnv("TOKEN_USD_PRICE", cfg.TokenUSDPrice); err != nil {
		return nil, err
	}
	if v := os.Getenv("SETTLEMENT_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SETTLEMENT_INTERVAL %q: %w", v, err)
		}
		cfg.SettlementInterval = d
	}
	if cfg.SettlementMaxFailures, err = intEnv("SETTLEMENT_MAX_FAILURES", cfg.SettlementMaxFailures); err != nil {
		return nil, err
	}
	if cfg.SettlementWorkers, err = intEnv("SETTLEMENT_WORKERS", cfg.SettlementWorkers); err != nil {
		return nil, err
	}
	if cfg.SettlementBatchSize, err = intEnv("SETTLEMENT_BATCH_SIZE", cfg.SettlementBatchSize); err != nil {
		return nil, err
	}
	if cfg.BidRateLimitBurst, err = intEnv("BID_RATE_LIMIT_BURST", cfg.BidRateLimitBurst); err != nil {
		return nil, err
	}
	if v := os.Getenv("BID_RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid BID_RATE_LIMIT_RPS %q: %w", v, err)
		}
		cfg.BidRateLimitRPS = rps
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no environment overrides are set
func Default() *Config {
	return &Config{
		Port:                  "8080",
		ListingFee:            decimal.NewFromInt(1),
		PlatformFee:           decimal.NewFromInt(1),
		FeeSinkAccount:        "platform-treasury",
		SettlementInterval:    10 * time.Second,
		SettlementMaxFailures: 5,
		SettlementWorkers:     4,
		SettlementBatchSize:   100,
		BidRateLimitRPS:       5,
		BidRateLimitBurst:     10,
		TokenUSDPrice:         decimal.NewFromInt(1),
		LogLevel:              "info",
		Environment:           "development",
	}
}

// Validate checks the configuration for values the engine cannot run with
func (c *Config) Validate() error {
	if c.ListingFee.IsNegative() {
		return fmt.Errorf("LISTING_FEE must not be negative")
	}
	if c.PlatformFee.IsNegative() {
		return fmt.Errorf("PLATFORM_FEE must not be negative")
	}
	if c.SettlementInterval <= 0 {
		return fmt.Errorf("SETTLEMENT_INTERVAL must be positive")
	}
	if c.SettlementMaxFailures < 1 {
		return fmt.Errorf("SETTLEMENT_MAX_FAILURES must be at least 1")
	}
	if c.SettlementWorkers < 1 {
		return fmt.Errorf("SETTLEMENT_WORKERS must be at least 1")
	}
	if c.SettlementBatchSize < 1 {
		return fmt.Errorf("SETTLEMENT_BATCH_SIZE must be at least 1")
	}
	if c.Environment == "production" && c.AdminAPIKey == "" {
		return fmt.Errorf("ADMIN_API_KEY is required in production")
	}
	return nil
}

// Addr returns the listen address for the HTTP server
func (c *Config) Addr() string {
	return ":" + c.Port
}

func decimalEnv(key string, def decimal.Decimal) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}
