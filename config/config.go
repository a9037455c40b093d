package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// VenueKeys holds one exchange's API credentials. A venue with empty keys is
// left disabled.
type VenueKeys struct {
	APIKey     string
	APISecret  string
	Passphrase string // required by KuCoin only
}

// Config holds all application configuration.
type Config struct {
	// Coordination service
	JinkAPIURL   string
	JinkAPIKey   string
	JinkClientID string // empty means register a fresh client id

	// Exchange credentials
	Binance VenueKeys
	Bittrex VenueKeys
	Kucoin  VenueKeys

	// Trading parameters
	Production     bool          // false = dev mode, orders are simulated
	Interval       time.Duration // main/monitor polling interval
	CertaintyLimit int           // consecutive ticks to confirm a trigger
	MaxTrades      int           // concurrently open position ceiling
	SellFee        float64       // fee haircut on sell quantity
	Deviation      float64       // book-walk slippage bound
	FillWait       time.Duration // poll-and-confirm wait on emulated market orders
	ActionPollTick int           // poll user actions every N ticks
	HeartbeatTick  int           // post a heartbeat log every N ticks

	// Database
	DBPath string

	// Observability
	LogLevel    string
	MetricsAddr string
}

// Load reads configuration from environment variables (.env file).
func Load() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string

	// Coordination service
	cfg.JinkAPIURL = getEnv("JINK_API_URL", "")
	cfg.JinkAPIKey = getEnv("JINK_API_KEY", "")
	cfg.JinkClientID = getEnv("JINK_CLIENT_ID", "")
	if cfg.JinkAPIURL == "" {
		errs = append(errs, "JINK_API_URL must be set")
	}
	if cfg.JinkAPIKey == "" {
		errs = append(errs, "JINK_API_KEY must be set")
	}

	// Exchange credentials; venues without keys stay disabled.
	cfg.Binance = VenueKeys{APIKey: getEnv("BINANCE_API_KEY", ""), APISecret: getEnv("BINANCE_API_SECRET", "")}
	cfg.Bittrex = VenueKeys{APIKey: getEnv("BITTREX_API_KEY", ""), APISecret: getEnv("BITTREX_API_SECRET", "")}
	cfg.Kucoin = VenueKeys{
		APIKey:     getEnv("KUCOIN_API_KEY", ""),
		APISecret:  getEnv("KUCOIN_API_SECRET", ""),
		Passphrase: getEnv("KUCOIN_API_PASSPHRASE", ""),
	}

	// Trading parameters
	cfg.Production = !getEnvAsBool("DEV_MODE", true) // default to dev for safety

	intervalMs := getEnvAsInt("INTERVAL_MS", 500)
	if intervalMs <= 0 {
		errs = append(errs, "INTERVAL_MS must be positive")
	}
	cfg.Interval = time.Duration(intervalMs) * time.Millisecond

	cfg.CertaintyLimit, err = getEnvAsIntRequired("CERTAINTY_LIMIT", 3)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid CERTAINTY_LIMIT: %v", err))
	} else if cfg.CertaintyLimit <= 0 {
		errs = append(errs, "CERTAINTY_LIMIT must be positive")
	}

	cfg.MaxTrades, err = getEnvAsIntRequired("MAX_TRADES", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_TRADES: %v", err))
	} else if cfg.MaxTrades <= 0 {
		errs = append(errs, "MAX_TRADES must be positive")
	}

	cfg.SellFee, err = getEnvAsFloatRequired("SELL_FEE", 0.001)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SELL_FEE: %v", err))
	} else if cfg.SellFee < 0 || cfg.SellFee >= 1.0 {
		errs = append(errs, "SELL_FEE must be in [0.0, 1.0)")
	}

	cfg.Deviation, err = getEnvAsFloatRequired("PRICE_DEVIATION", 0.1)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PRICE_DEVIATION: %v", err))
	} else if cfg.Deviation < 0 || cfg.Deviation >= 1.0 {
		errs = append(errs, "PRICE_DEVIATION must be in [0.0, 1.0)")
	}

	fillWaitMs := getEnvAsInt("FILL_WAIT_MS", 2000)
	if fillWaitMs <= 0 {
		errs = append(errs, "FILL_WAIT_MS must be positive")
	}
	cfg.FillWait = time.Duration(fillWaitMs) * time.Millisecond

	cfg.ActionPollTick = getEnvAsInt("ACTION_POLL_TICKS", 30)
	if cfg.ActionPollTick <= 0 {
		errs = append(errs, "ACTION_POLL_TICKS must be positive")
	}

	cfg.HeartbeatTick = getEnvAsInt("HEARTBEAT_TICKS", 120)
	if cfg.HeartbeatTick <= 0 {
		errs = append(errs, "HEARTBEAT_TICKS must be positive")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/jink_trades.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Observability
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.MetricsAddr = getEnv("METRICS_ADDR", ":9090")

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// Configured reports whether both key and secret are present.
func (k VenueKeys) Configured() bool {
	return k.APIKey != "" && k.APISecret != ""
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
