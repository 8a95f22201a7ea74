package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/quantfold/perparb/internal/utils"
)

type Config struct {
	Environment string         `mapstructure:"environment"`
	LogLevel    string         `mapstructure:"log_level"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Engine      EngineConfig   `mapstructure:"engine"`
	Venues      VenuesConfig   `mapstructure:"venues"`
	Telegram    TelegramConfig `mapstructure:"telegram"`
	Monitor     MonitorConfig  `mapstructure:"monitor"`
}

type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// EngineConfig drives the arbitrage cycle. MinFundingApy and
// ExitApyThreshold are annualized percentages; the gap between them is
// the hysteresis band that keeps a freshly opened position from closing
// on the next tick.
type EngineConfig struct {
	Markets           []string `mapstructure:"markets"`
	MinFundingApy     float64  `mapstructure:"min_funding_apy"`
	ExitApyThreshold  float64  `mapstructure:"exit_apy_threshold"`
	MaxPositionUsd    float64  `mapstructure:"max_position_usd"`
	MinPositionUsd    float64  `mapstructure:"min_position_usd"`
	CheckIntervalMs   int      `mapstructure:"check_interval_ms"`
	VenueTimeoutMs    int      `mapstructure:"venue_timeout_ms"`
	LegTimeoutMs      int      `mapstructure:"leg_timeout_ms"`
	UnwindMaxAttempts int      `mapstructure:"unwind_max_attempts"`
	MaxSlippageBps    int      `mapstructure:"max_slippage_bps"`
	MaxHoldHours      int      `mapstructure:"max_hold_hours"`
}

func (e EngineConfig) CheckInterval() time.Duration {
	return time.Duration(e.CheckIntervalMs) * time.Millisecond
}

func (e EngineConfig) VenueTimeout() time.Duration {
	return time.Duration(e.VenueTimeoutMs) * time.Millisecond
}

func (e EngineConfig) LegTimeout() time.Duration {
	return time.Duration(e.LegTimeoutMs) * time.Millisecond
}

type VenuesConfig struct {
	Binance     BinanceConfig     `mapstructure:"binance"`
	Hyperliquid HyperliquidConfig `mapstructure:"hyperliquid"`
}

type BinanceConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	APIKey    string `mapstructure:"api_key" json:"-" yaml:"-"`
	APISecret string `mapstructure:"api_secret" json:"-" yaml:"-"`
}

type HyperliquidConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	RPCURL  string `mapstructure:"rpc_url"`
	// Wallet is the path to the signing identity. Loading the key and
	// constructing the signer is the host's responsibility.
	Wallet    string `mapstructure:"wallet"`
	StreamURL string `mapstructure:"stream_url"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token" json:"-" yaml:"-"`
	ChatID   string `mapstructure:"chat_id"`
}

type MonitorConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalSeconds int  `mapstructure:"interval_seconds"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.BindEnv("venues.binance.api_secret", "BINANCE_API_SECRET"); err != nil {
		return nil, fmt.Errorf("failed to bind BINANCE_API_SECRET: %w", err)
	}
	if err := viper.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind TELEGRAM_BOT_TOKEN: %w", err)
	}

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is fine; defaults plus environment apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	if len(c.Engine.Markets) == 0 {
		return utils.NewValidationError("engine.markets", "must list at least one pair")
	}
	if c.Engine.MinFundingApy <= 0 {
		return utils.NewValidationError("engine.min_funding_apy", "must be positive")
	}
	// An exit threshold at or above the entry threshold would never let
	// a position stay open.
	if c.Engine.ExitApyThreshold >= c.Engine.MinFundingApy {
		return utils.NewValidationErrorf("engine.exit_apy_threshold",
			"%.2f must be below engine.min_funding_apy %.2f",
			c.Engine.ExitApyThreshold, c.Engine.MinFundingApy)
	}
	if c.Engine.ExitApyThreshold < 0 {
		return utils.NewValidationError("engine.exit_apy_threshold", "must not be negative")
	}
	if c.Engine.MaxPositionUsd <= 0 {
		return utils.NewValidationError("engine.max_position_usd", "must be positive")
	}
	if c.Engine.CheckIntervalMs <= 0 {
		return utils.NewValidationError("engine.check_interval_ms", "must be positive")
	}
	if c.Engine.UnwindMaxAttempts < 1 {
		return utils.NewValidationError("engine.unwind_max_attempts", "must be at least 1")
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	viper.SetDefault("server.enabled", true)
	viper.SetDefault("server.port", 8080)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "perparb")
	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("engine.markets", []string{"SOL-PERP", "BTC-PERP", "ETH-PERP"})
	viper.SetDefault("engine.min_funding_apy", 20.0)
	viper.SetDefault("engine.exit_apy_threshold", 5.0)
	viper.SetDefault("engine.max_position_usd", 10000.0)
	viper.SetDefault("engine.min_position_usd", 100.0)
	viper.SetDefault("engine.check_interval_ms", 60000)
	viper.SetDefault("engine.venue_timeout_ms", 10000)
	viper.SetDefault("engine.leg_timeout_ms", 5000)
	viper.SetDefault("engine.unwind_max_attempts", 3)
	viper.SetDefault("engine.max_slippage_bps", 50)
	viper.SetDefault("engine.max_hold_hours", 72)

	viper.SetDefault("venues.binance.enabled", true)
	viper.SetDefault("venues.binance.api_key", "")
	viper.SetDefault("venues.binance.api_secret", "")
	viper.SetDefault("venues.hyperliquid.enabled", true)
	viper.SetDefault("venues.hyperliquid.rpc_url", "https://api.hyperliquid.xyz")
	viper.SetDefault("venues.hyperliquid.stream_url", "wss://api.hyperliquid.xyz/ws")
	viper.SetDefault("venues.hyperliquid.wallet", "")

	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.chat_id", "")

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.interval_seconds", 60)
}
