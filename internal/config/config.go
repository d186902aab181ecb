// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	App         AppConfig         `yaml:"app"`
	Exchange    ExchangeConfig    `yaml:"exchange"`
	Trading     TradingConfig     `yaml:"trading"`
	Tax         TaxConfig         `yaml:"tax"`
	RiskControl RiskControlConfig `yaml:"risk_control"`
	Server      ServerConfig      `yaml:"server"`
	System      SystemConfig      `yaml:"system"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	BaseAsset       string `yaml:"base_asset"`
	StatePath       string `yaml:"state_path"`
	TradeLogPath    string `yaml:"trade_log_path"`
	SymbolStatsPath string `yaml:"symbol_stats_path"` // optional yaml metadata
}

// ExchangeConfig contains exchange connection settings
type ExchangeConfig struct {
	Name      string  `yaml:"name"` // binance or mock
	APIKey    string  `yaml:"api_key"`
	SecretKey string  `yaml:"secret_key"`
	BaseURL   string  `yaml:"base_url"`
	FeeRate   float64 `yaml:"fee_rate"`
}

// TradingConfig contains the exit, ranking and allocation parameters
type TradingConfig struct {
	TickIntervalSeconds      int     `yaml:"tick_interval_seconds"`
	ReconcileIntervalSeconds int     `yaml:"reconcile_interval_seconds"`
	MaxPositions             int     `yaml:"max_positions"`

	// Exit rules (percentages)
	TargetPnLPct     float64 `yaml:"target_pnl_pct"`
	StopLossPct      float64 `yaml:"stop_loss_pct"`
	TrailingStopPct  float64 `yaml:"trailing_stop_pct"`
	MinProfitToArm   float64 `yaml:"min_profit_to_arm_pct"`
	MaxHoldSeconds   int     `yaml:"max_hold_seconds"`
	SkipNegativeNet  bool    `yaml:"skip_negative_net_profit"`

	// Candidate filters
	CandidateLimit  int     `yaml:"candidate_limit"`
	Min24hChangePct float64 `yaml:"min_24h_change_pct"`
	MinQuoteVolume  float64 `yaml:"min_quote_volume"`
	MinMarketCap    float64 `yaml:"min_market_cap"`
	MinVolatility   float64 `yaml:"min_volatility"`

	// Allocation
	CashReserve      float64 `yaml:"cash_reserve"`
	TaxReserveTrades int     `yaml:"tax_reserve_trades"`
}

// TaxConfig contains capital-gains estimation rates
type TaxConfig struct {
	ShortTermRate     float64 `yaml:"short_term_rate"`
	LongTermRate      float64 `yaml:"long_term_rate"`
	LongTermHoldHours int     `yaml:"long_term_hold_hours"`
}

// RiskControlConfig contains the market-wide risk gate settings
type RiskControlConfig struct {
	Enabled          bool    `yaml:"enabled"`
	ReferenceSymbol  string  `yaml:"reference_symbol"`
	MaxDropPct       float64 `yaml:"max_drop_pct"`
	MaxSwingPct      float64 `yaml:"max_swing_pct"`
	LookbackInterval string  `yaml:"lookback_interval"`
}

// ServerConfig contains the control surface settings
type ServerConfig struct {
	Port           int      `yaml:"port"`
	MetricsPort    int      `yaml:"metrics_port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel string `yaml:"log_level"`
}

// ConcurrencyConfig contains worker pool settings
type ConcurrencyConfig struct {
	RankPoolSize   int `yaml:"rank_pool_size"`
	RankPoolBuffer int `yaml:"rank_pool_buffer"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.App.BaseAsset == "" {
		c.App.BaseAsset = "USDC"
	}
	if c.App.StatePath == "" {
		c.App.StatePath = "bot_state.db"
	}
	if c.App.TradeLogPath == "" {
		c.App.TradeLogPath = "trades_detailed.csv"
	}
	if c.Trading.TickIntervalSeconds == 0 {
		c.Trading.TickIntervalSeconds = 2
	}
	if c.Trading.ReconcileIntervalSeconds == 0 {
		c.Trading.ReconcileIntervalSeconds = 180
	}
	if c.Trading.MaxPositions == 0 {
		c.Trading.MaxPositions = 20
	}
	if c.Trading.CandidateLimit == 0 {
		c.Trading.CandidateLimit = 10
	}
	if c.Trading.MaxHoldSeconds == 0 {
		c.Trading.MaxHoldSeconds = 3600
	}
	if c.Trading.TaxReserveTrades == 0 {
		c.Trading.TaxReserveTrades = 20
	}
	if c.Tax.ShortTermRate == 0 {
		c.Tax.ShortTermRate = 0.40
	}
	if c.Tax.LongTermRate == 0 {
		c.Tax.LongTermRate = 0.25
	}
	if c.Tax.LongTermHoldHours == 0 {
		c.Tax.LongTermHoldHours = 24
	}
	if c.RiskControl.ReferenceSymbol == "" {
		c.RiskControl.ReferenceSymbol = "BTCUSDT"
	}
	if c.RiskControl.MaxDropPct == 0 {
		c.RiskControl.MaxDropPct = 1.0
	}
	if c.RiskControl.MaxSwingPct == 0 {
		c.RiskControl.MaxSwingPct = 3.0
	}
	if c.RiskControl.LookbackInterval == "" {
		c.RiskControl.LookbackInterval = "1h"
	}
	if c.System.LogLevel == "" {
		c.System.LogLevel = "INFO"
	}
	if c.Concurrency.RankPoolSize == 0 {
		c.Concurrency.RankPoolSize = 8
	}
	if c.Concurrency.RankPoolBuffer == 0 {
		c.Concurrency.RankPoolBuffer = 64
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errs []string

	if err := c.validateExchange(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateTrading(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateTax(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateSystem(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}
	return nil
}

func (c *Config) validateExchange() error {
	switch c.Exchange.Name {
	case "binance", "mock":
	default:
		return ValidationError{
			Field:   "exchange.name",
			Value:   c.Exchange.Name,
			Message: "must be one of: binance, mock",
		}
	}
	if c.Exchange.Name == "binance" {
		if c.Exchange.APIKey == "" {
			return ValidationError{Field: "exchange.api_key", Message: "API key is required"}
		}
		if c.Exchange.SecretKey == "" {
			return ValidationError{Field: "exchange.secret_key", Message: "secret key is required"}
		}
	}
	if c.Exchange.FeeRate < 0 || c.Exchange.FeeRate > 1 {
		return ValidationError{
			Field:   "exchange.fee_rate",
			Value:   c.Exchange.FeeRate,
			Message: "must be between 0 and 1",
		}
	}
	return nil
}

func (c *Config) validateTrading() error {
	if c.Trading.TargetPnLPct <= 0 {
		return ValidationError{
			Field:   "trading.target_pnl_pct",
			Value:   c.Trading.TargetPnLPct,
			Message: "target profit must be positive",
		}
	}
	if c.Trading.StopLossPct <= 0 {
		return ValidationError{
			Field:   "trading.stop_loss_pct",
			Value:   c.Trading.StopLossPct,
			Message: "stop loss must be positive",
		}
	}
	if c.Trading.TrailingStopPct < 0 {
		return ValidationError{
			Field:   "trading.trailing_stop_pct",
			Value:   c.Trading.TrailingStopPct,
			Message: "trailing stop must not be negative",
		}
	}
	if c.Trading.MaxPositions < 1 || c.Trading.MaxPositions > 200 {
		return ValidationError{
			Field:   "trading.max_positions",
			Value:   c.Trading.MaxPositions,
			Message: "must be between 1 and 200",
		}
	}
	if c.Trading.CashReserve < 0 {
		return ValidationError{
			Field:   "trading.cash_reserve",
			Value:   c.Trading.CashReserve,
			Message: "reserve must not be negative",
		}
	}
	return nil
}

func (c *Config) validateTax() error {
	if c.Tax.ShortTermRate < 0 || c.Tax.ShortTermRate > 1 {
		return ValidationError{
			Field:   "tax.short_term_rate",
			Value:   c.Tax.ShortTermRate,
			Message: "must be between 0 and 1",
		}
	}
	if c.Tax.LongTermRate < 0 || c.Tax.LongTermRate > 1 {
		return ValidationError{
			Field:   "tax.long_term_rate",
			Value:   c.Tax.LongTermRate,
			Message: "must be between 0 and 1",
		}
	}
	return nil
}

func (c *Config) validateSystem() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

// String returns a string representation of the configuration (with sensitive data masked)
func (c *Config) String() string {
	configCopy := *c
	configCopy.Exchange.APIKey = maskString(configCopy.Exchange.APIKey)
	configCopy.Exchange.SecretKey = maskString(configCopy.Exchange.SecretKey)

	data, _ := yaml.Marshal(configCopy)
	return string(data)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func maskString(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

// DefaultConfig returns a default configuration for testing
func DefaultConfig() *Config {
	c := &Config{
		Exchange: ExchangeConfig{
			Name:    "mock",
			FeeRate: 0.001,
		},
		Trading: TradingConfig{
			TickIntervalSeconds:      2,
			ReconcileIntervalSeconds: 180,
			MaxPositions:             20,
			TargetPnLPct:             1.0,
			StopLossPct:              0.5,
			TrailingStopPct:          0.8,
			MinProfitToArm:           1.0,
			MaxHoldSeconds:           3600,
			SkipNegativeNet:          true,
			CandidateLimit:           10,
			Min24hChangePct:          3.0,
			MinQuoteVolume:           100_000,
		},
		RiskControl: RiskControlConfig{
			Enabled: true,
		},
		Server: ServerConfig{
			Port:           8080,
			MetricsPort:    9090,
			AllowedOrigins: []string{"*"},
		},
	}
	c.applyDefaults()
	return c
}
