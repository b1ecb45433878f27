package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the arbitrage monitor
type Config struct {
	NEAR          NEARConfig          `mapstructure:"near"`
	Ref           RefConfig           `mapstructure:"ref"`
	Arbitrage     ArbitrageConfig     `mapstructure:"arbitrage"`
	Risk          RiskConfig          `mapstructure:"risk"`
	Execution     ExecutionConfig     `mapstructure:"execution"`
	Redis         RedisConfig         `mapstructure:"redis"`
	AWS           AWSConfig           `mapstructure:"aws"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	HTTP          HTTPConfig          `mapstructure:"http"`
}

// NEARConfig holds NEAR RPC connection configuration
type NEARConfig struct {
	RPCEndpoints []RPCEndpoint   `mapstructure:"rpc_endpoints"`
	Timeout      time.Duration   `mapstructure:"timeout"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
}

// RPCEndpoint represents a NEAR JSON-RPC endpoint
type RPCEndpoint struct {
	URL    string `mapstructure:"url"`
	Weight int    `mapstructure:"weight"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

// RefConfig holds Ref Finance polling configuration
type RefConfig struct {
	ContractID          string        `mapstructure:"contract_id"`
	PoolIDs             []uint64      `mapstructure:"pool_ids"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	MinPoolLiquidityUSD float64       `mapstructure:"min_pool_liquidity_usd"`
}

// ArbitrageConfig holds detection engine settings. Percent values are
// human units: 0.25 means 0.25%.
type ArbitrageConfig struct {
	FeePct                float64 `mapstructure:"fee_pct"`
	MinProfitPct          float64 `mapstructure:"min_profit_pct"`
	MovingAverageWindow   int     `mapstructure:"moving_average_window"`
	PriceMoveThresholdPct float64 `mapstructure:"price_move_threshold_pct"`
	LiquidityDecimals     int     `mapstructure:"liquidity_decimals"`
}

// RiskConfig holds capital and risk gating settings
type RiskConfig struct {
	TotalCapitalUSD    float64 `mapstructure:"total_capital_usd"`
	MaxTradeSizeUSD    float64 `mapstructure:"max_trade_size_usd"`
	MinProfitPct       float64 `mapstructure:"min_profit_pct"`
	MaxSlippagePct     float64 `mapstructure:"max_slippage_pct"`
	MaxPoolExposurePct float64 `mapstructure:"max_pool_exposure_pct"`
}

// ExecutionConfig holds execution decision settings
type ExecutionConfig struct {
	Mode              string  `mapstructure:"mode"` // display, simulate, execute
	AccountID         string  `mapstructure:"account_id"`
	GasCostPerSwapUSD float64 `mapstructure:"gas_cost_per_swap_usd"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// AWSConfig holds AWS service configuration
type AWSConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	Region      string `mapstructure:"region"`
	SNSTopicARN string `mapstructure:"sns_topic_arn"`
}

// CacheConfig holds caching configuration
type CacheConfig struct {
	MaxSize int           `mapstructure:"max_size"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// MetricsConfig holds metrics settings
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// TracingConfig holds tracing settings
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Sampler  string `mapstructure:"sampler"` // always, never, ratio
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// Read environment variables
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not fatal if env vars are set
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// NEAR defaults
	v.SetDefault("near.timeout", "10s")
	v.SetDefault("near.rate_limit.requests_per_minute", 600)
	v.SetDefault("near.rate_limit.burst", 20)

	// Ref Finance defaults
	v.SetDefault("ref.contract_id", "v2.ref-finance.near")
	v.SetDefault("ref.poll_interval", "1s")
	v.SetDefault("ref.min_pool_liquidity_usd", 5000.0)

	// Arbitrage defaults
	v.SetDefault("arbitrage.fee_pct", 0.25)
	v.SetDefault("arbitrage.min_profit_pct", 0.3)
	v.SetDefault("arbitrage.moving_average_window", 50)
	v.SetDefault("arbitrage.price_move_threshold_pct", 0.05)
	v.SetDefault("arbitrage.liquidity_decimals", 24)

	// Risk defaults
	v.SetDefault("risk.total_capital_usd", 10000.0)
	v.SetDefault("risk.max_trade_size_usd", 1000.0)
	v.SetDefault("risk.min_profit_pct", 0.3)
	v.SetDefault("risk.max_slippage_pct", 1.0)
	v.SetDefault("risk.max_pool_exposure_pct", 5.0)

	// Execution defaults
	v.SetDefault("execution.mode", "display")
	v.SetDefault("execution.gas_cost_per_swap_usd", 0.05)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "arbmon:opportunities")

	// AWS defaults
	v.SetDefault("aws.enabled", false)
	v.SetDefault("aws.endpoint", "")
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.sns_topic_arn", "")

	// Cache defaults
	v.SetDefault("cache.max_size", 1000)
	v.SetDefault("cache.ttl", "60s")

	// Observability defaults
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.port", 9091)
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.sampler", "always")

	// HTTP defaults
	v.SetDefault("http.port", 8080)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// NEAR validation
	if len(c.NEAR.RPCEndpoints) == 0 {
		return fmt.Errorf("at least one NEAR RPC endpoint is required")
	}
	for _, ep := range c.NEAR.RPCEndpoints {
		if ep.URL == "" {
			return fmt.Errorf("NEAR RPC endpoint URL must not be empty")
		}
	}
	if c.NEAR.Timeout <= 0 {
		return fmt.Errorf("NEAR timeout must be positive")
	}

	// Ref validation
	if c.Ref.ContractID == "" {
		return fmt.Errorf("ref contract ID is required")
	}
	if len(c.Ref.PoolIDs) == 0 {
		return fmt.Errorf("at least one pool ID is required")
	}
	if c.Ref.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Ref.MinPoolLiquidityUSD < 0 {
		return fmt.Errorf("min pool liquidity must be >= 0")
	}

	// Arbitrage validation
	if c.Arbitrage.FeePct < 0 {
		return fmt.Errorf("fee pct must be >= 0")
	}
	if c.Arbitrage.MinProfitPct < 0 {
		return fmt.Errorf("min profit pct must be >= 0")
	}
	if c.Arbitrage.MovingAverageWindow < 1 {
		return fmt.Errorf("moving average window must be >= 1")
	}
	if c.Arbitrage.PriceMoveThresholdPct < 0 {
		return fmt.Errorf("price move threshold must be >= 0")
	}
	if c.Arbitrage.LiquidityDecimals < 0 {
		return fmt.Errorf("liquidity decimals must be >= 0")
	}

	// Risk validation
	if c.Risk.TotalCapitalUSD <= 0 {
		return fmt.Errorf("total capital must be positive")
	}
	if c.Risk.MaxTradeSizeUSD <= 0 {
		return fmt.Errorf("max trade size must be positive")
	}
	if c.Risk.MaxTradeSizeUSD > c.Risk.TotalCapitalUSD {
		return fmt.Errorf("max trade size %.2f exceeds total capital %.2f",
			c.Risk.MaxTradeSizeUSD, c.Risk.TotalCapitalUSD)
	}
	if c.Risk.MaxSlippagePct <= 0 {
		return fmt.Errorf("max slippage pct must be positive")
	}
	if c.Risk.MaxPoolExposurePct <= 0 {
		return fmt.Errorf("max pool exposure pct must be positive")
	}

	// Execution validation
	switch c.Execution.Mode {
	case "display", "simulate":
	case "execute":
		if c.Execution.AccountID == "" {
			return fmt.Errorf("execute mode requires execution.account_id")
		}
	default:
		return fmt.Errorf("invalid execution mode: %s", c.Execution.Mode)
	}
	if c.Execution.GasCostPerSwapUSD < 0 {
		return fmt.Errorf("gas cost per swap must be >= 0")
	}

	// Redis validation
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis address is required when redis is enabled")
		}
		if c.Redis.Channel == "" {
			return fmt.Errorf("redis channel is required when redis is enabled")
		}
	}

	// AWS validation
	if c.AWS.Enabled {
		if c.AWS.Region == "" {
			return fmt.Errorf("AWS region is required when AWS is enabled")
		}
		if c.AWS.SNSTopicARN == "" {
			return fmt.Errorf("SNS topic ARN is required when AWS is enabled")
		}
	}

	// Observability validation
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Observability.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Observability.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Observability.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Observability.Logging.Format)
	}

	return nil
}
