package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig               `mapstructure:"app"`
	Database  DatabaseConfig          `mapstructure:"database"`
	Redis     RedisConfig             `mapstructure:"redis"`
	NATS      NATSConfig              `mapstructure:"nats"`
	Trading   TradingConfig           `mapstructure:"trading"`
	Risk      RiskConfig              `mapstructure:"risk"`
	Execution ExecutionConfig         `mapstructure:"execution"`
	Social    SocialConfig            `mapstructure:"social"`
	Brokers   map[string]BrokerConfig `mapstructure:"brokers"`
	Playbook  PlaybookConfig          `mapstructure:"playbook"`
	Telegram  TelegramConfig          `mapstructure:"telegram"`
	Metrics   MetricsConfig           `mapstructure:"metrics"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // PAPER or LIVE
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
}

// DatabaseConfig contains PostgreSQL settings for the ledger and tick substrate
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains settings for the intel bus key/value store
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig contains settings for the pub/sub channels
type NATSConfig struct {
	URL              string `mapstructure:"url"`
	TradeSignalTopic string `mapstructure:"trade_signal_topic"`
	EmergencyTopic   string `mapstructure:"emergency_topic"`
}

// TradingConfig contains autopilot trading settings
type TradingConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	PaperMode       bool          `mapstructure:"paper_mode"`
	BotPaused       bool          `mapstructure:"bot_paused"`
	ActiveBroker    string        `mapstructure:"active_broker"`
	RoutingEnabled  bool          `mapstructure:"routing_enabled"`
	GlobalMinScore  int           `mapstructure:"global_min_score"`
	BTCThreshold    int           `mapstructure:"btc_threshold"`
	SocialThreshold float64       `mapstructure:"social_threshold"`
	WeatherVariance float64       `mapstructure:"weather_variance_threshold"`
	MaxBudget       float64       `mapstructure:"max_budget"`
	Traders         []string      `mapstructure:"traders"`
	ScanInterval    time.Duration `mapstructure:"scan_interval"`
}

// RiskConfig contains risk engine settings
type RiskConfig struct {
	Level           string  `mapstructure:"level"`             // CONSERVATIVE, MODERATE, AGGRESSIVE
	MaxPositionSize float64 `mapstructure:"max_position_size"` // fraction of bankroll
	MaxDailyLoss    float64 `mapstructure:"max_daily_loss"`
	MaxDrawdown     float64 `mapstructure:"max_drawdown"`
	StopLossPct     float64 `mapstructure:"stop_loss_pct"`
	TakeProfitPct   float64 `mapstructure:"take_profit_pct"`
	WashSaleGuard   bool    `mapstructure:"wash_sale_guard_enabled"`
	TaxBracketPct   float64 `mapstructure:"tax_bracket_pct"`
	BetSizingMethod string  `mapstructure:"bet_sizing_method"` // KELLY, FLAT, PERCENTAGE
	AutoHedge       bool    `mapstructure:"auto_hedge"`
	HeatLimit       float64 `mapstructure:"heat_limit"`
}

// ExecutionConfig contains order execution settings
type ExecutionConfig struct {
	MaxSlippagePct float64       `mapstructure:"max_slippage_pct"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MinHold        time.Duration `mapstructure:"min_hold"`
	BlacklistTTL   time.Duration `mapstructure:"blacklist_ttl"`
}

// SocialConfig contains X/Twitter API budget settings
type SocialConfig struct {
	BudgetLimit   float64       `mapstructure:"x_api_budget_limit"`
	TotalSpend    float64       `mapstructure:"x_api_total_spend"`
	ScanFrequency time.Duration `mapstructure:"scan_frequency"`
}

// BrokerConfig contains per-venue credentials and settings
type BrokerConfig struct {
	APIKey        string `mapstructure:"api_key"`
	SecretKey     string `mapstructure:"secret_key"`
	PrivateKeyPEM string `mapstructure:"private_key_pem"` // RSA-PSS signed venues
	BaseURL       string `mapstructure:"base_url"`
	Testnet       bool   `mapstructure:"testnet"`
	RateLimitMS   int    `mapstructure:"rate_limit_ms"`
}

// PlaybookConfig contains observer settings
type PlaybookConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	WatchlistPath string        `mapstructure:"watchlist_path"`
	ArchiveDir    string        `mapstructure:"archive_dir"`
}

// TelegramConfig contains alert channel settings
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// MetricsConfig contains prometheus settings
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("MARKETPILOT")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "MarketPilot")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "PAPER")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "console")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "marketpilot")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.trade_signal_topic", "trade_signals")
	v.SetDefault("nats.emergency_topic", "emergency_stop")

	// Trading defaults
	v.SetDefault("trading.enabled", true)
	v.SetDefault("trading.paper_mode", true)
	v.SetDefault("trading.bot_paused", false)
	v.SetDefault("trading.active_broker", "paper")
	v.SetDefault("trading.routing_enabled", true)
	v.SetDefault("trading.global_min_score", 70)
	v.SetDefault("trading.btc_threshold", 70)
	v.SetDefault("trading.social_threshold", 0.6)
	v.SetDefault("trading.weather_variance_threshold", 0.15)
	v.SetDefault("trading.max_budget", 1000.0)
	v.SetDefault("trading.scan_interval", "30s")

	// Risk defaults
	v.SetDefault("risk.level", "CONSERVATIVE")
	v.SetDefault("risk.max_position_size", 0.10)
	v.SetDefault("risk.max_daily_loss", 0.02)
	v.SetDefault("risk.max_drawdown", 0.15)
	v.SetDefault("risk.stop_loss_pct", 0.05)
	v.SetDefault("risk.take_profit_pct", 0.10)
	v.SetDefault("risk.wash_sale_guard_enabled", true)
	v.SetDefault("risk.tax_bracket_pct", 0.24)
	v.SetDefault("risk.bet_sizing_method", "KELLY")
	v.SetDefault("risk.auto_hedge", false)
	v.SetDefault("risk.heat_limit", 0.8)

	// Execution defaults
	v.SetDefault("execution.max_slippage_pct", 0.005)
	v.SetDefault("execution.timeout", "15s")
	v.SetDefault("execution.min_hold", "300s")
	v.SetDefault("execution.blacklist_ttl", "4h")

	// Social budget defaults
	v.SetDefault("social.x_api_budget_limit", 100.0)
	v.SetDefault("social.x_api_total_spend", 0.0)
	v.SetDefault("social.scan_frequency", "30m")

	// Playbook defaults
	v.SetDefault("playbook.interval", "300s")
	v.SetDefault("playbook.watchlist_path", "./configs/watchlist.yaml")
	v.SetDefault("playbook.archive_dir", "./data/playbook")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9100)
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
