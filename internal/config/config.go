package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Cache      CacheConfig      `mapstructure:"cache"`
	TwelveData TwelveDataConfig `mapstructure:"twelvedata"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Analytics  AnalyticsConfig  `mapstructure:"analytics"`
	App        AppConfig        `mapstructure:"app"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Backend  string `mapstructure:"backend"`
	Capacity int    `mapstructure:"capacity"`
	// BaseTTL is the fixed baseline for staleness math; entries older than
	// 2x this value are too old to serve even stale.
	BaseTTL         time.Duration `mapstructure:"base_ttl"`
	RefreshSchedule string        `mapstructure:"refresh_schedule"`
	TTL             TTLConfig     `mapstructure:"ttl"`
}

// TTLConfig holds the per-kind cache TTLs.
type TTLConfig struct {
	Search             time.Duration `mapstructure:"search"`
	Quote              time.Duration `mapstructure:"quote"`
	Prices             time.Duration `mapstructure:"prices"`
	PricesRecent       time.Duration `mapstructure:"prices_recent"`
	EOD                time.Duration `mapstructure:"eod"`
	PortfolioSummary   time.Duration `mapstructure:"portfolio_summary"`
	PortfolioChart     time.Duration `mapstructure:"portfolio_chart"`
	PortfolioBenchmark time.Duration `mapstructure:"portfolio_benchmark"`
}

// TwelveDataConfig holds market data provider configuration
type TwelveDataConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MinInterval time.Duration `mapstructure:"min_interval"`
}

// RedisConfig holds Redis-related configuration
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DatabaseConfig holds the durable price store configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// AnalyticsConfig holds valuation engine tunables
type AnalyticsConfig struct {
	// StaleToleranceDays is how far behind the requested end date the durable
	// store may be while still answering a range query on its own. Covers
	// weekends, holidays and settlement lag.
	StaleToleranceDays int `mapstructure:"stale_tolerance_days"`
	// RecentWindowDays marks price windows whose start falls inside it as
	// "recent": upstream data may still be revised, so they get a short TTL.
	RecentWindowDays int `mapstructure:"recent_window_days"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	LogLevel string `mapstructure:"log_level"`
}

// Load loads configuration from environment variables and defaults
func Load() (*Config, error) {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.shutdown_timeout", "30s")

	viper.SetDefault("cache.backend", "redis")
	viper.SetDefault("cache.capacity", 1000)
	viper.SetDefault("cache.base_ttl", "24h")
	viper.SetDefault("cache.refresh_schedule", "@every 30m")
	viper.SetDefault("cache.ttl.search", "24h")
	viper.SetDefault("cache.ttl.quote", "24h")
	viper.SetDefault("cache.ttl.prices", "24h")
	viper.SetDefault("cache.ttl.prices_recent", "4h")
	viper.SetDefault("cache.ttl.eod", "168h")
	viper.SetDefault("cache.ttl.portfolio_summary", "15m")
	viper.SetDefault("cache.ttl.portfolio_chart", "1h")
	viper.SetDefault("cache.ttl.portfolio_benchmark", "1h")

	viper.SetDefault("twelvedata.api_key", "")
	viper.SetDefault("twelvedata.base_url", "https://api.twelvedata.com")
	viper.SetDefault("twelvedata.timeout", "30s")
	viper.SetDefault("twelvedata.min_interval", "7500ms")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("database.path", "data/prices.db")

	viper.SetDefault("analytics.stale_tolerance_days", 3)
	viper.SetDefault("analytics.recent_window_days", 7)

	viper.SetDefault("app.log_level", "info")

	// Bind environment variables
	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("cache.backend", "CACHE_BACKEND")
	viper.BindEnv("cache.capacity", "CACHE_CAPACITY")
	viper.BindEnv("cache.base_ttl", "CACHE_BASE_TTL")
	viper.BindEnv("cache.refresh_schedule", "CACHE_REFRESH_SCHEDULE")
	viper.BindEnv("twelvedata.api_key", "TWELVEDATA_API_KEY")
	viper.BindEnv("twelvedata.base_url", "TWELVEDATA_BASE_URL")
	viper.BindEnv("twelvedata.timeout", "TWELVEDATA_TIMEOUT")
	viper.BindEnv("twelvedata.min_interval", "TWELVEDATA_MIN_INTERVAL")
	viper.BindEnv("redis.addr", "REDIS_ADDR")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")
	viper.BindEnv("database.path", "DATABASE_PATH")
	viper.BindEnv("analytics.stale_tolerance_days", "ANALYTICS_STALE_TOLERANCE_DAYS")
	viper.BindEnv("analytics.recent_window_days", "ANALYTICS_RECENT_WINDOW_DAYS")
	viper.BindEnv("app.log_level", "LOG_LEVEL")

	// Try to read from config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("Error reading config file: %v", err)
		}
		// Continue with environment variables and defaults
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
