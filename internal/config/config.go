package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/trogers1052/position-exit-signals/internal/models"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Kafka    KafkaConfig
	Redis    RedisConfig
	Pricing  PricingConfig
	Signals  SignalsConfig
	Ingest   IngestConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	Timeout  time.Duration
}

// KafkaConfig holds Kafka configuration. Empty Brokers disables events.
type KafkaConfig struct {
	Brokers        []string
	PositionsTopic string
	TradesTopic    string
	GroupID        string
}

// RedisConfig holds Redis configuration. Empty Addr disables caching.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
	DedupTTL time.Duration
}

// PricingConfig selects and tunes the price history backends
type PricingConfig struct {
	// Backends lists sources in fallback order: db, twse, alpaca
	Backends           []string
	TWSEBaseURL        string
	TWSEMonthPause     time.Duration
	AlpacaAPIKey       string
	AlpacaAPISecret    string
	AlpacaFeed         string
	Timeout            time.Duration
	RatePerSecond      float64
	Burst              int
	BreakerFailures    uint32
	BreakerOpenTimeout time.Duration
}

// SignalsConfig tunes inventory valuation
type SignalsConfig struct {
	// DefaultStrategy is applied to positions created from trade events
	DefaultStrategy string
	Concurrency     int
}

// IngestConfig tunes the price ingest job
type IngestConfig struct {
	Lookback      int
	RetentionDays int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Pretty bool
}

// Known price backend names
const (
	BackendDB     = "db"
	BackendTWSE   = "twse"
	BackendAlpaca = "alpaca"
)

// LoadDotEnv loads .env style files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "positions"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Timeout:  getEnvDuration("DB_TIMEOUT", 10*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:        getEnvList("KAFKA_BROKERS", nil),
			PositionsTopic: getEnv("KAFKA_POSITIONS_TOPIC", "position-events"),
			TradesTopic:    getEnv("KAFKA_TRADES_TOPIC", "trading.orders"),
			GroupID:        getEnv("KAFKA_GROUP_ID", "position-exit-signals"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			CacheTTL: getEnvDuration("PRICE_CACHE_TTL", 5*time.Minute),
			DedupTTL: getEnvDuration("TRADE_DEDUP_TTL", 30*24*time.Hour),
		},
		Pricing: PricingConfig{
			Backends:           getEnvList("PRICING_BACKENDS", []string{BackendDB, BackendTWSE, BackendAlpaca}),
			TWSEBaseURL:        getEnv("TWSE_BASE_URL", "https://www.twse.com.tw/exchangeReport/STOCK_DAY"),
			TWSEMonthPause:     getEnvDuration("TWSE_MONTH_PAUSE", 500*time.Millisecond),
			AlpacaAPIKey:       getEnv("APCA_API_KEY_ID", ""),
			AlpacaAPISecret:    getEnv("APCA_API_SECRET_KEY", ""),
			AlpacaFeed:         getEnv("ALPACA_FEED", "iex"),
			Timeout:            getEnvDuration("PRICING_TIMEOUT", 15*time.Second),
			RatePerSecond:      getEnvFloat("PRICING_RATE_PER_SECOND", 2),
			Burst:              getEnvInt("PRICING_BURST", 2),
			BreakerFailures:    uint32(getEnvInt("PRICING_BREAKER_FAILURES", 3)),
			BreakerOpenTimeout: getEnvDuration("PRICING_BREAKER_OPEN_TIMEOUT", 60*time.Second),
		},
		Signals: SignalsConfig{
			DefaultStrategy: getEnv("DEFAULT_STRATEGY", string(models.StrategyBasic)),
			Concurrency:     getEnvInt("FETCH_CONCURRENCY", 4),
		},
		Ingest: IngestConfig{
			Lookback:      getEnvInt("INGEST_LOOKBACK", 60),
			RetentionDays: getEnvInt("PRICE_RETENTION_DAYS", 400),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getEnvBool("LOG_PRETTY", false),
		},
	}
}

// Validate checks values that cannot be defaulted
func (c *Config) Validate() error {
	if _, err := models.ParseStrategyType(c.Signals.DefaultStrategy); err != nil {
		return fmt.Errorf("DEFAULT_STRATEGY: %w", err)
	}
	if c.Signals.Concurrency <= 0 {
		return fmt.Errorf("FETCH_CONCURRENCY must be positive, got %d", c.Signals.Concurrency)
	}
	if len(c.Pricing.Backends) == 0 {
		return errors.New("PRICING_BACKENDS must name at least one backend")
	}
	for _, b := range c.Pricing.Backends {
		switch b {
		case BackendDB, BackendTWSE, BackendAlpaca:
		default:
			return fmt.Errorf("PRICING_BACKENDS: unknown backend %q", b)
		}
	}
	if c.Ingest.Lookback <= 0 {
		return fmt.Errorf("INGEST_LOOKBACK must be positive, got %d", c.Ingest.Lookback)
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

// Addr returns the HTTP listen address
func (s *ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping empty items
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
