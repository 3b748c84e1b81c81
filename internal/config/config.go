package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete configuration for the scan engine service
type Config struct {
	Environment string         `mapstructure:"environment"`
	Debug       bool           `mapstructure:"debug"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Kafka       KafkaConfig    `mapstructure:"kafka"`
	RDAP        RDAPConfig     `mapstructure:"rdap"`
	Gemini      GeminiConfig   `mapstructure:"gemini"`
	Ledger      LedgerConfig   `mapstructure:"ledger"`
	Logging     LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	HTTPPort     int           `mapstructure:"http_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig contains ledger database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// RedisConfig contains the optional probe cache configuration. An empty host
// disables the cache entirely.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	ProbeTTL time.Duration `mapstructure:"probe_ttl"`
}

// KafkaConfig contains the threat event producer configuration. An empty
// broker list disables event publishing.
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	ThreatTopic  string        `mapstructure:"threat_topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// RDAPConfig contains registry prober configuration
type RDAPConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	MaxProbes    int           `mapstructure:"max_probes"`
	YoungAgeDays int           `mapstructure:"young_age_days"`
}

// GeminiConfig contains the LLM analysis endpoint configuration
type GeminiConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	Model           string        `mapstructure:"model"`
	Temperature     float64       `mapstructure:"temperature"`
	TopP            float64       `mapstructure:"top_p"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	RateLimitDelay  time.Duration `mapstructure:"rate_limit_delay"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
}

// LedgerConfig contains the best-effort sync configuration
type LedgerConfig struct {
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/scan-engine")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("LEADGUARD")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks configuration invariants that have no sensible fallback
func (c *Config) Validate() error {
	if c.RDAP.MaxProbes < 1 {
		return fmt.Errorf("rdap.max_probes must be at least 1, got %d", c.RDAP.MaxProbes)
	}
	if c.Gemini.MaxAttempts < 1 {
		return fmt.Errorf("gemini.max_attempts must be at least 1, got %d", c.Gemini.MaxAttempts)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// General
	viper.SetDefault("environment", "development")
	viper.SetDefault("debug", false)

	// Server
	viper.SetDefault("server.http_port", 8090)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "60s")
	viper.SetDefault("server.idle_timeout", "120s")

	// Database
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "leadguard")
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("database.migrations_path", "file://migrations")

	// Redis probe cache (disabled unless a host is configured)
	viper.SetDefault("redis.host", "")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.probe_ttl", "6h")

	// Kafka threat events (disabled unless brokers are configured)
	viper.SetDefault("kafka.brokers", []string{})
	viper.SetDefault("kafka.threat_topic", "threat.detected")
	viper.SetDefault("kafka.write_timeout", "10s")

	// RDAP registry prober
	viper.SetDefault("rdap.base_url", "https://rdap.org")
	viper.SetDefault("rdap.probe_timeout", "8s")
	viper.SetDefault("rdap.max_probes", 2)
	viper.SetDefault("rdap.young_age_days", 180)

	// Gemini analysis endpoint
	viper.SetDefault("gemini.api_key", "")
	viper.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com")
	viper.SetDefault("gemini.model", "gemini-2.0-flash")
	viper.SetDefault("gemini.temperature", 0.1)
	viper.SetDefault("gemini.top_p", 0.95)
	viper.SetDefault("gemini.max_output_tokens", 2048)
	viper.SetDefault("gemini.request_timeout", "45s")
	viper.SetDefault("gemini.max_attempts", 3)
	viper.SetDefault("gemini.rate_limit_delay", "2s")
	viper.SetDefault("gemini.retry_delay", "1s")

	// Ledger sync
	viper.SetDefault("ledger.write_timeout", "15s")

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}
