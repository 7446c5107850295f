package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the guardian service
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Directory   DirectoryConfig   `mapstructure:"directory"`
	Feed        FeedConfig        `mapstructure:"feed"`
	Risk        RiskConfig        `mapstructure:"risk"`
	Remediation RemediationConfig `mapstructure:"remediation"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString builds a PostgreSQL connection string
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode,
	)
}

// RedisConfig holds Redis configuration for the signal log
type RedisConfig struct {
	URL        string `mapstructure:"url"`
	Enabled    bool   `mapstructure:"enabled"`
	MaxRetries int    `mapstructure:"max_retries"`
	PoolSize   int    `mapstructure:"pool_size"`
}

// NATSConfig holds NATS configuration for case notifications
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
	Name    string `mapstructure:"name"`
}

// AuthConfig holds bearer-token authentication settings for the API
type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// DirectoryConfig holds identity-directory client settings
type DirectoryConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// FeedConfig holds the SIEM monitoring feed settings
type FeedConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	URL          string        `mapstructure:"url"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	Insecure     bool          `mapstructure:"insecure"`
	IndexPattern string        `mapstructure:"index_pattern"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// CorrelationPair declares two signal kinds whose temporal overlap produces
// a correlated finding.
type CorrelationPair struct {
	Kinds  []string      `mapstructure:"kinds"`
	Window time.Duration `mapstructure:"window"`
}

// RiskConfig holds the scoring model configuration. All values are supplied
// at construction time, never baked into scoring logic.
type RiskConfig struct {
	Weights               map[string]float64 `mapstructure:"weights"`
	CorrelationMultiplier float64            `mapstructure:"correlation_multiplier"`
	CorrelationPairs      []CorrelationPair  `mapstructure:"correlation_pairs"`
	MediumThreshold       float64            `mapstructure:"medium_threshold"`
	HighThreshold         float64            `mapstructure:"high_threshold"`
	CriticalThreshold     float64            `mapstructure:"critical_threshold"`
	RetentionHorizon      time.Duration      `mapstructure:"retention_horizon"`
	SoDConflicts          [][]string         `mapstructure:"sod_conflicts"`
}

// RemediationConfig holds the automated block/restore settings
type RemediationConfig struct {
	AutoBlockThreshold float64       `mapstructure:"auto_block_threshold"`
	BlockTemplateRef   string        `mapstructure:"block_template_ref"`
	CallTimeout        time.Duration `mapstructure:"call_timeout"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("database.postgres.enabled", true)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "guardian")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "guardian")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.name", "guardian")

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("directory.url", "http://localhost:8091")
	v.SetDefault("directory.token", "")
	v.SetDefault("directory.timeout", "10s")

	v.SetDefault("feed.enabled", false)
	v.SetDefault("feed.url", "https://localhost:9200")
	v.SetDefault("feed.username", "admin")
	v.SetDefault("feed.password", "")
	v.SetDefault("feed.insecure", true)
	v.SetDefault("feed.index_pattern", "guardian-events-*")
	v.SetDefault("feed.poll_interval", "1m")

	v.SetDefault("risk.weights.behavioral", 15)
	v.SetDefault("risk.weights.dormant", 10)
	v.SetDefault("risk.weights.privilege_escalation", 30)
	v.SetDefault("risk.weights.risky_signin", 20)
	v.SetDefault("risk.weights.sod_violation", 25)
	v.SetDefault("risk.weights.policy_violation", 15)
	v.SetDefault("risk.correlation_multiplier", 1.5)
	v.SetDefault("risk.medium_threshold", 40)
	v.SetDefault("risk.high_threshold", 70)
	v.SetDefault("risk.critical_threshold", 90)
	v.SetDefault("risk.retention_horizon", "24h")

	v.SetDefault("remediation.auto_block_threshold", 90)
	v.SetDefault("remediation.block_template_ref", "ca-block-template")
	v.SetDefault("remediation.call_timeout", "15s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read from config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override file config
	v.SetEnvPrefix("GUARDIAN")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Correlatable pairs are configuration; ship one sensible default
	if len(cfg.Risk.CorrelationPairs) == 0 {
		cfg.Risk.CorrelationPairs = []CorrelationPair{
			{
				Kinds:  []string{"risky_signin", "privilege_escalation"},
				Window: 24 * time.Hour,
			},
		}
	}

	return &cfg, nil
}
