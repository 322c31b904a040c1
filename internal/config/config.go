package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bracket-live/internal/domain"
)

// Config represents the application configuration
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Server     ServerConfig     `yaml:"server"`
	Redis      RedisConfig      `yaml:"redis"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Edge       EdgeConfig       `yaml:"edge"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel maps the configured level name onto slog
func (c *LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	KeyPrefix    string        `yaml:"key_prefix"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// KafkaConfig holds Kafka connection configuration for vote ingestion
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	GroupID      string        `yaml:"group_id"`
	Enabled      bool          `yaml:"enabled"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// AggregatorConfig controls the scheduled live activity aggregation
type AggregatorConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Interval         time.Duration `yaml:"interval"`
	TopN             int           `yaml:"top_n"`
	Concurrency      int           `yaml:"concurrency"`
	ActiveUserPolicy string        `yaml:"active_user_policy"`
	ActiveWindow     time.Duration `yaml:"active_window"`
	ActiveQueryLimit int           `yaml:"active_query_limit"`
	LeaseTTL         time.Duration `yaml:"lease_ttl"`
	VoteCountTTL     time.Duration `yaml:"vote_count_ttl"`
}

// Policy returns the parsed active user policy. Validate must have passed.
func (c *AggregatorConfig) Policy() domain.ActiveUserPolicy {
	p, err := domain.ParseActiveUserPolicy(c.ActiveUserPolicy)
	if err != nil {
		return domain.ActiveUsersDistinctVoters
	}
	return p
}

// EdgeConfig controls the edge cache and the stream endpoints
type EdgeConfig struct {
	FreshnessWindow time.Duration `yaml:"freshness_window"`
	DegradedMaxAge  time.Duration `yaml:"degraded_max_age"`
	StreamInterval  time.Duration `yaml:"stream_interval"`
}

// Load reads configuration from a YAML file. A .env file next to the
// process, when present, is loaded into the environment first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the services cannot run with
func (c *Config) Validate() error {
	if _, err := domain.ParseActiveUserPolicy(c.Aggregator.ActiveUserPolicy); err != nil {
		return fmt.Errorf("aggregator: %w", err)
	}
	if c.Aggregator.TopN < 1 {
		return fmt.Errorf("aggregator: top_n must be positive, got %d", c.Aggregator.TopN)
	}
	if c.Edge.FreshnessWindow <= 0 || c.Edge.StreamInterval <= 0 {
		return errors.New("edge: freshness_window and stream_interval must be positive")
	}
	return nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 100
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 10
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "live_activity"
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 50
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 5
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "bracket-votes"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "bracket-vote-consumer"
	}
	if c.Kafka.BatchSize == 0 {
		c.Kafka.BatchSize = 100
	}
	if c.Kafka.BatchTimeout == 0 {
		c.Kafka.BatchTimeout = 1 * time.Second
	}

	// Aggregator defaults
	if c.Aggregator.Interval == 0 {
		c.Aggregator.Interval = 1 * time.Minute
	}
	if c.Aggregator.TopN == 0 {
		c.Aggregator.TopN = 5
	}
	if c.Aggregator.Concurrency == 0 {
		c.Aggregator.Concurrency = 8
	}
	if c.Aggregator.ActiveUserPolicy == "" {
		c.Aggregator.ActiveUserPolicy = string(domain.ActiveUsersDistinctVoters)
	}
	if c.Aggregator.ActiveWindow == 0 {
		c.Aggregator.ActiveWindow = 5 * time.Minute
	}
	if c.Aggregator.ActiveQueryLimit == 0 {
		c.Aggregator.ActiveQueryLimit = 1000
	}
	if c.Aggregator.LeaseTTL == 0 {
		c.Aggregator.LeaseTTL = 50 * time.Second
	}
	if c.Aggregator.VoteCountTTL == 0 {
		c.Aggregator.VoteCountTTL = 24 * time.Hour
	}

	// Edge defaults
	if c.Edge.FreshnessWindow == 0 {
		c.Edge.FreshnessWindow = 30 * time.Second
	}
	if c.Edge.DegradedMaxAge == 0 {
		c.Edge.DegradedMaxAge = 10 * time.Second
	}
	if c.Edge.StreamInterval == 0 {
		c.Edge.StreamInterval = 30 * time.Second
	}
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Aggregator.Enabled = true
	return cfg
}
