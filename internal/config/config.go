package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Session  SessionConfig  `yaml:"session"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Ranking  RankingConfig  `yaml:"ranking"`
	Auth     AuthConfig     `yaml:"auth"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
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
	TotalKey     string        `yaml:"total_key"`
	DailyKey     string        `yaml:"daily_key"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
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

// KafkaConfig holds Kafka connection configuration
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	GroupID      string        `yaml:"group_id"`
	Enabled      bool          `yaml:"enabled"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// SessionConfig holds per-connection polling configuration
type SessionConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ScheduleConfig holds the cron specs of the periodic jobs. Only one node
// in a deployment should run with Enabled set.
type ScheduleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Daily    string `yaml:"daily"`
	Weekly   string `yaml:"weekly"`
	Timezone string `yaml:"timezone"`
}

// RankingConfig holds the windowing and game-economy policy values
type RankingConfig struct {
	TopSize        int64     `yaml:"top_size"`
	WindowAbove    int64     `yaml:"window_above"`
	WindowBelow    int64     `yaml:"window_below"`
	PoolRate       float64   `yaml:"pool_rate"`
	TierShares     []float64 `yaml:"tier_shares"`
	RemainderSlots int64     `yaml:"remainder_slots"`
}

// AuthConfig holds session token verification settings. An empty secret
// decodes tokens without verifying their signature.
type AuthConfig struct {
	Secret string `yaml:"secret"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
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

	return &cfg, nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
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
	if c.Redis.TotalKey == "" {
		c.Redis.TotalKey = "ranking:total"
	}
	if c.Redis.DailyKey == "" {
		c.Redis.DailyKey = "ranking:daily"
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 20
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 2
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
		c.Kafka.Topic = "leaderboard-awards"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "leaderboard-awards-consumer"
	}
	if c.Kafka.BatchSize == 0 {
		c.Kafka.BatchSize = 100
	}
	if c.Kafka.BatchTimeout == 0 {
		c.Kafka.BatchTimeout = 1 * time.Second
	}

	if c.Session.PollInterval == 0 {
		c.Session.PollInterval = 1 * time.Second
	}

	// Schedule defaults
	if c.Schedule.Daily == "" {
		c.Schedule.Daily = "0 0 * * *"
	}
	if c.Schedule.Weekly == "" {
		c.Schedule.Weekly = "0 0 * * 0"
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "UTC"
	}

	// Ranking defaults
	if c.Ranking.TopSize == 0 {
		c.Ranking.TopSize = 100
	}
	if c.Ranking.WindowAbove == 0 {
		c.Ranking.WindowAbove = 3
	}
	if c.Ranking.WindowBelow == 0 {
		c.Ranking.WindowBelow = 2
	}
	if c.Ranking.PoolRate == 0 {
		c.Ranking.PoolRate = 0.02
	}
	if len(c.Ranking.TierShares) == 0 {
		c.Ranking.TierShares = []float64{0.20, 0.15, 0.10}
	}
	if c.Ranking.RemainderSlots == 0 {
		c.Ranking.RemainderSlots = c.Ranking.TopSize - int64(len(c.Ranking.TierShares))
	}
}

// DefaultConfig returns a configuration with all defaults. The schedule
// stays disabled so a node without a config file never runs the resets.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
