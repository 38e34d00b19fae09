// Package config loads pipeline configuration from a YAML file with
// environment-variable overrides for deployment-specific values.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the lead pipeline.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Queue    QueueConfig    `yaml:"queue"`
	Identity IdentityConfig `yaml:"identity"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Worker   WorkerConfig   `yaml:"worker"`
}

// ServerConfig holds the ingress HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds the optional Redis cache settings. An empty Addr
// disables caching; the pipeline is fully functional without it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// QueueConfig holds the shared queue consumption settings.
type QueueConfig struct {
	BatchSize          int `yaml:"batch_size"`
	VisibilitySeconds  int `yaml:"visibility_timeout_seconds"`
	OperationRetries   int `yaml:"operation_retries"`
}

// IdentityConfig holds identity resolution settings.
type IdentityConfig struct {
	MaxRetries int `yaml:"max_retries"`
}

// DeliveryConfig holds delivery engine settings.
type DeliveryConfig struct {
	MaxAttempts             int `yaml:"max_attempts"`
	PendingStalenessSeconds int `yaml:"pending_staleness_seconds"`
}

// WorkerConfig holds harness and host settings.
type WorkerConfig struct {
	HeartbeatSeconds    int `yaml:"heartbeat_seconds"`
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
}

// VisibilityTimeout returns the queue visibility window as a duration.
func (q QueueConfig) VisibilityTimeout() time.Duration {
	return time.Duration(q.VisibilitySeconds) * time.Second
}

// PendingStaleness returns the stuck-pending revival window as a duration.
func (d DeliveryConfig) PendingStaleness() time.Duration {
	return time.Duration(d.PendingStalenessSeconds) * time.Second
}

// Heartbeat returns the harness heartbeat interval as a duration.
func (w WorkerConfig) Heartbeat() time.Duration {
	return time.Duration(w.HeartbeatSeconds) * time.Second
}

// PollInterval returns the host poll interval as a duration.
func (w WorkerConfig) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalSeconds) * time.Second
}

// Load reads configuration from the YAML file at path and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads configuration from the YAML file (when present) plus
// .env and environment overrides. Missing file means pure env config.
func LoadFromEnv(path string) (*Config, error) {
	// .env is optional; real env vars win over it
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := envInt("SERVER_PORT"); port > 0 {
		cfg.Server.Port = port
	}
	if n := envInt("WORKER_BATCH_SIZE"); n > 0 {
		cfg.Queue.BatchSize = n
	}
	if n := envInt("WORKER_VT_SECONDS"); n > 0 {
		cfg.Queue.VisibilitySeconds = n
	}
	if n := envInt("IDENTIFY_MAX_RETRIES"); n > 0 {
		cfg.Identity.MaxRetries = n
	}
	if n := envInt("DELIVERY_MAX_ATTEMPTS"); n > 0 {
		cfg.Delivery.MaxAttempts = n
	}
	if n := envInt("PENDING_STALENESS_SECONDS"); n > 0 {
		cfg.Delivery.PendingStalenessSeconds = n
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 5
	}
	if c.Queue.BatchSize == 0 {
		c.Queue.BatchSize = 25
	}
	if c.Queue.VisibilitySeconds == 0 {
		c.Queue.VisibilitySeconds = 30
	}
	if c.Queue.OperationRetries == 0 {
		c.Queue.OperationRetries = 3
	}
	if c.Identity.MaxRetries == 0 {
		c.Identity.MaxRetries = 3
	}
	if c.Delivery.MaxAttempts == 0 {
		c.Delivery.MaxAttempts = 3
	}
	if c.Delivery.PendingStalenessSeconds == 0 {
		c.Delivery.PendingStalenessSeconds = 60
	}
	if c.Worker.HeartbeatSeconds == 0 {
		c.Worker.HeartbeatSeconds = 10
	}
	if c.Worker.PollIntervalSeconds == 0 {
		c.Worker.PollIntervalSeconds = 5
	}
}

func envInt(name string) int {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
