package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Optionally read from config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/promptloop")

	// Ignore error if config file not found
	_ = v.ReadInConfig()

	var cfg Config

	// Server
	cfg.Server.Host = v.GetString("server_host")
	cfg.Server.Port = v.GetInt("server_port")
	cfg.Server.Env = v.GetString("server_env")

	// PostgreSQL
	cfg.Postgres.Host = v.GetString("postgres_host")
	cfg.Postgres.Port = v.GetInt("postgres_port")
	cfg.Postgres.User = v.GetString("postgres_user")
	cfg.Postgres.Password = v.GetString("postgres_password")
	cfg.Postgres.Database = v.GetString("postgres_db")
	cfg.Postgres.SSLMode = v.GetString("postgres_ssl_mode")
	cfg.Postgres.MaxConns = int32(v.GetInt("postgres_max_conns"))
	cfg.Postgres.MinConns = int32(v.GetInt("postgres_min_conns"))

	// Redis
	cfg.Redis.Host = v.GetString("redis_host")
	cfg.Redis.Port = v.GetInt("redis_port")
	cfg.Redis.Password = v.GetString("redis_password")
	cfg.Redis.DB = v.GetInt("redis_db")

	// Worker
	cfg.Worker.Concurrency = v.GetInt("worker_concurrency")
	cfg.Worker.QueueCritical = v.GetString("worker_queue_critical")
	cfg.Worker.QueueDefault = v.GetString("worker_queue_default")
	cfg.Worker.QueueLow = v.GetString("worker_queue_low")

	// Logging
	cfg.Log.Level = v.GetString("log_level")
	cfg.Log.Format = v.GetString("log_format")

	// Aggregation
	cfg.Aggregation.LockTTLSeconds = v.GetInt("aggregation_lock_ttl_seconds")
	cfg.Aggregation.LockPollIntervalMs = v.GetInt("aggregation_lock_poll_interval_ms")
	cfg.Aggregation.BootstrapSamples = v.GetInt("aggregation_bootstrap_samples")
	cfg.Aggregation.LockTTL = time.Duration(cfg.Aggregation.LockTTLSeconds) * time.Second
	cfg.Aggregation.LockPollInterval = time.Duration(cfg.Aggregation.LockPollIntervalMs) * time.Millisecond

	// Validate required fields
	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server_host", "0.0.0.0")
	v.SetDefault("server_port", 8080)
	v.SetDefault("server_env", "development")

	// PostgreSQL defaults
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "promptloop")
	v.SetDefault("postgres_password", "promptloop")
	v.SetDefault("postgres_db", "promptloop")
	v.SetDefault("postgres_ssl_mode", "disable")
	v.SetDefault("postgres_max_conns", 25)
	v.SetDefault("postgres_min_conns", 5)

	// Redis defaults
	v.SetDefault("redis_host", "localhost")
	v.SetDefault("redis_port", 6379)
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	// Worker defaults
	v.SetDefault("worker_concurrency", 10)
	v.SetDefault("worker_queue_critical", "critical")
	v.SetDefault("worker_queue_default", "default")
	v.SetDefault("worker_queue_low", "low")

	// Logging defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	// Aggregation defaults. The lock TTL is deliberately seconds, not
	// milliseconds: an aggregation pass holds the lease for its full duration.
	v.SetDefault("aggregation_lock_ttl_seconds", 30)
	v.SetDefault("aggregation_lock_poll_interval_ms", 50)
	v.SetDefault("aggregation_bootstrap_samples", 500)
}

func validate(cfg *Config) error {
	if cfg.Aggregation.LockTTL <= 0 {
		return fmt.Errorf("aggregation lock TTL must be positive")
	}
	if cfg.Aggregation.LockPollInterval <= 0 {
		return fmt.Errorf("aggregation lock poll interval must be positive")
	}
	if cfg.Aggregation.BootstrapSamples <= 0 {
		return fmt.Errorf("aggregation bootstrap samples must be positive")
	}
	return nil
}
