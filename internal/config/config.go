package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server ServerConfig `mapstructure:"server" validate:"required"`
	Redis  RedisConfig  `mapstructure:"redis" validate:"required"`
	Queue  QueueConfig  `mapstructure:"queue" validate:"required"`
	Pool   PoolConfig   `mapstructure:"pool" validate:"required"`
	Auth   AuthConfig   `mapstructure:"auth"`
}

// ServerConfig contains all HTTP server related settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// RedisConfig contains the Redis connection settings.
type RedisConfig struct {
	URL string `mapstructure:"url" validate:"required,uri"`
}

// QueueConfig contains job queue settings.
type QueueConfig struct {
	Name      string        `mapstructure:"name" validate:"required"`
	ResultTTL time.Duration `mapstructure:"result_ttl" validate:"required,gt=0"`
}

// PoolConfig contains worker pool settings.
type PoolConfig struct {
	NumWorkers      int           `mapstructure:"num_workers" validate:"required,gt=0"`
	PollInterval    time.Duration `mapstructure:"poll_interval" validate:"required,gt=0"`
	JobTimeout      time.Duration `mapstructure:"job_timeout" validate:"required,gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// AuthConfig contains authentication settings. Auth is optional: when
// JWTSecret is empty the API runs without bearer-token checks.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
}
