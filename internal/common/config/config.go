// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	CDN       CDNConfig       `mapstructure:"cdn"`
	Optimizer OptimizerConfig `mapstructure:"optimizer"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	ListenAddress string `mapstructure:"listen_address"`
	MetricsPort   int    `mapstructure:"metrics_port"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CDNConfig holds settings for the static asset edge cache.
type CDNConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Timeout  int    `mapstructure:"timeout"` // milliseconds
}

// OptimizerConfig holds settings for the optimization coordinator and the
// score loaders.
type OptimizerConfig struct {
	Profile string `mapstructure:"profile"` // aggressive | balanced | conservative

	QuickCacheTTL  int `mapstructure:"quick_cache_ttl"`  // seconds, process-local quick scores
	ApproxCacheTTL int `mapstructure:"approx_cache_ttl"` // seconds, distributed approximations
	ExactCacheTTL  int `mapstructure:"exact_cache_ttl"`  // seconds, distributed exact scores
	ProfileTTL     int `mapstructure:"profile_ttl"`      // seconds, participant profile cache

	BatchChunkSize    int `mapstructure:"batch_chunk_size"`   // concurrent pairs per chunk
	PrefetchLookahead int `mapstructure:"prefetch_lookahead"` // quick-score prefetch window

	Queue QueueConfig `mapstructure:"queue"`
}

// QueueConfig holds settings for the background job queue worker pool.
type QueueConfig struct {
	Workers  int `mapstructure:"workers"`
	Capacity int `mapstructure:"capacity"`
	Timeout  int `mapstructure:"timeout"` // milliseconds, per job
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
