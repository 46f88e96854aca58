// Package config loads and validates configuration at startup.
// Fail-fast: if a required variable is missing, the process exits with an error.
//
// Sources, lowest precedence first: built-in defaults, an optional
// matching-service.yaml, an optional .env file, and the process environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const fileName = "matching-service"

// Config holds all runtime configuration for the matching service.
type Config struct {
	Port        string `mapstructure:"MATCHING_PORT"`
	GRPCPort    string `mapstructure:"MATCHING_GRPC_PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	// InMemory swaps Postgres and Redis for the in-process stores.
	InMemory bool `mapstructure:"IN_MEMORY"`
	// CandidatesFile is a JSON array of profiles seeding in-memory mode.
	CandidatesFile string `mapstructure:"IN_MEMORY_CANDIDATES"`

	MatchConfig `mapstructure:",squash"`
	Scheduler   string `mapstructure:"SCHEDULER_SPEC"`

	CountCacheTTL time.Duration `mapstructure:"COUNT_CACHE_TTL"`
	PageMaxSize   int           `mapstructure:"PAGE_MAX_SIZE"`

	LogJSON  bool `mapstructure:"LOG_JSON"`
	LogDebug bool `mapstructure:"LOG_DEBUG"`
}

// MatchConfig tunes the match orchestrator and its queue.
type MatchConfig struct {
	Async         bool          `mapstructure:"MATCH_ASYNC"`
	Workers       int           `mapstructure:"MATCH_WORKERS"`
	QueueSize     int           `mapstructure:"MATCH_QUEUE_SIZE"`
	Parallelism   int           `mapstructure:"MATCH_EVAL_PARALLELISM"`
	RunTimeout    time.Duration `mapstructure:"MATCH_RUN_TIMEOUT"`
	StaleRunAfter time.Duration `mapstructure:"MATCH_STALE_RUN_AFTER"`
}

var defaults = map[string]any{
	"MATCHING_PORT":          "8083",
	"MATCHING_GRPC_PORT":     "9083",
	"DATABASE_URL":           "",
	"REDIS_URL":              "",
	"DB_MAX_CONNS":           10,
	"DB_MIN_CONNS":           2,
	"IN_MEMORY":              false,
	"IN_MEMORY_CANDIDATES":   "",
	"MATCH_ASYNC":            true,
	"MATCH_WORKERS":          4,
	"MATCH_QUEUE_SIZE":       256,
	"MATCH_EVAL_PARALLELISM": 8,
	"MATCH_RUN_TIMEOUT":      5 * time.Minute,
	"MATCH_STALE_RUN_AFTER":  30 * time.Minute,
	"SCHEDULER_SPEC":         "@every 15m",
	"COUNT_CACHE_TTL":        10 * time.Minute,
	"PAGE_MAX_SIZE":          100,
	"LOG_JSON":               false,
	"LOG_DEBUG":              false,
}

// LoadOption adjusts the viper instance before decoding.
type LoadOption func(*viper.Viper)

// WithOverride pins key to val above every other source. Command-line flags use it.
func WithOverride(key string, val any) LoadOption {
	return func(v *viper.Viper) { v.Set(key, val) }
}

// Load reads configuration and returns a validated Config.
// configFile may be empty, in which case ./matching-service.yaml is used when present.
func Load(configFile string, opts ...LoadOption) (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(fileName)
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.AutomaticEnv()
	for _, o := range opts {
		o(v)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required keys and value ranges.
func (c *Config) Validate() error {
	if !c.InMemory {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required")
		}
	}
	if c.MatchConfig.Workers < 1 {
		return fmt.Errorf("MATCH_WORKERS must be a positive integer, got %d", c.MatchConfig.Workers)
	}
	if c.MatchConfig.Parallelism < 1 {
		return fmt.Errorf("MATCH_EVAL_PARALLELISM must be a positive integer, got %d", c.MatchConfig.Parallelism)
	}
	if c.PageMaxSize < 1 {
		return fmt.Errorf("PAGE_MAX_SIZE must be a positive integer, got %d", c.PageMaxSize)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
