package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/username/orphanrun/pkg/layout"
)

// Feed drivers
const (
	DriverCSV      = "csv"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Config holds the configuration for the orphanrun service
type Config struct {
	ListenAddr     string        `yaml:"listen_addr"`
	FeedDriver     string        `yaml:"feed_driver"` // csv, redis or postgres
	BlocksCSVPath  string        `yaml:"blocks_csv_path"`
	JobsCSVPath    string        `yaml:"jobs_csv_path"` // raw jobs log served as-is; empty disables it
	RedisAddr      string        `yaml:"redis_addr"`
	RedisPassword  string        `yaml:"redis_password"`
	RedisDB        int           `yaml:"redis_db"`
	PostgresDSN    string        `yaml:"postgres_dsn"`
	MinRunLength   int           `yaml:"min_run_length"`
	RecentRuns     int           `yaml:"recent_runs"`
	ExplorerBase   string        `yaml:"explorer_base"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	LogLevel       string        `yaml:"log_level"`
	LogDevelopment bool          `yaml:"log_development"`

	// Layout overrides the diagram geometry and colors; an omitted block keeps the default
	Layout *layout.Config `yaml:"layout,omitempty"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		ListenAddr:    ":3000",
		FeedDriver:    DriverCSV,
		BlocksCSVPath: "data/blocks.csv",
		JobsCSVPath:   "data/raw_jobs.csv",
		RedisAddr:     "localhost:6379",
		MinRunLength:  3,
		RecentRuns:    layout.DefaultRecentRuns,
		ExplorerBase:  layout.DefaultExplorerBase,
		PollInterval:  5 * time.Second,
		MaxRetries:    3,
		RetryDelay:    500 * time.Millisecond,
		LogLevel:      "info",
	}
}

// Load loads configuration from environment variables or a config file
func Load() (*Config, error) {
	// 1. Check if config file is specified
	if configPath := os.Getenv("ORPHANRUN_CONFIG_PATH"); configPath != "" {
		return LoadFromFile(configPath)
	}

	// 2. Fallback to env vars
	d := Default()
	cfg := &Config{
		ListenAddr:     getEnv("ORPHANRUN_LISTEN_ADDR", d.ListenAddr),
		FeedDriver:     getEnv("ORPHANRUN_FEED_DRIVER", d.FeedDriver),
		BlocksCSVPath:  getEnv("ORPHANRUN_BLOCKS_CSV_PATH", d.BlocksCSVPath),
		JobsCSVPath:    getEnv("ORPHANRUN_JOBS_CSV_PATH", d.JobsCSVPath),
		RedisAddr:      getEnv("ORPHANRUN_REDIS_ADDR", d.RedisAddr),
		RedisPassword:  getEnv("ORPHANRUN_REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("ORPHANRUN_REDIS_DB", 0),
		PostgresDSN:    getEnv("ORPHANRUN_POSTGRES_DSN", ""),
		MinRunLength:   getEnvInt("ORPHANRUN_MIN_RUN_LENGTH", d.MinRunLength),
		RecentRuns:     getEnvInt("ORPHANRUN_RECENT_RUNS", d.RecentRuns),
		ExplorerBase:   getEnv("ORPHANRUN_EXPLORER_BASE", d.ExplorerBase),
		PollInterval:   getEnvDuration("ORPHANRUN_POLL_INTERVAL", d.PollInterval),
		MaxRetries:     getEnvInt("ORPHANRUN_MAX_RETRIES", d.MaxRetries),
		RetryDelay:     getEnvDuration("ORPHANRUN_RETRY_DELAY", d.RetryDelay),
		LogLevel:       getEnv("ORPHANRUN_LOG_LEVEL", d.LogLevel),
		LogDevelopment: getEnvBool("ORPHANRUN_LOG_DEVELOPMENT", false),
	}
	return cfg, cfg.Validate()
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	cfg := Default()
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	// zero values written explicitly in the file fall back to defaults
	d := Default()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = d.PollInterval
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = d.RetryDelay
	}
	if cfg.FeedDriver == "" {
		cfg.FeedDriver = d.FeedDriver
	}
	if cfg.RecentRuns <= 0 {
		cfg.RecentRuns = d.RecentRuns
	}
	if cfg.ExplorerBase == "" {
		cfg.ExplorerBase = d.ExplorerBase
	}

	return cfg, cfg.Validate()
}

// Validate checks the driver specific settings
func (c *Config) Validate() error {
	switch c.FeedDriver {
	case DriverCSV:
		if c.BlocksCSVPath == "" {
			return fmt.Errorf("blocks_csv_path is required for the csv driver")
		}
	case DriverRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required for the redis driver")
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown feed driver %q", c.FeedDriver)
	}
	return nil
}

// LayoutConfig merges the layout overrides over the defaults
func (c *Config) LayoutConfig() layout.Config {
	out := layout.DefaultConfig()
	if c.ExplorerBase != "" {
		out.ExplorerBase = c.ExplorerBase
	}
	if c.Layout == nil {
		return out
	}
	if c.Layout.Geometry != (layout.Geometry{}) {
		out.Geometry = c.Layout.Geometry
	}
	if c.Layout.Palette != (layout.Palette{}) {
		out.Palette = c.Layout.Palette
	}
	if c.Layout.ExplorerBase != "" {
		out.ExplorerBase = c.Layout.ExplorerBase
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
