package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for catalog-engine.
// Configuration can come from a YAML file (config.yaml) or environment
// variables; environment variables always override YAML values. Secrets
// (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"development"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Redis cache backend (optional; in-memory cache when host is empty)
	Redis RedisConfig `yaml:"redis"`

	// Ingestion pipeline settings
	Ingest IngestConfig `yaml:"ingest"`

	// Cache TTLs
	Cache CacheConfig `yaml:"cache"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"catalog"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"catalog_engine"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// URL builds a postgres connection URL from the individual fields.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// IngestConfig holds knobs for the profiler and job manager.
type IngestConfig struct {
	// MaxWorkers bounds the number of concurrently running ingestion jobs.
	MaxWorkers int `yaml:"max_workers" env:"INGEST_MAX_WORKERS" env-default:"4"`
	// BatchSize is the number of rows the profiler reads per batch.
	BatchSize int `yaml:"batch_size" env:"INGEST_BATCH_SIZE" env-default:"10000"`
	// SampleSize is how many non-null values per column feed type inference.
	SampleSize int `yaml:"sample_size" env:"INGEST_SAMPLE_SIZE" env-default:"1000"`
	// PromotionThreshold is the fraction of sampled values that must parse
	// cleanly for a column to be promoted to a non-string type.
	PromotionThreshold float64 `yaml:"promotion_threshold" env:"INGEST_PROMOTION_THRESHOLD" env-default:"0.95"`
	// DistinctCeiling is the exact-tracking cardinality limit; above it the
	// profiler switches to a deterministic sampled estimate.
	DistinctCeiling int `yaml:"distinct_ceiling" env:"INGEST_DISTINCT_CEILING" env-default:"10000"`
	// JobTimeout is the wall-clock ceiling for one ingestion job.
	JobTimeout time.Duration `yaml:"job_timeout" env:"INGEST_JOB_TIMEOUT" env-default:"30m"`
	// JobRetention is how long terminal jobs are kept before the background
	// sweep deletes them.
	JobRetention time.Duration `yaml:"job_retention" env:"INGEST_JOB_RETENTION" env-default:"24h"`
	// UploadDir is where uploaded dataset files are spooled.
	UploadDir string `yaml:"upload_dir" env:"INGEST_UPLOAD_DIR" env-default:""`
}

// CacheConfig holds TTLs for the cache layers.
type CacheConfig struct {
	ProfileTTL time.Duration `yaml:"profile_ttl" env:"CACHE_PROFILE_TTL" env-default:"30m"`
	LineageTTL time.Duration `yaml:"lineage_ttl" env:"CACHE_LINEAGE_TTL" env-default:"30m"`
	SearchTTL  time.Duration `yaml:"search_ttl" env:"CACHE_SEARCH_TTL" env-default:"5m"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The YAML file is optional; defaults plus environment variables
// are enough to start the service.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read config from environment: %w", err)
		}
	}

	if cfg.Ingest.MaxWorkers < 1 {
		return nil, fmt.Errorf("ingest.max_workers must be at least 1, got %d", cfg.Ingest.MaxWorkers)
	}
	if cfg.Ingest.BatchSize < 1 {
		return nil, fmt.Errorf("ingest.batch_size must be at least 1, got %d", cfg.Ingest.BatchSize)
	}
	if cfg.Ingest.PromotionThreshold <= 0 || cfg.Ingest.PromotionThreshold > 1 {
		return nil, fmt.Errorf("ingest.promotion_threshold must be in (0,1], got %v", cfg.Ingest.PromotionThreshold)
	}

	return cfg, nil
}
