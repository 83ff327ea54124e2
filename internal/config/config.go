// Package config reads runtime settings from an optional YAML file, a .env
// file and KEMASAN_* environment variables, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Snapshot backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
)

// Config represents runtime configuration for the server, worker and CLI.
type Config struct {
	Address     string   `yaml:"address"`
	CORSOrigins []string `yaml:"cors_origins"`
	LogLevel    string   `yaml:"log_level"`
	LogPretty   bool     `yaml:"log_pretty"`

	// Backend selects where snapshots are persisted.
	Backend      string        `yaml:"backend"`
	SnapshotPath string        `yaml:"snapshot_path"`
	SealSecret   string        `yaml:"seal_secret"`
	DatabaseURL  string        `yaml:"database_url"`
	S3           S3Config      `yaml:"s3"`
	Redis        RedisConfig   `yaml:"redis"`
	Retention    RetentionConf `yaml:"retention"`
	Views        ViewsConfig   `yaml:"views"`

	DefaultOwner string `yaml:"default_owner"`
	// Owners maps owner ids to display names for the Shared view.
	Owners map[string]string `yaml:"owners"`
}

// S3Config locates the snapshot object.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	ObjectKey string `yaml:"object_key"`
}

// RedisConfig is used by the asynq client and worker.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RetentionConf controls the trash sweep.
type RetentionConf struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// SweepCron schedules the sweep task in the worker's asynq scheduler.
	SweepCron string `yaml:"sweep_cron"`
	// Queue routes on-demand sweeps from the API to the worker.
	Queue bool `yaml:"queue"`
}

// ViewsConfig tunes the query engine.
type ViewsConfig struct {
	RecentIncludeFolders bool `yaml:"recent_include_folders"`
	// RecentLimit caps the Recent view; 0 means unlimited. Defaults to 50.
	RecentLimit          int  `yaml:"recent_limit"`
	CacheSize            int  `yaml:"cache_size"`
}

const (
	defaultAddress       = ":8080"
	defaultBackend       = BackendFile
	defaultSnapshotPath  = "data/drive.json"
	defaultSweepInterval = time.Hour
	defaultSweepCron     = "@hourly"
	defaultRecentLimit   = 50
	defaultCacheSize     = 256
	defaultRedisAddr     = "127.0.0.1:6379"
	defaultS3Bucket      = "kemasan"
	defaultS3ObjectKey   = "snapshots/drive.json"
	defaultOwner         = "me"
)

// Load builds a Config. path names a YAML file; when empty KEMASAN_CONFIG is
// consulted, and when that is empty too only defaults and the environment
// apply.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if path == "" {
		path = os.Getenv("KEMASAN_CONFIG")
	}

	// Seeded before parsing so an explicit 0 (unlimited) survives.
	cfg := &Config{Views: ViewsConfig{RecentLimit: defaultRecentLimit}}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Address = readEnv("KEMASAN_ADDRESS", cfg.Address)
	cfg.CORSOrigins = parseList("KEMASAN_CORS_ORIGINS", cfg.CORSOrigins)
	cfg.LogLevel = readEnv("KEMASAN_LOG_LEVEL", cfg.LogLevel)
	cfg.LogPretty = parseBool("KEMASAN_LOG_PRETTY", cfg.LogPretty)

	cfg.Backend = readEnv("KEMASAN_BACKEND", cfg.Backend)
	cfg.SnapshotPath = readEnv("KEMASAN_SNAPSHOT_PATH", cfg.SnapshotPath)
	cfg.SealSecret = readEnv("KEMASAN_SEAL_SECRET", cfg.SealSecret)
	cfg.DatabaseURL = readEnv("KEMASAN_DATABASE_URL", cfg.DatabaseURL)

	cfg.S3.Endpoint = readEnv("KEMASAN_S3_ENDPOINT", cfg.S3.Endpoint)
	cfg.S3.AccessKey = readEnv("KEMASAN_S3_ACCESS_KEY", cfg.S3.AccessKey)
	cfg.S3.SecretKey = readEnv("KEMASAN_S3_SECRET_KEY", cfg.S3.SecretKey)
	cfg.S3.UseSSL = parseBool("KEMASAN_S3_USE_SSL", cfg.S3.UseSSL)
	cfg.S3.Region = readEnv("KEMASAN_S3_REGION", cfg.S3.Region)
	cfg.S3.Bucket = readEnv("KEMASAN_S3_BUCKET", cfg.S3.Bucket)
	cfg.S3.ObjectKey = readEnv("KEMASAN_S3_OBJECT_KEY", cfg.S3.ObjectKey)

	cfg.Redis.Addr = readEnv("KEMASAN_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = readEnv("KEMASAN_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = parseInt("KEMASAN_REDIS_DB", cfg.Redis.DB)

	cfg.Retention.SweepInterval = parseDuration("KEMASAN_SWEEP_INTERVAL", cfg.Retention.SweepInterval)
	cfg.Retention.SweepCron = readEnv("KEMASAN_SWEEP_CRON", cfg.Retention.SweepCron)
	cfg.Retention.Queue = parseBool("KEMASAN_SWEEP_QUEUE", cfg.Retention.Queue)

	cfg.Views.RecentIncludeFolders = parseBool("KEMASAN_RECENT_INCLUDE_FOLDERS", cfg.Views.RecentIncludeFolders)
	cfg.Views.RecentLimit = parseInt("KEMASAN_RECENT_LIMIT", cfg.Views.RecentLimit)
	cfg.Views.CacheSize = parseInt("KEMASAN_VIEW_CACHE_SIZE", cfg.Views.CacheSize)

	cfg.DefaultOwner = readEnv("KEMASAN_OWNER", cfg.DefaultOwner)
}

func applyDefaults(cfg *Config) {
	if cfg.Address == "" {
		cfg.Address = defaultAddress
	}
	if cfg.Backend == "" {
		cfg.Backend = defaultBackend
	}
	if cfg.SnapshotPath == "" {
		cfg.SnapshotPath = defaultSnapshotPath
	}
	if cfg.S3.Bucket == "" {
		cfg.S3.Bucket = defaultS3Bucket
	}
	if cfg.S3.ObjectKey == "" {
		cfg.S3.ObjectKey = defaultS3ObjectKey
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = defaultRedisAddr
	}
	if cfg.Retention.SweepInterval <= 0 {
		cfg.Retention.SweepInterval = defaultSweepInterval
	}
	if cfg.Retention.SweepCron == "" {
		cfg.Retention.SweepCron = defaultSweepCron
	}
	if cfg.Views.RecentLimit < 0 {
		cfg.Views.RecentLimit = 0
	}
	if cfg.Views.CacheSize == 0 {
		cfg.Views.CacheSize = defaultCacheSize
	}
	if cfg.DefaultOwner == "" {
		cfg.DefaultOwner = defaultOwner
	}
}

// Validate checks that the selected backend has what it needs.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendFile:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("postgres backend requires database_url")
		}
	case BackendS3:
		if c.S3.Endpoint == "" {
			return errors.New("s3 backend requires s3.endpoint")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseList(key string, def []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	out := strings.Split(v, ",")
	for i := range out {
		out[i] = strings.TrimSpace(out[i])
	}
	return out
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}
