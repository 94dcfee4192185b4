/*
 * @module service/config/config
 * @description Service configuration: defaults, optional YAML file, .env file and environment overrides
 * @architecture Layered architecture - configuration layer
 * @stateFlow defaults -> YAML file -> .env -> environment variables -> Validate
 * @rules environment variables win over the file; an invalid configuration stops startup
 * @dependencies gopkg.in/yaml.v3, github.com/joho/godotenv, github.com/spf13/cast, github.com/robfig/cron/v3
 * @refs service/init.go, main.go
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"backoffice-service/service/meta"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// Lock backends
const (
	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

// Event backends
const (
	EventBackendNone  = "none"
	EventBackendKafka = "kafka"
)

// Auth modes
const (
	AuthModePostgREST = "postgrest"
	AuthModeStatic    = "static"
)

// Config service configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Fetcher  FetcherConfig  `yaml:"fetcher"`
	Sync     SyncConfig     `yaml:"sync"`
	Alerting AlertingConfig `yaml:"alerting"`
	Lock     LockConfig     `yaml:"lock"`
	Events   EventsConfig   `yaml:"events"`
	Auth     AuthConfig     `yaml:"auth"`
	Dedup    DedupConfig    `yaml:"dedup"`
}

// ServerConfig HTTP server
type ServerConfig struct {
	Port           string        `yaml:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DatabaseConfig postgres connection; URL wins over the separate fields
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	Host         string `yaml:"host"`
	Port         string `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Name         string `yaml:"name"`
	SSLMode      string `yaml:"ssl_mode"`
	Schema       string `yaml:"schema"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// DSN postgres connection string
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s search_path=%s TimeZone=UTC",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode, d.Schema)
}

// LogConfig logging
type LogConfig struct {
	Level string `yaml:"level"`
}

// FetcherConfig external system of record
type FetcherConfig struct {
	BaseURL       string            `yaml:"base_url"`
	Timeout       time.Duration     `yaml:"timeout"`
	SourceIDField string            `yaml:"source_id_field"`
	Headers       map[string]string `yaml:"headers"`
	KindPaths     map[string]string `yaml:"kind_paths"`
	PageSize      int               `yaml:"page_size"` // 0 fetches each window in one request
}

// SyncJob periodic sync of one kind
type SyncJob struct {
	Kind         string `yaml:"kind"`
	Cron         string `yaml:"cron"`
	LookbackDays int    `yaml:"lookback_days"`
}

// SyncConfig sync pipeline
type SyncConfig struct {
	ChunkDays     int           `yaml:"chunk_days"`
	MaxWindowDays int           `yaml:"max_window_days"`
	LockTTL       time.Duration `yaml:"lock_ttl"`
	LockRefresh   time.Duration `yaml:"lock_refresh"`
	Jobs          []SyncJob     `yaml:"jobs"`
}

// AlertingConfig alert generator; an empty Cron disables the periodic scan
type AlertingConfig struct {
	StalledThreshold time.Duration `yaml:"stalled_threshold"`
	Cron             string        `yaml:"cron"`
	LockTTL          time.Duration `yaml:"lock_ttl"`
}

// RedisConfig redis connection
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// LockConfig distributed lock backend
type LockConfig struct {
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
}

// EventsConfig alert event publishing
type EventsConfig struct {
	Backend      string        `yaml:"backend"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	RequiredAcks int           `yaml:"required_acks"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StaticToken a token accepted in static auth mode
type StaticToken struct {
	Username    string   `yaml:"username"`
	Permissions []string `yaml:"permissions"`
}

// AuthConfig bearer token verification
type AuthConfig struct {
	Mode         string                 `yaml:"mode"`
	PostgRESTURL string                 `yaml:"postgrest_url"`
	CacheTTL     time.Duration          `yaml:"cache_ttl"`
	Tokens       map[string]StaticToken `yaml:"tokens"`
}

// DedupConfig duplicate scanner
type DedupConfig struct {
	DefaultRegion string `yaml:"default_region"`
}

// Default configuration used before the file and environment are applied
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "80",
			AllowedOrigins: []string{"*"},
			RequestTimeout: 5 * time.Minute,
		},
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         "5432",
			User:         "postgres",
			Name:         "postgres",
			SSLMode:      "disable",
			Schema:       "public",
			MaxOpenConns: 20,
			MaxIdleConns: 5,
		},
		Log: LogConfig{Level: "info"},
		Fetcher: FetcherConfig{
			Timeout:       30 * time.Second,
			SourceIDField: "sourceId",
		},
		Sync: SyncConfig{
			ChunkDays:     31,
			MaxWindowDays: 366,
			LockTTL:       10 * time.Minute,
			LockRefresh:   time.Minute,
		},
		Alerting: AlertingConfig{
			StalledThreshold: 168 * time.Hour,
			Cron:             "0 */15 * * * *",
			LockTTL:          5 * time.Minute,
		},
		Lock: LockConfig{
			Backend: LockBackendLocal,
			Redis:   RedisConfig{Addr: "localhost:6379", KeyPrefix: "backoffice:lock:"},
		},
		Events: EventsConfig{
			Backend:      EventBackendNone,
			Topic:        "backoffice.alerts",
			RequiredAcks: 1,
			BatchTimeout: 100 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			Mode:         AuthModePostgREST,
			PostgRESTURL: "http://postgrest:3000",
			CacheTTL:     5 * time.Minute,
		},
		Dedup: DedupConfig{DefaultRegion: "BR"},
	}
}

// Load builds the configuration from path (optional), .env and the environment
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.Port = getEnvWithDefault("SERVER_PORT", c.Server.Port)
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}

	c.Database.URL = getEnvWithDefault("DATABASE_URL", c.Database.URL)
	c.Database.Host = getEnvWithDefault("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvWithDefault("DB_PORT", c.Database.Port)
	c.Database.User = getEnvWithDefault("DB_USER", c.Database.User)
	c.Database.Password = getEnvWithDefault("DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnvWithDefault("DB_NAME", c.Database.Name)
	c.Database.SSLMode = getEnvWithDefault("DB_SSLMODE", c.Database.SSLMode)
	c.Database.Schema = getEnvWithDefault("DB_SCHEMA", c.Database.Schema)

	c.Log.Level = getEnvWithDefault("LOG_LEVEL", c.Log.Level)

	c.Fetcher.BaseURL = getEnvWithDefault("FETCHER_BASE_URL", c.Fetcher.BaseURL)
	c.Fetcher.SourceIDField = getEnvWithDefault("FETCHER_SOURCE_ID_FIELD", c.Fetcher.SourceIDField)

	c.Lock.Backend = getEnvWithDefault("LOCK_BACKEND", c.Lock.Backend)
	c.Lock.Redis.Addr = getEnvWithDefault("REDIS_ADDR", c.Lock.Redis.Addr)
	c.Lock.Redis.Password = getEnvWithDefault("REDIS_PASSWORD", c.Lock.Redis.Password)

	c.Events.Backend = getEnvWithDefault("EVENTS_BACKEND", c.Events.Backend)
	c.Events.Topic = getEnvWithDefault("KAFKA_ALERT_TOPIC", c.Events.Topic)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Events.Brokers = splitList(brokers)
	}

	c.Auth.Mode = getEnvWithDefault("AUTH_MODE", c.Auth.Mode)
	c.Auth.PostgRESTURL = getEnvWithDefault("POSTGREST_URL", c.Auth.PostgRESTURL)

	c.Dedup.DefaultRegion = getEnvWithDefault("PHONE_DEFAULT_REGION", c.Dedup.DefaultRegion)
	c.Alerting.Cron = getEnvWithDefault("ALERT_CRON", c.Alerting.Cron)

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"FETCHER_TIMEOUT", &c.Fetcher.Timeout},
		{"SYNC_LOCK_TTL", &c.Sync.LockTTL},
		{"ALERT_STALLED_THRESHOLD", &c.Alerting.StalledThreshold},
		{"AUTH_CACHE_TTL", &c.Auth.CacheTTL},
	}
	for _, d := range durations {
		raw := os.Getenv(d.key)
		if raw == "" {
			continue
		}
		value, err := cast.ToDurationE(raw)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q: %w", d.key, raw, err)
		}
		*d.target = value
	}

	ints := []struct {
		key    string
		target *int
	}{
		{"DB_MAX_OPEN_CONNS", &c.Database.MaxOpenConns},
		{"REDIS_DB", &c.Lock.Redis.DB},
		{"SYNC_CHUNK_DAYS", &c.Sync.ChunkDays},
		{"SYNC_MAX_WINDOW_DAYS", &c.Sync.MaxWindowDays},
		{"FETCHER_PAGE_SIZE", &c.Fetcher.PageSize},
	}
	for _, i := range ints {
		raw := os.Getenv(i.key)
		if raw == "" {
			continue
		}
		value, err := cast.ToIntE(raw)
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q: %w", i.key, raw, err)
		}
		*i.target = value
	}
	return nil
}

// Validate rejects configurations the service cannot run with
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Fetcher.PageSize < 0 {
		add("fetcher.page_size must not be negative")
	}
	if c.Sync.ChunkDays <= 0 {
		add("sync.chunk_days must be positive")
	}
	if c.Sync.MaxWindowDays <= 0 {
		add("sync.max_window_days must be positive")
	}
	if c.Sync.LockTTL <= 0 || c.Sync.LockRefresh <= 0 {
		add("sync.lock_ttl and sync.lock_refresh must be positive")
	} else if c.Sync.LockRefresh >= c.Sync.LockTTL {
		add("sync.lock_refresh must be shorter than sync.lock_ttl")
	}
	if c.Alerting.StalledThreshold <= 0 {
		add("alerting.stalled_threshold must be positive")
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if c.Alerting.Cron != "" {
		if _, err := parser.Parse(c.Alerting.Cron); err != nil {
			add("alerting.cron: %v", err)
		}
	}
	for i, job := range c.Sync.Jobs {
		if _, ok := meta.ParseEntityKind(job.Kind); !ok {
			add("sync.jobs[%d]: unknown entity kind %q", i, job.Kind)
		}
		if _, err := parser.Parse(job.Cron); err != nil {
			add("sync.jobs[%d].cron: %v", i, err)
		}
		if job.LookbackDays < 0 || job.LookbackDays > c.Sync.MaxWindowDays {
			add("sync.jobs[%d].lookback_days must be between 0 and %d", i, c.Sync.MaxWindowDays)
		}
	}

	switch c.Lock.Backend {
	case LockBackendLocal:
	case LockBackendRedis:
		if c.Lock.Redis.Addr == "" {
			add("lock.redis.addr is required for the redis backend")
		}
	default:
		add("lock.backend: unknown backend %q", c.Lock.Backend)
	}

	switch c.Events.Backend {
	case EventBackendNone:
	case EventBackendKafka:
		if len(c.Events.Brokers) == 0 || c.Events.Topic == "" {
			add("events.brokers and events.topic are required for the kafka backend")
		}
	default:
		add("events.backend: unknown backend %q", c.Events.Backend)
	}

	switch c.Auth.Mode {
	case AuthModePostgREST:
		if c.Auth.PostgRESTURL == "" {
			add("auth.postgrest_url is required in postgrest mode")
		}
	case AuthModeStatic:
		if len(c.Auth.Tokens) == 0 {
			add("auth.tokens must not be empty in static mode")
		}
	default:
		add("auth.mode: unknown mode %q", c.Auth.Mode)
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
