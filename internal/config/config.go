package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int
	Env            string
	AllowedOrigins []string
	JWTSecret      string
	Timezone       string
	Remote         RemoteConfig
	Database       DatabaseRuntimeConfig
	Redis          RedisRuntimeConfig
	Cache          CacheConfig
	Fallback       FallbackConfig
	AI             AIConfig
	Summary        SummaryConfig
	Schedule       ScheduleConfig
	Backup         BackupConfig
	Paths          RuntimePathsConfig
}

// RemoteConfig selects the authoritative document store.
type RemoteConfig struct {
	Driver        string
	MongoURI      string
	MongoDatabase string
}

type DatabaseRuntimeConfig struct {
	DSN       string
	Host      string
	Port      int
	User      string
	Password  string
	Name      string
	Charset   string
	ParseTime bool
	Loc       string
	Params    map[string]string
}

type RedisRuntimeConfig struct {
	Enable   bool
	URL      string
	Host     string
	Port     int
	Username string
	Password string
	DB       int
	TLS      bool
}

// CacheConfig configures the local snapshot cache.
type CacheConfig struct {
	Backend   string
	Dir       string
	Staleness map[string]time.Duration
}

// FallbackConfig configures the lower-tier local store used when the remote
// store is unreachable.
type FallbackConfig struct {
	Path string
}

type AIProvider struct {
	ID           string
	Type         string
	APIKey       string
	Endpoint     string
	DefaultModel string
	Enabled      bool
}

type AIModelAssignment struct {
	ProviderID string
	Model      string
}

type AIConfig struct {
	Providers       []AIProvider
	EntryModel      *AIModelAssignment
	WeeklyModel     *AIModelAssignment
	RequestTimeout  time.Duration
	MaxOutputTokens int
}

// SummaryConfig tunes the entry summary lifecycle.
type SummaryConfig struct {
	MaxRetries   int
	WaitTimeout  time.Duration
	Invalidation string
}

type ScheduleConfig struct {
	Enable         bool
	WeeklyInterval time.Duration
	RetryInterval  time.Duration
	ReconcileEvery time.Duration
	BackupInterval time.Duration
}

type BackupConfig struct {
	Enable          bool
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	PathStyle       bool
}

type RuntimePathsConfig struct {
	Logs string
	Data string
}

type rawAppConfig struct {
	Port           int               `yaml:"port"`
	Env            string            `yaml:"env"`
	AllowedOrigins []string          `yaml:"allowed_origins"`
	JWTSecret      string            `yaml:"jwt_secret"`
	Timezone       string            `yaml:"timezone"`
	TZ             string            `yaml:"tz"`
	DSN            string            `yaml:"dsn"`
	RedisURL       string            `yaml:"redis_url"`
	Remote         rawRemoteConfig   `yaml:"remote"`
	Database       rawDatabaseConfig `yaml:"database"`
	Redis          rawRedisConfig    `yaml:"redis"`
	Cache          rawCacheConfig    `yaml:"cache"`
	Fallback       rawFallbackConfig `yaml:"fallback"`
	AI             rawAIConfig       `yaml:"ai"`
	Summary        rawSummaryConfig  `yaml:"summary"`
	Schedule       rawScheduleConfig `yaml:"schedule"`
	Backup         rawBackupConfig   `yaml:"backup"`
	Paths          rawPathsConfig    `yaml:"paths"`
}

type rawRemoteConfig struct {
	Driver        string `yaml:"driver"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

type rawDatabaseConfig struct {
	DSN       string            `yaml:"dsn"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	Charset   string            `yaml:"charset"`
	ParseTime *bool             `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`
}

type rawRedisConfig struct {
	Enable   *bool  `yaml:"enable"`
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       *int   `yaml:"db"`
	TLS      *bool  `yaml:"tls"`
}

type rawCacheConfig struct {
	Backend   string            `yaml:"backend"`
	Dir       string            `yaml:"dir"`
	Staleness map[string]string `yaml:"staleness"`
}

type rawFallbackConfig struct {
	Path string `yaml:"path"`
}

type rawAIProvider struct {
	ID           string `yaml:"id"`
	Type         string `yaml:"type"`
	APIKey       string `yaml:"api_key"`
	Endpoint     string `yaml:"endpoint"`
	DefaultModel string `yaml:"default_model"`
	Enabled      *bool  `yaml:"enabled"`
}

type rawAIModelAssignment struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type rawAIConfig struct {
	Providers       []rawAIProvider       `yaml:"providers"`
	EntryModel      *rawAIModelAssignment `yaml:"entry_model"`
	WeeklyModel     *rawAIModelAssignment `yaml:"weekly_model"`
	RequestTimeout  string                `yaml:"request_timeout"`
	MaxOutputTokens int                   `yaml:"max_output_tokens"`
}

type rawSummaryConfig struct {
	MaxRetries   *int   `yaml:"max_retries"`
	WaitTimeout  string `yaml:"wait_timeout"`
	Invalidation string `yaml:"invalidation"`
}

type rawScheduleConfig struct {
	Enable         *bool  `yaml:"enable"`
	WeeklyInterval string `yaml:"weekly_interval"`
	RetryInterval  string `yaml:"retry_interval"`
	ReconcileEvery string `yaml:"reconcile_interval"`
	BackupInterval string `yaml:"backup_interval"`
}

type rawBackupConfig struct {
	Enable          *bool  `yaml:"enable"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Prefix          string `yaml:"prefix"`
	PathStyle       *bool  `yaml:"path_style"`
}

type rawPathsConfig struct {
	Logs string `yaml:"logs"`
	Data string `yaml:"data"`
}

// Load reads the YAML config at configPath, applies a sibling .env file and
// JOURNAL_* environment overrides, and validates the result. A missing file is
// not an error: defaults plus environment are used.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}
	path = ExpandHome(path)

	dotenv := filepath.Join(filepath.Dir(path), defaultDotenvFile)
	if _, err := os.Stat(dotenv); err == nil {
		if err := godotenv.Load(dotenv); err != nil {
			return nil, fmt.Errorf("load env file %q: %w", dotenv, err)
		}
	}

	raw := rawAppConfig{}
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := applyRawAppConfig(&cfg, raw); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	applyEnvOverrides(&cfg, os.LookupEnv)
	cfg.resolvePaths()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	cfg := AppConfig{
		Port:     defaultPort,
		Env:      defaultEnv,
		Timezone: defaultTimezone,
		Remote: RemoteConfig{
			Driver:        defaultRemoteDriver,
			MongoURI:      defaultMongoURI,
			MongoDatabase: defaultMongoDB,
		},
		Database: DatabaseRuntimeConfig{
			Host:      defaultDBHost,
			Port:      defaultDBPort,
			User:      defaultDBUser,
			Password:  defaultDBPassword,
			Name:      defaultDBName,
			Charset:   defaultDBCharset,
			ParseTime: true,
			Loc:       defaultDBLoc,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		Cache: CacheConfig{
			Backend:   defaultCacheBackend,
			Dir:       defaultCacheDir,
			Staleness: map[string]time.Duration{},
		},
		Fallback: FallbackConfig{Path: defaultFallbackPath},
		AI: AIConfig{
			RequestTimeout:  defaultAIRequestTimeout,
			MaxOutputTokens: defaultAIMaxTokens,
		},
		Summary: SummaryConfig{
			MaxRetries:   defaultMaxRetries,
			WaitTimeout:  defaultWaitTimeout,
			Invalidation: defaultInvalidation,
		},
		Schedule: ScheduleConfig{
			Enable:         true,
			WeeklyInterval: defaultWeeklyInterval,
			RetryInterval:  defaultRetryInterval,
			ReconcileEvery: defaultReconcileEvery,
			BackupInterval: defaultBackupInterval,
		},
		Backup: BackupConfig{
			Region: defaultBackupRegion,
			Prefix: defaultBackupPrefix,
		},
	}
	return cfg
}

func (c *AppConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d, expected 1-65535", c.Port)
	}
	switch c.Remote.Driver {
	case RemoteMongo, RemoteMySQL, RemoteMemory:
	default:
		return fmt.Errorf("invalid remote.driver %q, expected mongo|mysql|memory", c.Remote.Driver)
	}
	if c.Remote.Driver == RemoteMySQL && (c.Database.Port < 1 || c.Database.Port > 65535) {
		return fmt.Errorf("invalid database.port %d, expected 1-65535", c.Database.Port)
	}
	switch c.Cache.Backend {
	case CacheDiskv, CacheMemory:
	case CacheRedis:
		if !c.Redis.Enable {
			return fmt.Errorf("cache.backend redis requires redis.enable")
		}
	default:
		return fmt.Errorf("invalid cache.backend %q, expected diskv|redis|memory", c.Cache.Backend)
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("invalid redis.db %d, expected >= 0", c.Redis.DB)
	}
	switch c.Summary.Invalidation {
	case InvalidateAlways, InvalidateOnContentChange:
	default:
		return fmt.Errorf("invalid summary.invalidation %q, expected always|content", c.Summary.Invalidation)
	}
	if c.Summary.MaxRetries < 0 {
		return fmt.Errorf("invalid summary.max_retries %d, expected >= 0", c.Summary.MaxRetries)
	}
	if _, err := ParseLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	for _, p := range c.AI.Providers {
		switch p.Type {
		case ProviderOpenAI, ProviderOpenAICompatible, ProviderOpenRouter, ProviderAnthropic, ProviderGemini:
		default:
			return fmt.Errorf("invalid ai provider %q type %q", p.ID, p.Type)
		}
	}
	if c.Backup.Enable && c.Backup.Bucket == "" {
		return fmt.Errorf("backup.bucket is required when backup is enabled")
	}
	return nil
}

// Location returns the configured default zone for day bucketing.
func (c *AppConfig) Location() *time.Location {
	loc, err := ParseLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsDev reports whether the server runs in development mode.
func (c *AppConfig) IsDev() bool {
	return c.Env == "development"
}
