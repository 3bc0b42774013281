package config

import "time"

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"
	defaultPort       = 2333
	defaultEnv        = "development"
	defaultTimezone   = "UTC"

	defaultRemoteDriver = RemoteMongo
	defaultMongoURI     = "mongodb://127.0.0.1:27017"
	defaultMongoDB      = "journal"

	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultDBUser     = "root"
	defaultDBPassword = "password"
	defaultDBName     = "journal"
	defaultDBCharset  = "utf8mb4"
	defaultDBLoc      = "Local"

	defaultRedisHost = "localhost"
	defaultRedisPort = 6379
	defaultRedisDB   = 0

	defaultCacheBackend = CacheDiskv
	defaultDataDir      = "data"
	defaultCacheDir     = "cache"
	defaultFallbackPath = "offline.db"

	defaultAIRequestTimeout = 40 * time.Second
	defaultAIMaxTokens      = 1200

	defaultMaxRetries     = 5
	defaultWaitTimeout    = 45 * time.Second
	defaultInvalidation   = InvalidateAlways
	defaultWeeklyInterval = 6 * time.Hour
	defaultRetryInterval  = 30 * time.Minute
	defaultReconcileEvery = 5 * time.Minute
	defaultBackupInterval = 24 * time.Hour
	defaultBackupPrefix   = "journal-backups"
	defaultBackupRegion   = "us-east-1"

	envPrefix         = "JOURNAL_"
	defaultDotenvFile = ".env"
)

// Remote store drivers.
const (
	RemoteMongo  = "mongo"
	RemoteMySQL  = "mysql"
	RemoteMemory = "memory"
)

// Cache backends.
const (
	CacheDiskv  = "diskv"
	CacheRedis  = "redis"
	CacheMemory = "memory"
)

// Summary invalidation policies applied when an entry is edited.
const (
	InvalidateAlways          = "always"
	InvalidateOnContentChange = "content"
)

// AI provider types.
const (
	ProviderOpenAI           = "openai"
	ProviderOpenAICompatible = "openai-compatible"
	ProviderOpenRouter       = "openrouter"
	ProviderAnthropic        = "anthropic"
	ProviderGemini           = "gemini"
)
