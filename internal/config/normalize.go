package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) error {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = v
	}
	if raw.AllowedOrigins != nil {
		cfg.AllowedOrigins = normalizeOrigins(raw.AllowedOrigins)
	}
	if v := strings.TrimSpace(raw.JWTSecret); v != "" {
		cfg.JWTSecret = v
	}
	if v := strings.TrimSpace(raw.Timezone); v != "" {
		cfg.Timezone = v
	}
	if v := strings.TrimSpace(raw.TZ); v != "" {
		cfg.Timezone = v
	}

	if v := strings.ToLower(strings.TrimSpace(raw.Remote.Driver)); v != "" {
		cfg.Remote.Driver = v
	}
	if v := strings.TrimSpace(raw.Remote.MongoURI); v != "" {
		cfg.Remote.MongoURI = v
	}
	if v := strings.TrimSpace(raw.Remote.MongoDatabase); v != "" {
		cfg.Remote.MongoDatabase = v
	}

	cfg.Database = applyRawDatabaseConfig(cfg.Database, raw)
	cfg.Redis = applyRawRedisConfig(cfg.Redis, raw)

	if v := strings.ToLower(strings.TrimSpace(raw.Cache.Backend)); v != "" {
		cfg.Cache.Backend = v
	}
	if v := strings.TrimSpace(raw.Cache.Dir); v != "" {
		cfg.Cache.Dir = v
	}
	for collection, value := range raw.Cache.Staleness {
		d, err := parseDuration("cache.staleness."+collection, value)
		if err != nil {
			return err
		}
		if d > 0 {
			cfg.Cache.Staleness[strings.TrimSpace(collection)] = d
		}
	}
	if v := strings.TrimSpace(raw.Fallback.Path); v != "" {
		cfg.Fallback.Path = v
	}

	if err := applyRawAIConfig(&cfg.AI, raw.AI); err != nil {
		return err
	}

	if raw.Summary.MaxRetries != nil {
		cfg.Summary.MaxRetries = *raw.Summary.MaxRetries
	}
	if d, err := parseDuration("summary.wait_timeout", raw.Summary.WaitTimeout); err != nil {
		return err
	} else if d > 0 {
		cfg.Summary.WaitTimeout = d
	}
	if v := strings.ToLower(strings.TrimSpace(raw.Summary.Invalidation)); v != "" {
		cfg.Summary.Invalidation = v
	}

	if raw.Schedule.Enable != nil {
		cfg.Schedule.Enable = *raw.Schedule.Enable
	}
	intervals := []struct {
		name   string
		value  string
		target *time.Duration
	}{
		{"schedule.weekly_interval", raw.Schedule.WeeklyInterval, &cfg.Schedule.WeeklyInterval},
		{"schedule.retry_interval", raw.Schedule.RetryInterval, &cfg.Schedule.RetryInterval},
		{"schedule.reconcile_interval", raw.Schedule.ReconcileEvery, &cfg.Schedule.ReconcileEvery},
		{"schedule.backup_interval", raw.Schedule.BackupInterval, &cfg.Schedule.BackupInterval},
	}
	for _, item := range intervals {
		d, err := parseDuration(item.name, item.value)
		if err != nil {
			return err
		}
		if d > 0 {
			*item.target = d
		}
	}

	applyRawBackupConfig(&cfg.Backup, raw.Backup)

	if v := strings.TrimSpace(raw.Paths.Logs); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.Paths.Data); v != "" {
		cfg.Paths.Data = v
	}

	cfg.Env = normalizeEnv(cfg.Env)
	return nil
}

func applyRawDatabaseConfig(current DatabaseRuntimeConfig, raw rawAppConfig) DatabaseRuntimeConfig {
	cfg := current
	db := raw.Database

	if v := strings.TrimSpace(db.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(db.Host); v != "" {
		cfg.Host = v
	}
	if db.Port != 0 {
		cfg.Port = db.Port
	}
	if v := strings.TrimSpace(db.User); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(db.Password); v != "" {
		cfg.Password = v
	}
	if v := strings.TrimSpace(db.Name); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(db.Charset); v != "" {
		cfg.Charset = v
	}
	if db.ParseTime != nil {
		cfg.ParseTime = *db.ParseTime
	}
	if v := strings.TrimSpace(db.Loc); v != "" {
		cfg.Loc = v
	}
	if db.Params != nil {
		cfg.Params = copyStringMap(db.Params)
	}
	return cfg
}

func applyRawRedisConfig(current RedisRuntimeConfig, raw rawAppConfig) RedisRuntimeConfig {
	cfg := current
	r := raw.Redis

	if r.Enable != nil {
		cfg.Enable = *r.Enable
	}
	if v := normalizeRedisRawURL(r.URL); v != "" {
		cfg.URL = v
	}
	if v := normalizeRedisRawURL(raw.RedisURL); v != "" {
		cfg.URL = v
		if r.Enable == nil {
			cfg.Enable = true
		}
	}
	if v := strings.TrimSpace(r.Host); v != "" {
		cfg.Host = v
	}
	if r.Port != 0 {
		cfg.Port = r.Port
	}
	if v := strings.TrimSpace(r.Username); v != "" {
		cfg.Username = v
	}
	if v := strings.TrimSpace(r.Password); v != "" {
		cfg.Password = v
	}
	if r.DB != nil {
		cfg.DB = *r.DB
	}
	if r.TLS != nil {
		cfg.TLS = *r.TLS
	}
	return cfg
}

func applyRawAIConfig(cfg *AIConfig, raw rawAIConfig) error {
	for i, p := range raw.Providers {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			id = fmt.Sprintf("provider-%d", i+1)
		}
		enabled := true
		if p.Enabled != nil {
			enabled = *p.Enabled
		}
		cfg.Providers = append(cfg.Providers, AIProvider{
			ID:           id,
			Type:         strings.ToLower(strings.TrimSpace(p.Type)),
			APIKey:       strings.TrimSpace(p.APIKey),
			Endpoint:     strings.TrimRight(strings.TrimSpace(p.Endpoint), "/"),
			DefaultModel: strings.TrimSpace(p.DefaultModel),
			Enabled:      enabled,
		})
	}
	cfg.EntryModel = toModelAssignment(raw.EntryModel)
	cfg.WeeklyModel = toModelAssignment(raw.WeeklyModel)

	d, err := parseDuration("ai.request_timeout", raw.RequestTimeout)
	if err != nil {
		return err
	}
	if d > 0 {
		cfg.RequestTimeout = d
	}
	if raw.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = raw.MaxOutputTokens
	}
	return nil
}

func toModelAssignment(raw *rawAIModelAssignment) *AIModelAssignment {
	if raw == nil {
		return nil
	}
	provider := strings.TrimSpace(raw.Provider)
	model := strings.TrimSpace(raw.Model)
	if provider == "" && model == "" {
		return nil
	}
	return &AIModelAssignment{ProviderID: provider, Model: model}
}

func applyRawBackupConfig(cfg *BackupConfig, raw rawBackupConfig) {
	if raw.Enable != nil {
		cfg.Enable = *raw.Enable
	}
	if v := strings.TrimSpace(raw.Bucket); v != "" {
		cfg.Bucket = v
	}
	if v := strings.TrimSpace(raw.Region); v != "" {
		cfg.Region = v
	}
	if v := strings.TrimRight(strings.TrimSpace(raw.Endpoint), "/"); v != "" {
		cfg.Endpoint = v
	}
	if v := strings.TrimSpace(raw.AccessKeyID); v != "" {
		cfg.AccessKeyID = v
	}
	if v := strings.TrimSpace(raw.SecretAccessKey); v != "" {
		cfg.SecretAccessKey = v
	}
	if v := strings.Trim(strings.TrimSpace(raw.Prefix), "/"); v != "" {
		cfg.Prefix = v
	}
	if raw.PathStyle != nil {
		cfg.PathStyle = *raw.PathStyle
	}
}

// applyEnvOverrides lets deployment secrets and endpoints come from the
// environment instead of the YAML file.
func applyEnvOverrides(cfg *AppConfig, lookup func(string) (string, bool)) {
	get := func(name string) (string, bool) {
		v, ok := lookup(envPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v, ok := get("ENV"); ok {
		cfg.Env = normalizeEnv(v)
	}
	if v, ok := get("TIMEZONE"); ok {
		cfg.Timezone = v
	}
	if v, ok := get("JWT_SECRET"); ok {
		cfg.JWTSecret = v
	}
	if v, ok := get("REMOTE_DRIVER"); ok {
		cfg.Remote.Driver = strings.ToLower(v)
	}
	if v, ok := get("MONGO_URI"); ok {
		cfg.Remote.MongoURI = v
	}
	if v, ok := get("DSN"); ok {
		cfg.Database.DSN = v
	}
	if v, ok := get("REDIS_URL"); ok {
		cfg.Redis.URL = normalizeRedisRawURL(v)
		cfg.Redis.Enable = true
	}
	if v, ok := get("AI_API_KEY"); ok {
		for i := range cfg.AI.Providers {
			if cfg.AI.Providers[i].APIKey == "" {
				cfg.AI.Providers[i].APIKey = v
			}
		}
	}
	if v, ok := get("S3_ACCESS_KEY_ID"); ok {
		cfg.Backup.AccessKeyID = v
	}
	if v, ok := get("S3_SECRET_ACCESS_KEY"); ok {
		cfg.Backup.SecretAccessKey = v
	}
}

func parseDuration(name, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", name, raw)
	}
	return d, nil
}

func normalizeRedisRawURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "redis://") || strings.HasPrefix(trimmed, "rediss://") {
		return trimmed
	}
	return "redis://" + trimmed
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(env string) string {
	trimmed := strings.ToLower(strings.TrimSpace(env))
	if trimmed == "" {
		return defaultEnv
	}
	return trimmed
}

func copyStringMap(input map[string]string) map[string]string {
	if input == nil {
		return nil
	}
	out := make(map[string]string, len(input))
	for key, value := range input {
		k := strings.TrimSpace(key)
		v := strings.TrimSpace(value)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}
