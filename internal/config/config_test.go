package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != defaultPort {
		t.Fatalf("port = %d, want %d", cfg.Port, defaultPort)
	}
	if cfg.Summary.WaitTimeout != 45*time.Second {
		t.Fatalf("wait timeout = %v", cfg.Summary.WaitTimeout)
	}
	if cfg.Summary.Invalidation != InvalidateAlways {
		t.Fatalf("invalidation = %q", cfg.Summary.Invalidation)
	}
	if !filepath.IsAbs(cfg.Cache.Dir) || !strings.HasSuffix(cfg.Cache.Dir, filepath.Join("data", "cache")) {
		t.Fatalf("cache dir = %q", cfg.Cache.Dir)
	}
}

func TestLoadAppliesYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
port: 8080
timezone: Asia/Shanghai
remote:
  driver: memory
cache:
  backend: memory
  staleness:
    summaries: 5m
paths:
  data: `+dir+`
ai:
  providers:
    - id: main
      type: anthropic
      api_key: sk-test
  entry_model:
    provider: main
    model: claude-haiku-4-5-20251001
  request_timeout: 20s
summary:
  max_retries: 3
  invalidation: content
schedule:
  weekly_interval: 1h
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 || cfg.Remote.Driver != RemoteMemory || cfg.Cache.Backend != CacheMemory {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if got := cfg.Cache.Staleness["summaries"]; got != 5*time.Minute {
		t.Fatalf("summaries staleness = %v", got)
	}
	if cfg.Location().String() != "Asia/Shanghai" {
		t.Fatalf("location = %v", cfg.Location())
	}
	if len(cfg.AI.Providers) != 1 || !cfg.AI.Providers[0].Enabled {
		t.Fatalf("providers = %+v", cfg.AI.Providers)
	}
	if cfg.AI.EntryModel == nil || cfg.AI.EntryModel.ProviderID != "main" {
		t.Fatalf("entry model = %+v", cfg.AI.EntryModel)
	}
	if cfg.AI.RequestTimeout != 20*time.Second || cfg.Summary.MaxRetries != 3 {
		t.Fatalf("ai/summary = %+v %+v", cfg.AI, cfg.Summary)
	}
	if cfg.Schedule.WeeklyInterval != time.Hour {
		t.Fatalf("weekly interval = %v", cfg.Schedule.WeeklyInterval)
	}
	if cfg.Fallback.Path != filepath.Join(dir, "offline.db") {
		t.Fatalf("fallback path = %q", cfg.Fallback.Path)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"unknown field":    "nope: 1\n",
		"bad driver":       "remote:\n  driver: sqlite\n",
		"bad duration":     "summary:\n  wait_timeout: soon\n",
		"bad policy":       "summary:\n  invalidation: sometimes\n",
		"redis cache":      "cache:\n  backend: redis\n",
		"bad provider":     "ai:\n  providers:\n    - type: llama\n",
		"bad timezone":     "timezone: Mars/Olympus\n",
		"backup no bucket": "backup:\n  enable: true\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("expected error for %q", body)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultAppConfig()
	cfg.AI.Providers = []AIProvider{{ID: "a", Type: ProviderOpenAI}, {ID: "b", Type: ProviderGemini, APIKey: "kept"}}
	env := map[string]string{
		"JOURNAL_REDIS_URL":  "localhost:6380/1",
		"JOURNAL_JWT_SECRET": "s3cret",
		"JOURNAL_AI_API_KEY": "from-env",
		"JOURNAL_PORT":       "9000",
	}
	applyEnvOverrides(&cfg, func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})

	if !cfg.Redis.Enable || cfg.Redis.URLValue() != "redis://localhost:6380/1" {
		t.Fatalf("redis = %+v", cfg.Redis)
	}
	if cfg.JWTSecret != "s3cret" || cfg.Port != 9000 {
		t.Fatalf("jwt/port = %q %d", cfg.JWTSecret, cfg.Port)
	}
	if cfg.AI.Providers[0].APIKey != "from-env" || cfg.AI.Providers[1].APIKey != "kept" {
		t.Fatalf("providers = %+v", cfg.AI.Providers)
	}
}

func TestDSNValue(t *testing.T) {
	cfg := defaultAppConfig().Database
	dsn := cfg.DSNValue()
	if !strings.HasPrefix(dsn, "root:password@tcp(127.0.0.1:3306)/journal?") {
		t.Fatalf("dsn = %q", dsn)
	}
	if !strings.Contains(dsn, "parseTime=true") || !strings.Contains(dsn, "charset=utf8mb4") {
		t.Fatalf("dsn missing params: %q", dsn)
	}

	cfg.DSN = "u:p@tcp(db:3306)/x"
	if got := cfg.DSNValue(); got != "u:p@tcp(db:3306)/x" {
		t.Fatalf("explicit dsn = %q", got)
	}
}

func TestParseLocation(t *testing.T) {
	cases := []struct {
		raw    string
		offset int
		err    bool
	}{
		{raw: "", offset: 0},
		{raw: "UTC", offset: 0},
		{raw: "+08:00", offset: 8 * 3600},
		{raw: "-05:30", offset: -(5*3600 + 30*60)},
		{raw: "+24:00", err: true},
		{raw: "Mars/Olympus", err: true},
	}
	ref := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			loc, err := ParseLocation(tc.raw)
			if tc.err {
				if err == nil {
					t.Fatalf("expected error for %q", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLocation(%q): %v", tc.raw, err)
			}
			if _, off := ref.In(loc).Zone(); off != tc.offset {
				t.Fatalf("offset = %d, want %d", off, tc.offset)
			}
		})
	}
}
