package config

import (
	"os"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
)

// ExecutableDir returns the directory where the current executable resides.
func ExecutableDir() string {
	exe, err := os.Executable()
	if err == nil && strings.TrimSpace(exe) != "" {
		if resolved, resolveErr := filepath.EvalSymlinks(exe); resolveErr == nil && strings.TrimSpace(resolved) != "" {
			exe = resolved
		}
		return filepath.Dir(exe)
	}

	if wd, wdErr := os.Getwd(); wdErr == nil && strings.TrimSpace(wd) != "" {
		return wd
	}
	return "."
}

// ExpandHome expands a leading ~ in path. Unexpandable paths are returned as is.
func ExpandHome(path string) string {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return expanded
}

// ResolveRuntimePath resolves runtime files and directories against base,
// which defaults to the executable directory.
func ResolveRuntimePath(raw, fallback, base string) string {
	target := ExpandHome(strings.TrimSpace(raw))
	if target == "" {
		target = strings.TrimSpace(fallback)
	}
	if base == "" {
		base = ExecutableDir()
	}
	if target == "" {
		return base
	}
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	return filepath.Clean(filepath.Join(base, target))
}

func (c *AppConfig) resolvePaths() {
	base := ResolveRuntimePath(c.Paths.Data, defaultDataDir, "")
	c.Paths.Data = base
	c.Cache.Dir = ResolveRuntimePath(c.Cache.Dir, defaultCacheDir, base)
	c.Fallback.Path = ResolveRuntimePath(c.Fallback.Path, defaultFallbackPath, base)
	if c.Paths.Logs != "" {
		c.Paths.Logs = ResolveRuntimePath(c.Paths.Logs, "", base)
	}
}
