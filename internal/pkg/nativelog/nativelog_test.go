package nativelog

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriterAppendsToDailyFile(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	day := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return day }

	if _, err := w.Write([]byte("first\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := w.Write([]byte("second\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "stdout_3-9-24.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if string(data) != "first\nsecond\n" {
		t.Fatalf("log content = %q", data)
	}
}

func TestResolveDirPrefersExplicit(t *testing.T) {
	t.Setenv(EnvLogDir, "/from/env")
	if got := ResolveDir("/explicit"); got != "/explicit" {
		t.Fatalf("ResolveDir = %q", got)
	}
	if got := ResolveDir(""); got != "/from/env" {
		t.Fatalf("ResolveDir env = %q", got)
	}
}
