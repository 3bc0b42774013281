package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/mx-space/journal/internal/app"
	jwtpkg "github.com/mx-space/journal/internal/pkg/jwt"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	body := "env: production\n" +
		"jwt_secret: cli-secret\n" +
		"remote:\n  driver: memory\n" +
		"cache:\n  backend: memory\n" +
		"paths:\n  data: " + dir + "\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	cmd := New()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	cfg := writeConfig(t)
	out, err := run(t, "token", "-c", cfg, "-u", "u7", "--ttl", "1h")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	signer, err := jwtpkg.NewSigner("cli-secret", app.TokenIssuer)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	claims, err := signer.Parse(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("parse %q: %v", out, err)
	}
	if claims.UserID != "u7" {
		t.Fatalf("uid = %q", claims.UserID)
	}
}

func TestCommandsRequireUser(t *testing.T) {
	cfg := writeConfig(t)
	for _, name := range []string{"sync", "streak", "holds", "weekly", "token"} {
		if _, err := run(t, name, "-c", cfg); err == nil || !strings.Contains(err.Error(), "--user") {
			t.Fatalf("%s: err = %v", name, err)
		}
	}
}

func TestStreakOnEmptyJournal(t *testing.T) {
	cfg := writeConfig(t)
	out, err := run(t, "streak", "-c", cfg, "-u", "u1")
	if err != nil {
		t.Fatalf("streak: %v", err)
	}
	if !strings.Contains(out, "current streak") || !strings.Contains(out, "0/7") {
		t.Fatalf("output = %q", out)
	}
	if _, err := run(t, "streak", "-c", cfg, "-u", "u1", "--tz", "Mars/Olympus"); err == nil {
		t.Fatal("expected invalid --tz error")
	}
}

func TestHoldsOnEmptyJournal(t *testing.T) {
	cfg := writeConfig(t)
	out, err := run(t, "holds", "-c", cfg, "-u", "u1")
	if err != nil {
		t.Fatalf("holds: %v", err)
	}
	if !strings.Contains(out, "no held summaries") {
		t.Fatalf("output = %q", out)
	}
}

func TestGenerateUnknownEntry(t *testing.T) {
	cfg := writeConfig(t)
	if _, err := run(t, "generate", "-c", cfg, "-u", "u1", "missing"); err == nil {
		t.Fatal("expected not found error")
	}
}
