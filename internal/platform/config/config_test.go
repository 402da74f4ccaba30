package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calendar.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.CategoryScope != CategoryScopeOwner || cfg.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := writeConfig(t, "listen: \":9090\"\ntimezone: UTC\ncategory_scope: global\naccess_token_ttl: 1h\n")
	t.Setenv("CALENDAR_API_ADDR", ":7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Listen != ":7070" {
		t.Fatalf("env should override yaml listen, got %q", cfg.Listen)
	}
	if cfg.CategoryScope != CategoryScopeGlobal || cfg.AccessTokenTTL != time.Hour {
		t.Fatalf("yaml values not applied: %+v", cfg)
	}
	loc, err := cfg.Location()
	if err != nil || loc != time.UTC {
		t.Fatalf("expected UTC location, got %v (%v)", loc, err)
	}
}

func TestLoadRejectsUnknownScope(t *testing.T) {
	path := writeConfig(t, "category_scope: everyone\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := writeConfig(t, "listen: [unterminated\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
