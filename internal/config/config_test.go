package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := []byte(`
server:
  port: "9090"
redis:
  addr: "localhost:6379"
  ttl: "1h"
postgres:
  url: "postgres://localhost/spelling"
roster:
  ttl: "5m"
`)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected redis addr: %s", cfg.Redis.Addr)
	}
	if cfg.Postgres.URL != "postgres://localhost/spelling" {
		t.Fatalf("unexpected postgres url: %s", cfg.Postgres.URL)
	}
	if got := TTLDuration(cfg.Roster.TTL, time.Minute); got != 5*time.Minute {
		t.Fatalf("expected 5m roster ttl, got %s", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestTTLDurationFallback(t *testing.T) {
	if got := TTLDuration("", time.Hour); got != time.Hour {
		t.Fatalf("expected fallback on empty, got %s", got)
	}
	if got := TTLDuration("bogus", time.Hour); got != time.Hour {
		t.Fatalf("expected fallback on parse error, got %s", got)
	}
}
