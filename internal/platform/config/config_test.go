package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"SERVICE_NAME", "LOG_LEVEL", "APP_ENV", "HTTP_ADDR",
		"NATS_URL", "REDIS_DSN", "DATABASE_URL", "SYNC_INTERVAL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServiceName != "viewtrackd" {
		t.Fatalf("expected default service name, got %q", cfg.ServiceName)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("expected default addr, got %q", cfg.HTTP.Addr)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected default log level, got %q", cfg.LogLevel)
	}
	if cfg.SyncInterval != time.Hour {
		t.Fatalf("expected default sync interval, got %v", cfg.SyncInterval)
	}
	if cfg.IsProd() {
		t.Fatal("empty APP_ENV must not be production")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVICE_NAME", " tracker ")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("APP_ENV", "Production")
	t.Setenv("SYNC_INTERVAL", "15m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServiceName != "tracker" {
		t.Fatalf("expected trimmed override, got %q", cfg.ServiceName)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Fatalf("expected addr override, got %q", cfg.HTTP.Addr)
	}
	if !cfg.IsProd() {
		t.Fatal("APP_ENV comparison must be case-insensitive")
	}
	if cfg.SyncInterval != 15*time.Minute {
		t.Fatalf("expected 15m sync interval, got %v", cfg.SyncInterval)
	}
}

func TestLoad_RejectsGarbageDurations(t *testing.T) {
	t.Setenv("SYNC_INTERVAL", "often")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SyncInterval != time.Hour {
		t.Fatalf("unparseable interval must fall back, got %v", cfg.SyncInterval)
	}
}
