package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Sync.DebounceWindow != 5*time.Second {
		t.Fatalf("debounce window = %v, want 5s", cfg.Sync.DebounceWindow)
	}
	if cfg.Sync.CacheTTL != time.Hour {
		t.Fatalf("cache ttl = %v, want 1h", cfg.Sync.CacheTTL)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  addr: ":9000"
  allowed_origins: ["https://board.example.com"]
auth:
  jwt_secret: sekrit
  token_ttl: 1h
sync:
  debounce_window: 2s
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Sync.DebounceWindow != 2*time.Second {
		t.Fatalf("debounce window = %v", cfg.Sync.DebounceWindow)
	}
	// Unset fields retain defaults.
	if cfg.Sync.CacheTTL != time.Hour {
		t.Fatalf("cache ttl = %v, want default", cfg.Sync.CacheTTL)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":7777")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("DEBOUNCE_WINDOW", "250ms")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":7777" || cfg.Auth.JWTSecret != "from-env" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.Sync.DebounceWindow != 250*time.Millisecond {
		t.Fatalf("debounce window = %v", cfg.Sync.DebounceWindow)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("origins = %v", cfg.Server.AllowedOrigins)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("does-not-exist.yaml"); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if cfg := LoadOrDefault("does-not-exist.yaml"); cfg.Server.Addr == "" {
		t.Fatalf("LoadOrDefault should fall back to defaults")
	}
}
