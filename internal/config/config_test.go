package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("Cache.Backend = %q", cfg.Cache.Backend)
	}
	if cfg.Cache.DefaultTTL != 60*time.Second {
		t.Errorf("Cache.DefaultTTL = %v", cfg.Cache.DefaultTTL)
	}
	if cfg.RateLimit.Strategy != "fixed_window" {
		t.Errorf("RateLimit.Strategy = %q", cfg.RateLimit.Strategy)
	}
	if cfg.RateLimit.MaxRequests != 100 {
		t.Errorf("RateLimit.MaxRequests = %d", cfg.RateLimit.MaxRequests)
	}
	if cfg.RateLimit.Window() != time.Minute {
		t.Errorf("RateLimit.Window() = %v", cfg.RateLimit.Window())
	}
	if cfg.Pipeline.BodySizeLimit != 1<<20 {
		t.Errorf("Pipeline.BodySizeLimit = %d", cfg.Pipeline.BodySizeLimit)
	}
	if cfg.Storage.Type != "none" {
		t.Errorf("Storage.Type = %q", cfg.Storage.Type)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CRUX_SERVER__PORT", "9090")
	t.Setenv("CRUX_CACHE__BACKEND", "redis")
	t.Setenv("CRUX_CACHE__REDIS__ADDR", "localhost:6380")
	t.Setenv("CRUX_RATE_LIMIT__MAX_REQUESTS", "5")
	t.Setenv("CRUX_RATE_LIMIT__WINDOW_MS", "1000")
	t.Setenv("CRUX_STORAGE__TYPE", "sqlite")
	t.Setenv("CRUX_STORAGE__SQLITE__PATH", "/tmp/crux.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if cfg.Cache.Backend != "redis" {
		t.Errorf("Cache.Backend = %q", cfg.Cache.Backend)
	}
	if cfg.Cache.Redis.Addr != "localhost:6380" {
		t.Errorf("Cache.Redis.Addr = %q", cfg.Cache.Redis.Addr)
	}
	if cfg.RateLimit.MaxRequests != 5 {
		t.Errorf("RateLimit.MaxRequests = %d", cfg.RateLimit.MaxRequests)
	}
	if cfg.RateLimit.Window() != time.Second {
		t.Errorf("RateLimit.Window() = %v", cfg.RateLimit.Window())
	}
	if cfg.Storage.Type != "sqlite" || cfg.Storage.SQLite.Path != "/tmp/crux.db" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crux.yaml")
	yaml := `
server:
  port: 7070
rate_limit:
  max_requests: 10
  window_ms: 2000
  routes:
    - route: /todos
      max_requests: 2
      window_ms: 500
      message: slow down
pipeline:
  csrf:
    enabled: true
    header: X-My-Token
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	// Environment wins over the file.
	t.Setenv("CRUX_SERVER__PORT", "7071")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 7071 {
		t.Errorf("Server.Port = %d, want env override", cfg.Server.Port)
	}
	if cfg.RateLimit.MaxRequests != 10 {
		t.Errorf("RateLimit.MaxRequests = %d", cfg.RateLimit.MaxRequests)
	}
	if len(cfg.RateLimit.Routes) != 1 {
		t.Fatalf("Routes = %d entries", len(cfg.RateLimit.Routes))
	}
	rt := cfg.RateLimit.Routes[0]
	if rt.Route != "/todos" || rt.MaxRequests != 2 || rt.WindowMS != 500 || rt.Message != "slow down" {
		t.Errorf("route override = %+v", rt)
	}
	if !cfg.Pipeline.CSRF.Enabled || cfg.Pipeline.CSRF.Header != "X-My-Token" {
		t.Errorf("CSRF = %+v", cfg.Pipeline.CSRF)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/crux.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}
