package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(nil, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.WebSocket.PongWait != 60*time.Second {
		t.Errorf("PongWait = %s, want 60s", cfg.WebSocket.PongWait)
	}
	if cfg.Redis.Addr() != "localhost:6379" {
		t.Errorf("Redis.Addr() = %q", cfg.Redis.Addr())
	}
	if cfg.Signaling.QueueSize != 1024 {
		t.Errorf("QueueSize = %d, want 1024", cfg.Signaling.QueueSize)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("WEBSOCKET_PONG_WAIT", "90s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(nil, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.AllowedOrigins) != len(want) {
		t.Fatalf("AllowedOrigins = %v, want %v", cfg.AllowedOrigins, want)
	}
	for i := range want {
		if cfg.AllowedOrigins[i] != want[i] {
			t.Errorf("AllowedOrigins[%d] = %q, want %q", i, cfg.AllowedOrigins[i], want[i])
		}
	}
	if cfg.Redis.Host != "cache" || cfg.Redis.Enabled {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if cfg.WebSocket.PongWait != 90*time.Second {
		t.Errorf("PongWait = %s, want 90s", cfg.WebSocket.PongWait)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "signaling.yaml")
	body := []byte(`
port: "7000"
allowed_origins:
  - https://live.example
websocket:
  send_buffer: 32
signaling:
  queue_size: 16
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "7000" {
		t.Errorf("Port = %q, want 7000", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://live.example" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.WebSocket.SendBuffer != 32 || cfg.Signaling.QueueSize != 16 {
		t.Errorf("SendBuffer = %d QueueSize = %d", cfg.WebSocket.SendBuffer, cfg.Signaling.QueueSize)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())
	if _, err := Load(nil, "does-not-exist.yaml"); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Port:        "8080",
			Environment: "development",
			JWTSecret:   "secret",
			WebSocket: WebSocketConfig{
				PingInterval: 54 * time.Second,
				PongWait:     60 * time.Second,
				SendBuffer:   8,
			},
			Signaling: SignalingConfig{QueueSize: 8},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"empty port", func(c *Config) { c.Port = "" }, true},
		{"ping not shorter than pong", func(c *Config) { c.WebSocket.PingInterval = c.WebSocket.PongWait }, true},
		{"zero ping interval", func(c *Config) { c.WebSocket.PingInterval = 0 }, true},
		{"zero send buffer", func(c *Config) { c.WebSocket.SendBuffer = 0 }, true},
		{"zero queue", func(c *Config) { c.Signaling.QueueSize = 0 }, true},
		{"default secret in production", func(c *Config) {
			c.Environment = "production"
			c.JWTSecret = "change-me-in-production"
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
