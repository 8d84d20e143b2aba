package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.DataDir = "/var/lib/medconnect"
	cfg.Reconnect.MaxBackoff = Duration{2 * time.Minute}
	cfg.Notifications.Desktop = "granted"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DataDir != "/var/lib/medconnect" {
		t.Errorf("DataDir = %q", loaded.DataDir)
	}
	if loaded.Reconnect.MaxBackoff.Duration != 2*time.Minute {
		t.Errorf("MaxBackoff = %v, want 2m", loaded.Reconnect.MaxBackoff)
	}
	if loaded.Notifications.Desktop != "granted" {
		t.Errorf("Desktop = %q, want granted", loaded.Notifications.Desktop)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[reconnect]\nauto = false\ninitial_backoff = \"250ms\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Reconnect.Auto {
		t.Error("reconnect.auto should be false")
	}
	if cfg.Reconnect.InitialBackoff.Duration != 250*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 250ms", cfg.Reconnect.InitialBackoff)
	}
	if cfg.Badge.Cap != 99 || cfg.Push.Mode != PushBus {
		t.Errorf("defaults lost: badge=%d push=%q", cfg.Badge.Cap, cfg.Push.Mode)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load("/nonexistent/config.toml"); err == nil {
		t.Error("Load() expected error for missing file")
	}
	cfg, err := LoadOrDefault("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Push.Mode != PushBus {
		t.Errorf("Push.Mode = %q, want default", cfg.Push.Mode)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"websocket without url", func(c *Config) { c.Push.Mode = PushWebSocket }, true},
		{"websocket with url", func(c *Config) { c.Push.Mode = PushWebSocket; c.Push.URL = "ws://x" }, false},
		{"unknown mode", func(c *Config) { c.Push.Mode = "poll" }, true},
		{"bad permission", func(c *Config) { c.Notifications.Desktop = "maybe" }, true},
		{"zero cap", func(c *Config) { c.Badge.Cap = 0 }, true},
		{"negative attempts", func(c *Config) { c.Reconnect.MaxAttempts = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSavePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestPaths(t *testing.T) {
	cfg := &Config{DataDir: "/data"}
	if got := cfg.DBPath(); got != "/data/medconnect.db" {
		t.Errorf("DBPath() = %q", got)
	}
	if got := cfg.LogPath(); got != filepath.Join("/data", "logs", "medconnectd.log") {
		t.Errorf("LogPath() = %q", got)
	}
}
