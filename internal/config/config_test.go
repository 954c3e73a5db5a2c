package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("VTSCLIENT_URL", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	def := DefaultConfig()
	if cfg.URL != def.URL {
		t.Errorf("Expected URL %s, got %s", def.URL, cfg.URL)
	}
	if cfg.RequestTimeout.Std() != 10*time.Second {
		t.Errorf("Expected 10s request timeout, got %s", cfg.RequestTimeout)
	}
	if cfg.Reconnect.MaxAttempts != 5 {
		t.Errorf("Expected 5 reconnect attempts, got %d", cfg.Reconnect.MaxAttempts)
	}
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("VTSCLIENT_URL", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `url: ws://127.0.0.1:9001
plugin:
  name: My Plugin
  developer: Someone
transport: coder
id_scheme: uuid
request_timeout: 2.5s
reconnect:
  max_attempts: 3
  initial_delay: 100ms
  max_delay: 2
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.URL != "ws://127.0.0.1:9001" {
		t.Errorf("Unexpected URL %s", cfg.URL)
	}
	if cfg.Plugin.Name != "My Plugin" || cfg.Plugin.Developer != "Someone" {
		t.Errorf("Unexpected plugin %+v", cfg.Plugin)
	}
	if cfg.Transport != TransportCoder || cfg.IDScheme != IDSchemeUUID {
		t.Errorf("Unexpected transport %s / id scheme %s", cfg.Transport, cfg.IDScheme)
	}
	if cfg.RequestTimeout.Std() != 2500*time.Millisecond {
		t.Errorf("Expected 2.5s, got %s", cfg.RequestTimeout)
	}
	if cfg.Reconnect.InitialDelay.Std() != 100*time.Millisecond {
		t.Errorf("Expected 100ms, got %s", cfg.Reconnect.InitialDelay)
	}
	if cfg.Reconnect.MaxDelay.Std() != 2*time.Second {
		t.Errorf("Expected plain number to mean seconds, got %s", cfg.Reconnect.MaxDelay)
	}
	// Unset fields keep their defaults
	if cfg.OutgoingBuffer != 32 {
		t.Errorf("Expected default outgoing buffer, got %d", cfg.OutgoingBuffer)
	}
}

func TestLoadJSON(t *testing.T) {
	t.Setenv("VTSCLIENT_URL", "")
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"url": "wss://vts.example:8001", "request_timeout": "1m", "outgoing_buffer": 4}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.URL != "wss://vts.example:8001" {
		t.Errorf("Unexpected URL %s", cfg.URL)
	}
	if cfg.RequestTimeout.Std() != time.Minute {
		t.Errorf("Expected 1m, got %s", cfg.RequestTimeout)
	}
	if cfg.OutgoingBuffer != 4 {
		t.Errorf("Expected 4, got %d", cfg.OutgoingBuffer)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VTSCLIENT_URL", "ws://override:1234")
	t.Setenv("VTSCLIENT_LOG_LEVEL", "debug")
	t.Setenv("VTSCLIENT_TOKEN_FILE", "/tmp/vts-token")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("url: ws://fromfile:1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.URL != "ws://override:1234" {
		t.Errorf("Expected env URL to win, got %s", cfg.URL)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected debug, got %s", cfg.LogLevel)
	}
	if cfg.TokenFile != "/tmp/vts-token" {
		t.Errorf("Expected env token file, got %s", cfg.TokenFile)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad scheme", func(c *Config) { c.URL = "http://localhost:8001" }, "url"},
		{"bad transport", func(c *Config) { c.Transport = "carrier-pigeon" }, "transport"},
		{"bad id scheme", func(c *Config) { c.IDScheme = "random" }, "id scheme"},
		{"short plugin name", func(c *Config) { c.Plugin.Name = "ab" }, "plugin name"},
		{"long developer", func(c *Config) { c.Plugin.Developer = strings.Repeat("x", 33) }, "plugin developer"},
		{"no attempts", func(c *Config) { c.Reconnect.MaxAttempts = 0 }, "max_attempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("VTSCLIENT_URL", "")
	for _, name := range []string{"config.yaml", "config.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "sub", name)
			cfg := DefaultConfig()
			cfg.URL = "ws://saved:8001"
			cfg.RequestTimeout = Duration(3 * time.Second)

			if err := cfg.Save(path); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if loaded.URL != cfg.URL {
				t.Errorf("Expected %s, got %s", cfg.URL, loaded.URL)
			}
			if loaded.RequestTimeout != cfg.RequestTimeout {
				t.Errorf("Expected %s, got %s", cfg.RequestTimeout, loaded.RequestTimeout)
			}
		})
	}
}

func TestInvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"request_timeout": "soon"}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected an error for an invalid duration")
	}
}
