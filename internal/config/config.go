package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const appName = "vtsclient"

// Transport names accepted by Config.Transport
const (
	TransportGorilla = "gorilla"
	TransportCoder   = "coder"
)

// ID schemes accepted by Config.IDScheme
const (
	IDSchemeNumeric = "numeric"
	IDSchemeUUID    = "uuid"
)

// Duration is a time.Duration that reads and writes as "1.5s" in both JSON
// and YAML. Plain numbers are taken as seconds.
type Duration time.Duration

// Std returns d as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return d.set(v)
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) set(v any) error {
	switch val := v.(type) {
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(val * float64(time.Second))
	case int:
		*d = Duration(time.Duration(val) * time.Second)
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

// PluginConfig identifies the plugin to VTube Studio
type PluginConfig struct {
	Name      string `json:"name" yaml:"name"`
	Developer string `json:"developer" yaml:"developer"`
	IconPath  string `json:"icon_path,omitempty" yaml:"icon_path,omitempty"` // PNG, 128x128
}

// ReconnectConfig bounds the connect cycle
type ReconnectConfig struct {
	MaxAttempts  int      `json:"max_attempts" yaml:"max_attempts"`
	InitialDelay Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay     Duration `json:"max_delay" yaml:"max_delay"`
	Disabled     bool     `json:"disabled,omitempty" yaml:"disabled,omitempty"` // no retry of in-flight calls
}

// Config represents application configuration
type Config struct {
	URL            string          `json:"url" yaml:"url"`
	Plugin         PluginConfig    `json:"plugin" yaml:"plugin"`
	TokenFile      string          `json:"token_file" yaml:"token_file"`
	SealToken      bool            `json:"seal_token,omitempty" yaml:"seal_token,omitempty"`
	Transport      string          `json:"transport" yaml:"transport"` // gorilla, coder
	IDScheme       string          `json:"id_scheme" yaml:"id_scheme"` // numeric, uuid
	RequestTimeout Duration        `json:"request_timeout" yaml:"request_timeout"`
	OutgoingBuffer int             `json:"outgoing_buffer" yaml:"outgoing_buffer"`
	Reconnect      ReconnectConfig `json:"reconnect" yaml:"reconnect"`
	LogLevel       string          `json:"log_level" yaml:"log_level"` // debug, info, warn, error, none
	LogPath        string          `json:"log_path" yaml:"log_path"`   // "-" for stderr
	MetricsAddr    string          `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty"`
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Roaming", appName)
	default:
		if configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); configHome != "" {
			return filepath.Join(configHome, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", appName)
	}
}

func defaultStateDir() string {
	switch runtime.GOOS {
	case "linux":
		if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
			return filepath.Join(stateHome, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", appName)
	case "windows":
		if localAppData := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); localAppData != "" {
			return filepath.Join(localAppData, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Local", appName)
	default:
		return defaultConfigDir()
	}
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		URL: "ws://localhost:8001",
		Plugin: PluginConfig{
			Name:      appName,
			Developer: appName,
		},
		TokenFile:      filepath.Join(defaultStateDir(), "token"),
		Transport:      TransportGorilla,
		IDScheme:       IDSchemeNumeric,
		RequestTimeout: Duration(10 * time.Second),
		OutgoingBuffer: 32,
		Reconnect: ReconnectConfig{
			MaxAttempts:  5,
			InitialDelay: Duration(500 * time.Millisecond),
			MaxDelay:     Duration(5 * time.Second),
		},
		LogLevel: "info",
		LogPath:  filepath.Join(defaultStateDir(), appName+".log"),
	}
}

// Load loads configuration from file. YAML is used for .yaml and .yml
// files, JSON otherwise. A missing file yields the defaults. Environment
// overrides are applied last.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, err
	case isYAML(path):
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	config.applyEnv()
	config.fillDefaults()
	return config, config.Validate()
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.URL, "ws://") && !strings.HasPrefix(c.URL, "wss://") {
		return fmt.Errorf("url must start with ws:// or wss://, got %q", c.URL)
	}
	switch c.Transport {
	case TransportGorilla, TransportCoder:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	switch c.IDScheme {
	case IDSchemeNumeric, IDSchemeUUID:
	default:
		return fmt.Errorf("unknown id scheme %q", c.IDScheme)
	}
	if n := len(c.Plugin.Name); n < 3 || n > 32 {
		return fmt.Errorf("plugin name must be 3 to 32 characters, got %d", n)
	}
	if n := len(c.Plugin.Developer); n < 3 || n > 32 {
		return fmt.Errorf("plugin developer must be 3 to 32 characters, got %d", n)
	}
	if c.Reconnect.MaxAttempts < 1 {
		return fmt.Errorf("reconnect.max_attempts must be at least 1")
	}
	return nil
}

func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"VTSCLIENT_URL":        &c.URL,
		"VTSCLIENT_LOG_LEVEL":  &c.LogLevel,
		"VTSCLIENT_LOG_PATH":   &c.LogPath,
		"VTSCLIENT_TOKEN_FILE": &c.TokenFile,
		"VTSCLIENT_TRANSPORT":  &c.Transport,
	}
	for key, field := range overrides {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*field = v
		}
	}
}

// fillDefaults restores fields a config file explicitly blanked
func (c *Config) fillDefaults() {
	def := DefaultConfig()
	if c.URL == "" {
		c.URL = def.URL
	}
	if c.TokenFile == "" {
		c.TokenFile = def.TokenFile
	}
	if c.Transport == "" {
		c.Transport = def.Transport
	}
	if c.IDScheme == "" {
		c.IDScheme = def.IDScheme
	}
	if c.OutgoingBuffer <= 0 {
		c.OutgoingBuffer = def.OutgoingBuffer
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.LogPath == "" {
		c.LogPath = def.LogPath
	}
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.yaml")
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
