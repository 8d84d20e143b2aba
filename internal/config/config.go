package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Push modes.
const (
	PushBus       = "bus"
	PushWebSocket = "websocket"
)

// Config represents ~/.medconnect/config.toml.
type Config struct {
	DataDir       string        `toml:"data_dir"`
	LogLevel      string        `toml:"log_level"`
	Push          Push          `toml:"push"`
	Reconnect     Reconnect     `toml:"reconnect"`
	Notifications Notifications `toml:"notifications"`
	Badge         Badge         `toml:"badge"`
	WhatsApp      WhatsApp      `toml:"whatsapp"`
}

// Push selects where newly created messages are streamed from.
type Push struct {
	Mode        string   `toml:"mode"`
	URL         string   `toml:"url"`
	Token       string   `toml:"token"`
	PingTimeout Duration `toml:"ping_timeout"`
}

// Reconnect controls what the live listener does after the stream drops.
// With Auto off the listener waits for an explicit resubscribe.
// MaxAttempts of 0 retries forever.
type Reconnect struct {
	Auto           bool     `toml:"auto"`
	InitialBackoff Duration `toml:"initial_backoff"`
	MaxBackoff     Duration `toml:"max_backoff"`
	MaxAttempts    int      `toml:"max_attempts"`
}

// Notifications configures the desktop/sound/toast dispatcher.
// Desktop holds the remembered permission: granted, denied or default.
type Notifications struct {
	Desktop      string   `toml:"desktop"`
	DismissAfter Duration `toml:"dismiss_after"`
	Sound        bool     `toml:"sound"`
}

// Badge configures unread badge display.
type Badge struct {
	Cap int `toml:"cap"`
}

// WhatsApp configures the WhatsApp inbox bridge.
type WhatsApp struct {
	Enabled    bool   `toml:"enabled"`
	DeviceName string `toml:"device_name"`
}

// Duration is a time.Duration written as a Go duration string ("5s").
type Duration struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// BaseDir returns ~/.medconnect.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".medconnect")
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DataDir:  BaseDir(),
		LogLevel: "info",
		Push: Push{
			Mode:        PushBus,
			PingTimeout: Duration{15 * time.Second},
		},
		Reconnect: Reconnect{
			Auto:           true,
			InitialBackoff: Duration{time.Second},
			MaxBackoff:     Duration{30 * time.Second},
		},
		Notifications: Notifications{
			Desktop:      "default",
			DismissAfter: Duration{5 * time.Second},
			Sound:        true,
		},
		Badge:    Badge{Cap: 99},
		WhatsApp: WhatsApp{DeviceName: "MedConnect"},
	}
}

// Load reads config from the given path on top of Default. Returns an error
// if the file is missing or malformed.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadOrDefault is Load, except that a missing file yields Default.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Push.Mode {
	case PushBus:
	case PushWebSocket:
		if c.Push.URL == "" {
			return errors.New("push.url is required when push.mode is websocket")
		}
	default:
		return fmt.Errorf("unknown push.mode %q", c.Push.Mode)
	}
	switch c.Notifications.Desktop {
	case "granted", "denied", "default":
	default:
		return fmt.Errorf("unknown notifications.desktop %q", c.Notifications.Desktop)
	}
	if c.Badge.Cap <= 0 {
		return fmt.Errorf("badge.cap must be positive, got %d", c.Badge.Cap)
	}
	if c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("reconnect.max_attempts must not be negative")
	}
	return nil
}

// DBPath returns the app database path.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "medconnect.db")
}

// WASessionPath returns the whatsmeow device store path.
func (c *Config) WASessionPath() string {
	return filepath.Join(c.DataDir, "whatsapp.db")
}

// SocketPath returns the engine's gRPC Unix socket path.
func (c *Config) SocketPath() string {
	return filepath.Join(c.DataDir, "medconnectd.sock")
}

// LogPath returns the engine log file path.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "logs", "medconnectd.log")
}
