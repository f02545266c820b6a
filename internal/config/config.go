package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/brosup/gmonitor/internal/logger"
)

// Default endpoint and timing values. The websocket endpoint is fixed for a
// deployment; config and env can point a console elsewhere.
const (
	DefaultServerURL     = "wss://brosup-gma.brosupdigital.com/ws/web"
	DefaultMaxReconnects = 5
	DefaultReconnectWait = 3 * time.Second
)

// ReconnectConfig tunes the bounded fixed-delay reconnect policy.
type ReconnectConfig struct {
	MaxAttempts int           `toml:"max_attempts" mapstructure:"max_attempts"`
	Interval    time.Duration `toml:"interval" mapstructure:"interval"`
}

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	ServerURL   string          `toml:"server_url" mapstructure:"server_url"`
	AuthURL     string          `toml:"auth_url" mapstructure:"auth_url"`
	SessionDir  string          `toml:"session_dir" mapstructure:"session_dir"`
	DownloadDir string          `toml:"download_dir" mapstructure:"download_dir"`
	HistoryDSN  string          `toml:"history_dsn" mapstructure:"history_dsn"`
	APIListen   string          `toml:"api_listen" mapstructure:"api_listen"`
	Reconnect   ReconnectConfig `toml:"reconnect" mapstructure:"reconnect"`
	Log         logger.Config   `toml:"log" mapstructure:"log"`
}

// Default returns the built-in configuration.
func Default() FileConfig {
	return FileConfig{
		ServerURL: DefaultServerURL,
		Reconnect: ReconnectConfig{
			MaxAttempts: DefaultMaxReconnects,
			Interval:    DefaultReconnectWait,
		},
	}
}

// Load reads a TOML config file and applies environment overrides.
// An empty path returns the defaults (still honoring the environment).
func Load(path string) (FileConfig, error) {
	fc := Default()
	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return fc, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := v.Unmarshal(&fc); err != nil {
			return fc, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&fc)
	if err := fc.Validate(); err != nil {
		return fc, err
	}
	return fc, nil
}

// Environment overrides, highest precedence.
func applyEnv(fc *FileConfig) {
	if v := os.Getenv("GMONITOR_SERVER_URL"); v != "" {
		fc.ServerURL = v
	}
	if v := os.Getenv("GMONITOR_AUTH_URL"); v != "" {
		fc.AuthURL = v
	}
	if v := os.Getenv("GMONITOR_HISTORY_DSN"); v != "" {
		fc.HistoryDSN = v
	}
}

// Validate checks config invariants that would otherwise surface as
// confusing runtime behavior.
func (fc FileConfig) Validate() error {
	if fc.ServerURL == "" {
		return errors.New("server_url must not be empty")
	}
	if fc.Reconnect.MaxAttempts < 0 {
		return errors.New("reconnect.max_attempts must not be negative")
	}
	if fc.Reconnect.Interval < 0 {
		return errors.New("reconnect.interval must not be negative")
	}
	return nil
}
