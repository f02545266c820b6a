package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gmonitor.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	fc, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fc.ServerURL != DefaultServerURL {
		t.Fatalf("unexpected default url: %s", fc.ServerURL)
	}
	if fc.Reconnect.MaxAttempts != 5 || fc.Reconnect.Interval != 3*time.Second {
		t.Fatalf("unexpected reconnect defaults: %+v", fc.Reconnect)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server_url = "wss://fleet.example.com/ws/web"
history_dsn = "sqlite://:memory:"
download_dir = "/tmp/exports"

[reconnect]
max_attempts = 8
interval = "5s"

[log]
level = "debug"
`)
	fc, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fc.ServerURL != "wss://fleet.example.com/ws/web" {
		t.Fatalf("server_url not read: %s", fc.ServerURL)
	}
	if fc.Reconnect.MaxAttempts != 8 || fc.Reconnect.Interval != 5*time.Second {
		t.Fatalf("reconnect not read: %+v", fc.Reconnect)
	}
	if fc.Log.Level != "debug" {
		t.Fatalf("log level not read: %+v", fc.Log)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `server_url = "wss://from-file/ws"`)
	t.Setenv("GMONITOR_SERVER_URL", "wss://from-env/ws")
	fc, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fc.ServerURL != "wss://from-env/ws" {
		t.Fatalf("env override lost: %s", fc.ServerURL)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	fc := Default()
	fc.ServerURL = ""
	if err := fc.Validate(); err == nil {
		t.Fatalf("empty server_url must fail validation")
	}
	fc = Default()
	fc.Reconnect.MaxAttempts = -1
	if err := fc.Validate(); err == nil {
		t.Fatalf("negative max_attempts must fail validation")
	}
}
