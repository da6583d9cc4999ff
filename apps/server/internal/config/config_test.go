package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"deepwell-rpc/apps/server/internal/gateway"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deepwell.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Port != DefaultPort || cfg.DatabaseURL != DefaultDatabaseURL {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.LogLevel != zerolog.InfoLevel {
		t.Fatalf("expected info level, got %s", cfg.LogLevel)
	}
	if cfg.SessionTTL != 720*time.Hour || cfg.ShutdownTimeout != 30*time.Second {
		t.Fatalf("unexpected durations: %+v", cfg)
	}
	if cfg.Shutdown != gateway.ShutdownGraceful || cfg.QueueCapacity != 0 {
		t.Fatalf("unexpected gateway settings: %+v", cfg)
	}
	if cfg.Address() != "0.0.0.0:2747" {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
[app]
log-level = "warning"

[network]
use-ipv6 = true
port = 3000

[data]
database-url = "sqlite:///var/lib/deepwell.db"

[security]
password-blacklist-file = "/etc/deepwell/blacklist.txt"
session-ttl = "24h"

[gateway]
queue-capacity = 64
shutdown = "immediate"
shutdown-timeout = "5s"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.LogLevel != zerolog.WarnLevel {
		t.Fatalf("expected warn, got %s", cfg.LogLevel)
	}
	if cfg.Address() != "[::]:3000" {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
	if cfg.DatabaseURL != "sqlite:///var/lib/deepwell.db" {
		t.Fatalf("unexpected database url %s", cfg.DatabaseURL)
	}
	if cfg.PasswordBlacklistFile != "/etc/deepwell/blacklist.txt" || cfg.SessionTTL != 24*time.Hour {
		t.Fatalf("unexpected security settings: %+v", cfg)
	}
	if cfg.QueueCapacity != 64 || cfg.Shutdown != gateway.ShutdownImmediate || cfg.ShutdownTimeout != 5*time.Second {
		t.Fatalf("unexpected gateway settings: %+v", cfg)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DEEPWELL_DATA_DATABASE_URL", "postgres://localhost/deepwell")
	t.Setenv("DEEPWELL_APP_LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, "[data]\ndatabase-url = \"memory\"\n"))
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.DatabaseURL != "postgres://localhost/deepwell" {
		t.Fatalf("env override ignored: %s", cfg.DatabaseURL)
	}
	if cfg.LogLevel != zerolog.DebugLevel {
		t.Fatalf("expected debug, got %s", cfg.LogLevel)
	}
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]string{
		"bad level":    "[app]\nlog-level = \"loud\"\n",
		"bad port":     "[network]\nport = 70000\n",
		"bad shutdown": "[gateway]\nshutdown = \"later\"\n",
		"bad ttl":      "[security]\nsession-ttl = \"forever\"\n",
		"neg capacity": "[gateway]\nqueue-capacity = -1\n",
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for a missing file")
	}
}

func TestTOML_RoundTrip(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	cfg.LogLevel = zerolog.Disabled

	out, err := cfg.TOML()
	if err != nil {
		t.Fatalf("TOML err: %v", err)
	}
	if !strings.Contains(string(out), "[gateway]") || !strings.Contains(string(out), "off") {
		t.Fatalf("unexpected rendering:\n%s", out)
	}

	again, err := Load(writeConfig(t, string(out)))
	if err != nil {
		t.Fatalf("reload err: %v", err)
	}
	if again.LogLevel != zerolog.Disabled || again.Port != cfg.Port || again.SessionTTL != cfg.SessionTTL {
		t.Fatalf("reloaded config differs: %+v vs %+v", again, cfg)
	}
}
