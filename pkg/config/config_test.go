package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfigFromEnvPath(t *testing.T) {
	unsetBridgeEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
	  "serial": {"port": "/dev/ttyUSB3", "baud": 115200, "driver": "tarm", "flush_on_open": false},
	  "cloud": {"transport": "websocket", "url": "ws://127.0.0.1:9000/bridge"},
	  "bridge": {"output": "telemetry"},
	  "status": {"enabled": true, "host": "127.0.0.1", "port": 18800},
	  "logging": {"format": "json", "level": "debug", "add_source": true}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("SERIALBRIDGE_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Serial.Port != "/dev/ttyUSB3" {
		t.Fatalf("serial.port = %q, want %q", cfg.Serial.Port, "/dev/ttyUSB3")
	}
	if cfg.Serial.Baud != 115200 {
		t.Fatalf("serial.baud = %d, want 115200", cfg.Serial.Baud)
	}
	if cfg.Serial.FlushEnabled() {
		t.Fatal("serial.flush_on_open = true, want false")
	}
	if cfg.Bridge.Output != "telemetry" {
		t.Fatalf("bridge.output = %q, want %q", cfg.Bridge.Output, "telemetry")
	}
	if cfg.Bridge.Input != DefaultInput || cfg.Bridge.Command != DefaultCommand {
		t.Fatalf("bridge defaults = %q/%q, want %q/%q", cfg.Bridge.Input, cfg.Bridge.Command, DefaultInput, DefaultCommand)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" || !cfg.Logging.AddSource {
		t.Fatalf("logging = %+v, want json/debug/add_source", cfg.Logging)
	}
}

func TestLoadConfigYAML(t *testing.T) {
	unsetBridgeEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "serial:\n  port: /dev/ttyS1\n  trim_cr: true\ncloud:\n  transport: loopback\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("SERIALBRIDGE_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Serial.Port != "/dev/ttyS1" {
		t.Fatalf("serial.port = %q, want %q", cfg.Serial.Port, "/dev/ttyS1")
	}
	if cfg.Cloud.Transport != TransportLoopback {
		t.Fatalf("cloud.transport = %q, want %q", cfg.Cloud.Transport, TransportLoopback)
	}
	if !cfg.Serial.TrimCR {
		t.Fatal("expected serial.trim_cr to be read from YAML")
	}
}

func TestLoadConfigInvalidEnvPath(t *testing.T) {
	t.Setenv("SERIALBRIDGE_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing config path")
	}
}

func TestDefaultsWithoutConfigFile(t *testing.T) {
	unsetBridgeEnv(t)

	var cfg Config
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if cfg.Serial.Port != DefaultPortName {
		t.Fatalf("serial.port = %q, want %q", cfg.Serial.Port, DefaultPortName)
	}
	if cfg.Serial.Baud != DefaultBaudRate {
		t.Fatalf("serial.baud = %d, want %d", cfg.Serial.Baud, DefaultBaudRate)
	}
	if !cfg.Serial.FlushEnabled() {
		t.Fatal("expected flush on open by default")
	}
	if cfg.Serial.TrimCR {
		t.Fatal("expected lines to keep carriage returns by default")
	}
	if cfg.Cloud.Transport != TransportWebSocket {
		t.Fatalf("cloud.transport = %q, want %q", cfg.Cloud.Transport, TransportWebSocket)
	}
	if cfg.Cloud.ReconnectMinSeconds != 1 || cfg.Cloud.ReconnectMaxSeconds != 30 {
		t.Fatalf("reconnect = %d..%d, want 1..30", cfg.Cloud.ReconnectMinSeconds, cfg.Cloud.ReconnectMaxSeconds)
	}
	if len(cfg.Warnings) != 0 {
		t.Fatalf("warnings = %v, want none", cfg.Warnings)
	}
}

func TestPortEnvOverrides(t *testing.T) {
	unsetBridgeEnv(t)
	t.Setenv("portname", "/dev/ttyUSB0")
	t.Setenv("portspeed", "57600")

	cfg := Config{Serial: SerialConfig{Port: "/dev/ttyS0", Baud: 19200}}
	applyEnvOverrides(&cfg)

	if cfg.Serial.Port != "/dev/ttyUSB0" {
		t.Fatalf("serial.port = %q, want %q", cfg.Serial.Port, "/dev/ttyUSB0")
	}
	if cfg.Serial.Baud != 57600 {
		t.Fatalf("serial.baud = %d, want 57600", cfg.Serial.Baud)
	}
}

func TestInvalidPortSpeedFallsBackWithWarning(t *testing.T) {
	for _, raw := range []string{"abc", "-5", "0", ""} {
		t.Run(raw, func(t *testing.T) {
			unsetBridgeEnv(t)
			t.Setenv("portspeed", raw)

			cfg := Config{Serial: SerialConfig{Baud: 115200}}
			applyEnvOverrides(&cfg)

			if cfg.Serial.Baud != DefaultBaudRate {
				t.Fatalf("serial.baud = %d, want %d", cfg.Serial.Baud, DefaultBaudRate)
			}
			if len(cfg.Warnings) != 1 {
				t.Fatalf("warnings = %v, want exactly one", cfg.Warnings)
			}
			if !strings.Contains(cfg.Warnings[0], "portspeed") {
				t.Fatalf("warning = %q, want mention of portspeed", cfg.Warnings[0])
			}
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := Config{}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected websocket transport without url to be invalid")
	}

	cfg.Cloud.URL = "ws://localhost/bridge"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}

	cfg.Cloud.Transport = TransportTelegram
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected telegram transport without token to be invalid")
	}

	cfg.Cloud.Transport = "carrier-pigeon"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unknown transport to be invalid")
	}

	cfg.Cloud.Transport = TransportLoopback
	cfg.Serial.Delimiter = "\r\n"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected multi-byte delimiter to be invalid")
	}
}

func TestParseCSV(t *testing.T) {
	got := parseCSV(" 1, ,2 ,3")
	if strings.Join(got, "|") != "1|2|3" {
		t.Fatalf("parseCSV = %v, want [1 2 3]", got)
	}
}

func unsetBridgeEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		envConfigPath, envPortName, envPortSpeed, envCloudURL, envCloudToken,
		envTelegramBotToken, envTelegramAllowFrom,
	} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}
