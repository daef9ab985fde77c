package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	envConfigPath        = "SERIALBRIDGE_CONFIG"
	envPortName          = "portname"
	envPortSpeed         = "portspeed"
	envCloudURL          = "SERIALBRIDGE_CLOUD_URL"
	envCloudToken        = "SERIALBRIDGE_CLOUD_TOKEN"
	envTelegramBotToken  = "TELEGRAM_BOT_TOKEN"
	envTelegramAllowFrom = "TELEGRAM_ALLOW_FROM"

	DefaultPortName = "/dev/ttyACM0"
	DefaultBaudRate = 9600

	DefaultInput   = "input1"
	DefaultOutput  = "output1"
	DefaultCommand = "sendserial"

	TransportWebSocket = "websocket"
	TransportTelegram  = "telegram"
	TransportLoopback  = "loopback"
)

// Config is the root runtime configuration. Every field has a usable default,
// so a missing config file is not an error.
type Config struct {
	Serial   SerialConfig   `json:"serial" yaml:"serial"`
	Cloud    CloudConfig    `json:"cloud" yaml:"cloud"`
	Channels ChannelsConfig `json:"channels" yaml:"channels"`
	Bridge   BridgeConfig   `json:"bridge" yaml:"bridge"`
	Status   StatusConfig   `json:"status" yaml:"status"`
	Logging  LoggingConfig  `json:"logging,omitempty" yaml:"logging,omitempty"`

	// Warnings collects non-fatal problems found while loading, such as an
	// unparsable portspeed. They are logged once the logger exists.
	Warnings []string `json:"-" yaml:"-"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty" yaml:"format,omitempty"`
	Level     string `json:"level,omitempty" yaml:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty" yaml:"add_source,omitempty"`
}

// SerialConfig selects the device and its framing. Delimiter ends one inbound
// line, Terminator is appended to outbound writes and ReadRetryMillis is the
// pause after a failed read before the next attempt. TrimCR drops a carriage
// return before a "\n" delimiter; lines are forwarded byte for byte otherwise.
type SerialConfig struct {
	Port            string `json:"port" yaml:"port"`
	Baud            int    `json:"baud" yaml:"baud"`
	Driver          string `json:"driver,omitempty" yaml:"driver,omitempty"`
	Delimiter       string `json:"delimiter,omitempty" yaml:"delimiter,omitempty"`
	Terminator      string `json:"terminator,omitempty" yaml:"terminator,omitempty"`
	FlushOnOpen     *bool  `json:"flush_on_open,omitempty" yaml:"flush_on_open,omitempty"`
	ReadRetryMillis int    `json:"read_retry_ms,omitempty" yaml:"read_retry_ms,omitempty"`
	TrimCR          bool   `json:"trim_cr,omitempty" yaml:"trim_cr,omitempty"`
}

// CloudConfig selects and configures the cloud session transport.
type CloudConfig struct {
	Transport           string `json:"transport" yaml:"transport"`
	URL                 string `json:"url" yaml:"url"`
	Token               string `json:"token,omitempty" yaml:"token,omitempty"`
	ReconnectMinSeconds int    `json:"reconnect_min_seconds,omitempty" yaml:"reconnect_min_seconds,omitempty"`
	ReconnectMaxSeconds int    `json:"reconnect_max_seconds,omitempty" yaml:"reconnect_max_seconds,omitempty"`
}

// ChannelsConfig stores chat transport settings.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
}

// TelegramConfig configures the Telegram session.
type TelegramConfig struct {
	Token     string   `json:"token" yaml:"token"`
	ChatID    int64    `json:"chat_id" yaml:"chat_id"`
	AllowFrom []string `json:"allow_from" yaml:"allow_from"`
}

// BridgeConfig names the session endpoints the bridge binds to.
type BridgeConfig struct {
	Input     string `json:"input,omitempty" yaml:"input,omitempty"`
	Output    string `json:"output,omitempty" yaml:"output,omitempty"`
	Command   string `json:"command,omitempty" yaml:"command,omitempty"`
	QueueSize int    `json:"queue_size,omitempty" yaml:"queue_size,omitempty"`
}

// StatusConfig configures the HTTP status server.
type StatusConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Host    string `json:"host" yaml:"host"`
	Port    int    `json:"port" yaml:"port"`
}

// FlushEnabled reports whether stale input is discarded after opening.
func (s SerialConfig) FlushEnabled() bool {
	return s.FlushOnOpen == nil || *s.FlushOnOpen
}

// LoadConfig reads the optional config file, loads .env from the working
// directory, applies environment overrides and fills defaults.
func LoadConfig() (*Config, error) {
	var cfg Config

	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		if err := readConfigFile(configPath, &cfg); err != nil {
			return nil, err
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks settings that would make startup impossible.
func (c *Config) Validate() error {
	switch c.Cloud.Transport {
	case TransportWebSocket:
		if strings.TrimSpace(c.Cloud.URL) == "" {
			return errors.New("cloud.url is required for the websocket transport")
		}
	case TransportTelegram:
		if strings.TrimSpace(c.Channels.Telegram.Token) == "" {
			return errors.New("channels.telegram.token is required for the telegram transport")
		}
	case TransportLoopback:
	default:
		return fmt.Errorf("unsupported cloud.transport %q", c.Cloud.Transport)
	}

	if len(c.Serial.Delimiter) != 1 {
		return fmt.Errorf("serial.delimiter must be a single byte, got %q", c.Serial.Delimiter)
	}

	return nil
}

func readConfigFile(path string, cfg *Config) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(content, cfg); err != nil {
			return fmt.Errorf("parse config file: %w", err)
		}
	default:
		if err := json.Unmarshal(content, cfg); err != nil {
			return fmt.Errorf("parse config file: %w", err)
		}
	}

	return nil
}

// loadDotEnv loads environment variables from path. Missing files are ignored
// and variables already set in the process win.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if name := strings.TrimSpace(os.Getenv(envPortName)); name != "" {
		cfg.Serial.Port = name
	}

	if raw, ok := os.LookupEnv(envPortSpeed); ok {
		baud, err := parseBaud(raw)
		if err != nil {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("%s: %v; using %d", envPortSpeed, err, DefaultBaudRate))
			cfg.Serial.Baud = DefaultBaudRate
		} else {
			cfg.Serial.Baud = baud
		}
	}

	if url := strings.TrimSpace(os.Getenv(envCloudURL)); url != "" {
		cfg.Cloud.URL = url
	}
	if token := strings.TrimSpace(os.Getenv(envCloudToken)); token != "" {
		cfg.Cloud.Token = token
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); rawAllowFrom != "" {
		cfg.Channels.Telegram.AllowFrom = parseCSV(rawAllowFrom)
	}
}

func parseBaud(raw string) (int, error) {
	baud, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid baud rate %q", raw)
	}
	if baud <= 0 {
		return 0, fmt.Errorf("baud rate must be positive, got %d", baud)
	}
	return baud, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Serial.Port) == "" {
		cfg.Serial.Port = DefaultPortName
	}
	if cfg.Serial.Baud <= 0 {
		cfg.Serial.Baud = DefaultBaudRate
	}
	if cfg.Serial.Delimiter == "" {
		cfg.Serial.Delimiter = "\n"
	}
	if cfg.Serial.Terminator == "" {
		cfg.Serial.Terminator = "\n"
	}
	if cfg.Serial.ReadRetryMillis <= 0 {
		cfg.Serial.ReadRetryMillis = 200
	}

	cfg.Cloud.Transport = strings.ToLower(strings.TrimSpace(cfg.Cloud.Transport))
	if cfg.Cloud.Transport == "" {
		cfg.Cloud.Transport = TransportWebSocket
	}
	if cfg.Cloud.ReconnectMinSeconds <= 0 {
		cfg.Cloud.ReconnectMinSeconds = 1
	}
	if cfg.Cloud.ReconnectMaxSeconds < cfg.Cloud.ReconnectMinSeconds {
		cfg.Cloud.ReconnectMaxSeconds = max(30, cfg.Cloud.ReconnectMinSeconds)
	}

	if cfg.Bridge.Input == "" {
		cfg.Bridge.Input = DefaultInput
	}
	if cfg.Bridge.Output == "" {
		cfg.Bridge.Output = DefaultOutput
	}
	if cfg.Bridge.Command == "" {
		cfg.Bridge.Command = DefaultCommand
	}
	if cfg.Bridge.QueueSize <= 0 {
		cfg.Bridge.QueueSize = 100
	}

	if cfg.Status.Host == "" {
		cfg.Status.Host = "0.0.0.0"
	}
	if cfg.Status.Port <= 0 {
		cfg.Status.Port = 18791
	}
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location. An empty path
// means no file was found and defaults apply.
//
// Precedence is SERIALBRIDGE_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config.yaml"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", nil
}
