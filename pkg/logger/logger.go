// Package logger builds the bridge's slog logger. Text output goes through
// charmbracelet/log; JSON output writes one LogEntry per line with the
// bridge's routing fields lifted to the top level.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	charmLog "github.com/charmbracelet/log"

	"serialbridge/pkg/config"
)

const (
	formatText = "text"
	formatJSON = "json"

	envLogFormat    = "SERIALBRIDGE_LOG_FORMAT"
	envLogLevel     = "SERIALBRIDGE_LOG_LEVEL"
	envLogAddSource = "SERIALBRIDGE_LOG_ADD_SOURCE"
)

// options is the logging config after environment overrides.
type options struct {
	format    string
	level     slog.Level
	addSource bool
}

// New builds the process logger writing to stderr.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter builds a logger writing to writer, for callers that own the
// terminal such as the live monitor.
func NewWithWriter(cfg config.LoggingConfig, writer io.Writer) (*slog.Logger, error) {
	opts, err := resolve(cfg)
	if err != nil {
		return nil, err
	}

	if opts.format == formatJSON {
		return slog.New(&entryHandler{
			level:     opts.level,
			addSource: opts.addSource,
			writer:    writer,
			mu:        &sync.Mutex{},
		}), nil
	}

	return slog.New(charmLog.NewWithOptions(writer, charmLog.Options{
		Level:           charmLevel(opts.level),
		ReportTimestamp: true,
		ReportCaller:    opts.addSource,
		Formatter:       charmLog.TextFormatter,
	})), nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// resolve applies SERIALBRIDGE_LOG_* overrides on top of cfg.
func resolve(cfg config.LoggingConfig) (options, error) {
	format := envOr(envLogFormat, cfg.Format, formatText)
	if format != formatText && format != formatJSON {
		return options{}, fmt.Errorf("unsupported log format %q", format)
	}

	levelText := envOr(envLogLevel, cfg.Level, "info")
	var level slog.Level
	switch levelText {
	case "warning":
		level = slog.LevelWarn
	default:
		if err := level.UnmarshalText([]byte(levelText)); err != nil {
			return options{}, fmt.Errorf("unsupported log level %q", levelText)
		}
	}

	addSource := cfg.AddSource
	if value := strings.TrimSpace(os.Getenv(envLogAddSource)); value != "" {
		addSource = parseBool(value)
	}

	return options{format: format, level: level, addSource: addSource}, nil
}

func envOr(key, configured, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return strings.ToLower(value)
	}
	if value := strings.TrimSpace(configured); value != "" {
		return strings.ToLower(value)
	}
	return fallback
}

func parseBool(input string) bool {
	switch strings.ToLower(input) {
	case "yes", "on":
		return true
	}
	value, _ := strconv.ParseBool(input)
	return value
}

func charmLevel(level slog.Level) charmLog.Level {
	switch {
	case level <= slog.LevelDebug:
		return charmLog.DebugLevel
	case level <= slog.LevelInfo:
		return charmLog.InfoLevel
	case level <= slog.LevelWarn:
		return charmLog.WarnLevel
	default:
		return charmLog.ErrorLevel
	}
}
