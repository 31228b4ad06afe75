// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	// Set global log level
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	// Configure output
	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	// Create logger with timestamp
	logger := zerolog.New(output).With().Timestamp().Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// ParseLevel validates a configured level name.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return "", fmt.Errorf("unknown log level %q", s)
	}
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Common field names used across components.
const (
	FieldEndpoint   = "endpoint"
	FieldRequestID  = "request_id"
	FieldURL        = "url"
	FieldErrorClass = "error_class"
	FieldAttempt    = "attempt"
)

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Each page request and HTTP attempt
//   - Async task polls
//   - Throttle state changes
//
// Info: Normal operation events
//   - Download started, resumed and completed (pages, records, skipped)
//   - Requests that succeeded after a retry
//   - Checkpoints saved
//
// Warn: Warning conditions that don't prevent operation
//   - Skipped malformed records (index, field)
//   - Retry attempts and 429 back-off
//   - Checkpoint store errors
//
// Error: Error conditions requiring attention
//   - Downloads aborted (stage, url, records delivered)
//   - Retry attempts exhausted
//
// Context Fields:
//   - component: emitting package (lizard-client, pagination, connector, ...)
//   - endpoint: Lizard resource name
//   - request_id: id sent as X-Request-ID for one download
//   - url: page or task URL
//   - error_class: Error classification (client, server, rate_limit, network)
//   - attempt: HTTP attempt number
