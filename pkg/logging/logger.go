// Package logging provides structured logging configuration using zerolog.
package logging

import (
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
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	// Backoff and latency duration fields are sub-second; log them in
	// milliseconds so they line up with the correlation-id timestamps.
	zerolog.DurationFieldUnit = time.Millisecond
	zerolog.DurationFieldInteger = true

	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level. Unknown or empty levels
// fall back to info rather than erroring; a misconfigured LOG_LEVEL must
// not keep the proxy from starting.
func parseLevel(level LogLevel) zerolog.Level {
	name := strings.ToLower(string(level))
	if name == "warning" {
		name = "warn"
	}

	parsed, err := zerolog.ParseLevel(name)
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Transport mode resolution
//   - Error classification decisions
//   - Mock route matches
//
// Info: Normal operation events
//   - Successful requests after retry
//   - Token lifecycle transitions (set/clear)
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts and backoff
//   - Failed error-body decodes (fallback to status text)
//
// Error: Error conditions requiring attention
//   - Terminal request failures (after retries)
//   - Storage errors
//   - Configuration errors
//
// Context Fields:
//   - correlation_id: Per-attempt correlation identifier
//   - endpoint: API endpoint path
//   - method: HTTP method
//   - kind: Error classification
//   - attempt: Attempt counter for the logical call
//   - backoff: Delay before the next attempt
