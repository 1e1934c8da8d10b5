// Package logging configures the zerolog logger shared by the harvester
// packages and the CLI.
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
	// LevelDebug logs every window, probe and request.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs harvest start, finish and gap jumps.
	LevelInfo LogLevel = "info"

	// LevelWarn logs retries and non-fatal cache or metadata problems.
	LevelWarn LogLevel = "warn"

	// LevelError logs failures only.
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

// ParseLevel validates a level name as given on the command line.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return "", fmt.Errorf("unknown log level %q (want debug, info, warn or error)", s)
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level, defaulting to info.
func parseLevel(level LogLevel) zerolog.Level {
	parsed, err := ParseLevel(string(level))
	if err != nil {
		return zerolog.InfoLevel
	}
	switch parsed {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: one line per network round trip
//   - Window fetched (kind, window, records)
//   - Gap search finished (after, landed, probes)
//   - Descriptor cache hit
//   - Count query failed (total count unknown)
//
// Info: harvest lifecycle
//   - Layer probed (kind, identifier_field, total_count)
//   - Harvest started / finished (emitted, windows, probes, gap_jumps)
//   - Jumped identifier gap (from, to)
//   - Request succeeded after retry
//
// Warn: degraded but continuing
//   - Retrying request
//   - Descriptor cache get/set errors
//   - Unresolvable spatial reference
//   - Layer without a unique object identifier field
//   - Service returned error envelope
//
// Error: the harvest stops
//   - Retry attempts exhausted
//   - Harvest failed (cursor, emitted)
//
// Context Fields:
//   - component: transport, probe, harvest, cli
//   - layer: layer URL
//   - endpoint: request path
//   - window: identifier window, e.g. [100, 150)
//   - error_class: client, server, rate_limit, network, decode, cancelled
//   - attempt: attempt number within the retry budget
