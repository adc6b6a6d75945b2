// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

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

// Component names used in the "component" field.
const (
	ComponentProxyPool    = "proxy-pool"
	ComponentAdmission    = "admission"
	ComponentFetchClient  = "fetch-client"
	ComponentBatchFetcher = "batch-fetcher"
	ComponentCLI          = "batchfetch"
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

	output := cfg.Output
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

// ParseLevel validates a level name from configuration or flags.
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

// parseLevel maps a LogLevel onto zerolog, falling back to info for
// unknown names.
func parseLevel(level LogLevel) zerolog.Level {
	name, err := ParseLevel(string(level))
	if err != nil {
		return zerolog.InfoLevel
	}
	zl, err := zerolog.ParseLevel(string(name))
	if err != nil {
		return zerolog.InfoLevel
	}
	return zl
}

// NewLogger creates a new logger with the given component name. The logger
// copies the global logger, so call it after Setup.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Individual request failures (index, proxy, error_class)
//   - Token waits and worker completion
//   - Proxy samples and verify calls
//
// Info: Normal operation events
//   - Run start and completion
//   - Pass start and completion (pending, completed)
//   - Documents saved, servers started
//
// Warn: Warning conditions that don't prevent operation
//   - Runs that ended with unresolved slots
//   - Proxies failing the self-test
//
// Error: Error conditions requiring attention
//   - Generator failures
//   - Configuration and store errors
//
// Context Fields:
//   - run_id: Batch run identifier
//   - pass: Pass number, starting at 1
//   - index: Request slot index
//   - proxy: Proxy endpoint, credentials redacted
//   - status: HTTP status code
//   - error_class: Failure class (network, server, client, rate_limit, decode, admission, cancelled)
//   - pending / completed: Slot counts
//   - duration: Elapsed time
