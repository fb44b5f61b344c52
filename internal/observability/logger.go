package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggingConfig contains logger configuration options.
type LoggingConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`

	// Format is the output format (json, console, pretty).
	Format string `mapstructure:"format"`

	// Output is the output destination (stdout, stderr). The stdio MCP
	// transport owns stdout, so the default is stderr.
	Output string `mapstructure:"output"`

	// AddSource adds source file and line number to log entries.
	AddSource bool `mapstructure:"add_source"`

	// TimeFormat is the time format for timestamps.
	TimeFormat string `mapstructure:"time_format"`
}

// DefaultLoggingConfig returns a LoggingConfig with sensible defaults.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:      "info",
		Format:     "json",
		Output:     "stderr",
		AddSource:  false,
		TimeFormat: time.RFC3339,
	}
}

// NewLogger creates a new zerolog logger based on configuration.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	var output io.Writer

	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stderr
	}

	// Configure time format
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	} else {
		zerolog.TimeFieldFormat = time.RFC3339
	}

	// Use console writer for pretty output in development
	if strings.ToLower(cfg.Format) == "console" || strings.ToLower(cfg.Format) == "pretty" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: zerolog.TimeFieldFormat,
		}
	}

	// Create logger with context
	logger := zerolog.New(output).With().Timestamp()

	// Add caller information if configured
	if cfg.AddSource {
		logger = logger.Caller()
	}

	// Build the final logger
	log := logger.Logger()

	// Set log level
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)
	log = log.Level(level)

	return log
}

// parseLevel converts a string log level to zerolog.Level.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithToolContext adds MCP tool call fields to a logger.
func WithToolContext(logger zerolog.Logger, tool, requestID string) zerolog.Logger {
	return logger.With().
		Str("tool", tool).
		Str("request_id", requestID).
		Logger()
}

// WithSessionContext adds history session fields to a logger.
func WithSessionContext(logger zerolog.Logger, webEnv string, steps int) zerolog.Logger {
	return logger.With().
		Str("web_env", webEnv).
		Int("pipeline_steps", steps).
		Logger()
}

// WithQueryContext adds search query fields to a logger.
func WithQueryContext(logger zerolog.Logger, database, query string) zerolog.Logger {
	return logger.With().
		Str("database", database).
		Str("query", query).
		Logger()
}
