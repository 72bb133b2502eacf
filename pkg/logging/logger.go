package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects the level and handler format of the process logger.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // text or json
}

// ParseLevel maps a level name to a slog level. Unknown names fall back to info.
func ParseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// InitLogger builds the process logger, installs it as the slog default and returns it.
func InitLogger(cfg Config) *slog.Logger {
	return initLogger(os.Stdout, cfg)
}

func initLogger(w io.Writer, cfg Config) *slog.Logger {
	level, levelOK := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	formatOK := true
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		opts.AddSource = true
		handler = slog.NewJSONHandler(w, opts)
	case "text", "":
		handler = slog.NewTextHandler(w, opts)
	default:
		formatOK = false
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	if !levelOK {
		logger.Warn("invalid log level specified, defaulting to INFO", "specified_level", cfg.Level)
	}
	if !formatOK {
		logger.Warn("invalid log format specified, defaulting to text", "specified_format", cfg.Format)
	}
	return logger
}

// NewComponentLogger creates a component-specific logger with context.
// It adds the component name to all log messages for better traceability.
func NewComponentLogger(base *slog.Logger, component string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With(
		slog.String("component", component),
	)
}
