// Package log provides the logging infrastructure shared by all serapeum
// components.
//
// Components receive a logger through their constructors rather than reading
// a package-level default; callers attach context with logger.With:
//
//	logger := log.New(log.Config{Level: slog.LevelInfo, JSON: true})
//	store := vector.New(pool, dim, logger.With("component", "vector"))
//
// Tests use NewNop() or NewWithWriter with a buffer to inspect output.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger aliases *slog.Logger so components depend on the standard type
// and keep full access to With, WithGroup and the slog ecosystem.
type Logger = *slog.Logger

// Config controls handler construction.
type Config struct {
	// Level is the minimum level emitted. Zero value is slog.LevelInfo.
	Level slog.Level

	// JSON selects the JSON handler instead of the text handler.
	JSON bool

	// AddSource annotates records with file:line of the call site.
	AddSource bool
}

// New returns a logger writing to stderr with the given configuration.
func New(cfg Config) Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter returns a logger writing to w. Used by tests to capture
// output and by the MCP command, which must keep stdout free for the
// protocol stream.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}
	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a configuration string to a slog.Level. Unknown
// values fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewNop returns a logger that discards everything. Test use only.
func NewNop() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
