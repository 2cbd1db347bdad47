// Package corelog configures the structured logger PowerMem components
// use for operational logging (ingest decisions, retention sweeps,
// sub-store migrations). It wraps zerolog with the defaults and level
// handling PowerMem needs, independent of any single component.
package corelog

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide structured logger. Components should prefer
// a component-scoped child via With() over logging through this value
// directly.
var Logger zerolog.Logger

func init() {
	Init("", "info")
}

// Init configures the global logger. If logPath is non-empty, logs are
// appended to that file instead of stdout; if opening it fails, logging
// falls back to stdout and the failure is reported on stderr. level
// accepts zerolog's level names ("debug", "info", "warn", "error");
// an unrecognized level defaults to info.
func Init(logPath string, level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	w := os.Stdout
	var out *os.File = w
	if logPath != "" {
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			out = f
		} else {
			fmt.Fprintf(os.Stderr, "corelog: cannot open log file %q: %v; logging to stdout\n", logPath, err)
			out = os.Stdout
		}
	}

	lvl := zerolog.InfoLevel
	if trimmed := strings.ToLower(strings.TrimSpace(level)); trimmed != "" {
		if parsed, err := zerolog.ParseLevel(trimmed); err == nil {
			lvl = parsed
		}
	}

	Logger = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the given component name,
// e.g. corelog.Component("retention") or corelog.Component("substore").
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}
