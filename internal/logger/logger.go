// Package logger wraps zap with the level handling used by the booth
// server and its command-line tools.
package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// Logger holds the process-wide zap logger. Log starts as a no-op
// logger so callers may log before Init succeeds.
type Logger struct {
	Log *zap.Logger
}

// New returns a Logger whose Log field is a no-op logger.
func New() *Logger {
	return &Logger{Log: zap.NewNop()}
}

// Init replaces Log with a production JSON logger at the given level
// ("debug", "info", "warn", "error", upper case accepted).
func (l *Logger) Init(level string) error {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	zl, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	l.Log = zl
	return nil
}
