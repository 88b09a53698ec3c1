// Package log is the context-first structured logger used across the
// service. It sits on log/slog and adds trace correlation, stacks for
// error-level records, error-chain fields and redaction of secret-bearing
// keys.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

type Logger interface {
	With(kv ...any) Logger

	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, err error, msg string, kv ...any)

	Sync() error
}

type Options struct {
	// identity stamped on every record; empty values are left out
	App       string
	Component string
	Version   string
	Commit    string
	BuildID   string

	Level slog.Level
	// StackLevel is the lowest level that gets a "stack" field.
	// Zero means error.
	StackLevel slog.Level
	JSON       bool
	// ErrorLinks caps the per-link error_links field on Error records.
	// Zero leaves the field out.
	ErrorLinks int

	// Writer defaults to stdout.
	Writer io.Writer
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// ParseLevel accepts debug, info, warn and error in any case.
func ParseLevel(s string) (slog.Level, error) {
	if l, ok := levels[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l, nil
	}
	return 0, fmt.Errorf("unknown log level %q (want debug, info, warn or error)", s)
}
