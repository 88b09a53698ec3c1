package log

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type logger struct {
	h     slog.Handler
	links int
}

// New builds the slog-backed Logger.
func New(opts Options) (Logger, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	if opts.StackLevel == 0 {
		opts.StackLevel = slog.LevelError
	}

	ho := &slog.HandlerOptions{Level: opts.Level, AddSource: true, ReplaceAttr: redactAttr}
	var h slog.Handler = slog.NewTextHandler(w, ho)
	if opts.JSON {
		h = slog.NewJSONHandler(w, ho)
	}
	h = stackHandler{Handler: traceHandler{h}, min: opts.StackLevel}

	identity := []slog.Attr{slog.String("app", opts.App)}
	for _, f := range []struct{ k, v string }{
		{"component", opts.Component},
		{"version", opts.Version},
		{"commit", opts.Commit},
		{"build_id", opts.BuildID},
	} {
		if f.v != "" {
			identity = append(identity, slog.String(f.k, f.v))
		}
	}
	return &logger{h: h.WithAttrs(identity), links: opts.ErrorLinks}, nil
}

// attrs pairs kv into attributes, dropping non-string keys and a dangling
// final key.
func attrs(kv []any) []slog.Attr {
	out := make([]slog.Attr, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			out = append(out, slog.Any(k, kv[i+1]))
		}
	}
	return out
}

func (l *logger) With(kv ...any) Logger {
	a := attrs(kv)
	if len(a) == 0 {
		return l
	}
	return &logger{h: l.h.WithAttrs(a), links: l.links}
}

func (l *logger) Debug(ctx context.Context, msg string, kv ...any) {
	l.log(ctx, slog.LevelDebug, msg, kv)
}

func (l *logger) Info(ctx context.Context, msg string, kv ...any) {
	l.log(ctx, slog.LevelInfo, msg, kv)
}

func (l *logger) Warn(ctx context.Context, msg string, kv ...any) {
	l.log(ctx, slog.LevelWarn, msg, kv)
}

func (l *logger) Error(ctx context.Context, err error, msg string, kv ...any) {
	if err != nil {
		kv = append(kv, errorFields(err, l.links)...)
	}
	l.log(ctx, slog.LevelError, msg, kv)
}

func (l *logger) Sync() error { return nil }

func (l *logger) log(ctx context.Context, lvl slog.Level, msg string, kv []any) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.h.Enabled(ctx, lvl) {
		return
	}
	// skip Callers, log and the exported method
	var pc [1]uintptr
	runtime.Callers(3, pc[:])
	r := slog.NewRecord(time.Now(), lvl, msg, pc[0])
	r.AddAttrs(attrs(kv)...)
	_ = l.h.Handle(ctx, r)
}

// traceHandler stamps trace_id and span_id from the active span.
type traceHandler struct{ slog.Handler }

func (h traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h traceHandler) WithAttrs(a []slog.Attr) slog.Handler { return traceHandler{h.Handler.WithAttrs(a)} }
func (h traceHandler) WithGroup(n string) slog.Handler      { return traceHandler{h.Handler.WithGroup(n)} }

// stackHandler adds a "stack" field at or above min. The stack captured
// by xerrors is preferred over the logging call site.
type stackHandler struct {
	slog.Handler
	min slog.Level
}

func (h stackHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.min {
		var pcs []uintptr
		r.Attrs(func(a slog.Attr) bool {
			if a.Key != "err" {
				return true
			}
			if s, ok := a.Value.Any().(stackTracer); ok {
				pcs = s.StackPCs()
			}
			return false
		})
		if len(pcs) == 0 {
			pcs = make([]uintptr, 64)
			pcs = pcs[:runtime.Callers(3, pcs)]
		}
		r.AddAttrs(slog.String("stack", renderStack(pcs)))
	}
	return h.Handler.Handle(ctx, r)
}

func (h stackHandler) WithAttrs(a []slog.Attr) slog.Handler {
	return stackHandler{Handler: h.Handler.WithAttrs(a), min: h.min}
}

func (h stackHandler) WithGroup(n string) slog.Handler {
	return stackHandler{Handler: h.Handler.WithGroup(n), min: h.min}
}
