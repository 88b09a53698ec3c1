package log

import "context"

type ctxKey struct{}

// WithContext returns a child of ctx carrying l.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the request-scoped Logger, or Nop.
func FromContext(ctx context.Context) Logger { return FromContextOr(ctx, nil) }

// FromContextOr prefers the request-scoped Logger and falls back to the one
// a component was built with.
func FromContextOr(ctx context.Context, fallback Logger) Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(Logger); ok && l != nil {
			return l
		}
	}
	if fallback != nil {
		return fallback
	}
	return Nop()
}
