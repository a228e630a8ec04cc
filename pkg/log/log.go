// Package log carries a request-scoped slog.Logger through a context.
package log

import (
	"context"
	"log/slog"
	"os"
)

var (
	level         slog.LevelVar
	defaultLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     &level,
	}))
)

func init() {
	level.Set(slog.LevelInfo)
}

type ctxKey struct{}

// Ctx returns the logger stored in ctx, or the process-wide logger.
func Ctx(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return defaultLogger
}

// With returns a copy of ctx carrying logger.
func With(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// WithAttrs returns a copy of ctx whose logger has args appended to every
// record.
func WithAttrs(ctx context.Context, args ...any) context.Context {
	return With(ctx, Ctx(ctx).With(args...))
}

// SetLevel changes the level of the process-wide logger.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// Default returns the process-wide logger.
func Default() *slog.Logger {
	return defaultLogger
}
