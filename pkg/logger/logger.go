package logger

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// New returns the service-wide JSON logger. Debug level is enabled only on
// local and dev environments.
func New(appEnv string) *slog.Logger {
	level := slog.LevelInfo
	if appEnv == "local" || appEnv == "dev" {
		level = slog.LevelDebug
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}

type ctxKey struct{}

// With attaches a logger to the context.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From returns the context's logger, or slog.Default() when none is attached.
func From(ctx context.Context) *slog.Logger {
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}

// ShutdownFlush drains buffered log output on shutdown. The JSON handler
// writes straight to stdout, so there is currently nothing to drain.
func ShutdownFlush(_ context.Context, _ time.Duration) error { return nil }
