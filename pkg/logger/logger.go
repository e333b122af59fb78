// Package logger configures slog for the pipeline binaries and carries the
// job id through contexts so every stage logs it.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type jobKey struct{}

// Setup installs a stderr logger as the slog default. Stdout is left to
// command output.
func Setup(level, format string) {
	slog.SetDefault(New(os.Stderr, level, format))
}

// New builds a logger writing to w. format is "json" or "text"; unknown
// levels fall back to info.
func New(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobKey{}, jobID)
}

// FromContext returns the default logger, tagged with job_id when ctx
// carries one.
func FromContext(ctx context.Context) *slog.Logger {
	if id, ok := ctx.Value(jobKey{}).(string); ok && id != "" {
		return slog.Default().With("job_id", id)
	}
	return slog.Default()
}
