package logger

import (
	"io"
	"log/slog"
	"os"
)

// New returns a structured logger: JSON in production so log shippers can
// parse it, text elsewhere.
func New(environment string) *slog.Logger {
	return newWithWriter(os.Stdout, environment)
}

func newWithWriter(w io.Writer, environment string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler
	if environment == "production" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("service", "lifeline")
}
