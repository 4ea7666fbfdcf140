// Package logger configures log/slog for spec2client.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options selects the handler installed by Setup.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	Writer io.Writer
}

// Setup installs a text or JSON handler as the default logger and returns
// it. Logs go to stderr unless Writer is set, keeping stdout free for
// generated code.
func Setup(opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	hopts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "text":
		handler = slog.NewTextHandler(w, hopts)
	case "json":
		handler = slog.NewJSONHandler(w, hopts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", opts.Format)
	}

	l := slog.New(NewContextHandler(handler))
	slog.SetDefault(l)
	return l, nil
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level %q", s)
	}
}

// ContextHandler adds the LogFields carried by the context to every record.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	fields := GetLogFields(ctx)
	if fields.RunID != "" {
		r.AddAttrs(slog.String("run_id", fields.RunID))
	}
	if fields.Spec != "" {
		r.AddAttrs(slog.String("spec", fields.Spec))
	}
	if fields.Component != "" {
		r.AddAttrs(slog.String("component", fields.Component))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name)}
}

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields are attached to every log record emitted with the context.
type LogFields struct {
	RunID     string // one generation run
	Spec      string // specification location
	Component string
}

// WithLogFields enriches ctx. Non-empty values replace existing ones.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	merged := GetLogFields(ctx)
	if fields.RunID != "" {
		merged.RunID = fields.RunID
	}
	if fields.Spec != "" {
		merged.Spec = fields.Spec
	}
	if fields.Component != "" {
		merged.Component = fields.Component
	}
	return context.WithValue(ctx, logFieldsKey, merged)
}

func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}
