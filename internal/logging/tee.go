package logging

import (
	"context"
	"log/slog"
	"slices"
)

// teeHandler hands each record to every member whose level admits it, such
// as the console handler, the JSON file, and a per-job log.
type teeHandler []slog.Handler

// Tee combines handlers. Nil members are dropped; a single survivor is
// returned as is and none yields a NoopHandler.
func Tee(handlers ...slog.Handler) slog.Handler {
	members := slices.DeleteFunc(slices.Clone(handlers), func(h slog.Handler) bool { return h == nil })
	switch len(members) {
	case 0:
		return NoopHandler{}
	case 1:
		return members[0]
	default:
		return teeHandler(members)
	}
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return slices.ContainsFunc(t, func(h slog.Handler) bool { return h.Enabled(ctx, level) })
}

func (t teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var first error
	for _, h := range t {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		// Handlers may add attrs to the record they get.
		if err := h.Handle(ctx, record.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return t.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (t teeHandler) each(fn func(slog.Handler) slog.Handler) teeHandler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = fn(h)
	}
	return out
}
