package logging

import (
	"context"
	"errors"
	"log/slog"
)

// SessionGroup is the group live session attributes are logged under.
const SessionGroup = "session"

// ContextProvider returns the live attributes stamped on every record.
type ContextProvider func() []slog.Attr

// Fanout delivers each record to every sink that accepts its level. A
// failing sink does not stop delivery to the rest; the failures are joined.
type Fanout struct {
	sinks []slog.Handler
}

// NewFanout drops nil sinks.
func NewFanout(sinks ...slog.Handler) *Fanout {
	f := &Fanout{sinks: make([]slog.Handler, 0, len(sinks))}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

func (f *Fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range f.sinks {
		if s.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *Fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, s := range f.sinks {
		if !s.Enabled(ctx, r.Level) {
			continue
		}
		if err := s.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(s slog.Handler) slog.Handler { return s.WithAttrs(attrs) })
}

func (f *Fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	return f.each(func(s slog.Handler) slog.Handler { return s.WithGroup(name) })
}

func (f *Fanout) each(fn func(slog.Handler) slog.Handler) *Fanout {
	out := &Fanout{sinks: make([]slog.Handler, len(f.sinks))}
	for i, s := range f.sinks {
		out.sinks[i] = fn(s)
	}
	return out
}

// sessionHandler appends the provider's attributes, grouped under
// SessionGroup, to every record it lets through.
type sessionHandler struct {
	next     slog.Handler
	provider ContextProvider
}

func withSession(next slog.Handler, provider ContextProvider) slog.Handler {
	if provider == nil {
		return next
	}
	return &sessionHandler{next: next, provider: provider}
}

func (h *sessionHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *sessionHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := h.provider(); len(attrs) > 0 {
		r.AddAttrs(slog.Attr{Key: SessionGroup, Value: slog.GroupValue(attrs...)})
	}
	return h.next.Handle(ctx, r)
}

func (h *sessionHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &sessionHandler{next: h.next.WithAttrs(attrs), provider: h.provider}
}

func (h *sessionHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &sessionHandler{next: h.next.WithGroup(name), provider: h.provider}
}
