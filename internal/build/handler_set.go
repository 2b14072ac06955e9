package build

import (
	"context"
	"log/slog"

	btclogv1 "github.com/btcsuite/btclog"
	"github.com/btcsuite/btclog/v2"
)

// HandlerSet fans a single log record out to several btclog handlers, so
// the daemon can write the same stream to the console and to a rotated
// log file.
type HandlerSet struct {
	level    btclogv1.Level
	handlers []btclog.Handler
}

// Ensure HandlerSet implements btclog.Handler at compile time.
var _ btclog.Handler = (*HandlerSet)(nil)

// NewHandlerSet builds a HandlerSet at the Info level.
func NewHandlerSet(handlers ...btclog.Handler) *HandlerSet {
	h := &HandlerSet{handlers: handlers}
	h.SetLevel(btclogv1.LevelInfo)

	return h
}

// Enabled reports whether every member handler accepts the level.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, level) {
			return false
		}
	}

	return true
}

// Handle forwards the record to each member handler, stopping at the first
// failure.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range h.handlers {
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			return err
		}
	}

	return nil
}

// WithAttrs returns a handler set whose members carry the extra attributes.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(func(handler btclog.Handler) slog.Handler {
		return handler.WithAttrs(attrs)
	})
}

// WithGroup returns a handler set whose members open the named group.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) WithGroup(name string) slog.Handler {
	return h.derive(func(handler btclog.Handler) slog.Handler {
		return handler.WithGroup(name)
	})
}

// SubSystem tags every member handler with the given sub-system.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) SubSystem(tag string) btclog.Handler {
	return h.mapHandlers(func(handler btclog.Handler) btclog.Handler {
		return handler.SubSystem(tag)
	})
}

// WithPrefix prefixes every message written through the set.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) WithPrefix(prefix string) btclog.Handler {
	return h.mapHandlers(func(handler btclog.Handler) btclog.Handler {
		return handler.WithPrefix(prefix)
	})
}

// SetLevel changes the level of every member handler.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) SetLevel(level btclogv1.Level) {
	for _, handler := range h.handlers {
		handler.SetLevel(level)
	}
	h.level = level
}

// Level returns the level last applied to the set.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) Level() btclogv1.Level {
	return h.level
}

func (h *HandlerSet) mapHandlers(
	f func(btclog.Handler) btclog.Handler) *HandlerSet {

	mapped := &HandlerSet{
		level:    h.level,
		handlers: make([]btclog.Handler, len(h.handlers)),
	}
	for i, handler := range h.handlers {
		mapped.handlers[i] = f(handler)
	}

	return mapped
}

func (h *HandlerSet) derive(f func(btclog.Handler) slog.Handler) slog.Handler {
	derived := make(slogFanout, len(h.handlers))
	for i, handler := range h.handlers {
		derived[i] = f(handler)
	}

	return derived
}

// slogFanout is the plain slog.Handler produced once attributes or groups
// have been attached, since those derivations leave the btclog interface.
type slogFanout []slog.Handler

func (s slogFanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range s {
		if !handler.Enabled(ctx, level) {
			return false
		}
	}

	return true
}

func (s slogFanout) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range s {
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			return err
		}
	}

	return nil
}

func (s slogFanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := make(slogFanout, len(s))
	for i, handler := range s {
		derived[i] = handler.WithAttrs(attrs)
	}

	return derived
}

func (s slogFanout) WithGroup(name string) slog.Handler {
	derived := make(slogFanout, len(s))
	for i, handler := range s {
		derived[i] = handler.WithGroup(name)
	}

	return derived
}
