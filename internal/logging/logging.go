// Package logging provides small dependency-injection helpers on top of
// log/slog. Every component in this repo takes a *slog.Logger as a
// constructor argument and scopes it once with logging.Default +
// .With(...); nothing calls slog.SetDefault. Global handler
// configuration (format, destination, level) belongs only in the three
// cmd/ main packages.
//
// Logging stays sparse: lifecycle boundaries (registered, reaped,
// committed, rolled back) are log points; tight loops (the byte copy in
// retrieve_chunk, the per-candidate scoring loop) are not.
package logging

import (
	"context"
	"log/slog"
	"maps"
	"sync/atomic"
)

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Discard returns a logger that throws away everything it's given. Use
// it as the fallback when a caller passes a nil logger.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// Default returns logger if non-nil, otherwise a discard logger.
//
//	func New(logger *slog.Logger) *Thing {
//	    logger = logging.Default(logger)
//	    return &Thing{logger: logger.With("role", "storageserver")}
//	}
func Default(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return Discard()
}

// RoleFilterHandler wraps a slog.Handler and filters records by the
// "role" attribute each of this repo's three processes (coordinator,
// storageserver, client) attaches to its base logger. A per-role minimum
// level overrides the handler's default, so an operator can turn on
// debug logging for just the coordinator without drowning in
// storage-server or client-library chatter.
type RoleFilterHandler struct {
	next         slog.Handler
	defaultLevel slog.Level

	// preAttrs holds attributes added via WithAttrs before any group
	// context; checked for "role" in Handle().
	preAttrs []slog.Attr

	// levels is a pointer shared across handlers derived via
	// WithAttrs/WithGroup, so SetLevel affects all of them. Copy-on-write:
	// writes build a new map, reads take a lock-free snapshot.
	levels *atomic.Pointer[map[string]slog.Level]
}

// NewRoleFilterHandler builds a filtering handler around next.
func NewRoleFilterHandler(next slog.Handler, defaultLevel slog.Level) *RoleFilterHandler {
	p := &atomic.Pointer[map[string]slog.Level]{}
	empty := make(map[string]slog.Level)
	p.Store(&empty)
	return &RoleFilterHandler{next: next, defaultLevel: defaultLevel, levels: p}
}

// Enabled defers to Handle, which needs the record's attributes before
// it can decide.
func (h *RoleFilterHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *RoleFilterHandler) Handle(ctx context.Context, r slog.Record) error {
	levels := *h.levels.Load()
	role := h.findRole(r)
	min := h.defaultLevel
	if lvl, ok := levels[role]; ok {
		min = lvl
	}
	if r.Level < min {
		return nil
	}
	if !h.next.Enabled(ctx, r.Level) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *RoleFilterHandler) findRole(r slog.Record) string {
	for _, a := range h.preAttrs {
		if a.Key == "role" {
			if s, ok := a.Value.Resolve().Any().(string); ok {
				return s
			}
		}
	}
	var role string
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "role" {
			if s, ok := a.Value.Resolve().Any().(string); ok {
				role = s
				return false
			}
		}
		return true
	})
	return role
}

func (h *RoleFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	merged := make([]slog.Attr, len(h.preAttrs), len(h.preAttrs)+len(attrs))
	copy(merged, h.preAttrs)
	merged = append(merged, attrs...)
	return &RoleFilterHandler{
		next:         h.next.WithAttrs(attrs),
		defaultLevel: h.defaultLevel,
		preAttrs:     merged,
		levels:       h.levels,
	}
}

func (h *RoleFilterHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &RoleFilterHandler{
		next:         h.next.WithGroup(name),
		defaultLevel: h.defaultLevel,
		preAttrs:     h.preAttrs,
		levels:       h.levels,
	}
}

// SetLevel overrides the minimum level for one role at runtime.
func (h *RoleFilterHandler) SetLevel(role string, level slog.Level) {
	old := *h.levels.Load()
	next := make(map[string]slog.Level, len(old)+1)
	maps.Copy(next, old)
	next[role] = level
	h.levels.Store(&next)
}
