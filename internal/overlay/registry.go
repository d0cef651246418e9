// Package overlay keeps track of debug views that want to be drawn by a host.
// The registry never draws anything itself; it stores render callbacks and
// their display modes and hands them to whoever renders.
package overlay

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// DisplayMode controls how much a debug view shows.
type DisplayMode uint8

const (
	DisplayNone      DisplayMode = iota // Hidden; the entry is pruned on the next render
	DisplayFull                         // Everything
	DisplayMinimized                    // Summary lines only
)

func (m DisplayMode) String() string {
	switch m {
	case DisplayFull:
		return "full"
	case DisplayMinimized:
		return "minimized"
	default:
		return "none"
	}
}

// ParseDisplayMode maps "none", "full", or "minimized" (case-insensitive) to a mode.
func ParseDisplayMode(s string) (DisplayMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return DisplayNone, nil
	case "full":
		return DisplayFull, nil
	case "minimized", "min":
		return DisplayMinimized, nil
	default:
		return DisplayNone, fmt.Errorf("unknown display mode %q", s)
	}
}

// RenderFunc writes a debug view in the given mode.
type RenderFunc func(w io.Writer, mode DisplayMode) error

// Registry holds registered debug views. It is safe for concurrent use,
// but render callbacks run on the caller's goroutine and must be
// synchronized with whatever state they read.
type Registry struct {
	mu      sync.Mutex
	entries []*Entry
	closed  bool
}

// Entry is a single registered debug view.
type Entry struct {
	reg    *Registry
	label  string
	render RenderFunc
	mode   DisplayMode
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a debug view. Returns nil if the registry is closed or
// render is nil.
func (r *Registry) Register(label string, render RenderFunc, mode DisplayMode) *Entry {
	if render == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	e := &Entry{reg: r, label: label, render: render, mode: mode}
	r.entries = append(r.entries, e)
	return e
}

// Label returns the entry's label.
func (e *Entry) Label() string { return e.label }

// Mode returns the entry's display mode.
func (e *Entry) Mode() DisplayMode {
	e.reg.mu.Lock()
	defer e.reg.mu.Unlock()
	return e.mode
}

// SetMode changes the entry's display mode.
func (e *Entry) SetMode(m DisplayMode) {
	e.reg.mu.Lock()
	defer e.reg.mu.Unlock()
	e.mode = m
}

// Unregister removes the entry. Safe to call more than once.
func (e *Entry) Unregister() {
	r := e.reg
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, other := range r.entries {
		if other == e {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

// Entries returns the registered entries in registration order.
func (r *Registry) Entries() []*Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of registered entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Render prunes hidden entries, then writes a header line and the view of
// every remaining entry in registration order.
func (r *Registry) Render(w io.Writer) error {
	r.mu.Lock()
	live := r.entries[:0]
	for _, e := range r.entries {
		if e.mode != DisplayNone {
			live = append(live, e)
		}
	}
	for i := len(live); i < len(r.entries); i++ {
		r.entries[i] = nil
	}
	r.entries = live
	views := make([]Entry, len(live))
	for i, e := range live {
		views[i] = *e
	}
	r.mu.Unlock()

	for _, v := range views {
		if _, err := fmt.Fprintf(w, "== %s (%s)\n", v.label, v.mode); err != nil {
			return err
		}
		if err := v.render(w, v.mode); err != nil {
			return fmt.Errorf("render %s: %w", v.label, err)
		}
	}
	return nil
}

// Close drops every entry. Later registrations are refused.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
	r.closed = true
}
