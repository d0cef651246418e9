package utility

import (
	"errors"
	"log/slog"
	"math"

	"github.com/talgya/decider/internal/overlay"
)

// Registration and restore errors. None of them leave the decider in a
// modified state.
var (
	ErrInvalidID      = errors.New("utility: action id is the zero value")
	ErrDuplicateID    = errors.New("utility: action id already registered")
	ErrNoActiveAction = errors.New("utility: snapshot has no active action")
	ErrUnknownAction  = errors.New("utility: snapshot references an unknown action")
)

// NoTarget is the target type of a contextless (global) decider.
type NoTarget struct{}

// ChangeFunc is notified when the active action changes. prev is nil on the
// first selection and after a restore.
type ChangeFunc[T any, K comparable] func(prev, next *Action[T, K])

// Option configures a Decider.
type Option func(*settings)

type settings struct {
	logger       *slog.Logger
	overlay      *overlay.Registry
	overlayLabel string
	overlayMode  overlay.DisplayMode
}

// WithLogger sets the logger used for configuration warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithOverlay registers the decider's debug text with an overlay registry.
// DisplayNone skips registration.
func WithOverlay(reg *overlay.Registry, label string, mode overlay.DisplayMode) Option {
	return func(s *settings) {
		s.overlay = reg
		s.overlayLabel = label
		s.overlayMode = mode
	}
}

// Decider owns the actions of one agent and keeps exactly one of them active.
// It is not safe for concurrent use; confine each decider to one goroutine.
type Decider[T any, K comparable] struct {
	target  T
	actions []*Action[T, K]
	index   map[K]*Action[T, K]

	active     *Action[T, K]
	considered *Action[T, K] // valid only while scoring
	current    *Action[T, K] // valid while scoring and during callback dispatch
	forced     *Action[T, K]

	clock     float64 // sum of every dt passed to Update
	changedAt float64

	onChange []ChangeFunc[T, K]
	logger   *slog.Logger
	entry    *overlay.Entry
}

// New creates a decider for target.
func New[T any, K comparable](target T, opts ...Option) *Decider[T, K] {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	d := &Decider[T, K]{
		target: target,
		index:  make(map[K]*Action[T, K]),
		logger: s.logger,
	}
	if s.overlay != nil && s.overlayMode != overlay.DisplayNone {
		d.entry = s.overlay.Register(s.overlayLabel, d.WriteDebug, s.overlayMode)
	}
	return d
}

// NewGlobal creates a decider with no target.
func NewGlobal[K comparable](opts ...Option) *Decider[NoTarget, K] {
	return New[NoTarget, K](NoTarget{}, opts...)
}

// AddAction registers a new action. Callbacks may be nil. The zero id and
// ids already in use are rejected with a logged warning.
func (d *Decider[T, K]) AddAction(id K, onStart, onUpdate, onStop Callback[T], considerations ...*Consideration[T]) (*Action[T, K], error) {
	if !SomeID(id).Valid() {
		d.logger.Warn("rejected action registration", "id", id, "error", ErrInvalidID)
		return nil, ErrInvalidID
	}
	if _, ok := d.index[id]; ok {
		d.logger.Warn("rejected action registration", "id", id, "error", ErrDuplicateID)
		return nil, ErrDuplicateID
	}

	a := newAction(d, id)
	a.onStart, a.onUpdate, a.onStop = onStart, onUpdate, onStop
	a.Consider(considerations...)

	d.actions = append(d.actions, a)
	d.index[id] = a
	return a, nil
}

// ForceAction selects the action with the given id on the next Update,
// bypassing consideration scoring for that update only.
func (d *Decider[T, K]) ForceAction(id K) bool {
	a, ok := d.index[id]
	if !ok {
		d.logger.Warn("cannot force unknown action", "id", id)
		return false
	}
	d.forced = a
	d.logger.Debug("action forced", "id", id)
	return true
}

// ForceHandle is ForceAction for an action handle. Actions owned by another
// decider are refused.
func (d *Decider[T, K]) ForceHandle(a *Action[T, K]) bool {
	if a == nil || a.owner != d {
		d.logger.Warn("cannot force action not owned by this decider")
		return false
	}
	d.forced = a
	d.logger.Debug("action forced", "id", a.id)
	return true
}

// OnActionChange subscribes fn to active action changes. Subscribers are
// called in subscription order.
func (d *Decider[T, K]) OnActionChange(fn ChangeFunc[T, K]) {
	if fn != nil {
		d.onChange = append(d.onChange, fn)
	}
}

// Update scores the actions, switches the active action if a different one
// wins, and runs the active action's update callback.
//
// Panics raised by considerations or callbacks are not recovered; the
// decider is left as it was at the point of failure.
func (d *Decider[T, K]) Update(dt float64) {
	d.clock += dt
	if len(d.actions) == 0 {
		return
	}

	var chosen *Action[T, K]
	if d.forced != nil {
		chosen = d.forced
		d.forced = nil
		for _, a := range d.actions {
			if a == chosen {
				a.lastScore = a.mapScore(1)
			} else {
				a.lastScore = a.mapScore(0)
			}
		}
	} else {
		for _, a := range d.actions {
			if !a.considered {
				continue
			}
			d.current, d.considered = a, a
			a.Calculate(d.target, dt)
		}
		d.current, d.considered = nil, nil
		chosen = d.best()
	}

	d.current = d.active
	if chosen != nil && chosen != d.active {
		d.changedAt = d.clock
		prev := d.active
		if prev != nil && prev.onStop != nil {
			prev.onStop(d.target)
		}
		d.active, d.current = chosen, chosen
		d.notify(prev, chosen)
		if chosen.onStart != nil {
			chosen.onStart(d.target)
		}
	}
	if d.active != nil && d.active.onUpdate != nil {
		d.active.onUpdate(d.target)
	}
	d.current = nil
}

// best returns the first action whose score strictly exceeds every earlier one.
func (d *Decider[T, K]) best() *Action[T, K] {
	var chosen *Action[T, K]
	top := math.Inf(-1)
	for _, a := range d.actions {
		if a.lastScore > top {
			chosen, top = a, a.lastScore
		}
	}
	return chosen
}

func (d *Decider[T, K]) notify(prev, next *Action[T, K]) {
	for _, fn := range d.onChange {
		fn(prev, next)
	}
}

// Active returns the active action, or nil before the first selection.
func (d *Decider[T, K]) Active() *Action[T, K] { return d.active }

// Considered returns the action being scored. Nil outside of scoring.
func (d *Decider[T, K]) Considered() *Action[T, K] { return d.considered }

// Current returns the action being scored or whose callback is running.
// Nil outside of Update and Restore.
func (d *Decider[T, K]) Current() *Action[T, K] { return d.current }

// IsConsideringActive reports whether the action being scored is the active one.
func (d *Decider[T, K]) IsConsideringActive() bool {
	return d.considered != nil && d.considered == d.active
}

// ActiveAge returns the time elapsed since the active action was selected.
func (d *Decider[T, K]) ActiveAge() float64 { return d.clock - d.changedAt }

// Elapsed returns the total time passed to Update.
func (d *Decider[T, K]) Elapsed() float64 { return d.clock }

// Actions returns the registered actions in registration order.
func (d *Decider[T, K]) Actions() []*Action[T, K] { return d.actions }

// Lookup returns the action registered under id.
func (d *Decider[T, K]) Lookup(id K) (*Action[T, K], bool) {
	a, ok := d.index[id]
	return a, ok
}

// Target returns the decider's target.
func (d *Decider[T, K]) Target() T { return d.target }

// Len returns the number of registered actions.
func (d *Decider[T, K]) Len() int { return len(d.actions) }

// Close removes the decider from its debug overlay, if any.
func (d *Decider[T, K]) Close() {
	if d.entry != nil {
		d.entry.Unregister()
		d.entry = nil
	}
}
