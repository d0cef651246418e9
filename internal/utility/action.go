package utility

import (
	"math/rand"
)

// Callback is invoked with the decider's target on start, update, or stop.
type Callback[T any] func(target T)

// Action is a candidate behavior scored by its Considerations.
// Actions are created and exclusively owned by a Decider.
//
// The builder methods return the action so configuration can be chained:
//
//	a.OnUpdate(walk).ScoreRange(0, 0.8).Every(0.5)
type Action[T any, K comparable] struct {
	id       K
	owner    *Decider[T, K]
	userData any

	onStart  Callback[T]
	onUpdate Callback[T]
	onStop   Callback[T]

	considerations []*Consideration[T]
	min, max       float64
	standard       Method
	period         float64 // 0 = recalculate every update
	timer          float64 // time accumulated toward the next recalculation
	considered     bool

	lastScore float64
}

func newAction[T any, K comparable](owner *Decider[T, K], id K) *Action[T, K] {
	return &Action[T, K]{
		id:         id,
		owner:      owner,
		max:        1,
		standard:   MethodMultiply,
		considered: true,
	}
}

// OnStart sets the callback invoked when this action becomes active.
func (a *Action[T, K]) OnStart(fn Callback[T]) *Action[T, K] {
	a.onStart = fn
	return a
}

// OnUpdate sets the callback invoked on every update while this action is active.
func (a *Action[T, K]) OnUpdate(fn Callback[T]) *Action[T, K] {
	a.onUpdate = fn
	return a
}

// OnStop sets the callback invoked when this action stops being active.
func (a *Action[T, K]) OnStop(fn Callback[T]) *Action[T, K] {
	a.onStop = fn
	return a
}

// Consider appends considerations. Order is evaluation order; the first
// consideration seeds the aggregate.
func (a *Action[T, K]) Consider(cs ...*Consideration[T]) *Action[T, K] {
	for _, c := range cs {
		if c != nil {
			a.considerations = append(a.considerations, c)
		}
	}
	return a
}

// ScoreRange sets the output range the aggregate is mapped into and remaps
// the cached score from the old range to the new one. A degenerate old range
// collapses the cached score to the new minimum.
func (a *Action[T, K]) ScoreRange(min, max float64) *Action[T, K] {
	if span := a.max - a.min; span != 0 {
		a.lastScore = min + (max-min)*(a.lastScore-a.min)/span
	} else {
		a.lastScore = min
	}
	a.min, a.max = min, max
	return a
}

// Standard sets the method used by considerations tagged MethodStandard.
func (a *Action[T, K]) Standard(m Method) *Action[T, K] {
	a.standard = m
	return a
}

// Every sets the re-evaluation period and restarts the countdown.
// Negative periods are treated as 0.
func (a *Action[T, K]) Every(period float64) *Action[T, K] {
	if period < 0 {
		period = 0
	}
	a.period = period
	a.timer = 0
	return a
}

// EveryStaggered sets the re-evaluation period with a random head start in
// [0, period), so many actions sharing a period spread their work over time.
func (a *Action[T, K]) EveryStaggered(period float64, rng *rand.Rand) *Action[T, K] {
	a.Every(period)
	if rng != nil {
		a.timer = rng.Float64() * a.period
	}
	return a
}

// WithUserData attaches an opaque payload.
func (a *Action[T, K]) WithUserData(v any) *Action[T, K] {
	a.userData = v
	return a
}

// ID returns the action's identifier.
func (a *Action[T, K]) ID() K { return a.id }

// Score returns the last calculated score, already mapped into the output range.
func (a *Action[T, K]) Score() float64 { return a.lastScore }

// Range returns the output score range.
func (a *Action[T, K]) Range() (min, max float64) { return a.min, a.max }

// StandardMethod returns the method used by considerations tagged MethodStandard.
func (a *Action[T, K]) StandardMethod() Method { return a.standard }

// Period returns the re-evaluation period.
func (a *Action[T, K]) Period() float64 { return a.period }

// Considerations returns the action's considerations in evaluation order.
func (a *Action[T, K]) Considerations() []*Consideration[T] { return a.considerations }

// UserData returns the opaque payload.
func (a *Action[T, K]) UserData() any { return a.userData }

// Considered reports whether the action is recalculated during updates.
func (a *Action[T, K]) Considered() bool { return a.considered }

// SetConsidered enables or disables recalculation. A disabled action keeps
// its cached score and can still be selected.
func (a *Action[T, K]) SetConsidered(v bool) { a.considered = v }

// RemainingCalculationTime returns the time left until the next recalculation.
func (a *Action[T, K]) RemainingCalculationTime() float64 {
	return a.period - a.timer
}

// mapScore maps a raw aggregate into the output range.
func (a *Action[T, K]) mapScore(raw float64) float64 {
	return a.min + (a.max-a.min)*raw
}

// Calculate recomputes the action's score from its considerations.
// Nothing happens while the action is disabled or its period has not elapsed;
// the previous score stays authoritative.
func (a *Action[T, K]) Calculate(target T, dt float64) {
	if !a.considered {
		return
	}
	a.timer += dt
	if a.timer < a.period {
		return
	}
	// Reset rather than subtract: overshoot is dropped, not carried.
	a.timer = 0

	n := len(a.considerations)
	switch n {
	case 0:
		a.lastScore = a.mapScore(0)
	case 1:
		a.lastScore = a.mapScore(a.considerations[0].Evaluate(target))
	default:
		first := a.considerations[0]
		acc := first.Evaluate(target)
		if effective(first.Method, a.standard) == MethodAverage {
			acc /= float64(n)
		}
		for _, c := range a.considerations[1:] {
			acc = fold(acc, c.Evaluate(target), effective(c.Method, a.standard), n)
		}
		a.lastScore = a.mapScore(acc)
	}
}
