package utility

import "fmt"

// ScoreFunc scores a target. Scores are expected in [0,1] but are not clamped.
type ScoreFunc[T any] func(target T) float64

// Consideration is a single named scoring signal contributing to an Action.
type Consideration[T any] struct {
	ID     string // Display name, not required to be unique
	Method Method // MethodStandard defers to the owning action

	fn        ScoreFunc[T]
	lastScore float64
	evaluated bool
}

// Consider creates a consideration that uses the action's standard method.
func Consider[T any](id string, fn ScoreFunc[T]) *Consideration[T] {
	return &Consideration[T]{ID: id, fn: fn}
}

// ConsiderWith creates a consideration with an explicit aggregation method.
func ConsiderWith[T any](id string, fn ScoreFunc[T], method Method) *Consideration[T] {
	return &Consideration[T]{ID: id, Method: method, fn: fn}
}

// Evaluate runs the scoring function and caches the result.
// Panics from the scoring function propagate to the caller.
func (c *Consideration[T]) Evaluate(target T) float64 {
	c.lastScore = c.fn(target)
	c.evaluated = true
	return c.lastScore
}

// LastScore returns the most recent score. Only meaningful once Evaluated is true.
func (c *Consideration[T]) LastScore() float64 {
	return c.lastScore
}

// Evaluated reports whether the consideration has been scored at least once
// (or had its score restored from a snapshot).
func (c *Consideration[T]) Evaluated() bool {
	return c.evaluated
}

func (c *Consideration[T]) restore(score float64) {
	c.lastScore = score
	c.evaluated = true
}

func (c *Consideration[T]) String() string {
	s := fmt.Sprintf("%.2f", c.lastScore)
	if c.Method != MethodStandard {
		s += " [" + c.Method.ShortString() + "]"
	}
	if c.ID != "" {
		s += " - " + c.ID
	}
	return s
}
