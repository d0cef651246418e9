package utility

import (
	"fmt"
	"io"

	"github.com/talgya/decider/internal/overlay"
)

// WriteDebug writes a text view of the decider: one line per action with its
// score, id, remaining recalculation time and standard method. The active
// action is marked with '*'. DisplayFull adds one line per consideration.
func (d *Decider[T, K]) WriteDebug(w io.Writer, mode overlay.DisplayMode) error {
	for _, a := range d.actions {
		mark := ' '
		if a == d.active {
			mark = '*'
		}
		line := fmt.Sprintf("%c %.2f %v", mark, a.lastScore, a.id)
		if a.period > 0 {
			line += fmt.Sprintf(" (%.2f)", a.RemainingCalculationTime())
		}
		line += " [" + a.standard.ShortString() + "]"
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
		if mode != overlay.DisplayFull {
			continue
		}
		for i, c := range a.considerations {
			if _, err := fmt.Fprintf(w, "    (%d) %s\n", i, c); err != nil {
				return err
			}
		}
	}
	return nil
}
