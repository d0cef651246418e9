package utility

// Snapshot is the persistable state of a decider: the active action, how
// long it has been active, and every cached score.
type Snapshot[K comparable] struct {
	Active    ID[K]            `json:"active"`
	ActiveAge float64          `json:"active_age"`
	Actions   []ActionState[K] `json:"actions"`
}

// ActionState holds one action's cached scores.
type ActionState[K comparable] struct {
	ID             K                    `json:"id"`
	Score          float64              `json:"score"`
	Considerations []ConsiderationState `json:"considerations,omitempty"`
}

// ConsiderationState holds one consideration's cached score.
type ConsiderationState struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Snapshot captures the decider's state.
func (d *Decider[T, K]) Snapshot() Snapshot[K] {
	s := Snapshot[K]{
		Actions: make([]ActionState[K], 0, len(d.actions)),
	}
	if d.active != nil {
		s.Active = SomeID(d.active.id)
		s.ActiveAge = d.ActiveAge()
	}
	for _, a := range d.actions {
		st := ActionState[K]{ID: a.id, Score: a.lastScore}
		for _, c := range a.considerations {
			st.Considerations = append(st.Considerations, ConsiderationState{ID: c.ID, Score: c.lastScore})
		}
		s.Actions = append(s.Actions, st)
	}
	return s
}

// Restore applies a snapshot as if the decider had been running all along:
// cached scores are copied, the active action is set with its persisted age,
// its start callback runs, and change subscribers see a nil previous action.
// The previously active action, if any, is not stopped.
func (d *Decider[T, K]) Restore(s Snapshot[K]) error {
	id, ok := s.Active.Get()
	if !ok {
		return ErrNoActiveAction
	}
	active, ok := d.index[id]
	if !ok {
		return ErrUnknownAction
	}

	for _, st := range s.Actions {
		a, ok := d.index[st.ID]
		if !ok {
			continue
		}
		a.lastScore = st.Score
		for i, c := range a.considerations {
			if i < len(st.Considerations) && st.Considerations[i].ID == c.ID {
				c.restore(st.Considerations[i].Score)
			}
		}
	}

	d.active, d.current = active, active
	d.changedAt = d.clock - s.ActiveAge
	if active.onStart != nil {
		active.onStart(d.target)
	}
	d.notify(nil, active)
	d.current = nil
	return nil
}
