package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/talgya/decider/internal/agents"
	"github.com/talgya/decider/internal/overlay"
	"github.com/talgya/decider/internal/utility"
)

// DeciderState is the persistable state of one villager's decider.
type DeciderState = utility.Snapshot[agents.ActionKind]

// Status is a point-in-time summary of the world.
type Status struct {
	Tick      uint64   `json:"tick"`
	SimTime   string   `json:"sim_time"`
	FieldTime float64  `json:"field_time"`
	Stats     SimStats `json:"stats"`
}

// AgentSummary is one row of the villager list.
type AgentSummary struct {
	ID       agents.AgentID `json:"id"`
	Name     string         `json:"name"`
	Alive    bool           `json:"alive"`
	Action   string         `json:"action"`
	Score    float64        `json:"score"`
	Health   float64        `json:"health"`
	Mood     float64        `json:"mood"`
	Position string         `json:"position"`
}

// AgentDetail is everything known about one villager's decisions.
type AgentDetail struct {
	Agent     agents.Agent  `json:"agent"`
	Action    string        `json:"action"`
	ActiveAge float64       `json:"active_age"`
	Decider   *DeciderState `json:"decider,omitempty"`
	Debug     string        `json:"debug,omitempty"`
}

// WorldState is a consistent copy of everything persistence needs.
type WorldState struct {
	Tick      uint64
	FieldTime float64
	Agents    []agents.Agent
	Deciders  map[agents.AgentID]DeciderState
	Events    []Event
}

// Status returns the current world summary.
func (s *Simulation) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.Stats
	st.Activity = make(map[string]int, len(s.Stats.Activity))
	for k, v := range s.Stats.Activity {
		st.Activity[k] = v
	}
	return Status{
		Tick:      s.LastTick,
		SimTime:   SimTime(s.LastTick),
		FieldTime: s.Field.Time(),
		Stats:     st,
	}
}

// AgentList summarizes every villager, living ones first, by id.
func (s *Simulation) AgentList() []AgentSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]AgentSummary, 0, len(s.Agents))
	for _, a := range s.Agents {
		row := AgentSummary{
			ID:       a.ID,
			Name:     a.Name,
			Alive:    a.Alive,
			Action:   agents.ActionNone.String(),
			Health:   a.Health,
			Mood:     a.Mood,
			Position: fmt.Sprintf("%d,%d", a.Position.Q, a.Position.R),
		}
		if b := s.Brains[a.ID]; b != nil {
			if act := b.Decider.Active(); act != nil {
				row.Action = act.ID().String()
				row.Score = act.Score()
			}
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Alive != out[j].Alive {
			return out[i].Alive
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// AgentDetail returns a villager with its decider snapshot and debug text.
func (s *Simulation) AgentDetail(id agents.AgentID) (AgentDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.AgentIndex[id]
	if !ok {
		return AgentDetail{}, fmt.Errorf("agent %d: %w", id, ErrAgentNotFound)
	}
	d := AgentDetail{Agent: *a, Action: agents.ActionNone.String()}
	b := s.Brains[id]
	if b == nil {
		return d, nil
	}

	snap := b.Decider.Snapshot()
	d.Decider = &snap
	d.Action = b.Active().String()
	d.ActiveAge = b.Decider.ActiveAge()

	var sb strings.Builder
	if err := b.Decider.WriteDebug(&sb, overlay.DisplayFull); err != nil {
		return d, err
	}
	d.Debug = sb.String()
	return d, nil
}

// RecentEvents returns up to n of the newest events, newest last.
func (s *Simulation) RecentEvents(n int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if n >= 0 && len(s.Events) > n {
		start = len(s.Events) - n
	}
	return append([]Event(nil), s.Events[start:]...)
}

// Capture copies the world for saving.
func (s *Simulation) Capture() WorldState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ws := WorldState{
		Tick:      s.LastTick,
		FieldTime: s.Field.Time(),
		Agents:    make([]agents.Agent, 0, len(s.Agents)),
		Deciders:  make(map[agents.AgentID]DeciderState, len(s.Brains)),
		Events:    append([]Event(nil), s.Events...),
	}
	for _, a := range s.Agents {
		ws.Agents = append(ws.Agents, *a)
	}
	for id, b := range s.Brains {
		if b.Decider.Active() == nil {
			continue // Nothing chosen yet; a fresh decider is equivalent.
		}
		ws.Deciders[id] = b.Decider.Snapshot()
	}
	return ws
}

// RestoreDeciders resumes saved decisions. Villagers without a saved state
// keep a fresh decider. Every failure is reported; the rest still restore.
func (s *Simulation) RestoreDeciders(states map[agents.AgentID]DeciderState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]agents.AgentID, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var errs []error
	restored := 0
	for _, id := range ids {
		b := s.Brains[id]
		if b == nil {
			continue // Died before the save or unknown.
		}
		if err := b.Decider.Restore(states[id]); err != nil {
			errs = append(errs, fmt.Errorf("restore agent %d: %w", id, err))
			continue
		}
		restored++
	}
	s.updateStats()
	s.addEvent(Event{
		Tick:        s.LastTick,
		Description: fmt.Sprintf("%d villagers resumed their activities", restored),
		Category:    "restore",
	})
	s.opts.Decisions.Log(map[string]any{
		"event":    "restore",
		"tick":     s.LastTick,
		"restored": restored,
		"failed":   len(errs),
	})
	return errors.Join(errs...)
}

// LoadEvents puts saved events, oldest first, ahead of any recorded since
// the simulation was built. Only the newest maxEvents are kept.
func (s *Simulation) LoadEvents(events []Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := make([]Event, 0, len(events)+len(s.Events))
	merged = append(merged, events...)
	merged = append(merged, s.Events...)
	if len(merged) > maxEvents {
		merged = merged[len(merged)-maxEvents:]
	}
	s.Events = merged
}

// Resume sets the clock of a freshly built simulation to a saved tick and
// field time. Call it before RestoreDeciders.
func (s *Simulation) Resume(tick uint64, fieldTime float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastTick = tick
	if d := fieldTime - s.Field.Time(); d > 0 {
		s.Field.Advance(d)
	}
}
