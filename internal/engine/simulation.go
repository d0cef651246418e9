// Simulation ties together the world field, the villagers and their brains,
// and runs them each tick.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"github.com/talgya/decider/internal/agents"
	"github.com/talgya/decider/internal/logging"
	"github.com/talgya/decider/internal/overlay"
	"github.com/talgya/decider/internal/utility"
	"github.com/talgya/decider/internal/world"
)

// Errors returned by Force and AgentDetail.
var (
	ErrAgentNotFound = errors.New("agent not found")
	ErrAgentDead     = errors.New("agent is dead")
	ErrUnknownAction = errors.New("unknown action")
)

// maxEvents bounds the in-memory event buffer.
const maxEvents = 1000

// Options configures a Simulation.
type Options struct {
	Seed int64
	// Overlay receives every villager's debug view; nil disables overlays.
	Overlay *overlay.Registry
	Display overlay.DisplayMode
	// Decisions receives one record per action change; nil disables it.
	Decisions *logging.DecisionLogger
	Logger    *slog.Logger
	// MinPopulation triggers daily immigration when fewer villagers live.
	MinPopulation int
	// Home is where newcomers arrive.
	Home world.HexCoord
}

// Simulation holds the complete world state and wires systems together.
// All exported methods are safe for concurrent use.
type Simulation struct {
	mu sync.RWMutex

	Field      *world.Field
	Agents     []*agents.Agent
	AgentIndex map[agents.AgentID]*agents.Agent
	Brains     map[agents.AgentID]*agents.Brain
	Events     []Event // Recent events, oldest first
	LastTick   uint64  // Most recent tick processed

	// Agent spawner for immigration.
	Spawner *agents.Spawner

	// Statistics, refreshed hourly.
	Stats SimStats

	opts   Options
	logger *slog.Logger
	rng    *rand.Rand
	forced map[agents.AgentID]bool
}

// Event is a notable occurrence in the world.
type Event struct {
	Tick        uint64         `json:"tick"`
	Agent       agents.AgentID `json:"agent,omitempty"`
	Description string         `json:"description"`
	Category    string         `json:"category"` // "death", "arrival", "admin", "restore"
}

// SimStats tracks aggregate world statistics.
type SimStats struct {
	TotalPopulation int            `json:"total_population"`
	TotalWealth     uint64         `json:"total_wealth"`
	TotalFood       int            `json:"total_food"`
	Deaths          int            `json:"deaths"`
	Arrivals        int            `json:"arrivals"`
	Switches        int            `json:"switches"` // Action changes since start
	AvgMood         float64        `json:"avg_mood"`
	AvgSurvival     float64        `json:"avg_survival"`
	AvgSafety       float64        `json:"avg_safety"`
	Activity        map[string]int `json:"activity"` // Active action name → villagers
}

// NewSimulation builds a brain for every living agent.
func NewSimulation(field *world.Field, ag []*agents.Agent, opts Options) *Simulation {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Simulation{
		Field:      field,
		AgentIndex: make(map[agents.AgentID]*agents.Agent, len(ag)),
		Brains:     make(map[agents.AgentID]*agents.Brain, len(ag)),
		Spawner:    agents.NewSpawner(opts.Seed),
		opts:       opts,
		logger:     logger,
		rng:        rand.New(rand.NewSource(opts.Seed + 500)),
		forced:     make(map[agents.AgentID]bool),
	}

	var maxID agents.AgentID
	for _, a := range ag {
		s.add(a)
		if a.ID > maxID {
			maxID = a.ID
		}
	}
	s.Spawner.SetNextID(maxID + 1)
	s.updateStats()
	return s
}

// add registers an agent and, if alive, builds its brain. Caller holds mu
// or owns s exclusively.
func (s *Simulation) add(a *agents.Agent) {
	s.Agents = append(s.Agents, a)
	s.AgentIndex[a.ID] = a
	if !a.Alive {
		return
	}

	label := fmt.Sprintf("#%d %s", a.ID, a.Name)
	b := agents.NewBrain(a, s.Field, s.rng,
		utility.WithLogger(s.logger.With("agent", a.ID)),
		utility.WithOverlay(s.opts.Overlay, label, s.opts.Display),
	)
	b.Decider.OnActionChange(func(prev, next *agents.Action) {
		s.recordChange(a, prev, next)
	})
	s.Brains[a.ID] = b
}

// recordChange runs inside a decider update or restore, with mu held.
func (s *Simulation) recordChange(a *agents.Agent, prev, next *agents.Action) {
	from := agents.ActionNone
	if prev != nil {
		from = prev.ID()
	}
	forced := s.forced[a.ID]
	delete(s.forced, a.ID)
	s.Stats.Switches++

	s.opts.Decisions.LogChange(logging.Change{
		Agent:  uint64(a.ID),
		Name:   a.Name,
		Tick:   s.LastTick,
		From:   from.String(),
		To:     next.ID().String(),
		Score:  next.Score(),
		Forced: forced,
	})
	s.logger.Log(context.Background(), logging.LevelTrace, "action change",
		"agent", a.ID, "from", from, "to", next.ID(), "score", next.Score())
}

func (s *Simulation) addEvent(e Event) {
	s.Events = append(s.Events, e)
	if len(s.Events) > 2*maxEvents {
		s.Events = append([]Event(nil), s.Events[len(s.Events)-maxEvents:]...)
	}
}

// CurrentTick returns the most recently processed tick number.
func (s *Simulation) CurrentTick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastTick
}

// TickMinute runs every tick: need decay, then every villager decides and acts.
func (s *Simulation) TickMinute(tick uint64, dt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.LastTick = tick
	s.Field.Advance(dt)

	for _, a := range s.Agents {
		if !a.Alive {
			continue
		}

		agents.DecayNeeds(a, dt, s.Field.Danger(a.Position))
		if !a.Alive {
			s.die(a, tick)
			continue
		}

		if b := s.Brains[a.ID]; b != nil {
			b.Update(dt)
		}
		// A force of the already active action changes nothing; drop it.
		delete(s.forced, a.ID)
	}
}

func (s *Simulation) die(a *agents.Agent, tick uint64) {
	if b := s.Brains[a.ID]; b != nil {
		b.Close()
		delete(s.Brains, a.ID)
	}
	delete(s.forced, a.ID)
	s.Stats.Deaths++
	s.addEvent(Event{
		Tick:        tick,
		Agent:       a.ID,
		Description: fmt.Sprintf("%s has died", a.Name),
		Category:    "death",
	})
	s.logger.Info("villager died", "agent", a.ID, "name", a.Name, "tick", tick)
}

// TickHour refreshes statistics.
func (s *Simulation) TickHour(tick uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateStats()
}

// TickDay handles immigration and writes the daily report.
func (s *Simulation) TickDay(tick uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updateStats()
	s.immigrate(tick)
	s.updateStats()

	eventCounts := make(map[string]int)
	for _, e := range s.Events {
		eventCounts[e.Category]++
	}

	s.logger.Info("daily report",
		"tick", tick,
		"time", SimTime(tick),
		"alive", s.Stats.TotalPopulation,
		"deaths", s.Stats.Deaths,
		"arrivals", s.Stats.Arrivals,
		"switches", s.Stats.Switches,
		"avg_mood", fmt.Sprintf("%.3f", s.Stats.AvgMood),
		"avg_survival", fmt.Sprintf("%.3f", s.Stats.AvgSurvival),
		"total_wealth", s.Stats.TotalWealth,
		"activity", activityString(s.Stats.Activity),
		"events_death", eventCounts["death"],
		"events_admin", eventCounts["admin"],
	)

	if len(s.Events) > maxEvents {
		s.Events = append([]Event(nil), s.Events[len(s.Events)-maxEvents:]...)
	}
}

func (s *Simulation) immigrate(tick uint64) {
	need := s.opts.MinPopulation - s.Stats.TotalPopulation
	if need <= 0 {
		return
	}
	radius := 2
	if s.Field.Radius < radius {
		radius = s.Field.Radius
	}
	for _, a := range s.Spawner.SpawnPopulation(need, s.opts.Home, radius, tick) {
		s.add(a)
		s.Stats.Arrivals++
		s.addEvent(Event{
			Tick:        tick,
			Agent:       a.ID,
			Description: fmt.Sprintf("%s arrived in the village", a.Name),
			Category:    "arrival",
		})
		s.opts.Decisions.Log(map[string]any{
			"event": "arrival",
			"agent": uint64(a.ID),
			"name":  a.Name,
			"tick":  tick,
		})
	}
	s.logger.Info("immigration", "tick", tick, "arrivals", need)
}

func (s *Simulation) updateStats() {
	st := SimStats{
		Deaths:   s.Stats.Deaths,
		Arrivals: s.Stats.Arrivals,
		Switches: s.Stats.Switches,
		Activity: make(map[string]int),
	}
	for _, a := range s.Agents {
		if !a.Alive {
			continue
		}
		st.TotalPopulation++
		st.TotalWealth += a.Wealth
		st.TotalFood += a.Food
		st.AvgMood += a.Mood
		st.AvgSurvival += a.Needs.Survival
		st.AvgSafety += a.Needs.Safety
		if b := s.Brains[a.ID]; b != nil {
			st.Activity[b.Active().String()]++
		}
	}
	if n := float64(st.TotalPopulation); n > 0 {
		st.AvgMood /= n
		st.AvgSurvival /= n
		st.AvgSafety /= n
	}
	s.Stats = st
}

func activityString(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return strings.Join(parts, ",")
}

// Force makes a villager perform kind on its next update.
func (s *Simulation) Force(id agents.AgentID, kind agents.ActionKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.AgentIndex[id]
	if !ok {
		return fmt.Errorf("force %d: %w", id, ErrAgentNotFound)
	}
	b := s.Brains[id]
	if !a.Alive || b == nil {
		return fmt.Errorf("force %d: %w", id, ErrAgentDead)
	}
	if !b.Force(kind) {
		return fmt.Errorf("force %d %s: %w", id, kind, ErrUnknownAction)
	}

	s.forced[id] = true
	s.addEvent(Event{
		Tick:        s.LastTick,
		Agent:       id,
		Description: fmt.Sprintf("%s was told to %s", a.Name, kind),
		Category:    "admin",
	})
	s.logger.Info("action forced", "agent", id, "action", kind)
	return nil
}

// SetDisplayMode switches every villager's overlay entry to m. Entries set
// to none are dropped on the next render and do not come back.
func (s *Simulation) SetDisplayMode(m overlay.DisplayMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Display = m
	if s.opts.Overlay == nil {
		return
	}
	for _, e := range s.opts.Overlay.Entries() {
		e.SetMode(m)
	}
}

// RenderOverlay writes every visible villager debug view to w.
func (s *Simulation) RenderOverlay(w io.Writer) error {
	if s.opts.Overlay == nil {
		return nil
	}
	// Render callbacks read decider state.
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts.Overlay.Render(w)
}

// Close detaches every brain from the overlay.
func (s *Simulation) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.Brains {
		b.Close()
	}
}
