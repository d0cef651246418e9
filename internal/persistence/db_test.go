package persistence

import (
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/talgya/decider/internal/agents"
	"github.com/talgya/decider/internal/engine"
	"github.com/talgya/decider/internal/utility"
	"github.com/talgya/decider/internal/world"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func runSim(t *testing.T, ticks int) *engine.Simulation {
	t.Helper()
	pop := agents.NewSpawner(3).SpawnPopulation(5, world.HexCoord{}, 2, 0)
	pop[4].Alive = false
	sim := engine.NewSimulation(world.NewField(3, 4), pop, engine.Options{
		Seed:   3,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	for tick := 1; tick <= ticks; tick++ {
		sim.TickMinute(uint64(tick), 1)
	}
	return sim
}

func TestOpen_Migrates(t *testing.T) {
	db := openTestDB(t)
	if db.HasWorldState() {
		t.Error("fresh database reports saved state")
	}
	if _, err := db.GetMeta(MetaLastTick); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetMeta on empty db = %v, want sql.ErrNoRows", err)
	}
	if _, _, err := db.Clock(); err == nil {
		t.Error("Clock on empty db should fail")
	}
}

func TestMeta(t *testing.T) {
	db := openTestDB(t)
	if err := db.SaveMeta("seed", "42"); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveMeta("seed", "43"); err != nil {
		t.Fatal(err)
	}
	v, err := db.GetMeta("seed")
	if err != nil || v != "43" {
		t.Errorf("GetMeta = %q, %v; want 43", v, err)
	}
}

func TestSaveAndLoadWorldState(t *testing.T) {
	db := openTestDB(t)
	sim := runSim(t, 20)
	if err := sim.Force(1, agents.ActionSocialize); err != nil {
		t.Fatal(err)
	}
	ws := sim.Capture()

	saveID, err := db.SaveWorldState(ws)
	if err != nil {
		t.Fatalf("SaveWorldState: %v", err)
	}
	if _, err := uuid.Parse(saveID); err != nil {
		t.Errorf("save id %q is not a UUID: %v", saveID, err)
	}
	if !db.HasWorldState() {
		t.Fatal("HasWorldState false after save")
	}

	tick, fieldTime, err := db.Clock()
	if err != nil || tick != 20 || fieldTime != ws.FieldTime {
		t.Errorf("Clock = %d, %v, %v", tick, fieldTime, err)
	}

	loaded, err := db.LoadAgents()
	if err != nil {
		t.Fatalf("LoadAgents: %v", err)
	}
	if len(loaded) != len(ws.Agents) {
		t.Fatalf("loaded %d agents, want %d", len(loaded), len(ws.Agents))
	}
	for i, a := range loaded {
		if *a != ws.Agents[i] {
			t.Errorf("agent %d round trip:\n got %+v\nwant %+v", i, *a, ws.Agents[i])
		}
	}

	deciders, err := db.LoadDeciders()
	if err != nil {
		t.Fatalf("LoadDeciders: %v", err)
	}
	if len(deciders) != len(ws.Deciders) || len(deciders) != 4 {
		t.Fatalf("loaded %d deciders, want %d (4 living)", len(deciders), len(ws.Deciders))
	}
	for id, want := range ws.Deciders {
		got := deciders[id]
		if got.Active != want.Active || got.ActiveAge != want.ActiveAge {
			t.Errorf("agent %d head = %v/%v, want %v/%v", id, got.Active, got.ActiveAge, want.Active, want.ActiveAge)
		}
		if len(got.Actions) != len(want.Actions) {
			t.Fatalf("agent %d has %d actions, want %d", id, len(got.Actions), len(want.Actions))
		}
		for i := range want.Actions {
			g, w := got.Actions[i], want.Actions[i]
			if g.ID != w.ID || g.Score != w.Score || len(g.Considerations) != len(w.Considerations) {
				t.Errorf("agent %d action %d = %+v, want %+v", id, i, g, w)
				continue
			}
			for j := range w.Considerations {
				if g.Considerations[j] != w.Considerations[j] {
					t.Errorf("agent %d action %v consideration %d = %+v, want %+v",
						id, w.ID, j, g.Considerations[j], w.Considerations[j])
				}
			}
		}
	}

	events, err := db.RecentEvents(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Category != "admin" || events[0].Agent != 1 {
		t.Errorf("events = %+v", events)
	}

	saves, err := db.Saves(5)
	if err != nil || len(saves) != 1 || saves[0].ID != saveID || saves[0].Deciders != 4 {
		t.Errorf("Saves = %+v, %v", saves, err)
	}
}

func TestSaveWorldState_Replaces(t *testing.T) {
	db := openTestDB(t)
	sim := runSim(t, 5)

	first, err := db.SaveWorldState(sim.Capture())
	if err != nil {
		t.Fatal(err)
	}
	sim.TickMinute(6, 1)
	second, err := db.SaveWorldState(sim.Capture())
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Error("two saves share an id")
	}

	loaded, err := db.LoadAgents()
	if err != nil || len(loaded) != 5 {
		t.Errorf("LoadAgents = %d agents, %v; want 5 without duplicates", len(loaded), err)
	}
	last, _ := db.GetMeta(MetaLastSave)
	if last != second {
		t.Errorf("last save = %q, want %q", last, second)
	}
	saves, _ := db.Saves(10)
	if len(saves) != 2 || saves[0].ID != second {
		t.Errorf("saves = %+v", saves)
	}
}

func TestRestoreFromDatabase(t *testing.T) {
	db := openTestDB(t)
	sim := runSim(t, 15)
	if _, err := db.SaveWorldState(sim.Capture()); err != nil {
		t.Fatal(err)
	}

	pop, err := db.LoadAgents()
	if err != nil {
		t.Fatal(err)
	}
	deciders, err := db.LoadDeciders()
	if err != nil {
		t.Fatal(err)
	}
	tick, fieldTime, err := db.Clock()
	if err != nil {
		t.Fatal(err)
	}

	restored := engine.NewSimulation(world.NewField(3, 4), pop, engine.Options{
		Seed:   3,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	restored.Resume(tick, fieldTime)
	if err := restored.RestoreDeciders(deciders); err != nil {
		t.Fatalf("RestoreDeciders: %v", err)
	}
	for id, b := range sim.Brains {
		if got := restored.Brains[id].Active(); got != b.Active() {
			t.Errorf("agent %d resumed %v, want %v", id, got, b.Active())
		}
	}
}

func TestLoadDeciders_UnknownActiveName(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.conn.Exec("INSERT INTO decider_state (agent_id, active, active_age) VALUES (1, 'juggle', 2)"); err != nil {
		t.Fatal(err)
	}
	deciders, err := db.LoadDeciders()
	if err != nil {
		t.Fatal(err)
	}
	st, ok := deciders[1]
	if !ok {
		t.Fatal("decider 1 not loaded")
	}
	if st.Active != utility.NoID[agents.ActionKind]() {
		t.Errorf("active = %v, want empty", st.Active)
	}
}

func TestEventsSurviveResume(t *testing.T) {
	db := openTestDB(t)
	sim := runSim(t, 5)
	for _, id := range []agents.AgentID{1, 2} {
		if err := sim.Force(id, agents.ActionRest); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := db.SaveWorldState(sim.Capture()); err != nil {
		t.Fatal(err)
	}

	for cycle := 1; cycle <= 2; cycle++ {
		resumed, tick, err := db.LoadSimulation(world.NewField(3, 4), engine.Options{
			Seed:   3,
			Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
		if err != nil {
			t.Fatalf("cycle %d: LoadSimulation: %v", cycle, err)
		}
		if tick != 5 {
			t.Errorf("cycle %d: tick = %d, want 5", cycle, tick)
		}
		if _, err := db.SaveWorldState(resumed.Capture()); err != nil {
			t.Fatalf("cycle %d: save: %v", cycle, err)
		}
	}

	events, err := db.LoadEvents()
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		category string
		agent    agents.AgentID
	}{
		{"admin", 1},
		{"admin", 2},
		{"restore", 0},
		{"restore", 0},
	}
	if len(events) != len(want) {
		t.Fatalf("events after two resumes = %+v, want %d", events, len(want))
	}
	for i, w := range want {
		if events[i].Category != w.category || events[i].Agent != w.agent {
			t.Errorf("event %d = %+v, want %s for agent %d", i, events[i], w.category, w.agent)
		}
	}

	recent, err := db.RecentEvents(1)
	if err != nil || len(recent) != 1 || recent[0].Category != "restore" {
		t.Errorf("RecentEvents(1) = %+v, %v", recent, err)
	}
}
