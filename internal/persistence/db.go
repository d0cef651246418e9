// Package persistence provides SQLite-based world state storage: villagers,
// their decider state down to every consideration score, recent events,
// and a log of saves.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/decider/internal/agents"
	"github.com/talgya/decider/internal/engine"
	"github.com/talgya/decider/internal/utility"
	"github.com/talgya/decider/internal/world"
)

// Metadata keys written by SaveWorldState.
const (
	MetaLastTick  = "last_tick"
	MetaFieldTime = "field_time"
	MetaLastSave  = "last_save"
)

// DB wraps a SQLite connection for world state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		sex INTEGER NOT NULL,
		health REAL NOT NULL,
		energy REAL NOT NULL,
		mood REAL NOT NULL,
		pos_q INTEGER NOT NULL,
		pos_r INTEGER NOT NULL,
		home_q INTEGER NOT NULL,
		home_r INTEGER NOT NULL,
		food INTEGER NOT NULL,
		wealth INTEGER NOT NULL,
		alive INTEGER NOT NULL,
		born_tick INTEGER NOT NULL,
		needs_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS decider_state (
		agent_id INTEGER PRIMARY KEY,
		active TEXT NOT NULL,
		active_age REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS action_scores (
		agent_id INTEGER NOT NULL,
		action TEXT NOT NULL,
		position INTEGER NOT NULL,
		score REAL NOT NULL,
		PRIMARY KEY (agent_id, action)
	);

	CREATE TABLE IF NOT EXISTS consideration_scores (
		agent_id INTEGER NOT NULL,
		action TEXT NOT NULL,
		position INTEGER NOT NULL,
		consideration TEXT NOT NULL,
		score REAL NOT NULL,
		PRIMARY KEY (agent_id, action, position)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		save_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		agent_id INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS saves (
		id TEXT PRIMARY KEY,
		tick INTEGER NOT NULL,
		agents INTEGER NOT NULL,
		deciders INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	CREATE INDEX IF NOT EXISTS idx_agents_alive ON agents(alive);
	CREATE INDEX IF NOT EXISTS idx_saves_tick ON saves(tick);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type agentRow struct {
	ID        uint64  `db:"id"`
	Name      string  `db:"name"`
	Sex       uint8   `db:"sex"`
	Health    float64 `db:"health"`
	Energy    float64 `db:"energy"`
	Mood      float64 `db:"mood"`
	PosQ      int     `db:"pos_q"`
	PosR      int     `db:"pos_r"`
	HomeQ     int     `db:"home_q"`
	HomeR     int     `db:"home_r"`
	Food      int     `db:"food"`
	Wealth    uint64  `db:"wealth"`
	Alive     int     `db:"alive"`
	BornTick  uint64  `db:"born_tick"`
	NeedsJSON string  `db:"needs_json"`
}

func toAgentRow(a *agents.Agent) (agentRow, error) {
	needs, err := json.Marshal(a.Needs)
	if err != nil {
		return agentRow{}, err
	}
	alive := 0
	if a.Alive {
		alive = 1
	}
	return agentRow{
		ID: uint64(a.ID), Name: a.Name, Sex: uint8(a.Sex),
		Health: a.Health, Energy: a.Energy, Mood: a.Mood,
		PosQ: a.Position.Q, PosR: a.Position.R,
		HomeQ: a.Home.Q, HomeR: a.Home.R,
		Food: a.Food, Wealth: a.Wealth,
		Alive: alive, BornTick: a.BornTick,
		NeedsJSON: string(needs),
	}, nil
}

func (r agentRow) agent() (*agents.Agent, error) {
	a := &agents.Agent{
		ID:       agents.AgentID(r.ID),
		Name:     r.Name,
		Sex:      agents.Sex(r.Sex),
		Health:   r.Health,
		Energy:   r.Energy,
		Mood:     r.Mood,
		Position: world.HexCoord{Q: r.PosQ, R: r.PosR},
		Home:     world.HexCoord{Q: r.HomeQ, R: r.HomeR},
		Food:     r.Food,
		Wealth:   r.Wealth,
		Alive:    r.Alive != 0,
		BornTick: r.BornTick,
	}
	if err := json.Unmarshal([]byte(r.NeedsJSON), &a.Needs); err != nil {
		return nil, fmt.Errorf("agent %d needs: %w", r.ID, err)
	}
	return a, nil
}

// SaveRecord describes one completed save.
type SaveRecord struct {
	ID        string `db:"id" json:"id"`
	Tick      uint64 `db:"tick" json:"tick"`
	Agents    int    `db:"agents" json:"agents"`
	Deciders  int    `db:"deciders" json:"deciders"`
	CreatedAt string `db:"created_at" json:"created_at"`
}

// SaveWorldState replaces the stored world with ws in one transaction and
// returns the id of the new save.
func (db *DB) SaveWorldState(ws engine.WorldState) (string, error) {
	saveID := uuid.NewString()
	slog.Info("saving world state", "save", saveID, "tick", ws.Tick, "agents", len(ws.Agents), "deciders", len(ws.Deciders))

	tx, err := db.conn.Beginx()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	for _, table := range []string{"agents", "decider_state", "action_scores", "consideration_scores", "events"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return "", fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if err := saveAgents(tx, ws.Agents); err != nil {
		return "", fmt.Errorf("save agents: %w", err)
	}
	if err := saveDeciders(tx, ws.Deciders); err != nil {
		return "", fmt.Errorf("save deciders: %w", err)
	}
	if err := saveEvents(tx, saveID, ws.Events); err != nil {
		return "", fmt.Errorf("save events: %w", err)
	}

	rec := SaveRecord{
		ID:        saveID,
		Tick:      ws.Tick,
		Agents:    len(ws.Agents),
		Deciders:  len(ws.Deciders),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if _, err := tx.NamedExec(`INSERT INTO saves (id, tick, agents, deciders, created_at)
		VALUES (:id, :tick, :agents, :deciders, :created_at)`, rec); err != nil {
		return "", fmt.Errorf("save record: %w", err)
	}

	meta := map[string]string{
		MetaLastTick:  strconv.FormatUint(ws.Tick, 10),
		MetaFieldTime: strconv.FormatFloat(ws.FieldTime, 'g', -1, 64),
		MetaLastSave:  saveID,
	}
	for k, v := range meta {
		if err := saveMeta(tx, k, v); err != nil {
			return "", fmt.Errorf("save meta: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	slog.Info("world state saved", "save", saveID)
	return saveID, nil
}

func saveAgents(tx *sqlx.Tx, list []agents.Agent) error {
	stmt, err := tx.PrepareNamed(`INSERT INTO agents
		(id, name, sex, health, energy, mood, pos_q, pos_r, home_q, home_r,
		 food, wealth, alive, born_tick, needs_json)
		VALUES (:id, :name, :sex, :health, :energy, :mood, :pos_q, :pos_r, :home_q, :home_r,
		 :food, :wealth, :alive, :born_tick, :needs_json)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range list {
		row, err := toAgentRow(&list[i])
		if err != nil {
			return fmt.Errorf("encode agent %d: %w", list[i].ID, err)
		}
		if _, err := stmt.Exec(row); err != nil {
			return fmt.Errorf("insert agent %d: %w", row.ID, err)
		}
	}
	return nil
}

func saveDeciders(tx *sqlx.Tx, states map[agents.AgentID]engine.DeciderState) error {
	for id, st := range states {
		active, ok := st.Active.Get()
		if !ok {
			continue // Nothing to resume.
		}
		if _, err := tx.Exec("INSERT INTO decider_state (agent_id, active, active_age) VALUES (?, ?, ?)",
			uint64(id), active.String(), st.ActiveAge); err != nil {
			return fmt.Errorf("agent %d: %w", id, err)
		}
		for pos, as := range st.Actions {
			if _, err := tx.Exec("INSERT INTO action_scores (agent_id, action, position, score) VALUES (?, ?, ?, ?)",
				uint64(id), as.ID.String(), pos, as.Score); err != nil {
				return fmt.Errorf("agent %d action %s: %w", id, as.ID, err)
			}
			for cpos, cs := range as.Considerations {
				if _, err := tx.Exec(`INSERT INTO consideration_scores
					(agent_id, action, position, consideration, score) VALUES (?, ?, ?, ?, ?)`,
					uint64(id), as.ID.String(), cpos, cs.ID, cs.Score); err != nil {
					return fmt.Errorf("agent %d consideration %s: %w", id, cs.ID, err)
				}
			}
		}
	}
	return nil
}

func saveEvents(tx *sqlx.Tx, saveID string, events []engine.Event) error {
	for _, e := range events {
		if _, err := tx.Exec(
			"INSERT INTO events (save_id, tick, agent_id, description, category) VALUES (?, ?, ?, ?, ?)",
			saveID, e.Tick, uint64(e.Agent), e.Description, e.Category,
		); err != nil {
			return err
		}
	}
	return nil
}

func saveMeta(e sqlx.Execer, key, value string) error {
	_, err := e.Exec("INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)", key, value)
	return err
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	return saveMeta(db.conn, key, value)
}

// GetMeta retrieves a metadata value. A missing key yields sql.ErrNoRows.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

// HasWorldState reports whether a save exists.
func (db *DB) HasWorldState() bool {
	_, err := db.GetMeta(MetaLastSave)
	return err == nil
}

// Clock returns the saved tick and field time.
func (db *DB) Clock() (tick uint64, fieldTime float64, err error) {
	s, err := db.GetMeta(MetaLastTick)
	if err != nil {
		return 0, 0, fmt.Errorf("last tick: %w", err)
	}
	if tick, err = strconv.ParseUint(s, 10, 64); err != nil {
		return 0, 0, fmt.Errorf("last tick: %w", err)
	}
	s, err = db.GetMeta(MetaFieldTime)
	if errors.Is(err, sql.ErrNoRows) {
		return tick, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("field time: %w", err)
	}
	if fieldTime, err = strconv.ParseFloat(s, 64); err != nil {
		return 0, 0, fmt.Errorf("field time: %w", err)
	}
	return tick, fieldTime, nil
}

// LoadAgents returns every stored villager ordered by id.
func (db *DB) LoadAgents() ([]*agents.Agent, error) {
	var rows []agentRow
	if err := db.conn.Select(&rows, "SELECT * FROM agents ORDER BY id"); err != nil {
		return nil, fmt.Errorf("load agents: %w", err)
	}
	out := make([]*agents.Agent, 0, len(rows))
	for _, r := range rows {
		a, err := r.agent()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

type deciderRow struct {
	AgentID   uint64  `db:"agent_id"`
	Active    string  `db:"active"`
	ActiveAge float64 `db:"active_age"`
}

type actionScoreRow struct {
	AgentID  uint64  `db:"agent_id"`
	Action   string  `db:"action"`
	Position int     `db:"position"`
	Score    float64 `db:"score"`
}

type considerationScoreRow struct {
	AgentID       uint64  `db:"agent_id"`
	Action        string  `db:"action"`
	Position      int     `db:"position"`
	Consideration string  `db:"consideration"`
	Score         float64 `db:"score"`
}

// LoadDeciders returns the saved decider state of every villager that had
// an active action. An unrecognised active action name loads as an empty
// active id, which Restore rejects.
func (db *DB) LoadDeciders() (map[agents.AgentID]engine.DeciderState, error) {
	var heads []deciderRow
	if err := db.conn.Select(&heads, "SELECT agent_id, active, active_age FROM decider_state"); err != nil {
		return nil, fmt.Errorf("load decider state: %w", err)
	}
	var scores []actionScoreRow
	if err := db.conn.Select(&scores,
		"SELECT agent_id, action, position, score FROM action_scores ORDER BY agent_id, position"); err != nil {
		return nil, fmt.Errorf("load action scores: %w", err)
	}
	var cscores []considerationScoreRow
	if err := db.conn.Select(&cscores,
		`SELECT agent_id, action, position, consideration, score FROM consideration_scores
		 ORDER BY agent_id, action, position`); err != nil {
		return nil, fmt.Errorf("load consideration scores: %w", err)
	}

	type key struct {
		agent  uint64
		action string
	}
	considerations := make(map[key][]utility.ConsiderationState)
	for _, c := range cscores {
		k := key{c.AgentID, c.Action}
		considerations[k] = append(considerations[k], utility.ConsiderationState{ID: c.Consideration, Score: c.Score})
	}

	out := make(map[agents.AgentID]engine.DeciderState, len(heads))
	for _, h := range heads {
		st := engine.DeciderState{ActiveAge: h.ActiveAge}
		if kind, ok := agents.ParseActionKind(h.Active); ok {
			st.Active = utility.SomeID(kind)
		}
		out[agents.AgentID(h.AgentID)] = st
	}
	for _, s := range scores {
		id := agents.AgentID(s.AgentID)
		st, ok := out[id]
		if !ok {
			continue
		}
		kind, ok := agents.ParseActionKind(s.Action)
		if !ok {
			slog.Warn("skipping unknown saved action", "agent", id, "action", s.Action)
			continue
		}
		st.Actions = append(st.Actions, utility.ActionState[agents.ActionKind]{
			ID:             kind,
			Score:          s.Score,
			Considerations: considerations[key{s.AgentID, s.Action}],
		})
		out[id] = st
	}
	return out, nil
}

type eventRow struct {
	Tick        uint64 `db:"tick"`
	AgentID     uint64 `db:"agent_id"`
	Description string `db:"description"`
	Category    string `db:"category"`
}

func (db *DB) selectEvents(query string, args ...any) ([]engine.Event, error) {
	var rows []eventRow
	if err := db.conn.Select(&rows, query, args...); err != nil {
		return nil, err
	}
	events := make([]engine.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, engine.Event{
			Tick:        r.Tick,
			Agent:       agents.AgentID(r.AgentID),
			Description: r.Description,
			Category:    r.Category,
		})
	}
	return events, nil
}

// RecentEvents returns the most recent N stored events, newest first.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	return db.selectEvents(
		"SELECT tick, agent_id, description, category FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
}

// LoadEvents returns every stored event, oldest first.
func (db *DB) LoadEvents() ([]engine.Event, error) {
	events, err := db.selectEvents("SELECT tick, agent_id, description, category FROM events ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	return events, nil
}

// LoadSimulation rebuilds the saved village on field: villagers, clock,
// event history and decider state. Deciders that fail to restore are logged
// and left to decide afresh.
func (db *DB) LoadSimulation(field *world.Field, opts engine.Options) (*engine.Simulation, uint64, error) {
	pop, err := db.LoadAgents()
	if err != nil {
		return nil, 0, err
	}
	deciders, err := db.LoadDeciders()
	if err != nil {
		return nil, 0, err
	}
	events, err := db.LoadEvents()
	if err != nil {
		return nil, 0, err
	}
	tick, fieldTime, err := db.Clock()
	if err != nil {
		return nil, 0, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sim := engine.NewSimulation(field, pop, opts)
	sim.Resume(tick, fieldTime)
	sim.LoadEvents(events)
	if err := sim.RestoreDeciders(deciders); err != nil {
		logger.Warn("some deciders not restored", "error", err)
	}
	logger.Info("village restored", "agents", len(pop), "deciders", len(deciders), "events", len(events), "tick", tick)
	return sim, tick, nil
}

// Saves lists the most recent saves, newest first.
func (db *DB) Saves(limit int) ([]SaveRecord, error) {
	var recs []SaveRecord
	err := db.conn.Select(&recs,
		"SELECT id, tick, agents, deciders, created_at FROM saves ORDER BY tick DESC, rowid DESC LIMIT ?",
		limit,
	)
	return recs, err
}
