package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/talgya/decider/internal/agents"
	"github.com/talgya/decider/internal/engine"
	"github.com/talgya/decider/internal/persistence"
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [agent-id...]",
		Short: "Show saved villagers and their decider state",
		Long: `Inspect reads the saved village without running it. With no
arguments it lists every villager; with ids it prints each villager's
active action and cached scores.

Examples:
  decidersim inspect              # List saved villagers
  decidersim inspect 3 7          # Decider state for villagers 3 and 7
  decidersim inspect --saves      # Recent saves
  decidersim inspect 3 --json     # Machine-readable output`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			showSaves, _ := cmd.Flags().GetBool("saves")

			ids := make([]agents.AgentID, 0, len(args))
			for _, arg := range args {
				n, err := strconv.ParseUint(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid agent id %q", arg)
				}
				ids = append(ids, agents.AgentID(n))
			}

			if _, err := os.Stat(cfg.Persistence.Path); err != nil {
				return fmt.Errorf("no saved village at %s: %w", cfg.Persistence.Path, err)
			}
			db, err := persistence.Open(cfg.Persistence.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			if showSaves {
				return inspectSaves(out, db, jsonOut)
			}
			return inspectAgents(out, db, ids, jsonOut)
		},
	}

	cmd.Flags().Bool("saves", false, "List recent saves instead of villagers")
	return cmd
}

func inspectSaves(out io.Writer, db *persistence.DB, jsonOut bool) error {
	saves, err := db.Saves(20)
	if err != nil {
		return fmt.Errorf("list saves: %w", err)
	}
	if jsonOut {
		return json.NewEncoder(out).Encode(saves)
	}
	if len(saves) == 0 {
		fmt.Fprintln(out, "No saves.")
		return nil
	}
	for _, s := range saves {
		fmt.Fprintf(out, "%s  tick %-8d %-18s agents=%d deciders=%d  %s\n",
			s.ID, s.Tick, engine.SimTime(s.Tick), s.Agents, s.Deciders, s.CreatedAt)
	}
	return nil
}

type inspectedAgent struct {
	Agent   *agents.Agent        `json:"agent"`
	Decider *engine.DeciderState `json:"decider,omitempty"`
}

func inspectAgents(out io.Writer, db *persistence.DB, ids []agents.AgentID, jsonOut bool) error {
	pop, err := db.LoadAgents()
	if err != nil {
		return err
	}
	deciders, err := db.LoadDeciders()
	if err != nil {
		return err
	}

	byID := make(map[agents.AgentID]*agents.Agent, len(pop))
	for _, a := range pop {
		byID[a.ID] = a
	}
	if len(ids) == 0 {
		for _, a := range pop {
			ids = append(ids, a.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	result := make([]inspectedAgent, 0, len(ids))
	for _, id := range ids {
		a, ok := byID[id]
		if !ok {
			return fmt.Errorf("agent %d not found", id)
		}
		row := inspectedAgent{Agent: a}
		if st, ok := deciders[id]; ok {
			row.Decider = &st
		}
		result = append(result, row)
	}

	if jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	detailed := len(result) < len(pop) || len(pop) == 1
	for _, row := range result {
		a := row.Agent
		active := "none"
		if row.Decider != nil {
			active = row.Decider.Active.String()
		}
		status := "alive"
		if !a.Alive {
			status = "dead"
		}
		fmt.Fprintf(out, "#%-4d %-22s %-5s %-10s health=%.2f mood=%+.2f food=%d crowns=%d\n",
			a.ID, a.Name, status, active, a.Health, a.Mood, a.Food, a.Wealth)
		if detailed && row.Decider != nil {
			writeDeciderState(out, row.Decider)
		}
	}
	return nil
}

// writeDeciderState prints saved scores the way the live overlay lays them out.
func writeDeciderState(out io.Writer, st *engine.DeciderState) {
	fmt.Fprintf(out, "      active for %.1f\n", st.ActiveAge)
	active, _ := st.Active.Get()
	for _, a := range st.Actions {
		marker := " "
		if a.ID == active {
			marker = "*"
		}
		fmt.Fprintf(out, "    %s (%.3f) %s\n", marker, a.Score, a.ID)
		for _, c := range a.Considerations {
			fmt.Fprintf(out, "        (%.3f) %s\n", c.Score, c.ID)
		}
	}
}
