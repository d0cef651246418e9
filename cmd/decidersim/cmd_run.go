package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/talgya/decider/internal/agents"
	"github.com/talgya/decider/internal/api"
	"github.com/talgya/decider/internal/config"
	"github.com/talgya/decider/internal/engine"
	"github.com/talgya/decider/internal/overlay"
	"github.com/talgya/decider/internal/persistence"
	"github.com/talgya/decider/internal/world"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the village simulation",
		Long: `Run loads the saved village (or spawns a new one), ticks it until
interrupted or the tick limit is reached, saves periodically, and serves
the HTTP API.

Examples:
  decidersim run                      # Resume or start a village
  decidersim run --fresh --ticks 500  # New village, stop after 500 ticks
  decidersim run --speed 10           # Ten ticks per interval`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("ticks") {
				cfg.Simulation.MaxTicks, _ = cmd.Flags().GetUint64("ticks")
			}
			if cmd.Flags().Changed("speed") {
				cfg.Simulation.Speed, _ = cmd.Flags().GetFloat64("speed")
			}
			if cmd.Flags().Changed("port") {
				cfg.API.Port, _ = cmd.Flags().GetInt("port")
			}
			fresh, _ := cmd.Flags().GetBool("fresh")
			logger := setupLogger(cmd, cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runSimulation(ctx, cfg, fresh, logger, cmd.OutOrStdout())
		},
	}

	cmd.Flags().Uint64("ticks", 0, "Stop after this many ticks (0 = until interrupted)")
	cmd.Flags().Float64("speed", 1, "Tick rate multiplier")
	cmd.Flags().Int("port", 0, "API port (0 disables the API)")
	cmd.Flags().Bool("fresh", false, "Ignore saved state and spawn a new village")
	return cmd
}

// runSimulation is the body of "run": build or restore the village, tick it
// until ctx ends or the tick limit is reached, then save.
func runSimulation(ctx context.Context, cfg *config.Config, fresh bool, logger *slog.Logger, out io.Writer) error {
	if dir := filepath.Dir(cfg.Persistence.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := persistence.Open(cfg.Persistence.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.Persistence.Path)

	decisions := cfg.DecisionLogger()
	defer decisions.Close()

	reg := overlay.NewRegistry()
	defer reg.Close()

	sim, startTick, err := buildSimulation(cfg, db, fresh, engine.Options{
		Seed:          cfg.Simulation.Seed,
		Overlay:       reg,
		Display:       cfg.DisplayMode(),
		Decisions:     decisions,
		Logger:        logger,
		MinPopulation: cfg.Simulation.Agents / 2,
	}, logger)
	if err != nil {
		return err
	}
	defer sim.Close()

	eng := engine.NewEngine()
	eng.Tick = startTick
	eng.Interval = cfg.Simulation.TickInterval.D()
	eng.DT = cfg.Simulation.DT
	eng.SetSpeed(cfg.Simulation.Speed)
	if cfg.Simulation.MaxTicks > 0 {
		eng.MaxTicks = startTick + cfg.Simulation.MaxTicks
	}

	save := func(reason string) {
		if _, err := db.SaveWorldState(sim.Capture()); err != nil {
			logger.Error("save failed", "reason", reason, "error", err)
		}
	}

	eng.OnTick = func(tick uint64, dt float64) {
		sim.TickMinute(tick, dt)
		if every := cfg.Persistence.SaveEveryTicks; every > 0 && tick%every == 0 {
			save("periodic")
		}
	}
	eng.OnHour = func(tick uint64) {
		sim.TickHour(tick)
		if cfg.DisplayMode() != overlay.DisplayNone {
			fmt.Fprintf(out, "-- %s --\n", engine.SimTime(tick))
			if err := sim.RenderOverlay(out); err != nil {
				logger.Warn("overlay render failed", "error", err)
			}
		}
	}
	eng.OnDay = sim.TickDay

	var srv *api.Server
	if cfg.API.Port > 0 {
		if cfg.API.AdminKey == "" {
			logger.Warn("admin key not set, admin POST endpoints are disabled")
		}
		srv = &api.Server{
			Sim:             sim,
			Eng:             eng,
			DB:              db,
			Port:            cfg.API.Port,
			AdminKey:        cfg.API.AdminKey,
			ForcesPerMinute: cfg.API.ForcesPerMinute,
		}
		srv.Start()
		fmt.Fprintf(out, "API: http://localhost:%d/api/v1/status\n", cfg.API.Port)
	}

	st := sim.Status()
	fmt.Fprintf(out, "The village is alive: %d villagers on a radius-%d world.\n",
		st.Stats.TotalPopulation, cfg.Simulation.Radius)
	if startTick > 0 {
		fmt.Fprintf(out, "Resuming from tick %d (%s)\n", startTick, engine.SimTime(startTick))
	}

	eng.Run(ctx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("API shutdown", "error", err)
		}
		cancel()
	}

	logger.Info("final save...")
	save("shutdown")
	fmt.Fprintf(out, "Simulation stopped at tick %d. Village saved.\n", eng.Tick)
	return nil
}

// buildSimulation restores the saved village unless fresh is set or nothing
// is saved, in which case it spawns a new one and saves it.
func buildSimulation(cfg *config.Config, db *persistence.DB, fresh bool, opts engine.Options, logger *slog.Logger) (*engine.Simulation, uint64, error) {
	field := world.NewField(cfg.Simulation.Seed, cfg.Simulation.Radius)

	if db.HasWorldState() && !fresh {
		logger.Info("found saved village, loading...")
		return db.LoadSimulation(field, opts)
	}

	logger.Info("spawning new village", "agents", cfg.Simulation.Agents, "seed", cfg.Simulation.Seed)
	radius := cfg.Simulation.Radius / 2
	pop := agents.NewSpawner(cfg.Simulation.Seed).SpawnPopulation(cfg.Simulation.Agents, opts.Home, radius, 0)
	sim := engine.NewSimulation(field, pop, opts)
	if _, err := db.SaveWorldState(sim.Capture()); err != nil {
		return nil, 0, fmt.Errorf("initial save: %w", err)
	}
	return sim, 0, nil
}
