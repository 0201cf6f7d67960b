package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/profile"

	"github.com/pthm-cable/cellsim/components"
	"github.com/pthm-cable/cellsim/config"
	"github.com/pthm-cable/cellsim/sim"
)

func main() {
	os.Exit(runMain())
}

// runMain runs the CLI and returns the process exit code. Deferred cleanup,
// including the CPU profile, finishes before main exits.
func runMain() int {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	genomePath := flag.String("genome", "", "Path to a genome YAML with a top-level modes list (empty = config modes)")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	debug := flag.Bool("debug", false, "Enable debug logging")
	statsWindow := flag.Float64("stats-window", 0, "Stats window size in seconds (0 = use config)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	spawn := flag.Int("spawn", 0, "Cells to spawn at start (0 = use config)")
	maxSteps := flag.Int64("max-steps", 0, "Stop after N steps (0 = unlimited)")
	cellLimit := flag.Int("cell-limit", 0, "Population ceiling (0 = use config)")
	cpuProfile := flag.String("cpuprofile", "", "Write a CPU profile to this directory")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	cfg := config.Cfg()

	if *statsWindow > 0 {
		cfg.Telemetry.StatsWindow = *statsWindow
	}
	if *cellLimit > 0 {
		cfg.Simulation.CellLimit = *cellLimit
	}

	opts := sim.Options{
		Seed:      *seed,
		LogStats:  *logStats,
		OutputDir: *outputDir,
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	if *genomePath != "" {
		modes, err := config.LoadGenome(*genomePath)
		if err != nil {
			slog.Error("failed to load genome", "error", err)
			return 1
		}
		opts.Modes = components.GenomeFromConfig(modes)
	}

	if *cpuProfile != "" {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(*cpuProfile), profile.NoShutdownHook).Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, *spawn, *maxSteps); err != nil {
		slog.Error("simulation failed", "error", err)
		return 1
	}
	return 0
}

// run steps the simulation until maxSteps is reached or ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, opts sim.Options, spawn int, maxSteps int64) error {
	s, err := sim.New(cfg, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			slog.Error("failed to close output", "error", err)
		}
	}()

	queued := s.Spawn(spawn)
	slog.Info("starting simulation",
		"seed", opts.Seed,
		"spawned", queued,
		"cell_limit", s.CellLimit(),
		"max_steps", maxSteps,
	)

	start := time.Now()
	reason := "max steps reached"
	for maxSteps <= 0 || s.StepCount() < maxSteps {
		if ctx.Err() != nil {
			reason = "interrupted"
			break
		}
		s.Step()
	}

	snap := s.Snapshot()
	slog.Info(reason,
		"step", snap.Step,
		"live", snap.LiveCount,
		"links", s.Links(),
		"elapsed", time.Since(start).String(),
		"perf", s.PerfStats(),
	)
	s.LogCellIDs(16)
	return nil
}
