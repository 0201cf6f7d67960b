package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pthm-cable/cellsim/config"
	"github.com/pthm-cable/cellsim/sim"
)

func smallConfig() *config.Config {
	cfg := config.Default()
	cfg.Simulation.MaxCells = 64
	cfg.Simulation.CellLimit = 64
	cfg.Simulation.AdditionQueueSize = 64
	cfg.Parallel.Workers = 2
	return cfg
}

func TestRunStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		// maxSteps 0 runs until the context ends.
		done <- run(ctx, smallConfig(), sim.Options{Seed: 1}, 10, 0)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run = %v, want nil after interruption", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run kept stepping after cancellation")
	}
}

func TestRunMaxSteps(t *testing.T) {
	if err := run(context.Background(), smallConfig(), sim.Options{Seed: 1}, 10, 3); err != nil {
		t.Errorf("run = %v", err)
	}
}

func TestRunReportsConfigurationError(t *testing.T) {
	cfg := smallConfig()
	cfg.Physics.GridCellSize = 0
	err := run(context.Background(), cfg, sim.Options{Seed: 1}, 10, 3)
	if !errors.Is(err, sim.ErrConfiguration) {
		t.Errorf("run err = %v, want ErrConfiguration", err)
	}
}
