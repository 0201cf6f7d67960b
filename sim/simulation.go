// Package sim owns the cell buffers and advances them one step at a time.
package sim

import (
	"fmt"
	"log/slog"

	"github.com/pthm-cable/cellsim/components"
	"github.com/pthm-cable/cellsim/config"
	"github.com/pthm-cable/cellsim/systems"
	"github.com/pthm-cable/cellsim/telemetry"
)

// Options configures a Simulation beyond its Config.
type Options struct {
	Seed      int64                // Seed for procedural spawning
	Modes     components.ModeTable // nil = modes from the config
	LogStats  bool                 // Log window stats and bookmarks via slog
	OutputDir string               // "" disables CSV output

	// StatsCallback, if set, receives every flushed stats window.
	StatsCallback func(telemetry.WindowStats)
}

// Simulation is the context object for one population of cells. It is not
// safe for concurrent use: host calls and Step must come from one goroutine.
type Simulation struct {
	cfg   *config.Config
	modes components.ModeTable

	dev      *systems.Device
	store    *systems.CellStore
	ids      *systems.IDRegistry
	grid     *systems.SpatialGrid
	pop      *systems.PopulationController
	physics  *systems.PhysicsSystem
	split    *systems.SplittingSystem
	adhesion *systems.AdhesionSystem
	spawner  *systems.Spawner

	step      int64
	published int // live count as of the previous step

	// Interactive drag
	dragged   int
	draggedID components.UniqueID

	// Capacity reporting
	dropping bool

	// Telemetry
	perf          *telemetry.PerfCollector
	collector     *telemetry.Collector
	bookmarks     *telemetry.BookmarkDetector
	output        *telemetry.OutputManager
	logStats      bool
	statsCallback func(telemetry.WindowStats)
	masses        []float64
}

// New builds a simulation from cfg (nil = embedded defaults). Configuration
// problems are reported as ErrConfiguration.
func New(cfg *config.Config, opts Options) (*Simulation, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Refresh(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	modes := opts.Modes
	if modes == nil {
		modes = components.GenomeFromConfig(cfg.Modes)
	}
	if modes.ModeCount() == 0 {
		return nil, fmt.Errorf("%w: mode table is empty", ErrConfiguration)
	}
	if cfg.Simulation.InitialMode >= modes.ModeCount() {
		return nil, fmt.Errorf("%w: initial mode %d out of range of %d modes",
			ErrConfiguration, cfg.Simulation.InitialMode, modes.ModeCount())
	}

	simCfg := cfg.Simulation
	phys := cfg.Physics

	grid, err := systems.NewSpatialGrid(phys.Boundary, phys.GridCellSize, simCfg.MaxCells)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	output, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("creating output manager: %w", err)
	}
	if err := output.WriteConfig(cfg); err != nil {
		output.Close()
		return nil, fmt.Errorf("writing config: %w", err)
	}

	store := systems.NewCellStore(simCfg.MaxCells)
	ids := systems.NewIDRegistry(simCfg.MaxCells+simCfg.AdditionQueueSize, 0)
	pop := systems.NewPopulationController(store, ids, simCfg.AdditionQueueSize, simCfg.CellLimit, simCfg.DeathThreshold)

	s := &Simulation{
		cfg:   cfg,
		modes: modes,
		dev:   systems.NewDevice(cfg.Parallel.Workers, cfg.Parallel.Threshold),
		store: store,
		ids:   ids,
		grid:  grid,
		pop:   pop,
		physics: systems.NewPhysicsSystem(systems.PhysicsParams{
			DT:                 simCfg.DT,
			Damping:            phys.Damping,
			DampingTimeScale:   phys.DampingTimeScale,
			Boundary:           phys.Boundary,
			RestitutionLoss:    phys.RestitutionLoss,
			CollisionStiffness: phys.CollisionStiffness,
			DeathThreshold:     simCfg.DeathThreshold,
		}),
		split:    systems.NewSplittingSystem(modes, ids, pop, simCfg.MaxCells, simCfg.DT, simCfg.DeathThreshold),
		adhesion: systems.NewAdhesionSystem(simCfg.DeathThreshold),
		spawner:  systems.NewSpawner(opts.Seed, simCfg.SpawnRadius, simCfg.InitialMass, simCfg.InitialMode),
		dragged:  systems.NoCell,

		perf:          telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		collector:     telemetry.NewCollector(cfg.Telemetry.StatsWindow, simCfg.DT),
		bookmarks:     telemetry.NewBookmarkDetector(10),
		output:        output,
		logStats:      opts.LogStats,
		statsCallback: opts.StatsCallback,
	}

	slog.Info("simulation created",
		"max_cells", simCfg.MaxCells,
		"cell_limit", pop.Limit(),
		"modes", modes.ModeCount(),
		"grid_dims", grid.Dims(),
		"workers", s.dev.Workers(),
	)
	return s, nil
}

// Step advances the simulation by one step. Phases run in a fixed order and
// each one completes before the next begins.
func (s *Simulation) Step() {
	th := s.cfg.Simulation.DeathThreshold
	s.perf.StartStep()
	barriers := s.dev.Stats().Barriers

	s.perf.StartPhase(telemetry.PhaseIDHousekeeping)
	s.published = s.pop.Live()
	s.ids.Merge()

	s.perf.StartPhase(telemetry.PhaseFlush)
	fs := s.pop.Flush(s.dev)
	s.collector.RecordFlush(fs)
	s.reportCapacity(fs)
	s.releaseStaleDrag()

	n := s.store.Count()
	read, write := s.store.Read(), s.store.Write()

	s.perf.StartPhase(telemetry.PhaseSpatialGrid)
	s.grid.Build(s.dev, read, n, th)

	s.perf.StartPhase(telemetry.PhaseForces)
	s.physics.ComputeForces(s.dev, read, write, n, s.grid)

	s.perf.StartPhase(telemetry.PhaseIntegration)
	s.physics.Integrate(s.dev, write, n, s.dragged)

	s.perf.StartPhase(telemetry.PhaseMutation)
	budget := s.pop.Limit() - s.pop.Live() - s.pop.Pending()
	s.collector.RecordDivision(s.split.Run(s.dev, write, n, s.dragged, budget))

	s.perf.StartPhase(telemetry.PhaseAdhesion)
	s.collector.RecordAdhesion(s.adhesion.Update(write, n, s.split.TakeRequests()))

	s.perf.StartPhase(telemetry.PhaseFlagClear)
	systems.ClearSplitFlags(s.dev, write, n)

	s.perf.StartPhase(telemetry.PhaseRecount)
	s.collector.RecordRecount(s.pop.Recount(s.dev, write))
	s.store.Rotate()
	s.step++

	s.perf.StartPhase(telemetry.PhaseTelemetry)
	s.collector.RecordIDPressure(s.ids.TakeExhausted(), s.ids.TakeOverflowed())
	s.perf.AddBarriers(s.dev.Stats().Barriers - barriers)
	s.flushTelemetry()
	s.perf.EndStep()
}

// reportCapacity logs dropped additions: every step at debug level, and
// once at warn level when the population starts pressing its ceiling.
func (s *Simulation) reportCapacity(fs systems.FlushStats) {
	lost := fs.Dropped + fs.Exhausted + fs.QueueDrops
	if lost == 0 {
		s.dropping = false
		return
	}
	slog.Debug("additions dropped",
		"step", s.step,
		"ceiling", fs.Dropped,
		"id_exhausted", fs.Exhausted,
		"queue_full", fs.QueueDrops,
	)
	if !s.dropping {
		s.dropping = true
		slog.Warn("population at capacity, additions dropped",
			"step", s.step,
			"limit", s.pop.Limit(),
			"live", s.pop.Live(),
			"dropped", lost,
		)
	}
}

// releaseStaleDrag ends a drag whose cell died or whose slot was reused.
func (s *Simulation) releaseStaleDrag() {
	if s.dragged == systems.NoCell {
		return
	}
	if s.dragged >= s.store.Count() {
		s.dragged = systems.NoCell
		return
	}
	c := &s.store.Read()[s.dragged]
	if !c.Alive(s.cfg.Simulation.DeathThreshold) || c.ID != s.draggedID {
		s.dragged = systems.NoCell
	}
}

// StepCount returns the number of completed steps.
func (s *Simulation) StepCount() int64 { return s.step }

// Config returns the configuration the simulation was built with.
func (s *Simulation) Config() *config.Config { return s.cfg }

// Links returns the number of live adhesion links.
func (s *Simulation) Links() int { return s.adhesion.Links() }

// PerfStats returns step timing over the perf window.
func (s *Simulation) PerfStats() telemetry.PerfStats { return s.perf.Stats() }

// DeviceStats returns the worker pool's dispatch counters.
func (s *Simulation) DeviceStats() systems.DeviceStats { return s.dev.Stats() }

// Close stops the worker pool and closes any output files.
func (s *Simulation) Close() error {
	s.dev.Close()
	return s.output.Close()
}
