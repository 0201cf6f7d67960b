// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is wrapped by every ValidationError.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all simulation configuration parameters.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Physics    PhysicsConfig    `yaml:"physics"`
	Parallel   ParallelConfig   `yaml:"parallel"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Modes      []ModeConfig     `yaml:"modes"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SimulationConfig holds population and stepping parameters.
type SimulationConfig struct {
	MaxCells          int     `yaml:"max_cells"`           // Hard capacity of every cell buffer
	CellLimit         int     `yaml:"cell_limit"`          // Population ceiling (<= max_cells, mutable at runtime)
	DefaultCellCount  int     `yaml:"default_cell_count"`  // Cells spawned by Spawn(0) and the headless runner
	SpawnRadius       float64 `yaml:"spawn_radius"`        // Procedural spawn radius around the origin
	DT                float64 `yaml:"dt"`                  // Seconds per step
	DeathThreshold    float64 `yaml:"death_threshold"`     // Mass at or below this is dead
	AdditionQueueSize int     `yaml:"addition_queue_size"` // Pending-addition queue capacity per step
	InitialMass       float64 `yaml:"initial_mass"`        // Mass of procedurally spawned cells
	InitialMode       int     `yaml:"initial_mode"`        // Mode index of procedurally spawned cells
}

// PhysicsConfig holds integration, boundary and grid parameters.
type PhysicsConfig struct {
	Damping            float64 `yaml:"damping"`             // Velocity retained per damping_time_scale^-1 seconds
	DampingTimeScale   float64 `yaml:"damping_time_scale"`  // k in damping^(dt*k)
	Boundary           float64 `yaml:"boundary"`            // Half-extent of the cubic world
	RestitutionLoss    float64 `yaml:"restitution_loss"`    // Fraction of normal speed lost on wall contact
	GridCellSize       float64 `yaml:"grid_cell_size"`      // Edge length of a grid bucket
	CollisionStiffness float64 `yaml:"collision_stiffness"` // Soft-sphere repulsion per unit overlap
	MaxGridBuckets     int     `yaml:"max_grid_buckets"`    // Upper bound on dims^3
}

// ParallelConfig holds worker pool parameters.
type ParallelConfig struct {
	Workers   int `yaml:"workers"`   // 0 = GOMAXPROCS
	Threshold int `yaml:"threshold"` // Below this many items a phase runs on the caller
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow         float64 `yaml:"stats_window"`          // Seconds of simulated time per stats window
	PerfCollectorWindow int     `yaml:"perf_collector_window"` // Steps averaged by the perf collector
}

// ModeConfig is the YAML form of one genome mode.
type ModeConfig struct {
	Name           string         `yaml:"name"`
	Color          [3]float64     `yaml:"color"`
	SplitInterval  float64        `yaml:"split_interval"`  // Seconds of age before division (<= 0 never divides)
	SplitDirection [3]float64     `yaml:"split_direction"` // Division axis in the cell's local frame
	GrowthRate     float64        `yaml:"growth_rate"`     // Mass per second; negative decays toward death
	ChildA         ChildConfig    `yaml:"child_a"`
	ChildB         ChildConfig    `yaml:"child_b"`
	Adhesion       AdhesionConfig `yaml:"adhesion"`
}

// ChildConfig describes one daughter produced by a division.
type ChildConfig struct {
	Mode        int        `yaml:"mode"`
	Orientation [4]float64 `yaml:"orientation"` // w, x, y, z relative to the parent; zero = identity
}

// AdhesionConfig holds the sibling constraint parameters of a mode.
type AdhesionConfig struct {
	Enabled          bool    `yaml:"enabled"`
	Stiffness        float64 `yaml:"stiffness"`
	Damping          float64 `yaml:"damping"`
	AngularStiffness float64 `yaml:"angular_stiffness"`
	AngularDamping   float64 `yaml:"angular_damping"`
	RestLength       float64 `yaml:"rest_length"` // 0 = distance at the moment the link forms
	BreakForce       float64 `yaml:"break_force"` // 0 = unbreakable
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	GridDims     int     // Buckets per axis
	GridBuckets  int     // GridDims^3
	DampingPower float64 // DT * DampingTimeScale
}

// genomeFile is the on-disk layout accepted by LoadGenome.
type genomeFile struct {
	Modes []ModeConfig `yaml:"modes"`
}

// maxGridDims keeps dims^3 representable.
const maxGridDims = 1 << 20

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns the embedded defaults. It panics if they fail to parse or validate.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.computeDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadGenome reads a standalone genome file (a top-level "modes" list).
func LoadGenome(path string) ([]ModeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genome file: %w", err)
	}
	var g genomeFile
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genome file: %w", err)
	}
	if len(g.Modes) == 0 {
		return nil, &ValidationError{Field: "modes", Reason: "genome file defines no modes"}
	}
	if err := validateModes(g.Modes); err != nil {
		return nil, err
	}
	return g.Modes, nil
}

// Refresh recomputes derived values and validates. Call it after editing a loaded Config.
func (c *Config) Refresh() error {
	c.computeDerived()
	return c.Validate()
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.GridDims = 0
	c.Derived.GridBuckets = 0
	if c.Physics.GridCellSize > 0 && c.Physics.Boundary > 0 {
		dims := int(math.Ceil(2 * c.Physics.Boundary / c.Physics.GridCellSize))
		if dims < 1 {
			dims = 1
		}
		c.Derived.GridDims = dims
		if dims > maxGridDims {
			c.Derived.GridBuckets = math.MaxInt
		} else {
			c.Derived.GridBuckets = dims * dims * dims
		}
	}
	c.Derived.DampingPower = c.Simulation.DT * c.Physics.DampingTimeScale
}

// ValidationError reports a field that makes the configuration unusable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Validate rejects configurations that would produce degenerate buffers or grids.
// Only initialization can fail this way; nothing is re-validated at runtime.
func (c *Config) Validate() error {
	sim := c.Simulation
	phys := c.Physics

	switch {
	case sim.MaxCells <= 0:
		return &ValidationError{"simulation.max_cells", "must be positive"}
	case sim.CellLimit < 0 || sim.CellLimit > sim.MaxCells:
		return &ValidationError{"simulation.cell_limit", "must be within [0, max_cells]"}
	case sim.DT <= 0:
		return &ValidationError{"simulation.dt", "must be positive"}
	case sim.DeathThreshold < 0:
		return &ValidationError{"simulation.death_threshold", "must not be negative"}
	case sim.AdditionQueueSize <= 0:
		return &ValidationError{"simulation.addition_queue_size", "must be positive"}
	case sim.SpawnRadius < 0:
		return &ValidationError{"simulation.spawn_radius", "must not be negative"}
	case sim.InitialMass <= sim.DeathThreshold:
		return &ValidationError{"simulation.initial_mass", "must exceed death_threshold"}
	}

	switch {
	case phys.Boundary <= 0 || math.IsInf(phys.Boundary, 0):
		return &ValidationError{"physics.boundary", "must be positive and finite"}
	case phys.GridCellSize <= 0 || math.IsNaN(phys.GridCellSize):
		return &ValidationError{"physics.grid_cell_size", "must be positive"}
	case phys.GridCellSize > 2*phys.Boundary:
		return &ValidationError{"physics.grid_cell_size", "exceeds the world extent"}
	case c.Derived.GridBuckets <= 0 || c.Derived.GridBuckets == math.MaxInt ||
		(phys.MaxGridBuckets > 0 && c.Derived.GridBuckets > phys.MaxGridBuckets):
		return &ValidationError{"physics.grid_cell_size", fmt.Sprintf("produces %d buckets (max %d)", c.Derived.GridBuckets, phys.MaxGridBuckets)}
	case phys.Damping <= 0 || phys.Damping > 1:
		return &ValidationError{"physics.damping", "must be within (0, 1]"}
	case phys.DampingTimeScale < 0:
		return &ValidationError{"physics.damping_time_scale", "must not be negative"}
	case phys.RestitutionLoss < 0 || phys.RestitutionLoss > 1:
		return &ValidationError{"physics.restitution_loss", "must be within [0, 1]"}
	}

	if len(c.Modes) == 0 {
		return &ValidationError{"modes", "at least one mode is required"}
	}
	if sim.InitialMode < 0 || sim.InitialMode >= len(c.Modes) {
		return &ValidationError{"simulation.initial_mode", "out of range of modes"}
	}
	return validateModes(c.Modes)
}

func validateModes(modes []ModeConfig) error {
	for i, m := range modes {
		for _, child := range []ChildConfig{m.ChildA, m.ChildB} {
			if child.Mode < 0 || child.Mode >= len(modes) {
				return &ValidationError{
					Field:  fmt.Sprintf("modes[%d]", i),
					Reason: fmt.Sprintf("child mode %d out of range", child.Mode),
				}
			}
		}
		if m.Adhesion.BreakForce < 0 {
			return &ValidationError{fmt.Sprintf("modes[%d].adhesion.break_force", i), "must not be negative"}
		}
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
