package telemetry

import (
	"log/slog"
	"time"
)

// Phase names for the simulation step, in execution order.
const (
	PhaseIDHousekeeping = "id_housekeeping"
	PhaseFlush          = "flush"
	PhaseSpatialGrid    = "spatial_grid"
	PhaseForces         = "forces"
	PhaseIntegration    = "integration"
	PhaseMutation       = "mutation"
	PhaseAdhesion       = "adhesion"
	PhaseFlagClear      = "flag_clear"
	PhaseRecount        = "recount"
	PhaseTelemetry      = "telemetry"
)

// Phases lists every phase in execution order.
var Phases = []string{
	PhaseIDHousekeeping, PhaseFlush, PhaseSpatialGrid, PhaseForces,
	PhaseIntegration, PhaseMutation, PhaseAdhesion, PhaseFlagClear,
	PhaseRecount, PhaseTelemetry,
}

// PerfSample holds timing data for a single step.
type PerfSample struct {
	StepDuration time.Duration
	Phases       map[string]time.Duration
	Barriers     uint64
}

// PerfCollector tracks performance metrics over a rolling window.
type PerfCollector struct {
	windowSize      int
	samples         []PerfSample
	writeIndex      int
	sampleCount     int
	currentPhases   map[string]time.Duration
	currentBarriers uint64
	stepStart       time.Time
	phaseStart      time.Time
	lastPhase       string
}

// NewPerfCollector creates a new performance collector.
// windowSize: number of steps to average over.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartStep begins timing a new simulation step.
func (p *PerfCollector) StartStep() {
	p.stepStart = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.currentBarriers = 0
	p.lastPhase = ""
}

// StartPhase begins timing a specific phase, ending the previous one.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// AddBarriers records device barriers crossed during the current step.
func (p *PerfCollector) AddBarriers(n uint64) {
	p.currentBarriers += n
}

// EndStep finishes timing the current step and records the sample.
func (p *PerfCollector) EndStep() {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	p.samples[p.writeIndex] = PerfSample{
		StepDuration: now.Sub(p.stepStart),
		Phases:       p.currentPhases,
		Barriers:     p.currentBarriers,
	}
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	AvgStepDuration time.Duration
	MinStepDuration time.Duration
	MaxStepDuration time.Duration

	// Phase breakdown (average durations and share of step time)
	PhaseAvg map[string]time.Duration
	PhasePct map[string]float64

	StepsPerSecond  float64
	BarriersPerStep float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p.sampleCount == 0 {
		return PerfStats{
			PhaseAvg: make(map[string]time.Duration),
			PhasePct: make(map[string]float64),
		}
	}

	var totalStep time.Duration
	var minStep, maxStep time.Duration
	var barriers uint64
	phaseSum := make(map[string]time.Duration)

	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		totalStep += s.StepDuration
		barriers += s.Barriers

		if i == 0 || s.StepDuration < minStep {
			minStep = s.StepDuration
		}
		if s.StepDuration > maxStep {
			maxStep = s.StepDuration
		}

		for phase, dur := range s.Phases {
			phaseSum[phase] += dur
		}
	}

	avgStep := totalStep / time.Duration(p.sampleCount)

	phaseAvg := make(map[string]time.Duration)
	phasePct := make(map[string]float64)
	for phase, sum := range phaseSum {
		phaseAvg[phase] = sum / time.Duration(p.sampleCount)
		if avgStep > 0 {
			phasePct[phase] = float64(phaseAvg[phase]) / float64(avgStep) * 100
		}
	}

	var stepsPerSec float64
	if avgStep > 0 {
		stepsPerSec = float64(time.Second) / float64(avgStep)
	}

	return PerfStats{
		AvgStepDuration: avgStep,
		MinStepDuration: minStep,
		MaxStepDuration: maxStep,
		PhaseAvg:        phaseAvg,
		PhasePct:        phasePct,
		StepsPerSecond:  stepsPerSec,
		BarriersPerStep: float64(barriers) / float64(p.sampleCount),
	}
}

// LogStats logs performance statistics.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_step_us", s.AvgStepDuration.Microseconds(),
		"min_step_us", s.MinStepDuration.Microseconds(),
		"max_step_us", s.MaxStepDuration.Microseconds(),
		"steps_per_sec", int(s.StepsPerSecond),
		"barriers_per_step", s.BarriersPerStep,
	}

	for _, phase := range Phases {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, phase+"_pct", float64(int(pct*10))/10.0)
		}
	}

	slog.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_step_us", s.AvgStepDuration.Microseconds()),
		slog.Int64("min_step_us", s.MinStepDuration.Microseconds()),
		slog.Int64("max_step_us", s.MaxStepDuration.Microseconds()),
		slog.Float64("steps_per_sec", s.StepsPerSecond),
		slog.Float64("barriers_per_step", s.BarriersPerStep),
	}

	for _, phase := range Phases {
		if pct, ok := s.PhasePct[phase]; ok {
			attrs = append(attrs, slog.Float64(phase+"_pct", pct))
		}
	}

	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	WindowEnd         int64   `csv:"window_end"`
	AvgStepUS         int64   `csv:"avg_step_us"`
	MinStepUS         int64   `csv:"min_step_us"`
	MaxStepUS         int64   `csv:"max_step_us"`
	StepsPerSec       float64 `csv:"steps_per_sec"`
	BarriersPerStep   float64 `csv:"barriers_per_step"`
	IDHousekeepingPct float64 `csv:"id_housekeeping_pct"`
	FlushPct          float64 `csv:"flush_pct"`
	SpatialGridPct    float64 `csv:"spatial_grid_pct"`
	ForcesPct         float64 `csv:"forces_pct"`
	IntegrationPct    float64 `csv:"integration_pct"`
	MutationPct       float64 `csv:"mutation_pct"`
	AdhesionPct       float64 `csv:"adhesion_pct"`
	FlagClearPct      float64 `csv:"flag_clear_pct"`
	RecountPct        float64 `csv:"recount_pct"`
	TelemetryPct      float64 `csv:"telemetry_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(windowEnd int64) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:         windowEnd,
		AvgStepUS:         s.AvgStepDuration.Microseconds(),
		MinStepUS:         s.MinStepDuration.Microseconds(),
		MaxStepUS:         s.MaxStepDuration.Microseconds(),
		StepsPerSec:       s.StepsPerSecond,
		BarriersPerStep:   s.BarriersPerStep,
		IDHousekeepingPct: s.PhasePct[PhaseIDHousekeeping],
		FlushPct:          s.PhasePct[PhaseFlush],
		SpatialGridPct:    s.PhasePct[PhaseSpatialGrid],
		ForcesPct:         s.PhasePct[PhaseForces],
		IntegrationPct:    s.PhasePct[PhaseIntegration],
		MutationPct:       s.PhasePct[PhaseMutation],
		AdhesionPct:       s.PhasePct[PhaseAdhesion],
		FlagClearPct:      s.PhasePct[PhaseFlagClear],
		RecountPct:        s.PhasePct[PhaseRecount],
		TelemetryPct:      s.PhasePct[PhaseTelemetry],
	}
}
