package telemetry

import "github.com/pthm-cable/cellsim/systems"

// Collector accumulates per-step events within windows and produces WindowStats.
type Collector struct {
	windowDurationSec   float64
	windowDurationSteps int64
	dt                  float64

	windowStartStep int64

	// Event counters for current window
	divisions        int
	deferred         int
	deaths           int
	starved          int
	admitted         int
	reused           int
	dropped          int
	queueDrops       int
	idExhausted      int
	recycleOverflows int
	linksFormed      int
	linksBroken      int
	linksDissolved   int
}

// NewCollector creates a new stats collector.
// windowDurationSec: how long each stats window lasts in simulation seconds
// dt: seconds per step
func NewCollector(windowDurationSec, dt float64) *Collector {
	var steps int64 = 1
	if dt > 0 {
		steps = int64(windowDurationSec / dt)
	}
	if steps < 1 {
		steps = 1
	}
	return &Collector{
		windowDurationSec:   windowDurationSec,
		windowDurationSteps: steps,
		dt:                  dt,
	}
}

// RecordFlush records the outcome of a queue flush.
func (c *Collector) RecordFlush(st systems.FlushStats) {
	c.admitted += st.Admitted
	c.reused += st.Reused
	c.dropped += st.Dropped + st.Exhausted
	c.queueDrops += st.QueueDrops
}

// RecordDivision records the outcome of the division pass.
func (c *Collector) RecordDivision(st systems.DivisionStats) {
	c.divisions += st.Divisions
	c.deferred += st.Deferred
	c.starved += st.Starved
}

// RecordAdhesion records link changes.
func (c *Collector) RecordAdhesion(st systems.AdhesionStats) {
	c.linksFormed += st.Formed
	c.linksBroken += st.Broken
	c.linksDissolved += st.Dissolved
}

// RecordRecount records retired cells.
func (c *Collector) RecordRecount(st systems.RecountStats) {
	c.deaths += st.Died
}

// RecordIDPressure records allocation failures and recycle-list overflows
// reported by the ID registry, whichever phase hit them.
func (c *Collector) RecordIDPressure(exhausted, overflowed uint64) {
	c.idExhausted += int(exhausted)
	c.recycleOverflows += int(overflowed)
}

// ShouldFlush returns true if enough steps have passed to flush the window.
func (c *Collector) ShouldFlush(currentStep int64) bool {
	return currentStep-c.windowStartStep >= c.windowDurationSteps
}

// Snapshot is the population state sampled at window end.
type Snapshot struct {
	Live          int
	Slots         int
	CellLimit     int
	Links         int
	ActiveBuckets int
	Masses        []float64 // sorted in place
}

// Flush produces a WindowStats and resets counters for the next window.
func (c *Collector) Flush(currentStep int64, snap Snapshot) WindowStats {
	ms := ComputeMassStats(snap.Masses)

	stats := WindowStats{
		WindowStartStep: c.windowStartStep,
		WindowEndStep:   currentStep,
		SimTimeSec:      float64(currentStep) * c.dt,

		Live:      snap.Live,
		Slots:     snap.Slots,
		CellLimit: snap.CellLimit,

		Divisions: c.divisions,
		Deferred:  c.deferred,
		Deaths:    c.deaths,
		Starved:   c.starved,
		Admitted:  c.admitted,
		Reused:    c.reused,
		Dropped:   c.dropped,

		QueueDrops:       c.queueDrops,
		IDExhausted:      c.idExhausted,
		RecycleOverflows: c.recycleOverflows,

		LinksFormed:    c.linksFormed,
		LinksBroken:    c.linksBroken,
		LinksDissolved: c.linksDissolved,
		Links:          snap.Links,

		MassMean: ms.Mean,
		MassStd:  ms.Std,
		MassP10:  ms.P10,
		MassP50:  ms.P50,
		MassP90:  ms.P90,

		ActiveBuckets: snap.ActiveBuckets,
	}

	start := currentStep
	*c = Collector{
		windowDurationSec:   c.windowDurationSec,
		windowDurationSteps: c.windowDurationSteps,
		dt:                  c.dt,
		windowStartStep:     start,
	}
	return stats
}

// WindowDurationSteps returns the number of steps per window.
func (c *Collector) WindowDurationSteps() int64 {
	return c.windowDurationSteps
}

// Reset restarts windowing at the given step and clears all counters.
func (c *Collector) Reset(step int64) {
	*c = Collector{
		windowDurationSec:   c.windowDurationSec,
		windowDurationSteps: c.windowDurationSteps,
		dt:                  c.dt,
		windowStartStep:     step,
	}
}
