package sim

import (
	"log/slog"

	"github.com/pthm-cable/cellsim/telemetry"
)

// flushTelemetry checks if the stats window should be flushed and handles bookmarks.
func (s *Simulation) flushTelemetry() {
	if !s.collector.ShouldFlush(s.step) {
		return
	}

	stats := s.collector.Flush(s.step, s.sampleWindow())
	perfStats := s.perf.Stats()

	if s.statsCallback != nil {
		s.statsCallback(stats)
	}

	if s.logStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if err := s.output.WriteStats(stats); err != nil {
		slog.Error("failed to write stats", "error", err)
	}
	if err := s.output.WritePerf(perfStats, stats.WindowEndStep); err != nil {
		slog.Error("failed to write perf", "error", err)
	}

	for _, bm := range s.bookmarks.Check(stats) {
		if s.logStats {
			bm.LogBookmark()
		}
		if err := s.output.WriteBookmark(bm); err != nil {
			slog.Error("failed to write bookmark", "error", err)
		}
	}
}

// sampleWindow collects the population state for the end of a window.
func (s *Simulation) sampleWindow() telemetry.Snapshot {
	th := s.cfg.Simulation.DeathThreshold
	n := s.store.Count()
	read := s.store.Read()

	s.masses = s.masses[:0]
	for i := 0; i < n; i++ {
		if read[i].Alive(th) {
			s.masses = append(s.masses, read[i].Mass)
		}
	}

	return telemetry.Snapshot{
		Live:          len(s.masses),
		Slots:         n,
		CellLimit:     s.pop.Limit(),
		Links:         s.adhesion.Links(),
		ActiveBuckets: len(s.grid.ActiveBuckets()),
		Masses:        s.masses,
	}
}
