package telemetry

import (
	"log/slog"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for a window of steps.
type WindowStats struct {
	WindowStartStep int64   `csv:"-"`
	WindowEndStep   int64   `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	// Population at window end
	Live      int `csv:"live"`
	Slots     int `csv:"slots"`
	CellLimit int `csv:"cell_limit"`

	// Events during window
	Divisions int `csv:"divisions"`
	Deferred  int `csv:"deferred"`
	Deaths    int `csv:"deaths"`
	Starved   int `csv:"starved"`
	Admitted  int `csv:"admitted"`
	Reused    int `csv:"reused"`
	Dropped   int `csv:"dropped"`

	// Queue and identifier pressure
	QueueDrops       int `csv:"queue_drops"`
	IDExhausted      int `csv:"id_exhausted"`
	RecycleOverflows int `csv:"recycle_overflows"`

	// Adhesion
	LinksFormed    int `csv:"links_formed"`
	LinksBroken    int `csv:"links_broken"`
	LinksDissolved int `csv:"links_dissolved"`
	Links          int `csv:"links"`

	// Mass distribution (sampled at window end)
	MassMean float64 `csv:"mass_mean"`
	MassStd  float64 `csv:"mass_std"`
	MassP10  float64 `csv:"mass_p10"`
	MassP50  float64 `csv:"mass_p50"`
	MassP90  float64 `csv:"mass_p90"`

	ActiveBuckets int `csv:"active_buckets"`
}

// MassStats summarises a mass sample. The slice is sorted in place.
type MassStats struct {
	Mean, Std     float64
	P10, P50, P90 float64
}

// ComputeMassStats returns mean, standard deviation and empirical quantiles.
// An empty sample yields zeros.
func ComputeMassStats(values []float64) MassStats {
	if len(values) == 0 {
		return MassStats{}
	}
	slices.Sort(values)

	var ms MassStats
	if len(values) > 1 {
		ms.Mean, ms.Std = stat.MeanStdDev(values, nil)
	} else {
		ms.Mean = values[0]
	}
	ms.P10 = stat.Quantile(0.1, stat.Empirical, values, nil)
	ms.P50 = stat.Quantile(0.5, stat.Empirical, values, nil)
	ms.P90 = stat.Quantile(0.9, stat.Empirical, values, nil)
	return ms
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("window_end", s.WindowEndStep),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("live", s.Live),
		slog.Int("slots", s.Slots),
		slog.Int("divisions", s.Divisions),
		slog.Int("deaths", s.Deaths),
		slog.Int("dropped", s.Dropped),
		slog.Int("links", s.Links),
		slog.Float64("mass_mean", s.MassMean),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndStep,
		"sim_time", s.SimTimeSec,
		"live", s.Live,
		"slots", s.Slots,
		"limit", s.CellLimit,
		"divisions", s.Divisions,
		"deferred", s.Deferred,
		"deaths", s.Deaths,
		"starved", s.Starved,
		"admitted", s.Admitted,
		"dropped", s.Dropped,
		"queue_drops", s.QueueDrops,
		"id_exhausted", s.IDExhausted,
		"links", s.Links,
		"links_broken", s.LinksBroken,
		"mass_p50", s.MassP50,
		"active_buckets", s.ActiveBuckets,
	)
}
