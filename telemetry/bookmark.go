package telemetry

import (
	"fmt"
	"log/slog"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkCeilingReached   BookmarkType = "ceiling_reached"
	BookmarkPopulationCrash  BookmarkType = "population_crash"
	BookmarkExtinction       BookmarkType = "extinction"
	BookmarkIDExhaustion     BookmarkType = "id_exhaustion"
	BookmarkStablePopulation BookmarkType = "stable_population"
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `csv:"type"`
	Step        int64        `csv:"step"`
	Description string       `csv:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"step", b.Step,
		"description", b.Description,
	)
}

// BookmarkDetector detects notable population events across windows.
type BookmarkDetector struct {
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	recentPeak   int
	atCeiling    bool
	extinct      bool
	exhausted    bool
	stableCount  int
	stableLogged bool
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 4 {
		historySize = 4 // stability looks at the last four windows
	}
	return &BookmarkDetector{
		history:     make([]WindowStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats WindowStats) []Bookmark {
	var bookmarks []Bookmark
	for _, check := range []func(WindowStats) *Bookmark{
		bd.checkCeiling,
		bd.checkCrash,
		bd.checkExtinction,
		bd.checkIDExhaustion,
	} {
		if b := check(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}

	bd.addToHistory(stats)

	if b := bd.checkStable(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if stats.Live > bd.recentPeak {
		bd.recentPeak = stats.Live
	}
	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats WindowStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

// recent returns up to n most recent windows, oldest first.
func (bd *BookmarkDetector) recent(n int) []WindowStats {
	size := bd.historyIdx
	if bd.historyFull {
		size = bd.historySize
	}
	if n > size {
		n = size
	}
	out := make([]WindowStats, 0, n)
	for i := n; i > 0; i-- {
		idx := (bd.historyIdx - i + bd.historySize) % bd.historySize
		out = append(out, bd.history[idx])
	}
	return out
}

// checkCeiling fires once each time the population first presses against its
// limit, either by filling it or by having admissions dropped.
func (bd *BookmarkDetector) checkCeiling(stats WindowStats) *Bookmark {
	pressed := stats.CellLimit > 0 && (stats.Live >= stats.CellLimit || stats.Dropped > 0)
	if !pressed {
		bd.atCeiling = false
		return nil
	}
	if bd.atCeiling {
		return nil
	}
	bd.atCeiling = true
	return &Bookmark{
		Type:        BookmarkCeilingReached,
		Step:        stats.WindowEndStep,
		Description: fmt.Sprintf("Population %d reached limit %d, %d dropped", stats.Live, stats.CellLimit, stats.Dropped),
	}
}

func (bd *BookmarkDetector) checkCrash(stats WindowStats) *Bookmark {
	if bd.recentPeak == 0 {
		return nil
	}
	drop := 1.0 - float64(stats.Live)/float64(bd.recentPeak)
	if drop > 0.30 && stats.Live < bd.recentPeak-10 {
		oldPeak := bd.recentPeak
		bd.recentPeak = stats.Live
		return &Bookmark{
			Type:        BookmarkPopulationCrash,
			Step:        stats.WindowEndStep,
			Description: fmt.Sprintf("Population crashed %.0f%% from peak %d to %d", drop*100, oldPeak, stats.Live),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkExtinction(stats WindowStats) *Bookmark {
	if stats.Live > 0 {
		bd.extinct = false
		return nil
	}
	if bd.extinct || bd.recentPeak == 0 {
		return nil
	}
	bd.extinct = true
	return &Bookmark{
		Type:        BookmarkExtinction,
		Step:        stats.WindowEndStep,
		Description: fmt.Sprintf("No live cells remain (peak %d)", bd.recentPeak),
	}
}

func (bd *BookmarkDetector) checkIDExhaustion(stats WindowStats) *Bookmark {
	if stats.IDExhausted == 0 {
		bd.exhausted = false
		return nil
	}
	if bd.exhausted {
		return nil
	}
	bd.exhausted = true
	return &Bookmark{
		Type:        BookmarkIDExhaustion,
		Step:        stats.WindowEndStep,
		Description: fmt.Sprintf("%d cell ID allocations failed", stats.IDExhausted),
	}
}

// checkStable fires once when the live count varies by less than 20% over
// the last four windows for five consecutive windows.
func (bd *BookmarkDetector) checkStable(stats WindowStats) *Bookmark {
	if stats.Live < 10 {
		bd.stableCount = 0
		bd.stableLogged = false
		return nil
	}
	window := bd.recent(4)
	if len(window) < 4 {
		return nil
	}

	var sum float64
	for _, h := range window {
		sum += float64(h.Live)
	}
	mean := sum / float64(len(window))
	var variance float64
	for _, h := range window {
		d := float64(h.Live) - mean
		variance += d * d
	}
	variance /= float64(len(window))

	// CV^2 < 0.04 means CV < 0.2
	if mean > 0 && variance/(mean*mean) < 0.04 {
		bd.stableCount++
	} else {
		bd.stableCount = 0
		bd.stableLogged = false
	}

	if bd.stableCount >= 5 && !bd.stableLogged {
		bd.stableLogged = true
		return &Bookmark{
			Type:        BookmarkStablePopulation,
			Step:        stats.WindowEndStep,
			Description: fmt.Sprintf("Population stable around %.0f cells over 5+ windows", mean),
		}
	}
	return nil
}
