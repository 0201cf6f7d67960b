package telemetry

import "testing"

func hasBookmark(bookmarks []Bookmark, typ BookmarkType) bool {
	for _, b := range bookmarks {
		if b.Type == typ {
			return true
		}
	}
	return false
}

func TestBookmarkDetector_CeilingOnce(t *testing.T) {
	bd := NewBookmarkDetector(10)

	bd.Check(WindowStats{WindowEndStep: 100, Live: 50, CellLimit: 100})
	if !hasBookmark(bd.Check(WindowStats{WindowEndStep: 200, Live: 100, CellLimit: 100, Dropped: 4}), BookmarkCeilingReached) {
		t.Fatal("expected ceiling_reached bookmark")
	}
	if hasBookmark(bd.Check(WindowStats{WindowEndStep: 300, Live: 100, CellLimit: 100}), BookmarkCeilingReached) {
		t.Error("ceiling_reached fired twice while pinned at the limit")
	}
	bd.Check(WindowStats{WindowEndStep: 400, Live: 80, CellLimit: 100})
	if !hasBookmark(bd.Check(WindowStats{WindowEndStep: 500, Live: 100, CellLimit: 100}), BookmarkCeilingReached) {
		t.Error("ceiling_reached did not re-arm after leaving the limit")
	}
}

func TestBookmarkDetector_Crash(t *testing.T) {
	bd := NewBookmarkDetector(10)
	for i := 0; i < 5; i++ {
		bd.Check(WindowStats{WindowEndStep: int64(i * 100), Live: 100})
	}
	bookmarks := bd.Check(WindowStats{WindowEndStep: 600, Live: 50})
	if !hasBookmark(bookmarks, BookmarkPopulationCrash) {
		t.Error("expected population_crash bookmark")
	}
}

func TestBookmarkDetector_NoCrashOnSmallDrop(t *testing.T) {
	bd := NewBookmarkDetector(10)
	for i := 0; i < 5; i++ {
		bd.Check(WindowStats{WindowEndStep: int64(i * 100), Live: 20})
	}
	if hasBookmark(bd.Check(WindowStats{WindowEndStep: 600, Live: 12}), BookmarkPopulationCrash) {
		t.Error("crash fired for a drop of fewer than ten cells")
	}
}

func TestBookmarkDetector_Extinction(t *testing.T) {
	bd := NewBookmarkDetector(10)
	if hasBookmark(bd.Check(WindowStats{WindowEndStep: 100}), BookmarkExtinction) {
		t.Error("extinction fired before any cell lived")
	}
	bd.Check(WindowStats{WindowEndStep: 200, Live: 5})
	if !hasBookmark(bd.Check(WindowStats{WindowEndStep: 300}), BookmarkExtinction) {
		t.Error("expected extinction bookmark")
	}
	if hasBookmark(bd.Check(WindowStats{WindowEndStep: 400}), BookmarkExtinction) {
		t.Error("extinction fired twice")
	}
}

func TestBookmarkDetector_IDExhaustion(t *testing.T) {
	bd := NewBookmarkDetector(10)
	if !hasBookmark(bd.Check(WindowStats{WindowEndStep: 100, Live: 5, IDExhausted: 3}), BookmarkIDExhaustion) {
		t.Error("expected id_exhaustion bookmark")
	}
	if hasBookmark(bd.Check(WindowStats{WindowEndStep: 200, Live: 5, IDExhausted: 1}), BookmarkIDExhaustion) {
		t.Error("id_exhaustion fired on consecutive windows")
	}
}

func TestBookmarkDetector_Stable(t *testing.T) {
	bd := NewBookmarkDetector(10)
	fired := 0
	for i := 0; i < 12; i++ {
		live := 100 + (i%2)*5
		if hasBookmark(bd.Check(WindowStats{WindowEndStep: int64(i * 100), Live: live}), BookmarkStablePopulation) {
			fired++
		}
	}
	if fired != 1 {
		t.Errorf("stable_population fired %d times, want 1", fired)
	}
}
