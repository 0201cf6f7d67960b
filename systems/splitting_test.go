package systems

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/cellsim/components"
)

func testGenome() components.Genome {
	return components.Genome{
		{
			Name:           "divider",
			SplitInterval:  2.0,
			SplitDirection: r3.Vec{X: 1},
			ChildA:         components.ChildSpec{Mode: 0, Orientation: components.Identity},
			ChildB:         components.ChildSpec{Mode: 1, Orientation: components.QuatFromAxisAngle(r3.Vec{Z: 1}, math.Pi/2)},
			Adhesion:       components.AdhesionParams{Enabled: true, Stiffness: 5},
		},
		{
			Name:       "decayer",
			GrowthRate: -1,
			ChildA:     components.ChildSpec{Mode: 1, Orientation: components.Identity},
			ChildB:     components.ChildSpec{Mode: 1, Orientation: components.Identity},
		},
	}
}

type splitFixture struct {
	*popFixture
	split *SplittingSystem
}

func newSplitFixture(t *testing.T) *splitFixture {
	f := newPopFixture(t, 16, 16, 16)
	return &splitFixture{
		popFixture: f,
		split:      NewSplittingSystem(testGenome(), f.ids, f.pop, 16, 0.1, testThreshold),
	}
}

func (f *splitFixture) parent(mode int) components.Cell {
	c := components.NewCell(r3.Vec{X: 1, Y: 2, Z: 3}, 8, mode)
	c.ID = components.PackID(0, f.ids.Allocate(), 0)
	return c
}

func TestDivisionAtSplitInterval(t *testing.T) {
	f := newSplitFixture(t)
	cells := []components.Cell{f.parent(0)}
	parentID := cells[0].ID.Cell()

	for step := 1; step < 20; step++ {
		st := f.split.Run(f.dev, cells, 1, NoCell, 100)
		if st.Divisions != 0 {
			t.Fatalf("divided early at step %d (age %v)", step, cells[0].Age)
		}
	}
	st := f.split.Run(f.dev, cells, 1, NoCell, 100)
	if st.Divisions != 1 {
		t.Fatalf("no division at step 20 (age %v)", cells[0].Age)
	}
	if cells[0].Mass != 0 {
		t.Errorf("parent mass = %v after division, want 0", cells[0].Mass)
	}
	if f.pop.Pending() != 2 {
		t.Fatalf("pending = %d, want 2", f.pop.Pending())
	}

	a, b := f.pop.queue[0], f.pop.queue[1]
	if a.ID.Cell() == b.ID.Cell() {
		t.Error("daughters share a cell ID")
	}
	if a.ID.Parent() != parentID || b.ID.Parent() != parentID {
		t.Errorf("parents %d and %d, want %d", a.ID.Parent(), b.ID.Parent(), parentID)
	}
	if a.ID.ChildFlag() != 0 || b.ID.ChildFlag() != 1 {
		t.Errorf("child flags %d and %d, want 0 and 1", a.ID.ChildFlag(), b.ID.ChildFlag())
	}
	if !a.JustSplit || !b.JustSplit {
		t.Error("daughters not flagged just-split")
	}
	if a.Mass != 4 || b.Mass != 4 || a.Age != 0 {
		t.Errorf("daughter mass %v/%v age %v, want 4/4 and 0", a.Mass, b.Mass, a.Age)
	}
	if a.ModeIndex != 0 || b.ModeIndex != 1 {
		t.Errorf("modes %d and %d, want 0 and 1", a.ModeIndex, b.ModeIndex)
	}

	// Offset radius/2 = 1 along +X either side of the parent.
	if r3.Norm(r3.Sub(a.Position, r3.Vec{X: 2, Y: 2, Z: 3})) > 1e-9 ||
		r3.Norm(r3.Sub(b.Position, r3.Vec{X: 0, Y: 2, Z: 3})) > 1e-9 {
		t.Errorf("positions %v and %v", a.Position, b.Position)
	}
	if math.Abs(quat.Abs(b.Orientation)-1) > 1e-9 || b.Orientation == a.Orientation {
		t.Errorf("daughter B orientation %v not taken from its child entry", b.Orientation)
	}

	reqs := f.split.TakeRequests()
	if len(reqs) != 1 || reqs[0].A != a.ID.Cell() || reqs[0].B != b.ID.Cell() {
		t.Errorf("adhesion requests = %+v", reqs)
	}
	if len(f.split.TakeRequests()) != 0 {
		t.Error("TakeRequests did not drain")
	}
}

func TestDivisionDeferredWithoutBudget(t *testing.T) {
	f := newSplitFixture(t)
	cells := []components.Cell{f.parent(0)}
	cells[0].Age = 5

	st := f.split.Run(f.dev, cells, 1, NoCell, 0)
	if st.Divisions != 0 || st.Deferred != 1 {
		t.Errorf("divisions=%d deferred=%d, want 0 and 1", st.Divisions, st.Deferred)
	}
	if !cells[0].Alive(testThreshold) {
		t.Error("deferred parent was killed")
	}
	if f.pop.Pending() != 0 {
		t.Error("deferred division queued daughters")
	}
}

func TestDivisionDeferredWhenIDsExhausted(t *testing.T) {
	f := newSplitFixture(t)
	f.ids = NewIDRegistry(4, 2)
	f.split = NewSplittingSystem(testGenome(), f.ids, f.pop, 16, 0.1, testThreshold)
	cells := []components.Cell{f.parent(0)}
	cells[0].Age = 5

	st := f.split.Run(f.dev, cells, 1, NoCell, 10)
	if st.Deferred != 1 || !cells[0].Alive(testThreshold) {
		t.Errorf("deferred=%d alive=%v, want 1 and true", st.Deferred, cells[0].Alive(testThreshold))
	}
	// The one ID that was obtained goes back to the pool.
	if f.ids.Pending() != 1 {
		t.Errorf("recycled %d IDs, want 1", f.ids.Pending())
	}
}

func TestGrowthDecayKills(t *testing.T) {
	f := newSplitFixture(t)
	cells := []components.Cell{f.parent(1)}
	cells[0].Mass = 0.05

	st := f.split.Run(f.dev, cells, 1, NoCell, 10)
	if st.Starved != 1 || cells[0].Mass != 0 {
		t.Errorf("starved=%d mass=%v, want 1 and 0", st.Starved, cells[0].Mass)
	}
}

func TestDivisionTooLightStarves(t *testing.T) {
	f := newSplitFixture(t)
	cells := []components.Cell{f.parent(0)}
	cells[0].Mass = testThreshold * 1.5
	cells[0].Age = 5
	issued := f.ids.Issued()

	st := f.split.Run(f.dev, cells, 1, NoCell, 10)
	if st.Divisions != 0 || st.Starved != 1 {
		t.Errorf("divisions=%d starved=%d, want 0 and 1", st.Divisions, st.Starved)
	}
	if cells[0].Alive(testThreshold) {
		t.Error("parent survived a non-viable split")
	}
	if f.ids.Issued() != issued || f.pop.Pending() != 0 {
		t.Errorf("issued %d IDs and queued %d daughters for a non-viable split",
			f.ids.Issued()-issued, f.pop.Pending())
	}
	if len(f.split.TakeRequests()) != 0 {
		t.Error("adhesion requested for a non-viable split")
	}
}

func TestSplittingSkipsDraggedAndInvalidMode(t *testing.T) {
	f := newSplitFixture(t)
	cells := []components.Cell{f.parent(0), f.parent(7)}
	cells[0].Age = 5
	cells[1].Age = 5

	st := f.split.Run(f.dev, cells, 2, 0, 10)
	if st.Divisions != 0 {
		t.Errorf("divisions = %d, want 0", st.Divisions)
	}
	if cells[0].Age != 5 || cells[1].Age != 5 {
		t.Error("skipped cells were aged")
	}
}

func TestClearSplitFlags(t *testing.T) {
	dev := newTestDevice(t)
	cells := make([]components.Cell, 600)
	for i := range cells {
		cells[i].JustSplit = true
	}
	ClearSplitFlags(dev, cells, 500)
	for i := 0; i < 500; i++ {
		if cells[i].JustSplit {
			t.Fatalf("slot %d still flagged", i)
		}
	}
	if !cells[500].JustSplit {
		t.Error("slot beyond n was cleared")
	}
}
