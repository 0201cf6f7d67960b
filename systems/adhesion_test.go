package systems

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/cellsim/components"
)

func siblingPair(dist float64) []components.Cell {
	a := components.NewCell(r3.Vec{}, 1, 0)
	b := components.NewCell(r3.Vec{X: dist}, 1, 0)
	a.ID = components.PackID(9, 1, 0)
	b.ID = components.PackID(9, 2, 1)
	a.JustSplit = true
	b.JustSplit = true
	return []components.Cell{a, b}
}

func linkRequest(params components.AdhesionParams) []AdhesionRequest {
	return []AdhesionRequest{{Parent: 9, A: 1, B: 2, Params: params}}
}

func TestAdhesionFormsNextStep(t *testing.T) {
	s := NewAdhesionSystem(testThreshold)
	cells := siblingPair(1)

	st := s.Update(cells, 2, linkRequest(components.AdhesionParams{Enabled: true, Stiffness: 10}))
	if st.Formed != 0 {
		t.Fatalf("link formed in the step it was requested")
	}
	st = s.Update(cells, 2, nil)
	if st.Formed != 1 || st.Links != 1 {
		t.Fatalf("formed=%d links=%d, want 1 and 1", st.Formed, st.Links)
	}
	// Rest length defaults to the formation distance: no force at rest.
	if cells[0].Acceleration != (r3.Vec{}) || cells[1].Acceleration != (r3.Vec{}) {
		t.Errorf("accelerations at rest: %v %v", cells[0].Acceleration, cells[1].Acceleration)
	}
}

func TestAdhesionSpringPullsTogether(t *testing.T) {
	s := NewAdhesionSystem(testThreshold)
	cells := siblingPair(1)
	s.Update(cells, 2, linkRequest(components.AdhesionParams{Enabled: true, Stiffness: 10}))
	s.Update(cells, 2, nil)

	cells[1].Position = r3.Vec{X: 3}
	s.Update(cells, 2, nil)

	// Stretch 2 at stiffness 10 on unit masses.
	if math.Abs(cells[0].Acceleration.X-20) > 1e-9 || math.Abs(cells[1].Acceleration.X+20) > 1e-9 {
		t.Errorf("accelerations %v and %v, want +20 and -20", cells[0].Acceleration, cells[1].Acceleration)
	}
}

func TestAdhesionBreaksAndNeverReforms(t *testing.T) {
	s := NewAdhesionSystem(testThreshold)
	cells := siblingPair(1)
	params := components.AdhesionParams{Enabled: true, Stiffness: 10, BreakForce: 5}
	s.Update(cells, 2, linkRequest(params))
	s.Update(cells, 2, nil)

	cells[1].Position = r3.Vec{X: 3}
	cells[0].Acceleration = r3.Vec{}
	st := s.Update(cells, 2, nil)
	if st.Broken != 1 || st.Links != 0 {
		t.Fatalf("broken=%d links=%d, want 1 and 0", st.Broken, st.Links)
	}
	if cells[0].Acceleration != (r3.Vec{}) {
		t.Error("broken link still applied force")
	}

	cells[1].Position = r3.Vec{X: 1}
	for i := 0; i < 3; i++ {
		if st := s.Update(cells, 2, nil); st.Formed != 0 || st.Links != 0 {
			t.Fatalf("broken link re-formed")
		}
	}
}

func TestAdhesionDissolvesOnDeath(t *testing.T) {
	s := NewAdhesionSystem(testThreshold)
	cells := siblingPair(1)
	s.Update(cells, 2, linkRequest(components.AdhesionParams{Enabled: true, Stiffness: 10}))
	s.Update(cells, 2, nil)

	cells[1].Kill()
	st := s.Update(cells, 2, nil)
	if st.Dissolved != 1 || s.Links() != 0 {
		t.Errorf("dissolved=%d links=%d, want 1 and 0", st.Dissolved, s.Links())
	}
}

func TestAdhesionRequiresJustSplit(t *testing.T) {
	s := NewAdhesionSystem(testThreshold)
	cells := siblingPair(1)
	s.Update(cells, 2, linkRequest(components.AdhesionParams{Enabled: true}))
	cells[0].JustSplit = false
	if st := s.Update(cells, 2, nil); st.Formed != 0 {
		t.Error("link formed between cells that did not just split")
	}
}

func TestAdhesionAngularSpring(t *testing.T) {
	s := NewAdhesionSystem(testThreshold)
	cells := siblingPair(1)
	params := components.AdhesionParams{Enabled: true, AngularStiffness: 4}
	s.Update(cells, 2, linkRequest(params))
	s.Update(cells, 2, nil)

	cells[1].Orientation = components.QuatFromAxisAngle(r3.Vec{Z: 1}, 0.5)
	s.Update(cells, 2, nil)

	// Twist of b about +Z: b is driven back, a is driven forward.
	za := cells[0].AngularAcceleration.Kmag
	zb := cells[1].AngularAcceleration.Kmag
	if math.Abs(za-2) > 1e-9 || math.Abs(zb+2) > 1e-9 {
		t.Errorf("angular accelerations %v and %v, want +2 and -2", za, zb)
	}
}

func TestAdhesionReset(t *testing.T) {
	s := NewAdhesionSystem(testThreshold)
	cells := siblingPair(1)
	s.Update(cells, 2, linkRequest(components.AdhesionParams{Enabled: true}))
	s.Update(cells, 2, linkRequest(components.AdhesionParams{Enabled: true}))
	s.Reset()
	if s.Links() != 0 {
		t.Errorf("links = %d after reset", s.Links())
	}
	if st := s.Update(cells, 2, nil); st.Formed != 0 || st.Links != 0 {
		t.Error("reset kept pending requests or links")
	}
}
