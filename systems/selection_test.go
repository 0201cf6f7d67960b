package systems

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/cellsim/components"
)

func TestRaySphere(t *testing.T) {
	tests := []struct {
		name   string
		origin r3.Vec
		dir    r3.Vec
		center r3.Vec
		radius float64
		wantT  float64
		wantOK bool
	}{
		{"head on", r3.Vec{X: -10}, r3.Vec{X: 1}, r3.Vec{}, 1, 9, true},
		{"miss", r3.Vec{X: -10, Y: 5}, r3.Vec{X: 1}, r3.Vec{}, 1, 0, false},
		{"behind", r3.Vec{X: 10}, r3.Vec{X: 1}, r3.Vec{}, 1, 0, false},
		{"inside", r3.Vec{}, r3.Vec{Y: 1}, r3.Vec{}, 2, 2, true},
		{"tangent", r3.Vec{X: -10, Y: 1}, r3.Vec{X: 1}, r3.Vec{}, 1, 10, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RaySphere(tt.origin, tt.dir, tt.center, tt.radius)
			if ok != tt.wantOK {
				t.Fatalf("hit = %v, want %v", ok, tt.wantOK)
			}
			if ok && math.Abs(got-tt.wantT) > 1e-9 {
				t.Errorf("t = %v, want %v", got, tt.wantT)
			}
		})
	}
}

func TestSelectNearest(t *testing.T) {
	cells := []components.Cell{
		components.NewCell(r3.Vec{X: 10}, 1, 0),
		components.NewCell(r3.Vec{X: 5}, 1, 0),
		components.NewCell(r3.Vec{X: 2}, 0, 0), // dead, nearer
		components.NewCell(r3.Vec{Y: 10}, 1, 0),
	}

	if got := SelectNearest(cells, len(cells), testThreshold, r3.Vec{}, r3.Vec{X: 3}); got != 1 {
		t.Errorf("selected %d, want 1", got)
	}
	if got := SelectNearest(cells, len(cells), testThreshold, r3.Vec{}, r3.Vec{Z: 1}); got != NoCell {
		t.Errorf("selected %d on a miss, want NoCell", got)
	}
	if got := SelectNearest(cells, len(cells), testThreshold, r3.Vec{}, r3.Vec{}); got != NoCell {
		t.Errorf("selected %d with zero direction, want NoCell", got)
	}
	// Only the first n slots are considered.
	if got := SelectNearest(cells, 1, testThreshold, r3.Vec{}, r3.Vec{Y: 1}); got != NoCell {
		t.Errorf("selected %d beyond n, want NoCell", got)
	}
}
