package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/cellsim/components"
)

// RaySphere returns the smallest non-negative ray parameter t at which
// origin + t*dir meets the sphere, and whether it does. dir must be unit.
// A ray starting inside the sphere hits at its exit point.
func RaySphere(origin, dir, center r3.Vec, radius float64) (float64, bool) {
	oc := r3.Sub(origin, center)
	b := r3.Dot(oc, dir)
	c := r3.Norm2(oc) - radius*radius
	disc := b*b - c
	if disc < 0 {
		return 0, false
	}
	sq := math.Sqrt(disc)
	if t := -b - sq; t >= 0 {
		return t, true
	}
	if t := -b + sq; t >= 0 {
		return t, true
	}
	return 0, false
}

// SelectNearest returns the index of the live cell in cells[:n] whose
// sphere the ray hits first, or NoCell. A zero direction never hits.
func SelectNearest(cells []components.Cell, n int, threshold float64, origin, dir r3.Vec) int {
	if r3.Norm2(dir) == 0 {
		return NoCell
	}
	dir = r3.Unit(dir)

	best := NoCell
	bestT := math.Inf(1)
	for i := 0; i < n; i++ {
		c := &cells[i]
		if !c.Alive(threshold) {
			continue
		}
		if t, ok := RaySphere(origin, dir, c.Position, c.Radius()); ok && t < bestT {
			best, bestT = i, t
		}
	}
	return best
}
