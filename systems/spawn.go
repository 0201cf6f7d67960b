package systems

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/cellsim/components"
)

// Spawner generates cells uniformly inside a ball around the origin.
type Spawner struct {
	rng     *rand.Rand
	signals *SignalField

	Radius float64
	Mass   float64
	Mode   int
}

// NewSpawner creates a spawner.
func NewSpawner(seed int64, radius, mass float64, mode int) *Spawner {
	return &Spawner{
		rng:     rand.New(rand.NewSource(seed)),
		signals: NewSignalField(seed),
		Radius:  radius,
		Mass:    mass,
		Mode:    mode,
	}
}

// Next returns a new cell with no ID; the flush assigns one.
func (s *Spawner) Next() components.Cell {
	pos := s.pointInBall()
	c := components.NewCell(pos, s.Mass, s.Mode)
	c.Orientation = s.orientation()
	c.Signals = s.signals.Sample(pos)
	return c
}

// pointInBall draws a point uniformly from the ball of radius s.Radius.
func (s *Spawner) pointInBall() r3.Vec {
	if s.Radius <= 0 {
		return r3.Vec{}
	}
	for {
		v := r3.Vec{
			X: s.rng.Float64()*2 - 1,
			Y: s.rng.Float64()*2 - 1,
			Z: s.rng.Float64()*2 - 1,
		}
		n := r3.Norm(v)
		if n == 0 || n > 1 {
			continue
		}
		r := s.Radius * math.Cbrt(s.rng.Float64())
		return r3.Scale(r/n, v)
	}
}

// orientation draws a uniformly random rotation (Shoemake).
func (s *Spawner) orientation() quat.Number {
	u1, u2, u3 := s.rng.Float64(), s.rng.Float64(), s.rng.Float64()
	a := math.Sqrt(1 - u1)
	b := math.Sqrt(u1)
	return components.Normalize(quat.Number{
		Real: a * math.Sin(2*math.Pi*u2),
		Imag: a * math.Cos(2*math.Pi*u2),
		Jmag: b * math.Sin(2*math.Pi*u3),
		Kmag: b * math.Cos(2*math.Pi*u3),
	})
}
