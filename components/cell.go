// Package components defines the cell record, identifiers, modes and adhesion components.
package components

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// NumSignals is the number of signalling-substance concentrations a cell carries.
const NumSignals = 4

// Cell is one simulated agent. Radius derives from Mass.
type Cell struct {
	Position     r3.Vec
	Mass         float64
	Velocity     r3.Vec
	Acceleration r3.Vec

	Orientation         quat.Number // unit quaternion
	AngularVelocity     quat.Number // pure quaternion, rad/s
	AngularAcceleration quat.Number // pure quaternion, rad/s^2

	Signals   [NumSignals]float64
	ModeIndex int
	Age       float64 // seconds since birth, doubles as the split timer
	Toxins    float64
	Nitrates  float64

	ID        UniqueID
	JustSplit bool
}

// NewCell returns a cell at rest with identity orientation.
func NewCell(pos r3.Vec, mass float64, mode int) Cell {
	return Cell{
		Position:    pos,
		Mass:        mass,
		Orientation: Identity,
		ModeIndex:   mode,
		Nitrates:    1,
	}
}

// Radius returns mass^(1/3).
func (c *Cell) Radius() float64 {
	if c.Mass <= 0 {
		return 0
	}
	return math.Cbrt(c.Mass)
}

// Alive reports whether the cell's mass exceeds the death threshold.
func (c *Cell) Alive(threshold float64) bool {
	return c.Mass > threshold
}

// Kill drives the mass to zero; the slot is reclaimed by the next recount.
func (c *Cell) Kill() {
	c.Mass = 0
}
