package components

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/cellsim/config"
)

// ChildSpec describes one daughter of a division.
type ChildSpec struct {
	Mode        int
	Orientation quat.Number // relative to the parent
}

// AdhesionParams are the spring constants of a sibling link.
type AdhesionParams struct {
	Enabled          bool
	Stiffness        float64
	Damping          float64
	AngularStiffness float64
	AngularDamping   float64
	RestLength       float64 // 0 = distance at formation
	BreakForce       float64 // 0 = unbreakable
}

// Mode is a read-only behavioral profile selected by Cell.ModeIndex.
type Mode struct {
	Name           string
	Color          [3]float64
	SplitInterval  float64 // <= 0 never divides
	SplitDirection r3.Vec  // unit, local frame
	GrowthRate     float64 // mass per second
	ChildA         ChildSpec
	ChildB         ChildSpec
	Adhesion       AdhesionParams
}

// Divides reports whether cells in this mode ever split.
func (m *Mode) Divides() bool { return m.SplitInterval > 0 }

// ModeTable is the externally owned mode array. The simulation never mutates it.
type ModeTable interface {
	ModeCount() int
	ModeAt(i int) Mode
}

// Genome is a slice-backed ModeTable.
type Genome []Mode

// ModeCount returns the number of modes.
func (g Genome) ModeCount() int { return len(g) }

// ModeAt returns mode i. It panics unless 0 <= i < ModeCount(); callers
// check a cell's mode index before looking it up.
func (g Genome) ModeAt(i int) Mode { return g[i] }

// GenomeFromConfig converts validated mode configs into a Genome.
// A zero split direction falls back to +X.
func GenomeFromConfig(modes []config.ModeConfig) Genome {
	g := make(Genome, len(modes))
	for i, mc := range modes {
		dir := r3.Vec{X: mc.SplitDirection[0], Y: mc.SplitDirection[1], Z: mc.SplitDirection[2]}
		if r3.Norm(dir) == 0 {
			dir = r3.Vec{X: 1}
		} else {
			dir = r3.Unit(dir)
		}
		g[i] = Mode{
			Name:           mc.Name,
			Color:          mc.Color,
			SplitInterval:  mc.SplitInterval,
			SplitDirection: dir,
			GrowthRate:     mc.GrowthRate,
			ChildA:         ChildSpec{Mode: mc.ChildA.Mode, Orientation: QuatFromWXYZ(mc.ChildA.Orientation)},
			ChildB:         ChildSpec{Mode: mc.ChildB.Mode, Orientation: QuatFromWXYZ(mc.ChildB.Orientation)},
			Adhesion: AdhesionParams{
				Enabled:          mc.Adhesion.Enabled,
				Stiffness:        mc.Adhesion.Stiffness,
				Damping:          mc.Adhesion.Damping,
				AngularStiffness: mc.Adhesion.AngularStiffness,
				AngularDamping:   mc.Adhesion.AngularDamping,
				RestLength:       mc.Adhesion.RestLength,
				BreakForce:       mc.Adhesion.BreakForce,
			},
		}
	}
	return g
}
