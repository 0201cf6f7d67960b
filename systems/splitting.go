package systems

import (
	"slices"
	"sync/atomic"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/cellsim/components"
)

// splitEpsilon absorbs float accumulation so 20 steps of 0.1s reach 2.0s.
const splitEpsilon = 1e-6

// AdhesionRequest asks for a link between the two daughters of a division.
type AdhesionRequest struct {
	Parent uint32
	A, B   uint32 // daughter cell IDs
	Params components.AdhesionParams
}

// DivisionStats reports one mutation pass.
type DivisionStats struct {
	Divisions int
	Deferred  int // ready cells that could not divide this step
	Starved   int // cells whose mass decayed to zero or was too low to split viably
}

// SplittingSystem ages cells, applies mode growth and divides cells whose
// age reaches their mode's split interval.
type SplittingSystem struct {
	modes components.ModeTable
	ids   *IDRegistry
	pop   *PopulationController

	dt        float64
	threshold float64

	ready   []int32
	readyN  atomic.Int64
	starved atomic.Int64

	requests []AdhesionRequest
}

// NewSplittingSystem creates a splitting system for a store of the given capacity.
func NewSplittingSystem(modes components.ModeTable, ids *IDRegistry, pop *PopulationController, capacity int, dt, threshold float64) *SplittingSystem {
	return &SplittingSystem{
		modes:     modes,
		ids:       ids,
		pop:       pop,
		dt:        dt,
		threshold: threshold,
		ready:     make([]int32, capacity),
	}
}

// Run mutates cells[:n], skipping index skip. budget is how many more
// divisions the population ceiling can absorb; each division adds one net
// cell once the parent is retired.
func (s *SplittingSystem) Run(dev *Device, cells []components.Cell, n, skip, budget int) DivisionStats {
	s.readyN.Store(0)
	s.starved.Store(0)
	modeCount := s.modes.ModeCount()

	dev.Dispatch(n, func(i0, i1 int) {
		for i := i0; i < i1; i++ {
			c := &cells[i]
			if i == skip || !c.Alive(s.threshold) {
				continue
			}
			if c.ModeIndex < 0 || c.ModeIndex >= modeCount {
				continue
			}
			mode := s.modes.ModeAt(c.ModeIndex)

			c.Age += s.dt
			c.Mass += mode.GrowthRate * s.dt
			if c.Mass <= s.threshold {
				c.Kill()
				s.starved.Add(1)
				continue
			}
			if mode.Divides() && c.Age+splitEpsilon >= mode.SplitInterval {
				s.ready[s.readyN.Add(1)-1] = int32(i)
			}
		}
	})

	stats := DivisionStats{Starved: int(s.starved.Load())}
	ready := s.ready[:s.readyN.Load()]
	slices.Sort(ready)

	for _, i := range ready {
		// Daughters at or below the threshold would be discarded on arrival.
		if cells[i].Mass/2 <= s.threshold {
			cells[i].Kill()
			stats.Starved++
			continue
		}
		if budget <= 0 {
			stats.Deferred++
			continue
		}
		if !s.divide(&cells[i]) {
			stats.Deferred++
			continue
		}
		budget--
		stats.Divisions++
	}
	return stats
}

// divide queues the two daughters of c and kills c. It reports false,
// leaving c untouched, when IDs or queue space are unavailable.
func (s *SplittingSystem) divide(c *components.Cell) bool {
	idA := s.ids.Allocate()
	idB := s.ids.Allocate()
	if idA == components.NoCellID || idB == components.NoCellID {
		s.ids.Recycle(idA)
		s.ids.Recycle(idB)
		return false
	}

	mode := s.modes.ModeAt(c.ModeIndex)
	parent := c.ID.Cell()
	offset := r3.Scale(c.Radius()/2, components.Rotate(c.Orientation, mode.SplitDirection))

	a := s.daughter(c, mode.ChildA, r3.Add(c.Position, offset), components.PackID(parent, idA, 0))
	b := s.daughter(c, mode.ChildB, r3.Sub(c.Position, offset), components.PackID(parent, idB, 1))

	if !s.pop.EnqueuePair(a, b) {
		s.ids.Recycle(idA)
		s.ids.Recycle(idB)
		return false
	}

	if mode.Adhesion.Enabled {
		s.requests = append(s.requests, AdhesionRequest{
			Parent: parent,
			A:      idA,
			B:      idB,
			Params: mode.Adhesion,
		})
	}

	c.Kill()
	return true
}

func (s *SplittingSystem) daughter(parent *components.Cell, spec components.ChildSpec, pos r3.Vec, id components.UniqueID) components.Cell {
	d := *parent
	d.Position = pos
	d.Mass = parent.Mass / 2
	d.Acceleration = r3.Vec{}
	d.AngularAcceleration = quat.Number{}
	d.Orientation = components.Normalize(quat.Mul(parent.Orientation, spec.Orientation))
	d.ModeIndex = spec.Mode
	d.Age = 0
	d.ID = id
	d.JustSplit = true
	return d
}

// TakeRequests returns the adhesion requests queued since the last call.
func (s *SplittingSystem) TakeRequests() []AdhesionRequest {
	r := s.requests
	s.requests = nil
	return r
}

// Reset discards queued adhesion requests.
func (s *SplittingSystem) Reset() {
	s.requests = nil
}

// ClearSplitFlags resets JustSplit on cells[:n] so it lasts a single step.
func ClearSplitFlags(dev *Device, cells []components.Cell, n int) {
	dev.Dispatch(n, func(i0, i1 int) {
		for i := i0; i < i1; i++ {
			cells[i].JustSplit = false
		}
	})
}
