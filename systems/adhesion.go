package systems

import (
	"cmp"
	"math"
	"slices"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/cellsim/components"
)

// AdhesionStats reports one adhesion pass.
type AdhesionStats struct {
	Formed    int
	Broken    int // exceeded their break force
	Dissolved int // an endpoint died or vanished
	Links     int
}

// AdhesionSystem holds sibling links as ECS entities and applies their
// spring forces. Links are keyed by cell ID. A broken link is removed and
// nothing ever re-creates it.
type AdhesionSystem struct {
	world  *ecs.World
	mapper *ecs.Map2[components.AdhesionLink, components.AdhesionSpring]
	filter *ecs.Filter2[components.AdhesionLink, components.AdhesionSpring]

	threshold float64

	ready    []AdhesionRequest // daughters flushed this step
	slotOf   map[uint32]int32  // cell ID -> slot, rebuilt each pass
	toRemove []ecs.Entity
	links    int
}

// NewAdhesionSystem creates an adhesion system with its own ECS world.
func NewAdhesionSystem(threshold float64) *AdhesionSystem {
	world := ecs.NewWorld()
	return &AdhesionSystem{
		world:     world,
		mapper:    ecs.NewMap2[components.AdhesionLink, components.AdhesionSpring](world),
		filter:    ecs.NewFilter2[components.AdhesionLink, components.AdhesionSpring](world),
		threshold: threshold,
		slotOf:    make(map[uint32]int32),
	}
}

// Links returns the number of live links.
func (s *AdhesionSystem) Links() int { return s.links }

// Update establishes links requested by the previous step's divisions, then
// resolves every link against cells[:n], writing accelerations into cells.
// requests are held until the next Update, once their daughters are flushed.
func (s *AdhesionSystem) Update(cells []components.Cell, n int, requests []AdhesionRequest) AdhesionStats {
	var stats AdhesionStats

	clear(s.slotOf)
	for i := 0; i < n; i++ {
		c := &cells[i]
		if c.Alive(s.threshold) && c.ID.Cell() != components.NoCellID {
			s.slotOf[c.ID.Cell()] = int32(i)
		}
	}

	stats.Formed = s.establish(cells)
	s.ready = append(s.ready[:0], requests...)

	query := s.filter.Query()
	for query.Next() {
		link, spring := query.Get()
		ia, okA := s.slotOf[link.A]
		ib, okB := s.slotOf[link.B]
		if !okA || !okB {
			s.toRemove = append(s.toRemove, query.Entity())
			stats.Dissolved++
			continue
		}
		if !applySpring(&cells[ia], &cells[ib], spring) {
			s.toRemove = append(s.toRemove, query.Entity())
			stats.Broken++
		}
	}

	// Remove after iteration completes
	for _, e := range s.toRemove {
		s.world.RemoveEntity(e)
	}
	s.links -= len(s.toRemove)
	s.toRemove = s.toRemove[:0]

	stats.Links = s.links
	return stats
}

// establish creates links for ready requests whose daughters are both live
// and freshly split.
func (s *AdhesionSystem) establish(cells []components.Cell) int {
	slices.SortFunc(s.ready, func(a, b AdhesionRequest) int {
		return cmp.Compare(a.A, b.A)
	})

	formed := 0
	for _, req := range s.ready {
		ia, okA := s.slotOf[req.A]
		ib, okB := s.slotOf[req.B]
		if !okA || !okB {
			continue
		}
		a, b := &cells[ia], &cells[ib]
		if !a.JustSplit || !b.JustSplit {
			continue
		}

		rest := req.Params.RestLength
		if rest <= 0 {
			rest = r3.Norm(r3.Sub(b.Position, a.Position))
		}
		link := components.AdhesionLink{A: req.A, B: req.B, Parent: req.Parent}
		spring := components.AdhesionSpring{
			Params:     req.Params,
			RestLength: rest,
			RestTwist:  quat.Mul(b.Orientation, quat.Conj(a.Orientation)),
		}
		s.mapper.NewEntity(&link, &spring)
		s.links++
		formed++
	}
	return formed
}

// applySpring adds the linear and angular spring response to a and b. It
// reports false when the linear force exceeds the break threshold, in
// which case nothing is applied.
func applySpring(a, b *components.Cell, spring *components.AdhesionSpring) bool {
	p := spring.Params

	d := r3.Sub(b.Position, a.Position)
	dist := r3.Norm(d)
	var force float64
	var dir r3.Vec
	if dist > 1e-12 {
		dir = r3.Scale(1/dist, d)
		relVel := r3.Dot(r3.Sub(b.Velocity, a.Velocity), dir)
		force = p.Stiffness*(dist-spring.RestLength) + p.Damping*relVel
	}
	if p.BreakForce > 0 && math.Abs(force) > p.BreakForce {
		return false
	}

	// Positive force pulls the pair together.
	a.Acceleration = r3.Add(a.Acceleration, r3.Scale(force/a.Mass, dir))
	b.Acceleration = r3.Sub(b.Acceleration, r3.Scale(force/b.Mass, dir))

	if p.AngularStiffness == 0 && p.AngularDamping == 0 {
		return true
	}

	// Twist error of b relative to a, measured against the rest twist.
	rel := quat.Mul(quat.Mul(b.Orientation, quat.Conj(a.Orientation)), quat.Conj(spring.RestTwist))
	errVec := components.RotationVector(rel)
	relSpin := components.VecPart(quat.Sub(b.AngularVelocity, a.AngularVelocity))
	torque := r3.Add(r3.Scale(p.AngularStiffness, errVec), r3.Scale(p.AngularDamping, relSpin))

	a.AngularAcceleration = quat.Add(a.AngularAcceleration, components.PureQuat(r3.Scale(1/a.Mass, torque)))
	b.AngularAcceleration = quat.Sub(b.AngularAcceleration, components.PureQuat(r3.Scale(1/b.Mass, torque)))
	return true
}

// Reset removes every link and pending request.
func (s *AdhesionSystem) Reset() {
	query := s.filter.Query()
	for query.Next() {
		s.toRemove = append(s.toRemove, query.Entity())
	}
	for _, e := range s.toRemove {
		s.world.RemoveEntity(e)
	}
	s.toRemove = s.toRemove[:0]
	s.ready = s.ready[:0]
	s.links = 0
}
