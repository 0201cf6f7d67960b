package systems

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/cellsim/components"
)

// NoCell marks the absence of a cell index.
const NoCell = -1

// PhysicsParams configures integration and contact forces.
type PhysicsParams struct {
	DT                 float64
	Damping            float64 // velocity retained per 1/DampingTimeScale seconds
	DampingTimeScale   float64
	Boundary           float64 // half-extent of the cubic world
	RestitutionLoss    float64 // fraction of normal speed lost on wall contact
	CollisionStiffness float64
	DeathThreshold     float64
}

// DampingFactor returns damping^(dt*k), the per-step velocity multiplier.
func (p PhysicsParams) DampingFactor() float64 {
	return math.Pow(p.Damping, p.DT*p.DampingTimeScale)
}

// PhysicsSystem advances cell motion.
type PhysicsSystem struct {
	params PhysicsParams
	damp   float64
}

// NewPhysicsSystem creates a physics system.
func NewPhysicsSystem(params PhysicsParams) *PhysicsSystem {
	return &PhysicsSystem{params: params, damp: params.DampingFactor()}
}

// Params returns the system's parameters.
func (s *PhysicsSystem) Params() PhysicsParams { return s.params }

// ComputeForces copies read into write for the first n slots and adds
// soft-sphere contact acceleration to every live cell. Neighbours come from
// grid, which must have been built from read.
func (s *PhysicsSystem) ComputeForces(dev *Device, read, write []components.Cell, n int, grid *SpatialGrid) {
	th := s.params.DeathThreshold
	k := s.params.CollisionStiffness

	maxRadius := 0.0
	for i := 0; i < n; i++ {
		if read[i].Alive(th) {
			maxRadius = max(maxRadius, read[i].Radius())
		}
	}

	dev.Dispatch(n, func(i0, i1 int) {
		for i := i0; i < i1; i++ {
			write[i] = read[i]
			c := &write[i]
			if k == 0 || !c.Alive(th) {
				continue
			}

			ri := c.Radius()
			var accel r3.Vec
			grid.ForEachNeighbor(c.Position, ri+maxRadius, func(j int32) bool {
				if int(j) == i {
					return true
				}
				o := &read[j]
				reach := ri + o.Radius()
				d := r3.Sub(c.Position, o.Position)
				dist := r3.Norm(d)
				if dist >= reach {
					return true
				}
				var normal r3.Vec
				switch {
				case dist > 1e-12:
					normal = r3.Scale(1/dist, d)
				case i < int(j):
					normal = r3.Vec{X: -1}
				default:
					normal = r3.Vec{X: 1}
				}
				accel = r3.Add(accel, r3.Scale(k*(reach-dist)/c.Mass, normal))
				return true
			})
			c.Acceleration = r3.Add(c.Acceleration, accel)
		}
	})
}

// Integrate advances every live cell in cells[:n] except skip.
func (s *PhysicsSystem) Integrate(dev *Device, cells []components.Cell, n, skip int) {
	th := s.params.DeathThreshold
	dev.Dispatch(n, func(i0, i1 int) {
		for i := i0; i < i1; i++ {
			if i == skip || !cells[i].Alive(th) {
				continue
			}
			s.IntegrateCell(&cells[i])
		}
	})
}

// IntegrateCell applies one explicit Euler step with damping and boundary
// reflection, then clears the accumulated accelerations.
func (s *PhysicsSystem) IntegrateCell(c *components.Cell) {
	dt := s.params.DT

	c.Velocity = r3.Add(c.Velocity, r3.Scale(dt, c.Acceleration))
	c.Velocity = r3.Scale(s.damp, c.Velocity)
	c.Position = r3.Add(c.Position, r3.Scale(dt, c.Velocity))
	s.reflect(&c.Position.X, &c.Velocity.X)
	s.reflect(&c.Position.Y, &c.Velocity.Y)
	s.reflect(&c.Position.Z, &c.Velocity.Z)

	c.AngularVelocity = quat.Add(c.AngularVelocity, quat.Scale(dt, c.AngularAcceleration))
	c.AngularVelocity = quat.Scale(s.damp, c.AngularVelocity)
	c.Orientation = components.IntegrateOrientation(c.Orientation, c.AngularVelocity, dt)

	c.Acceleration = r3.Vec{}
	c.AngularAcceleration = quat.Number{}
}

// reflect clamps one axis to the boundary. Velocity pointing out of the
// world flips sign and loses RestitutionLoss of its magnitude.
func (s *PhysicsSystem) reflect(pos, vel *float64) {
	b := s.params.Boundary
	keep := 1 - s.params.RestitutionLoss
	switch {
	case *pos > b:
		*pos = b
		if *vel > 0 {
			*vel = -*vel * keep
		}
	case *pos < -b:
		*pos = -b
		if *vel < 0 {
			*vel = -*vel * keep
		}
	}
}
