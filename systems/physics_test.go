package systems

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/cellsim/components"
)

func testPhysics() PhysicsParams {
	return PhysicsParams{
		DT:                 0.1,
		Damping:            1,
		DampingTimeScale:   1,
		Boundary:           50,
		RestitutionLoss:    0.2,
		CollisionStiffness: 10,
		DeathThreshold:     testThreshold,
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestBoundaryReflection(t *testing.T) {
	tests := []struct {
		name    string
		pos     r3.Vec
		vel     r3.Vec
		wantPos r3.Vec
		wantVel r3.Vec
	}{
		{
			name:    "beyond +x moving out",
			pos:     r3.Vec{X: 60},
			vel:     r3.Vec{X: 10},
			wantPos: r3.Vec{X: 50},
			wantVel: r3.Vec{X: -8},
		},
		{
			name:    "beyond -z moving out",
			pos:     r3.Vec{Z: -55},
			vel:     r3.Vec{Z: -5},
			wantPos: r3.Vec{Z: -50},
			wantVel: r3.Vec{Z: 4},
		},
		{
			name:    "beyond +y already returning",
			pos:     r3.Vec{Y: 60},
			vel:     r3.Vec{Y: -10},
			wantPos: r3.Vec{Y: 50},
			wantVel: r3.Vec{Y: -10},
		},
		{
			name:    "inside untouched",
			pos:     r3.Vec{X: 10},
			vel:     r3.Vec{X: 10},
			wantPos: r3.Vec{X: 11},
			wantVel: r3.Vec{X: 10},
		},
	}

	s := NewPhysicsSystem(testPhysics())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := components.NewCell(tt.pos, 1, 0)
			c.Velocity = tt.vel
			s.IntegrateCell(&c)

			if r3.Norm(r3.Sub(c.Position, tt.wantPos)) > 1e-9 {
				t.Errorf("position = %v, want %v", c.Position, tt.wantPos)
			}
			if r3.Norm(r3.Sub(c.Velocity, tt.wantVel)) > 1e-9 {
				t.Errorf("velocity = %v, want %v", c.Velocity, tt.wantVel)
			}
		})
	}
}

func TestDampingIsPerUnitTime(t *testing.T) {
	p := testPhysics()
	p.Damping = 0.5
	p.DampingTimeScale = 2

	// Ten steps of 0.1s and one step of 1s lose the same speed.
	small := p
	small.DT = 0.1
	big := p
	big.DT = 1

	a := components.NewCell(r3.Vec{}, 1, 0)
	a.Velocity = r3.Vec{X: 1}
	b := a

	sa := NewPhysicsSystem(small)
	for i := 0; i < 10; i++ {
		sa.IntegrateCell(&a)
	}
	NewPhysicsSystem(big).IntegrateCell(&b)

	if !near(a.Velocity.X, 0.25) || !near(b.Velocity.X, 0.25) {
		t.Errorf("velocities %v and %v, want 0.25", a.Velocity.X, b.Velocity.X)
	}
}

func TestIntegrateConsumesAcceleration(t *testing.T) {
	s := NewPhysicsSystem(testPhysics())
	c := components.NewCell(r3.Vec{}, 1, 0)
	c.Acceleration = r3.Vec{Y: 10}
	c.AngularAcceleration = components.PureQuat(r3.Vec{Z: 1})
	s.IntegrateCell(&c)

	if !near(c.Velocity.Y, 1) || !near(c.Position.Y, 0.1) {
		t.Errorf("v=%v x=%v, want v.y=1 x.y=0.1", c.Velocity, c.Position)
	}
	if c.Acceleration != (r3.Vec{}) || c.AngularAcceleration != (quat.Number{}) {
		t.Error("accelerations not cleared")
	}
	if c.Orientation == components.Identity {
		t.Error("angular acceleration did not rotate the cell")
	}
	if !near(quat.Abs(c.Orientation), 1) {
		t.Errorf("|q| = %v, want 1", quat.Abs(c.Orientation))
	}
}

func TestIntegrateSkipsDeadAndDragged(t *testing.T) {
	dev := newTestDevice(t)
	s := NewPhysicsSystem(testPhysics())
	cells := []components.Cell{
		components.NewCell(r3.Vec{}, 1, 0),
		components.NewCell(r3.Vec{}, 1, 0),
		components.NewCell(r3.Vec{}, 0, 0),
	}
	for i := range cells {
		cells[i].Velocity = r3.Vec{X: 1}
	}
	s.Integrate(dev, cells, len(cells), 1)

	if cells[0].Position.X == 0 {
		t.Error("live cell did not move")
	}
	if cells[1].Position.X != 0 {
		t.Error("dragged cell was integrated")
	}
	if cells[2].Position.X != 0 {
		t.Error("dead cell was integrated")
	}
}

func TestComputeForcesSeparatesOverlap(t *testing.T) {
	dev := newTestDevice(t)
	s := NewPhysicsSystem(testPhysics())
	read := []components.Cell{
		components.NewCell(r3.Vec{X: -0.5}, 1, 0),
		components.NewCell(r3.Vec{X: 0.5}, 1, 0),
		components.NewCell(r3.Vec{X: 20}, 1, 0),
	}
	read[2].Acceleration = r3.Vec{Y: 3}
	write := make([]components.Cell, len(read))

	g, err := NewSpatialGrid(50, 2, len(read))
	if err != nil {
		t.Fatal(err)
	}
	g.Build(dev, read, len(read), testThreshold)
	s.ComputeForces(dev, read, write, len(read), g)

	// Radii 1 + 1 at distance 1: overlap 1, stiffness 10, mass 1.
	if !near(write[0].Acceleration.X, -10) || !near(write[1].Acceleration.X, 10) {
		t.Errorf("accelerations %v and %v, want -10 and +10", write[0].Acceleration, write[1].Acceleration)
	}
	if write[2].Acceleration != (r3.Vec{Y: 3}) {
		t.Errorf("isolated cell acceleration = %v, want carried (0,3,0)", write[2].Acceleration)
	}
	if read[0].Acceleration != (r3.Vec{}) {
		t.Error("ComputeForces modified the read buffer")
	}
}
