package sim

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/cellsim/components"
	"github.com/pthm-cable/cellsim/systems"
)

// Snapshot is a copy of the read buffer after a step.
type Snapshot struct {
	Step      int64
	LiveCount int
	// Cells holds every slot in use; dead slots have mass at or below the
	// death threshold and should be skipped.
	Cells []components.Cell
}

// Spawn queues count procedurally generated cells inside the spawn radius.
// count <= 0 spawns the configured default. It returns how many were queued.
func (s *Simulation) Spawn(count int) int {
	if count <= 0 {
		count = s.cfg.Simulation.DefaultCellCount
	}
	queued := 0
	for i := 0; i < count; i++ {
		if !s.pop.Enqueue(s.spawner.Next()) {
			break
		}
		queued++
	}
	return queued
}

// AddCell queues an externally built cell. Its lineage tag is kept but a
// fresh cell ID is assigned when it is flushed. ErrCapacityExceeded means
// the queue is full; a queued cell can still be dropped at the ceiling.
func (s *Simulation) AddCell(c components.Cell) error {
	c.ID = components.PackID(c.ID.Parent(), components.NoCellID, c.ID.ChildFlag())
	if !s.pop.Enqueue(c) {
		return fmt.Errorf("%w: addition queue full (%d pending)", ErrCapacityExceeded, s.pop.Pending())
	}
	return nil
}

// AddCells queues cells in order and returns how many were accepted.
func (s *Simulation) AddCells(cells []components.Cell) (int, error) {
	for i, c := range cells {
		if err := s.AddCell(c); err != nil {
			return i, err
		}
	}
	return len(cells), nil
}

func (s *Simulation) checkIndex(i int) error {
	if n := s.store.Count(); i < 0 || i >= n {
		return fmt.Errorf("%w: %d (count %d)", ErrInvalidIndex, i, n)
	}
	return nil
}

// GetCell returns a copy of slot i of the read buffer.
func (s *Simulation) GetCell(i int) (components.Cell, error) {
	if err := s.checkIndex(i); err != nil {
		return components.Cell{}, err
	}
	return s.store.Get(i), nil
}

// SetCell overwrites live slot i of the read buffer. The slot keeps its
// unique ID. Dead slots are awaiting reuse and cannot be written; use AddCell.
// The edit takes effect in the next step.
func (s *Simulation) SetCell(i int, c components.Cell) error {
	if err := s.checkIndex(i); err != nil {
		return err
	}
	cur := s.store.Get(i)
	if !cur.Alive(s.cfg.Simulation.DeathThreshold) {
		return fmt.Errorf("%w: cell %d is dead", ErrInvalidIndex, i)
	}
	c.ID = cur.ID
	s.store.Set(i, c)
	return nil
}

// SelectAt returns the nearest live cell hit by the ray, if any.
func (s *Simulation) SelectAt(origin, dir r3.Vec) (int, bool) {
	i := systems.SelectNearest(s.store.Read(), s.store.Count(), s.cfg.Simulation.DeathThreshold, origin, dir)
	return i, i != systems.NoCell
}

// BeginDrag puts live cell i under interactive control. Until EndDrag it is
// neither integrated nor aged.
func (s *Simulation) BeginDrag(i int) error {
	if err := s.checkIndex(i); err != nil {
		return err
	}
	c := s.store.Get(i)
	if !c.Alive(s.cfg.Simulation.DeathThreshold) {
		return fmt.Errorf("%w: cell %d is dead", ErrInvalidIndex, i)
	}
	s.dragged = i
	s.draggedID = c.ID
	return nil
}

// DragTo moves the dragged cell to pos, clamped to the world boundary.
func (s *Simulation) DragTo(pos r3.Vec) error {
	if s.dragged == systems.NoCell {
		return fmt.Errorf("%w: no cell is being dragged", ErrInvalidIndex)
	}
	b := s.cfg.Physics.Boundary
	c := &s.store.Read()[s.dragged]
	c.Position = r3.Vec{
		X: math.Max(-b, math.Min(b, pos.X)),
		Y: math.Max(-b, math.Min(b, pos.Y)),
		Z: math.Max(-b, math.Min(b, pos.Z)),
	}
	stopCell(c)
	return nil
}

// EndDrag releases the dragged cell at rest.
func (s *Simulation) EndDrag() {
	if s.dragged == systems.NoCell {
		return
	}
	if s.dragged < s.store.Count() {
		stopCell(&s.store.Read()[s.dragged])
	}
	s.dragged = systems.NoCell
}

// Dragging returns the index of the dragged cell.
func (s *Simulation) Dragging() (int, bool) {
	return s.dragged, s.dragged != systems.NoCell
}

func stopCell(c *components.Cell) {
	c.Velocity = r3.Vec{}
	c.Acceleration = r3.Vec{}
	c.AngularVelocity = quat.Number{}
	c.AngularAcceleration = quat.Number{}
}

// Snapshot copies the read buffer.
func (s *Simulation) Snapshot() Snapshot {
	n := s.store.Count()
	cells := make([]components.Cell, n)
	copy(cells, s.store.Read()[:n])
	return Snapshot{
		Step:      s.step,
		LiveCount: s.pop.Live(),
		Cells:     cells,
	}
}

// ApproxCellCount returns the live count published at the start of the last
// step. It lags by a step and must not be used for exact bounds.
func (s *Simulation) ApproxCellCount() int { return s.published }

// SetCellLimit changes the population ceiling, clamped to [0, max_cells].
// Lowering it below the live count stops additions; no cell is removed.
func (s *Simulation) SetCellLimit(n int) {
	s.pop.SetLimit(n)
	s.cfg.Simulation.CellLimit = s.pop.Limit()
}

// CellLimit returns the population ceiling.
func (s *Simulation) CellLimit() int { return s.pop.Limit() }

// Reset removes every cell, link and queued addition and forgets all IDs.
func (s *Simulation) Reset() {
	s.store.Reset()
	s.ids.Reset()
	s.pop.Reset()
	s.grid.Reset()
	s.split.Reset()
	s.adhesion.Reset()
	s.collector.Reset(0)
	s.step = 0
	s.published = 0
	s.dragged = systems.NoCell
	s.draggedID = 0
	s.dropping = false
}

// Restore replaces the population with cells, written straight into the
// buffers without going through the queue. Dead records are skipped and
// the rest are truncated at the ceiling. Cell IDs are kept where they are
// unique; missing or repeated ones are reissued. It returns the number of
// cells restored.
func (s *Simulation) Restore(cells []components.Cell) int {
	s.Reset()
	th := s.cfg.Simulation.DeathThreshold

	var maxID uint32
	for i := range cells {
		if cells[i].Alive(th) {
			maxID = max(maxID, cells[i].ID.Cell())
		}
	}
	s.ids.Reserve(maxID)

	read, write := s.store.Read(), s.store.Write()
	limit := s.pop.Limit()
	seen := make(map[uint32]struct{}, min(len(cells), limit))
	n := 0
	for _, c := range cells {
		if n >= limit {
			break
		}
		if !c.Alive(th) {
			continue
		}
		id := c.ID.Cell()
		if _, dup := seen[id]; id == components.NoCellID || dup {
			if id = s.ids.Allocate(); id == components.NoCellID {
				break
			}
			c.ID = components.PackID(c.ID.Parent(), id, c.ID.ChildFlag())
		}
		seen[id] = struct{}{}
		c.JustSplit = false
		read[n] = c
		write[n] = c
		n++
	}

	s.store.SetCount(n)
	s.pop.SetLive(n)
	s.published = n
	if n < len(cells) {
		slog.Debug("restore truncated", "requested", len(cells), "restored", n, "limit", limit)
	}
	return n
}

// LogCellIDs logs the unique IDs of the first n slots at debug level.
func (s *Simulation) LogCellIDs(n int) {
	n = min(n, s.store.Count())
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = s.store.Get(i).ID.String()
	}
	slog.Debug("cell ids", "step", s.step, "count", n, "ids", ids)
}
