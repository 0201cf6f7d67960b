package systems

import "github.com/pthm-cable/cellsim/components"

// Role is the part a physical buffer plays during a step.
type Role int

const (
	RoleRead  Role = iota // Authoritative state produced by the previous step
	RoleWrite             // Target of this step's update
	RoleStale             // Retained one step behind to bound host staleness
	numRoles
)

func (r Role) String() string {
	switch r {
	case RoleRead:
		return "read"
	case RoleWrite:
		return "write"
	case RoleStale:
		return "stale"
	default:
		return "unknown"
	}
}

// CellStore owns the triple-buffered cell records.
//
// Buffers are full-capacity slices; nothing here bounds-checks against the
// slot count, callers must stay below Count().
type CellStore struct {
	buffers  [numRoles][]components.Cell
	rotation int
	count    int // slots in use (live or awaiting reuse)
}

// NewCellStore allocates three buffers of the given capacity.
func NewCellStore(capacity int) *CellStore {
	s := &CellStore{}
	for i := range s.buffers {
		s.buffers[i] = make([]components.Cell, capacity)
	}
	return s
}

// slot maps a role to its physical buffer under the current rotation.
func (s *CellStore) slot(r Role) int {
	return (int(r) + s.rotation) % int(numRoles)
}

// Buffer returns the physical buffer currently playing role r.
func (s *CellStore) Buffer(r Role) []components.Cell {
	return s.buffers[s.slot(r)]
}

// Read returns the authoritative buffer for this step.
func (s *CellStore) Read() []components.Cell { return s.Buffer(RoleRead) }

// Write returns the buffer this step's update writes into.
func (s *CellStore) Write() []components.Cell { return s.Buffer(RoleWrite) }

// Rotate advances the round robin: this step's write becomes the next read,
// the old read becomes stale and the old stale buffer is written next.
func (s *CellStore) Rotate() {
	s.rotation = (s.rotation + 1) % int(numRoles)
}

// Rotation returns the current rotation counter.
func (s *CellStore) Rotation() int { return s.rotation }

// Capacity returns the number of slots per buffer.
func (s *CellStore) Capacity() int { return len(s.buffers[0]) }

// Count returns the number of slots in use.
func (s *CellStore) Count() int { return s.count }

// SetCount sets the number of slots in use.
func (s *CellStore) SetCount(n int) { s.count = n }

// Get returns a copy of slot i from the read buffer.
func (s *CellStore) Get(i int) components.Cell { return s.Read()[i] }

// Set overwrites slot i of the read buffer. The edit is picked up by the
// next step's update, not by anything that already ran this step.
func (s *CellStore) Set(i int, c components.Cell) { s.Read()[i] = c }

// Reset zeroes every buffer and the slot count.
func (s *CellStore) Reset() {
	for i := range s.buffers {
		clear(s.buffers[i])
	}
	s.rotation = 0
	s.count = 0
}
