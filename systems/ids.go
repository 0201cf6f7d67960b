package systems

import (
	"sync/atomic"

	"github.com/pthm-cable/cellsim/components"
)

// IDRegistry allocates and recycles 31-bit cell IDs.
//
// Allocate and Recycle are safe to call from concurrent kernel invocations.
// Merge, Reserve and Reset are host-side and must not overlap a dispatch.
// IDs recycled during a step become available only after the next Merge, so
// an ID is never handed out in the same step it was vacated.
type IDRegistry struct {
	limit uint32        // highest fresh ID that may be issued
	next  atomic.Uint32 // next fresh ID

	// FIFO pool of reusable IDs. head advances atomically; the slice and
	// its length only change in Merge.
	pool []uint32
	head atomic.Int64

	// Per-step recycle list.
	recycle    []uint32
	recycled   atomic.Int64
	overflowed atomic.Uint64
	exhausted  atomic.Uint64
}

// NewIDRegistry creates a registry whose recycle list holds recycleCap IDs
// per step. limit caps fresh IDs; 0 or anything above MaxCellID means MaxCellID.
func NewIDRegistry(recycleCap int, limit uint32) *IDRegistry {
	if limit == 0 || limit > components.MaxCellID {
		limit = components.MaxCellID
	}
	r := &IDRegistry{
		limit:   limit,
		pool:    make([]uint32, 0, recycleCap),
		recycle: make([]uint32, recycleCap),
	}
	r.next.Store(1)
	return r
}

// Allocate returns a cell ID, preferring the oldest recycled one. It returns
// components.NoCellID when the ID space is exhausted; the caller drops the
// request.
func (r *IDRegistry) Allocate() uint32 {
	if n := int64(len(r.pool)); r.head.Load() < n {
		if i := r.head.Add(1) - 1; i < n {
			return r.pool[i]
		}
	}

	for {
		id := r.next.Load()
		if id == 0 || id > r.limit {
			r.exhausted.Add(1)
			return components.NoCellID
		}
		if r.next.CompareAndSwap(id, id+1) {
			return id
		}
	}
}

// Recycle queues id for reuse after the next Merge. NoCellID is ignored.
// When the list is full the ID is leaked and counted as an overflow.
func (r *IDRegistry) Recycle(id uint32) {
	if id == components.NoCellID {
		return
	}
	i := r.recycled.Add(1) - 1
	if i >= int64(len(r.recycle)) {
		r.overflowed.Add(1)
		return
	}
	r.recycle[i] = id
}

// Merge moves this step's recycled IDs to the back of the pool.
func (r *IDRegistry) Merge() {
	head := min(r.head.Load(), int64(len(r.pool)))
	remaining := copy(r.pool, r.pool[head:])
	r.pool = r.pool[:remaining]
	r.head.Store(0)

	n := min(r.recycled.Load(), int64(len(r.recycle)))
	r.pool = append(r.pool, r.recycle[:n]...)
	r.recycled.Store(0)
}

// Reserve moves the fresh counter past maxID, for restoring records that
// already carry IDs.
func (r *IDRegistry) Reserve(maxID uint32) {
	if maxID >= r.next.Load() {
		r.next.Store(maxID + 1)
	}
}

// Reset forgets every issued and recycled ID.
func (r *IDRegistry) Reset() {
	r.next.Store(1)
	r.pool = r.pool[:0]
	r.head.Store(0)
	r.recycled.Store(0)
	r.overflowed.Store(0)
	r.exhausted.Store(0)
}

// Available returns how many pooled IDs remain for this step.
func (r *IDRegistry) Available() int {
	return max(len(r.pool)-int(r.head.Load()), 0)
}

// Pending returns how many IDs were recycled this step.
func (r *IDRegistry) Pending() int {
	return int(min(r.recycled.Load(), int64(len(r.recycle))))
}

// Issued returns how many fresh IDs have been handed out.
func (r *IDRegistry) Issued() uint32 {
	return r.next.Load() - 1
}

// TakeExhausted returns and clears the count of failed allocations.
func (r *IDRegistry) TakeExhausted() uint64 { return r.exhausted.Swap(0) }

// TakeOverflowed returns and clears the count of leaked recycles.
func (r *IDRegistry) TakeOverflowed() uint64 { return r.overflowed.Swap(0) }
