package systems

import (
	"slices"
	"sync/atomic"

	"github.com/pthm-cable/cellsim/components"
)

const targetSkip = -1

// FlushStats reports what one flush did with the queue.
type FlushStats struct {
	Admitted   int
	Reused     int // admitted into dead slots rather than appended
	Dropped    int // over the population ceiling
	Exhausted  int // dropped because no cell ID could be allocated
	Discarded  int // dead placeholders skipped
	QueueDrops int // enqueue attempts rejected since the last flush
}

// RecountStats reports the outcome of a recount.
type RecountStats struct {
	Live  int
	Died  int // records retired this recount
	Free  int // dead slots available for reuse
	Slots int
}

// PopulationController tracks the live count, queues additions and enforces
// the population ceiling.
//
// Enqueue may be called from kernels; Flush and Recount are host-side
// phases that dispatch their own kernels.
type PopulationController struct {
	store *CellStore
	ids   *IDRegistry

	queue    []components.Cell
	targets  []int32 // slot planned for each queued record
	reserved atomic.Int64
	rejected atomic.Int64

	live      atomic.Int64
	limit     int
	maxCells  int
	threshold float64

	free  []int32 // dead slots from the last recount, ascending
	freeN atomic.Int64
	died  atomic.Int64
}

// NewPopulationController creates a controller with a queue of queueSize
// records and a ceiling of limit cells.
func NewPopulationController(store *CellStore, ids *IDRegistry, queueSize, limit int, threshold float64) *PopulationController {
	p := &PopulationController{
		store:     store,
		ids:       ids,
		queue:     make([]components.Cell, queueSize),
		targets:   make([]int32, queueSize),
		maxCells:  store.Capacity(),
		threshold: threshold,
		free:      make([]int32, store.Capacity()),
	}
	p.SetLimit(limit)
	return p
}

// SetLimit sets the population ceiling, clamped to [0, capacity].
func (p *PopulationController) SetLimit(n int) {
	p.limit = min(max(n, 0), p.maxCells)
}

// Limit returns the population ceiling.
func (p *PopulationController) Limit() int { return p.limit }

// Live returns the live count from the last flush or recount.
func (p *PopulationController) Live() int { return int(p.live.Load()) }

// Pending returns the number of queued records.
func (p *PopulationController) Pending() int {
	return int(min(p.reserved.Load(), int64(len(p.queue))))
}

// Enqueue appends c to the addition queue. It reports false, dropping c,
// when the queue is full.
func (p *PopulationController) Enqueue(c components.Cell) bool {
	i := p.reserved.Add(1) - 1
	if i >= int64(len(p.queue)) {
		p.rejected.Add(1)
		return false
	}
	p.queue[i] = c
	return true
}

// EnqueuePair appends two records atomically with respect to capacity:
// either both are queued or neither is.
func (p *PopulationController) EnqueuePair(a, b components.Cell) bool {
	i := p.reserved.Add(2) - 2
	n := int64(len(p.queue))
	if i+1 >= n {
		if i < n {
			// Only the first slot was ours; leave a dead placeholder.
			p.queue[i] = components.Cell{}
		}
		p.rejected.Add(2)
		return false
	}
	p.queue[i] = a
	p.queue[i+1] = b
	return true
}

// Flush writes queued records into the store. Dead slots from the previous
// recount are filled first, then slots are appended at count+k. Records that
// would land at or beyond the ceiling are dropped. Each admitted record is
// written to both the read and write buffers.
func (p *PopulationController) Flush(dev *Device) FlushStats {
	n := int(min(p.reserved.Load(), int64(len(p.queue))))
	stats := FlushStats{QueueDrops: int(p.rejected.Swap(0))}
	p.reserved.Store(0)
	if n == 0 {
		return stats
	}

	count := p.store.Count()
	freeN := int(p.freeN.Load())
	headroom := p.limit - int(p.live.Load())
	slots := count

	// Plan targets and IDs in queue order so the result does not depend on
	// scheduling: the k-th admitted record takes the k-th free slot, then
	// count+(k-freeN).
	k := 0
	for q := 0; q < n; q++ {
		c := &p.queue[q]
		if !c.Alive(p.threshold) {
			p.ids.Recycle(c.ID.Cell())
			p.targets[q] = targetSkip
			stats.Discarded++
			continue
		}

		target := count + (k - freeN)
		if k < freeN {
			target = int(p.free[k])
		}
		if k >= headroom || target >= p.limit {
			p.ids.Recycle(c.ID.Cell())
			p.targets[q] = targetSkip
			stats.Dropped++
			continue
		}

		if c.ID.Cell() == components.NoCellID {
			id := p.ids.Allocate()
			if id == components.NoCellID {
				p.targets[q] = targetSkip
				stats.Exhausted++
				continue
			}
			c.ID = components.PackID(c.ID.Parent(), id, c.ID.ChildFlag())
		}

		p.targets[q] = int32(target)
		if target < count {
			stats.Reused++
		}
		slots = max(slots, target+1)
		k++
	}

	read := p.store.Read()
	write := p.store.Write()
	var admitted atomic.Int64
	dev.Dispatch(n, func(i0, i1 int) {
		for q := i0; q < i1; q++ {
			t := p.targets[q]
			if t == targetSkip {
				continue
			}
			read[t] = p.queue[q]
			write[t] = p.queue[q]
			admitted.Add(1)
		}
	})

	used := min(k, freeN)
	copy(p.free, p.free[used:freeN])
	p.freeN.Store(int64(freeN - used))

	p.live.Add(admitted.Load())
	p.store.SetCount(slots)
	stats.Admitted = int(admitted.Load())
	return stats
}

// Recount sums live records in cells[0:Count()], retires records that died
// since the last recount (their cell ID is recycled and cleared) and
// collects dead slots for reuse by the next flush. Pass the buffer the step
// just wrote.
func (p *PopulationController) Recount(dev *Device, cells []components.Cell) RecountStats {
	n := p.store.Count()
	p.freeN.Store(0)
	p.died.Store(0)

	var live atomic.Int64
	dev.Dispatch(n, func(i0, i1 int) {
		for i := i0; i < i1; i++ {
			c := &cells[i]
			if c.Alive(p.threshold) {
				live.Add(1)
				continue
			}
			if id := c.ID.Cell(); id != components.NoCellID {
				p.ids.Recycle(id)
				c.ID = 0
				p.died.Add(1)
			}
			p.free[p.freeN.Add(1)-1] = int32(i)
		}
	})

	free := p.free[:p.freeN.Load()]
	slices.Sort(free)

	// Trailing dead slots shrink the slot count instead of waiting for reuse.
	for len(free) > 0 && int(free[len(free)-1]) == n-1 {
		free = free[:len(free)-1]
		n--
	}
	p.freeN.Store(int64(len(free)))
	p.store.SetCount(n)
	p.live.Store(live.Load())

	return RecountStats{
		Live:  int(live.Load()),
		Died:  int(p.died.Load()),
		Free:  len(free),
		Slots: n,
	}
}

// Reset empties the queue and zeroes the counters.
func (p *PopulationController) Reset() {
	p.reserved.Store(0)
	p.rejected.Store(0)
	p.live.Store(0)
	p.freeN.Store(0)
	p.died.Store(0)
}

// SetLive overrides the live count after records were written directly.
func (p *PopulationController) SetLive(n int) { p.live.Store(int64(n)) }
