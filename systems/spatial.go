package systems

import (
	"fmt"
	"math"
	"slices"
	"sync/atomic"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/cellsim/components"
)

// SpatialGrid bins cells into uniform cubic buckets covering [-boundary, boundary]^3.
//
// The grid is rebuilt from scratch every step in four barrier-separated
// phases: clear, count, prefix sum and insert. Bucket contents live in one
// flat index array; bucket b owns indices[offsets[b]:offsets[b+1]].
type SpatialGrid struct {
	boundary float64
	cellSize float64
	dims     int

	counts   []atomic.Int32 // per-bucket occupancy
	cursors  []atomic.Int32 // per-bucket insert cursor
	offsets  []int32        // exclusive prefix sum, len = buckets+1
	indices  []int32        // cell indices grouped by bucket
	bucketOf []int32        // bucket of each cell slot, -1 when not inserted
	active   []int32        // buckets with at least one occupant, ascending
}

// NewSpatialGrid creates a grid for the given world half-extent and bucket
// size. It fails for sizes that produce no buckets or an unbounded number.
func NewSpatialGrid(boundary, cellSize float64, capacity int) (*SpatialGrid, error) {
	if !(boundary > 0) || math.IsInf(boundary, 0) {
		return nil, fmt.Errorf("spatial grid: boundary %v must be positive and finite", boundary)
	}
	if !(cellSize > 0) {
		return nil, fmt.Errorf("spatial grid: cell size %v must be positive", cellSize)
	}
	dims := int(math.Ceil(2 * boundary / cellSize))
	if dims < 1 {
		dims = 1
	}
	if dims > 1<<10 {
		return nil, fmt.Errorf("spatial grid: cell size %v yields %d buckets per axis", cellSize, dims)
	}
	buckets := dims * dims * dims

	return &SpatialGrid{
		boundary: boundary,
		cellSize: cellSize,
		dims:     dims,
		counts:   make([]atomic.Int32, buckets),
		cursors:  make([]atomic.Int32, buckets),
		offsets:  make([]int32, buckets+1),
		indices:  make([]int32, capacity),
		bucketOf: make([]int32, capacity),
		active:   make([]int32, 0, 64),
	}, nil
}

// Dims returns the number of buckets per axis.
func (g *SpatialGrid) Dims() int { return g.dims }

// Buckets returns the total number of buckets.
func (g *SpatialGrid) Buckets() int { return len(g.counts) }

// CellSize returns the bucket edge length.
func (g *SpatialGrid) CellSize() float64 { return g.cellSize }

// axis converts a coordinate to a clamped bucket coordinate.
func (g *SpatialGrid) axis(v float64) int {
	i := int(math.Floor((v + g.boundary) / g.cellSize))
	if i < 0 {
		return 0
	}
	if i >= g.dims {
		return g.dims - 1
	}
	return i
}

// BucketIndex returns the linear bucket containing p. Positions outside
// the world clamp to the nearest edge bucket.
func (g *SpatialGrid) BucketIndex(p r3.Vec) int {
	return g.linear(g.axis(p.X), g.axis(p.Y), g.axis(p.Z))
}

func (g *SpatialGrid) linear(x, y, z int) int {
	return (z*g.dims+y)*g.dims + x
}

// Build rebuilds the grid from the first n slots of cells. Dead cells
// (mass at or below threshold) are left out.
func (g *SpatialGrid) Build(dev *Device, cells []components.Cell, n int, threshold float64) {
	// Phase 1: clear
	dev.Dispatch(len(g.counts), func(i0, i1 int) {
		for b := i0; b < i1; b++ {
			g.counts[b].Store(0)
			g.cursors[b].Store(0)
		}
	})

	// Phase 2: assign and count
	dev.Dispatch(n, func(i0, i1 int) {
		for i := i0; i < i1; i++ {
			c := &cells[i]
			if !c.Alive(threshold) {
				g.bucketOf[i] = -1
				continue
			}
			b := g.BucketIndex(c.Position)
			g.bucketOf[i] = int32(b)
			g.counts[b].Add(1)
		}
	})

	// Phase 3: exclusive prefix sum in linear bucket order
	g.active = g.active[:0]
	var sum int32
	for b := range g.counts {
		g.offsets[b] = sum
		if c := g.counts[b].Load(); c > 0 {
			g.active = append(g.active, int32(b))
			sum += c
		}
	}
	g.offsets[len(g.counts)] = sum

	// Phase 4: insert
	dev.Dispatch(n, func(i0, i1 int) {
		for i := i0; i < i1; i++ {
			b := g.bucketOf[i]
			if b < 0 {
				continue
			}
			slot := g.offsets[b] + g.cursors[b].Add(1) - 1
			g.indices[slot] = int32(i)
		}
	})

	// Insert order within a bucket depends on scheduling; sort so neighbour
	// iteration, and everything summed from it, is reproducible.
	dev.Dispatch(len(g.active), func(i0, i1 int) {
		for _, b := range g.active[i0:i1] {
			slices.Sort(g.indices[g.offsets[b]:g.offsets[b+1]])
		}
	})
}

// Count returns the occupancy of bucket b.
func (g *SpatialGrid) Count(b int) int { return int(g.counts[b].Load()) }

// Bucket returns the cell indices in bucket b. The slice aliases grid storage.
func (g *SpatialGrid) Bucket(b int) []int32 {
	return g.indices[g.offsets[b]:g.offsets[b+1]]
}

// BucketOf returns the bucket cell i was inserted into, or -1.
func (g *SpatialGrid) BucketOf(i int) int { return int(g.bucketOf[i]) }

// ActiveBuckets returns the occupied buckets in ascending order.
func (g *SpatialGrid) ActiveBuckets() []int32 { return g.active }

// Inserted returns the number of cells placed by the last Build.
func (g *SpatialGrid) Inserted() int { return int(g.offsets[len(g.counts)]) }

// ForEachNeighbor calls fn with the index of every inserted cell whose
// bucket lies within radius of p. Callers filter by exact distance. fn
// returning false stops the walk.
func (g *SpatialGrid) ForEachNeighbor(p r3.Vec, radius float64, fn func(j int32) bool) {
	lo := r3.Vec{X: p.X - radius, Y: p.Y - radius, Z: p.Z - radius}
	hi := r3.Vec{X: p.X + radius, Y: p.Y + radius, Z: p.Z + radius}
	x0, x1 := g.axis(lo.X), g.axis(hi.X)
	y0, y1 := g.axis(lo.Y), g.axis(hi.Y)
	z0, z1 := g.axis(lo.Z), g.axis(hi.Z)

	for z := z0; z <= z1; z++ {
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				b := g.linear(x, y, z)
				if g.counts[b].Load() == 0 {
					continue
				}
				for _, j := range g.indices[g.offsets[b]:g.offsets[b+1]] {
					if !fn(j) {
						return
					}
				}
			}
		}
	}
}

// Reset empties the grid.
func (g *SpatialGrid) Reset() {
	for b := range g.counts {
		g.counts[b].Store(0)
		g.cursors[b].Store(0)
	}
	clear(g.offsets)
	g.active = g.active[:0]
}
