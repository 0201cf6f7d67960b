// Package systems provides the simulation's buffers and per-step compute kernels.
package systems

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Kernel processes the half-open index range [i0, i1). Invocations on
// disjoint ranges run concurrently and must only write their own slots or
// shared counters through atomics.
type Kernel func(i0, i1 int)

// DeviceStats counts work submitted to a Device.
type DeviceStats struct {
	Dispatches uint64 // Kernel launches
	Barriers   uint64 // Launches that fanned out to workers and had to wait
	Chunks     uint64 // Chunks executed by workers
}

// workChunk represents a range of indices for a worker to process.
type workChunk struct {
	kernel     Kernel
	start, end int
}

// Device runs kernels over index ranges on a persistent worker pool.
// Dispatch returns only after every chunk has finished, so consecutive
// dispatches are separated by a full barrier. A Device is driven by a
// single goroutine; Dispatch is not reentrant.
type Device struct {
	numWorkers int
	threshold  int

	// Worker pool channels
	workChan chan workChunk // sends work to workers
	doneChan chan struct{}  // workers signal completion
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool           // true if workers are running

	dispatches atomic.Uint64
	barriers   atomic.Uint64
	chunks     atomic.Uint64
}

// NewDevice creates a device. workers <= 0 uses GOMAXPROCS. Below threshold
// items a kernel runs on the calling goroutine.
func NewDevice(workers, threshold int) *Device {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if threshold < 1 {
		threshold = 1
	}
	return &Device{numWorkers: workers, threshold: threshold}
}

// Workers returns the pool size.
func (d *Device) Workers() int { return d.numWorkers }

// startWorkers launches persistent worker goroutines.
func (d *Device) startWorkers() {
	if d.running {
		return
	}

	d.workChan = make(chan workChunk, d.numWorkers)
	d.doneChan = make(chan struct{}, d.numWorkers)
	d.stopChan = make(chan struct{})
	d.running = true

	for i := 0; i < d.numWorkers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// worker runs in a goroutine, processing chunks until stopped.
func (d *Device) worker() {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopChan:
			return
		case chunk, ok := <-d.workChan:
			if !ok {
				return
			}
			chunk.kernel(chunk.start, chunk.end)
			d.chunks.Add(1)
			d.doneChan <- struct{}{}
		}
	}
}

// Dispatch runs kernel over [0, n) and waits for it to complete.
func (d *Device) Dispatch(n int, kernel Kernel) {
	if n <= 0 {
		return
	}
	d.dispatches.Add(1)

	// Single-threaded for small ranges or a single worker
	if n < d.threshold || d.numWorkers == 1 {
		kernel(0, n)
		return
	}

	if !d.running {
		d.startWorkers()
	}

	chunkSize := (n + d.numWorkers - 1) / d.numWorkers

	chunksDispatched := 0
	for w := 0; w < d.numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			continue
		}
		d.workChan <- workChunk{kernel: kernel, start: start, end: end}
		chunksDispatched++
	}

	// Wait for all chunks to complete
	for i := 0; i < chunksDispatched; i++ {
		<-d.doneChan
	}
	d.barriers.Add(1)
}

// Stats returns cumulative dispatch counters.
func (d *Device) Stats() DeviceStats {
	return DeviceStats{
		Dispatches: d.dispatches.Load(),
		Barriers:   d.barriers.Load(),
		Chunks:     d.chunks.Load(),
	}
}

// Close signals all workers to exit and waits for them.
func (d *Device) Close() {
	if !d.running {
		return
	}

	close(d.stopChan)
	d.wg.Wait()
	close(d.workChan)
	close(d.doneChan)
	d.running = false
}
