package aggregator

import (
	"math"
	"math/bits"
	"sync"
)

// Buckets is the number of run-length buckets in a Histogram.
const Buckets = 128

// Histogram counts observed bit-runs by length. Bucket i holds runs of
// length i+1; bucket Buckets-1 also absorbs every longer run.
type Histogram [Buckets]uint64

// Record counts one run of the given length.
func (h *Histogram) Record(runLen int) {
	if runLen < 1 {
		return
	}

	h[min(runLen, Buckets)-1]++
}

// Add merges o into h element-wise. Counters saturate at math.MaxUint64
// instead of wrapping so they never decrease.
func (h *Histogram) Add(o *Histogram) {
	for i := range h {
		h[i] = saturatingAdd(h[i], o[i])
	}
}

// AddAt adds v to bucket i, saturating like Add.
func (h *Histogram) AddAt(i int, v uint64) { h[i] = saturatingAdd(h[i], v) }

// IsZero reports whether every bucket is zero.
func (h *Histogram) IsZero() bool {
	for _, v := range h {
		if v != 0 {
			return false
		}
	}

	return true
}

func saturatingAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}

	return sum
}

// Accumulator is the lock-guarded merge point for histogram fragments.
// Workers use one to collect output from generator goroutines; the collector
// uses one to merge batches from every worker.
type Accumulator struct {
	mu    sync.Mutex
	hist  Histogram
	total uint64
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator { return &Accumulator{} }

// Push adds fragment and count into the held state.
func (a *Accumulator) Push(fragment *Histogram, count uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.hist.Add(fragment)
	a.total = saturatingAdd(a.total, count)
}

// Get returns a consistent copy of the held state without resetting it.
func (a *Accumulator) Get() (Histogram, uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.hist, a.total
}

// Pop returns the held state and resets it to empty in one locked step.
func (a *Accumulator) Pop() (Histogram, uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	h, total := a.hist, a.total
	a.hist = Histogram{}
	a.total = 0

	return h, total
}
