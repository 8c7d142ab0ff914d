package aggregator

import (
	// Custom benchmark flags must be declared in a _test file before use.
	// Example: go test -bench=Accumulator -benchmem -benchprocs=4 ./internal/aggregator
	"flag"
	"runtime"
	"testing"
	"time"
)

var benchProcs = flag.Int("benchprocs", 0, "override GOMAXPROCS for aggregator benchmarks (0 = use testing -cpu)")

func benchFragment() *Histogram {
	var h Histogram
	for i := range h {
		h[i] = uint64(i + 1)
	}

	return &h
}

func BenchmarkAccumulator_Push(b *testing.B) {
	if *benchProcs > 0 {
		runtime.GOMAXPROCS(*benchProcs)
	}

	a := NewAccumulator()
	frag := benchFragment()

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		a.Push(frag, 64)
	}
}

// Contention with many producer goroutines, the worker's normal shape.
func BenchmarkAccumulator_Push_Parallel(b *testing.B) {
	if *benchProcs > 0 {
		runtime.GOMAXPROCS(*benchProcs)
	}

	a := NewAccumulator()
	frag := benchFragment()

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			a.Push(frag, 64)
		}
	})
}

func BenchmarkAccumulator_Pop(b *testing.B) {
	a := NewAccumulator()
	frag := benchFragment()

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		a.Push(frag, 64)
		_, _ = a.Pop()
	}
}

func BenchmarkWindowedTally_PushAndTally(b *testing.B) {
	wt := NewWindowedTally(10 * time.Second)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		wt.Push(int64(i%32), 1024)

		if i%64 == 0 {
			_ = wt.Tally()
		}
	}
}
