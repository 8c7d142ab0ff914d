package aggregator

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistogram_RecordClampsLongRuns(t *testing.T) {
	var h Histogram

	h.Record(1)
	h.Record(2)
	h.Record(128)
	h.Record(500)
	h.Record(0) // ignored

	assert.EqualValues(t, 1, h[0])
	assert.EqualValues(t, 1, h[1])
	assert.EqualValues(t, 2, h[127])
}

func TestAccumulator_PushThenPopReturnsFragment(t *testing.T) {
	a := NewAccumulator()

	var x Histogram
	x[0], x[5], x[127] = 10, 3, 1

	a.Push(&x, 64)

	got, total := a.Pop()
	require.Equal(t, x, got)
	require.EqualValues(t, 64, total)

	got, total = a.Get()
	require.True(t, got.IsZero())
	require.Zero(t, total)
}

func TestAccumulator_GetDoesNotReset(t *testing.T) {
	a := NewAccumulator()

	var x Histogram
	x[3] = 7

	a.Push(&x, 7)

	h1, t1 := a.Get()
	h2, t2 := a.Get()
	require.Equal(t, h1, h2)
	require.Equal(t, t1, t2)
	require.EqualValues(t, 7, h1[3])
}

func TestAccumulator_ConcurrentPushesSumExactly(t *testing.T) {
	const (
		producers = 16
		perWorker = 500
	)

	a := NewAccumulator()

	var wg sync.WaitGroup

	for p := 0; p < producers; p++ {
		wg.Add(1)

		go func(p int) {
			defer wg.Done()

			var frag Histogram
			frag[p%Buckets] = 1
			frag[127] = 2

			for i := 0; i < perWorker; i++ {
				a.Push(&frag, 3)
			}
		}(p)
	}

	wg.Wait()

	h, total := a.Get()
	require.EqualValues(t, producers*perWorker*3, total)
	require.EqualValues(t, producers*perWorker*2, h[127])

	for p := 0; p < producers; p++ {
		require.EqualValues(t, perWorker, h[p], "bucket %d", p)
	}
}

// Draining concurrently with producers must neither lose nor duplicate counts.
func TestAccumulator_PopConcurrentWithPush(t *testing.T) {
	a := NewAccumulator()

	var frag Histogram
	frag[0] = 1

	const pushes = 10_000

	done := make(chan struct{})

	go func() {
		defer close(done)

		for i := 0; i < pushes; i++ {
			a.Push(&frag, 1)
		}
	}()

	var drained uint64

	var bucket0 uint64

	for {
		select {
		case <-done:
			h, total := a.Pop()
			drained += total
			bucket0 += h[0]

			require.EqualValues(t, pushes, drained)
			require.EqualValues(t, pushes, bucket0)

			return
		default:
			h, total := a.Pop()
			drained += total
			bucket0 += h[0]
		}
	}
}

func TestAccumulator_SaturatesInsteadOfWrapping(t *testing.T) {
	a := NewAccumulator()

	var big Histogram
	big[0] = math.MaxUint64 - 1

	a.Push(&big, math.MaxUint64-1)

	var one Histogram
	one[0] = 5

	a.Push(&one, 5)

	h, total := a.Get()
	assert.Equal(t, uint64(math.MaxUint64), h[0])
	assert.Equal(t, uint64(math.MaxUint64), total)
}
