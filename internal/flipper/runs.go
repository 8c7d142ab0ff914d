package flipper

import "github.com/coinflipper/coinflipper/internal/aggregator"

// RunCounter turns a bit stream into a run-length histogram. Runs may span
// words; a run is recorded only once the bit that ends it is seen.
type RunCounter struct {
	prev bool
	run  int
	hist aggregator.Histogram
}

// Feed consumes the 64 bits of word, most significant first.
func (r *RunCounter) Feed(word uint64) {
	if r.run == 0 {
		r.prev = word>>63 == 1
	}

	for i := 63; i >= 0; i-- {
		bit := (word>>uint(i))&1 == 1
		if bit == r.prev {
			r.run++
			continue
		}

		r.hist.Record(r.run)
		r.prev = bit
		r.run = 1
	}
}

// Take returns the runs completed since the last Take and clears them. The
// run in progress is kept.
func (r *RunCounter) Take() aggregator.Histogram {
	h := r.hist
	r.hist = aggregator.Histogram{}

	return h
}
