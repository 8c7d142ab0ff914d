package coinpb

import "github.com/coinflipper/coinflipper/internal/aggregator"

// FlipsFromHistogram encodes h sparsely: only non-zero buckets are emitted,
// in bucket order.
func FlipsFromHistogram(h *aggregator.Histogram) []Coinflip {
	var out []Coinflip

	for i, v := range h {
		if v != 0 {
			out = append(out, Coinflip{Position: uint32(i), Flips: v})
		}
	}

	return out
}

// HistogramFromFlips decodes a sparse bucket list. Entries whose position is
// outside the histogram are skipped and counted in dropped. Repeated
// positions are summed.
func HistogramFromFlips(flips []Coinflip) (h aggregator.Histogram, dropped int) {
	for _, f := range flips {
		if f.Position >= aggregator.Buckets {
			dropped++

			continue
		}

		h.AddAt(int(f.Position), f.Flips)
	}

	return h, dropped
}

// NewBatch builds the Coinbatch for a drained fragment.
func NewBatch(clientID int64, h *aggregator.Histogram, total uint64) *Coinbatch {
	return &Coinbatch{
		Hash:       clientID,
		Flips:      FlipsFromHistogram(h),
		TotalFlips: int64(total),
	}
}
