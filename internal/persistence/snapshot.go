package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coinflipper/coinflipper/internal/aggregator"
	"github.com/coinflipper/coinflipper/internal/coinpb"
)

// ErrCorruptSnapshot wraps decode failures of a loaded state blob.
var ErrCorruptSnapshot = errors.New("persistence: corrupt snapshot")

// TimestampLayout names history entries: sortable, one-second resolution.
const TimestampLayout = "2006_01_02_15_04_05"

// Timestamp formats t in UTC with TimestampLayout.
func Timestamp(t time.Time) string { return t.UTC().Format(TimestampLayout) }

// Pusher receives restored state.
type Pusher interface {
	Push(fragment *aggregator.Histogram, count uint64)
}

// Decode parses a persisted Coinstatus into a dense histogram and total.
func Decode(data []byte) (aggregator.Histogram, uint64, error) {
	var st coinpb.Coinstatus
	if err := coinpb.Unmarshal(data, &st); err != nil {
		return aggregator.Histogram{}, 0, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}

	if st.TotalFlips < 0 {
		return aggregator.Histogram{}, 0, fmt.Errorf("%w: negative total %d", ErrCorruptSnapshot, st.TotalFlips)
	}

	h, _ := coinpb.HistogramFromFlips(st.Flips)

	return h, uint64(st.TotalFlips), nil
}

// Restore loads the current state from b and pushes it into dst once.
// It returns the restored total. ErrNotFound and ErrCorruptSnapshot leave dst
// untouched.
func Restore(ctx context.Context, b Backend, dst Pusher) (uint64, error) {
	data, err := b.Load(ctx)
	if err != nil {
		return 0, err
	}

	h, total, err := Decode(data)
	if err != nil {
		return 0, err
	}

	dst.Push(&h, total)

	return total, nil
}
