package aggregator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Set(sec int) { c.now = time.Unix(int64(sec), 0) }

func newTestTally(window time.Duration) (*WindowedTally, *fakeClock) {
	clk := &fakeClock{}
	clk.Set(0)

	wt := NewWindowedTally(window)
	wt.nowFn = clk.Now

	return wt, clk
}

func TestWindowedTally_FoldsClientWindow(t *testing.T) {
	wt, clk := newTestTally(2 * time.Second)

	wt.Push(42, 10)
	clk.Set(1)
	wt.Push(42, 5)

	got := wt.Tally()
	require.Len(t, got, 1)
	require.EqualValues(t, 42, got[0].ClientID)
	require.EqualValues(t, 15, got[0].TotalCoins)
	require.Equal(t, time.Unix(0, 0), got[0].Begin)
	require.Equal(t, time.Unix(1, 0), got[0].End)
	require.EqualValues(t, 15, got[0].Speed())
}

func TestWindowedTally_EvictsStaleEntries(t *testing.T) {
	wt, clk := newTestTally(10 * time.Second)

	wt.Push(42, 10)
	clk.Set(1)
	wt.Push(42, 5)

	clk.Set(100)
	require.Empty(t, wt.Tally())
	require.Zero(t, wt.Len())
}

func TestWindowedTally_BoundaryIsInclusive(t *testing.T) {
	wt, clk := newTestTally(10 * time.Second)

	wt.Push(1, 3)
	clk.Set(10)

	got := wt.Tally()
	require.Len(t, got, 1)
	require.EqualValues(t, 3, got[0].TotalCoins)

	clk.Set(11)
	require.Empty(t, wt.Tally())
}

func TestWindowedTally_SingleSampleHasZeroSpeed(t *testing.T) {
	wt, _ := newTestTally(10 * time.Second)

	wt.Push(7, 1_000_000)

	got := wt.Tally()
	require.Len(t, got, 1)
	require.Zero(t, got[0].Speed())
}

func TestWindowedTally_PushEvictsOlderRecords(t *testing.T) {
	wt, clk := newTestTally(5 * time.Second)

	wt.Push(1, 1)
	wt.Push(2, 1)
	require.Equal(t, 2, wt.Len())

	clk.Set(20)
	wt.Push(3, 1)
	require.Equal(t, 1, wt.Len())
}

func TestWindowedTally_OrdersByClientID(t *testing.T) {
	wt, clk := newTestTally(time.Minute)

	wt.Push(30, 1)
	wt.Push(-5, 1)
	clk.Set(2)
	wt.Push(10, 4)
	wt.Push(-5, 3)

	got := wt.Tally()
	require.Len(t, got, 3)
	require.EqualValues(t, -5, got[0].ClientID)
	require.EqualValues(t, 10, got[1].ClientID)
	require.EqualValues(t, 30, got[2].ClientID)
	require.EqualValues(t, 2, got[0].Speed())
}
