package aggregator

import (
	"sort"
	"sync"
	"time"
)

type coinPush struct {
	clientID int64
	at       time.Time
	count    uint64
}

// TallyEntry is the surviving window of one client.
type TallyEntry struct {
	ClientID   int64
	Begin      time.Time
	End        time.Time
	TotalCoins uint64
}

// Speed returns coins per second over the entry's span, truncated to an
// integer. A zero span yields 0.
func (e TallyEntry) Speed() uint64 {
	span := e.End.Sub(e.Begin)
	if span <= 0 {
		return 0
	}

	return uint64(float64(e.TotalCoins) / span.Seconds())
}

// WindowedTally records per-client submissions over a trailing time window.
// Records older than now-window are evicted lazily on every Push and Tally.
type WindowedTally struct {
	mu     sync.Mutex
	window time.Duration
	pushes []coinPush

	nowFn func() time.Time
}

// NewWindowedTally creates a tally that keeps records for the given window.
func NewWindowedTally(window time.Duration) *WindowedTally {
	t := &WindowedTally{window: window}
	t.nowFn = time.Now

	return t
}

// SetClock replaces the time source used to stamp and evict records.
func (t *WindowedTally) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nowFn = now
}

// Push records count coins for clientID at the current time.
func (t *WindowedTally) Push(clientID int64, count uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.nowFn()
	t.evict(now)
	t.pushes = append(t.pushes, coinPush{clientID: clientID, at: now, count: count})
}

// Tally folds the surviving records into one entry per client, ordered by
// client id.
func (t *WindowedTally) Tally() []TallyEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.evict(t.nowFn())

	byClient := make(map[int64]*TallyEntry)

	for _, p := range t.pushes {
		e, ok := byClient[p.clientID]
		if !ok {
			e = &TallyEntry{ClientID: p.clientID, Begin: p.at, End: p.at}
			byClient[p.clientID] = e
		}

		if p.at.Before(e.Begin) {
			e.Begin = p.at
		}

		if p.at.After(e.End) {
			e.End = p.at
		}

		e.TotalCoins = saturatingAdd(e.TotalCoins, p.count)
	}

	out := make([]TallyEntry, 0, len(byClient))
	for _, e := range byClient {
		out = append(out, *e)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })

	return out
}

// Len returns the number of retained records.
func (t *WindowedTally) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.pushes)
}

// evict drops records older than now-window. Caller holds mu.
func (t *WindowedTally) evict(now time.Time) {
	cutoff := now.Add(-t.window)

	kept := t.pushes[:0]
	for _, p := range t.pushes {
		if !p.at.Before(cutoff) {
			kept = append(kept, p)
		}
	}

	clear(t.pushes[len(kept):])
	t.pushes = kept
}
