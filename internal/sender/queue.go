package sender

import (
	"sync"

	"github.com/coinflipper/coinflipper/internal/coinpb"
)

// Queue is the FIFO of drained batches waiting for acknowledgment. Only the
// owning Sender mutates it; Len and Flips may be read from any goroutine.
type Queue struct {
	mu    sync.Mutex
	items []*coinpb.Coinbatch
	flips uint64
}

// Push appends b at the tail.
func (q *Queue) Push(b *coinpb.Coinbatch) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, b)
	q.flips += uint64(b.TotalFlips)
}

// Head returns the oldest batch without removing it.
func (q *Queue) Head() (*coinpb.Coinbatch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}

	return q.items[0], true
}

// Ack removes the head. It must only be called after the head was
// acknowledged by the collector.
func (q *Queue) Ack() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return
	}

	q.flips -= uint64(q.items[0].TotalFlips)
	q.items[0] = nil
	q.items = q.items[1:]
}

// Len returns the number of unacknowledged batches.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// Flips returns the total flip count of the unacknowledged batches.
func (q *Queue) Flips() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.flips
}
