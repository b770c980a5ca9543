// Package queue provides the in-memory dispatch primitives for the delivery
// pipeline: a blocking priority queue ordered by (rank, admission sequence)
// and a delay timer that re-enqueues entries after a planned backoff.
package queue

import (
	"container/heap"
	"context"
	"sync"
)

// Priority ranks. Lower values dequeue first.
const (
	RankCritical = 0
	RankHigh     = 1
	RankNormal   = 2
	RankLow      = 3
)

// Rank maps a priority name to its ordering rank. Unknown names rank as
// normal.
func Rank(priority string) int {
	switch priority {
	case "critical":
		return RankCritical
	case "high":
		return RankHigh
	case "normal":
		return RankNormal
	case "low":
		return RankLow
	default:
		return RankNormal
	}
}

// Entry is a queued unit of work: a tracking ID tagged with its priority
// rank and a monotonically increasing admission sequence.
type Entry struct {
	Rank       int
	Seq        uint64
	TrackingID string
}

// ---------------------------------------------------------------------------
// Heap implementation
// ---------------------------------------------------------------------------

type entryHeap []Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].Rank != h[j].Rank {
		return h[i].Rank < h[j].Rank
	}
	return h[i].Seq < h[j].Seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(Entry)) }

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// ---------------------------------------------------------------------------
// PriorityQueue
// ---------------------------------------------------------------------------

// PriorityQueue is a multi-producer/multi-consumer priority queue. Within a
// rank, entries dequeue in admission order (FIFO by sequence). Dequeue blocks
// until an entry is available, the queue is closed, or the context is done.
type PriorityQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  entryHeap
	seq    uint64
	closed bool
}

// NewPriorityQueue creates an empty queue.
func NewPriorityQueue() *PriorityQueue {
	q := &PriorityQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue admits a tracking ID at the given rank. The admission sequence is
// assigned under the queue lock, so concurrent producers get distinct,
// ordered sequences. Enqueue on a closed queue is a no-op.
func (q *PriorityQueue) Enqueue(rank int, trackingID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.seq++
	heap.Push(&q.items, Entry{Rank: rank, Seq: q.seq, TrackingID: trackingID})
	q.cond.Signal()
}

// Dequeue blocks until an entry is available and returns it. It returns
// ok=false when the queue has been closed and drained, or when ctx is
// cancelled.
func (q *PriorityQueue) Dequeue(ctx context.Context) (Entry, bool) {
	// Wake the cond wait when the context ends so blocked consumers exit.
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if len(q.items) > 0 {
			return heap.Pop(&q.items).(Entry), true
		}
		if q.closed || ctx.Err() != nil {
			return Entry{}, false
		}
		q.cond.Wait()
	}
}

// Len reports the number of queued entries.
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close marks the queue closed and wakes all blocked consumers. Entries
// already queued can still be drained.
func (q *PriorityQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}
