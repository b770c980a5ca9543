package queue

import (
	"container/heap"
	"sync"
	"time"
)

// timerEntry is a pending re-enqueue: fire the tracking ID back into the
// queue at fireAt with the stored rank.
type timerEntry struct {
	fireAt     time.Time
	rank       int
	trackingID string
	seq        uint64
}

type timerHeap []timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if !h[i].fireAt.Equal(h[j].fireAt) {
		return h[i].fireAt.Before(h[j].fireAt)
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x interface{}) { *h = append(*h, x.(timerEntry)) }

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// ---------------------------------------------------------------------------
// DelayTimer
// ---------------------------------------------------------------------------

// DelayTimer holds entries until their fire time and then re-enqueues them.
// A single goroutine sleeps until the earliest pending entry is due, so
// scheduling a nearer deadline wakes it early.
type DelayTimer struct {
	queue *PriorityQueue

	mu      sync.Mutex
	pending timerHeap
	seq     uint64
	wake    chan struct{}
	done    chan struct{}
	stopped bool
}

// NewDelayTimer creates a timer that feeds q and starts its goroutine.
func NewDelayTimer(q *PriorityQueue) *DelayTimer {
	t := &DelayTimer{
		queue: q,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go t.run()
	return t
}

// Schedule re-enqueues trackingID at rank after delay. A non-positive delay
// enqueues immediately.
func (t *DelayTimer) Schedule(rank int, trackingID string, delay time.Duration) {
	if delay <= 0 {
		t.queue.Enqueue(rank, trackingID)
		return
	}
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.seq++
	heap.Push(&t.pending, timerEntry{
		fireAt:     time.Now().Add(delay),
		rank:       rank,
		trackingID: trackingID,
		seq:        t.seq,
	})
	t.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Pending reports the number of entries waiting on their fire time.
func (t *DelayTimer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Stop terminates the timer goroutine. Pending entries are dropped.
func (t *DelayTimer) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.mu.Unlock()
	close(t.done)
}

func (t *DelayTimer) run() {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		t.mu.Lock()
		var wait time.Duration
		now := time.Now()
		for len(t.pending) > 0 && !t.pending[0].fireAt.After(now) {
			e := heap.Pop(&t.pending).(timerEntry)
			t.queue.Enqueue(e.rank, e.trackingID)
		}
		if len(t.pending) > 0 {
			wait = t.pending[0].fireAt.Sub(now)
		} else {
			wait = time.Hour
		}
		t.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-t.done:
			return
		case <-t.wake:
		case <-timer.C:
		}
	}
}
