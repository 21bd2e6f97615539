package osc

import (
	"container/heap"
	"net"
	"time"
)

// queuedBundle is a bundle waiting for its time tag, owned by the schedule
// until it is popped or discarded.
type queuedBundle struct {
	bundle   *Bundle
	deadline time.Time
	seq      uint64
	from     net.Addr
	received time.Time
}

// bundleHeap orders queued bundles by deadline, then by arrival.
type bundleHeap []*queuedBundle

func (h bundleHeap) Len() int { return len(h) }

func (h bundleHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h bundleHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *bundleHeap) Push(x interface{}) { *h = append(*h, x.(*queuedBundle)) }

func (h *bundleHeap) Pop() interface{} {
	old := *h
	n := len(old)
	q := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return q
}

// schedule is the pending queue of a single server. It is only touched from
// the server's dispatch goroutine.
type schedule struct {
	h   bundleHeap
	seq uint64
}

func (s *schedule) push(q *queuedBundle) {
	s.seq++
	q.seq = s.seq
	heap.Push(&s.h, q)
}

func (s *schedule) len() int { return len(s.h) }

// next returns the earliest pending entry without removing it.
func (s *schedule) next() *queuedBundle {
	if len(s.h) == 0 {
		return nil
	}
	return s.h[0]
}

// popDue removes and returns the earliest entry if it is due at now.
func (s *schedule) popDue(now time.Time) *queuedBundle {
	if len(s.h) == 0 || s.h[0].deadline.After(now) {
		return nil
	}
	return heap.Pop(&s.h).(*queuedBundle)
}

// drain discards every pending entry and returns how many there were.
func (s *schedule) drain() int {
	n := len(s.h)
	for i := range s.h {
		s.h[i] = nil
	}
	s.h = s.h[:0]
	return n
}
