package rsm

import (
	"container/heap"
	"time"

	"github.com/timofey-barmin/chronicle/revision"
)

// syncWaiter is one parked sync_revision(hist, seqno) call.
type syncWaiter struct {
	ref       ref
	seqno     revision.Seqno
	historyID revision.HistoryID
	reply     chan<- error
	timer     *time.Timer
	index     int // heap bookkeeping
}

// syncHeap is a min-heap over (seqno, ref), letting "release all <=
// applied_seqno" drain in amortized O(k log n) instead of a linear scan,
// per the design notes.
type syncHeap []*syncWaiter

func (h syncHeap) Len() int { return len(h) }
func (h syncHeap) Less(i, j int) bool {
	if h[i].seqno != h[j].seqno {
		return h[i].seqno < h[j].seqno
	}
	return h[i].ref < h[j].ref
}
func (h syncHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *syncHeap) Push(x interface{}) {
	w := x.(*syncWaiter)
	w.index = len(*h)
	*h = append(*h, w)
}
func (h *syncHeap) Pop() interface{} {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return w
}

// syncQueue is the host's sync_revision_requests table: an ordered map
// keyed by (seqno, ref) so pending requests at or below the newly applied
// seqno can be released without rescanning every waiter.
type syncQueue struct {
	heap    syncHeap
	byRef   map[ref]*syncWaiter
}

func newSyncQueue() *syncQueue {
	return &syncQueue{byRef: make(map[ref]*syncWaiter)}
}

func (q *syncQueue) add(w *syncWaiter) {
	heap.Push(&q.heap, w)
	q.byRef[w.ref] = w
}

func (q *syncQueue) removeRef(r ref) (*syncWaiter, bool) {
	w, ok := q.byRef[r]
	if !ok {
		return nil, false
	}
	delete(q.byRef, r)
	heap.Remove(&q.heap, w.index)
	return w, true
}

// releaseApplied pops every waiter whose seqno is <= appliedSeqno and
// hands it to deliver (which should stop its timer and reply ok).
func (q *syncQueue) releaseApplied(appliedSeqno revision.Seqno, deliver func(*syncWaiter)) {
	for q.heap.Len() > 0 && q.heap[0].seqno <= appliedSeqno {
		w := heap.Pop(&q.heap).(*syncWaiter)
		delete(q.byRef, w.ref)
		deliver(w)
	}
}

// sweepDivergedHistory drains every waiter whose stored historyID no
// longer matches the newly applied history, handing each to deliver
// (which should reply ErrHistoryMismatch).
func (q *syncQueue) sweepDivergedHistory(currentHistory revision.HistoryID, deliver func(*syncWaiter)) {
	remaining := make([]*syncWaiter, 0, q.heap.Len())
	for _, w := range q.heap {
		if w.historyID != currentHistory {
			delete(q.byRef, w.ref)
			deliver(w)
		} else {
			remaining = append(remaining, w)
		}
	}
	q.heap = q.heap[:0]
	for _, w := range remaining {
		heap.Push(&q.heap, w)
	}
}
