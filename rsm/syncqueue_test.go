package rsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncQueueReleaseApplied(t *testing.T) {
	q := newSyncQueue()
	var released []ref
	deliver := func(w *syncWaiter) { released = append(released, w.ref) }

	q.add(&syncWaiter{ref: 1, seqno: 5, historyID: "h1"})
	q.add(&syncWaiter{ref: 2, seqno: 3, historyID: "h1"})
	q.add(&syncWaiter{ref: 3, seqno: 10, historyID: "h1"})

	q.releaseApplied(5, deliver)

	require.Len(t, released, 2)
	assert.Equal(t, []ref{2, 1}, released)

	_, ok := q.removeRef(3)
	assert.True(t, ok)
}

func TestSyncQueueSweepDivergedHistory(t *testing.T) {
	q := newSyncQueue()
	var mismatched []ref
	deliver := func(w *syncWaiter) { mismatched = append(mismatched, w.ref) }

	q.add(&syncWaiter{ref: 1, seqno: 5, historyID: "h1"})
	q.add(&syncWaiter{ref: 2, seqno: 6, historyID: "h2"})

	q.sweepDivergedHistory("h2", deliver)

	assert.Equal(t, []ref{1}, mismatched)
	_, ok := q.removeRef(2)
	assert.True(t, ok)
	_, ok = q.removeRef(1)
	assert.False(t, ok)
}

func TestSyncQueueRemoveRef(t *testing.T) {
	q := newSyncQueue()
	q.add(&syncWaiter{ref: 1, seqno: 5, historyID: "h1"})

	w, ok := q.removeRef(1)
	require.True(t, ok)
	assert.EqualValues(t, 5, w.seqno)

	_, ok = q.removeRef(1)
	assert.False(t, ok)
}
