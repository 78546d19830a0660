package revtable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timofey-barmin/chronicle/revision"
	"github.com/timofey-barmin/chronicle/rsmerr"
)

func TestPublishGet(t *testing.T) {
	tbl := New()
	rev := revision.Revision{HistoryID: "h1", Seqno: 7}
	tbl.Publish("rsm-a", rev)

	got, err := tbl.Get("rsm-a")
	require.NoError(t, err)
	assert.Equal(t, rev, got)
}

func TestGetUnknownIsNotRunning(t *testing.T) {
	tbl := New()
	_, err := tbl.Get("missing")
	assert.ErrorIs(t, err, rsmerr.ErrNotRunning)
}

func TestRemove(t *testing.T) {
	tbl := New()
	tbl.Publish("rsm-a", revision.Revision{HistoryID: "h1", Seqno: 1})
	tbl.Remove("rsm-a")

	_, err := tbl.Get("rsm-a")
	assert.ErrorIs(t, err, rsmerr.ErrNotRunning)
}

func TestPublishOverwrites(t *testing.T) {
	tbl := New()
	tbl.Publish("rsm-a", revision.Revision{HistoryID: "h1", Seqno: 1})
	tbl.Publish("rsm-a", revision.Revision{HistoryID: "h1", Seqno: 2})

	got, err := tbl.Get("rsm-a")
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Seqno)
}
