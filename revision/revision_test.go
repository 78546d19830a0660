package revision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRevisionLess(t *testing.T) {
	a := Revision{HistoryID: "h1", Seqno: 1}
	b := Revision{HistoryID: "h1", Seqno: 2}
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
}

func TestRevisionLessAcrossHistoriesIsFalse(t *testing.T) {
	a := Revision{HistoryID: "h1", Seqno: 1}
	b := Revision{HistoryID: "h2", Seqno: 100}
	assert.False(t, a.Less(b))
	assert.False(t, b.Less(a))
}

func TestRevisionString(t *testing.T) {
	r := Revision{HistoryID: "h1", Seqno: 42}
	assert.Equal(t, "h1@42", r.String())
}

func TestLogEntryRevision(t *testing.T) {
	e := LogEntry{Seqno: 9, HistoryID: "h1", Kind: EntryRsmCommand, RsmName: "kv"}
	assert.Equal(t, Revision{HistoryID: "h1", Seqno: 9}, e.Revision())
}

func TestEntryKindString(t *testing.T) {
	assert.Equal(t, "RsmCommand", EntryRsmCommand.String())
	assert.Equal(t, "ConfigEntry", EntryConfig.String())
}
