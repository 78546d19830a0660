package fake_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timofey-barmin/chronicle/collab"
	"github.com/timofey-barmin/chronicle/collab/fake"
	"github.com/timofey-barmin/chronicle/revision"
)

func TestRegisterRSMDeliversTermEstablished(t *testing.T) {
	c := fake.NewCluster("self", "bootstrap")
	historyID, term, seqno, _, _, termEvents, ok, err := c.RegisterRSM(context.Background(), "kv", "self")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, "bootstrap", historyID)
	assert.EqualValues(t, 1, term)
	assert.EqualValues(t, 0, seqno)

	ev := <-termEvents
	assert.Equal(t, collab.TermEstablished, ev.Kind)
}

func TestRsmCommandAppendsAndNotifies(t *testing.T) {
	c := fake.NewCluster("self", "bootstrap")
	historyID, term, _, commandOutcomes, _, _, _, err := c.RegisterRSM(context.Background(), "kv", "self")
	require.NoError(t, err)

	require.NoError(t, c.RsmCommand(1, historyID, term, "kv", "set x 1"))
	outcome := <-commandOutcomes
	assert.True(t, outcome.Accepted)
	assert.EqualValues(t, 1, outcome.Seqno)

	log, err := c.GetLog(context.Background())
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, "set x 1", log[0].Command)
}

func TestStoreBranchAndLocalStoreBranchAdoptHistory(t *testing.T) {
	a := fake.NewCluster("a", "bootstrap")
	b := fake.NewCluster("b", "bootstrap")
	a.Join(b)

	branch := revision.Branch{HistoryID: "h2", OldHistoryID: "bootstrap", Coordinator: "a", Peers: []revision.PeerID{"a", "b"}}
	ok, failed, err := a.StoreBranch(context.Background(), []revision.PeerID{"b"}, branch, time.Second)
	require.NoError(t, err)
	assert.Empty(t, failed)
	assert.Contains(t, ok, revision.PeerID("b"))

	md, err := b.GetMetadata(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, "h2", md.HistoryID)
}

func TestUndoBranchNoBranchIsReportedAsFailure(t *testing.T) {
	a := fake.NewCluster("a", "bootstrap")
	b := fake.NewCluster("b", "bootstrap")
	a.Join(b)

	_, failed, err := a.UndoBranch(context.Background(), []revision.PeerID{"b"}, "never-there", time.Second)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0].Err, collab.ErrNoBranch)
}

func TestSubscribePublishesOnCommand(t *testing.T) {
	c := fake.NewCluster("self", "bootstrap")
	events, unsubscribe := c.Subscribe(collab.MetadataTopic)
	defer unsubscribe()

	historyID, term, _, _, _, _, _, err := c.RegisterRSM(context.Background(), "kv", "self")
	require.NoError(t, err)
	require.NoError(t, c.RsmCommand(1, historyID, term, "kv", "noop"))

	md := <-events
	assert.EqualValues(t, 1, md.CommittedSeqno)
}
