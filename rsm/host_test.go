package rsm_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timofey-barmin/chronicle/collab/fake"
	"github.com/timofey-barmin/chronicle/examples/kvmodule"
	"github.com/timofey-barmin/chronicle/revision"
	"github.com/timofey-barmin/chronicle/revtable"
	"github.com/timofey-barmin/chronicle/rsm"
)

func newTestHost(t *testing.T) (*rsm.Host, *fake.Cluster, func()) {
	t.Helper()
	cluster := fake.NewCluster("self", "bootstrap")
	table := revtable.New()
	host := rsm.New("kv", "self", kvmodule.New(), nil, cluster, cluster, cluster, table)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		host.Run(ctx)
	}()

	// Give the actor loop a moment to register and observe
	// term_established before the test starts issuing commands.
	time.Sleep(10 * time.Millisecond)

	stop := func() {
		cancel()
		<-done
	}
	return host, cluster, stop
}

func TestCommandSetThenQueryGet(t *testing.T) {
	host, _, stop := newTestHost(t)
	defer stop()
	ctx := context.Background()

	_, err := host.Command(ctx, kvmodule.Command{Op: kvmodule.OpSet, Key: "a", Value: "1"}, time.Second)
	require.NoError(t, err)

	reply, err := host.Query(ctx, kvmodule.Command{Op: kvmodule.OpGet, Key: "a"}, time.Second)
	require.NoError(t, err)
	got := reply.(kvmodule.Reply)
	assert.True(t, got.Found)
	assert.Equal(t, "1", got.Value)
}

func TestCommandGetIsRejectedInline(t *testing.T) {
	host, _, stop := newTestHost(t)
	defer stop()
	ctx := context.Background()

	reply, err := host.Command(ctx, kvmodule.Command{Op: kvmodule.OpGet, Key: "missing"}, time.Second)
	require.NoError(t, err)
	got := reply.(kvmodule.Reply)
	assert.False(t, got.Found)
}

func TestGetLocalRevisionTracksApplied(t *testing.T) {
	host, _, stop := newTestHost(t)
	defer stop()
	ctx := context.Background()

	_, err := host.Command(ctx, kvmodule.Command{Op: kvmodule.OpSet, Key: "a", Value: "1"}, time.Second)
	require.NoError(t, err)

	rev, err := host.GetLocalRevision()
	require.NoError(t, err)
	assert.EqualValues(t, 1, rev.Seqno)
}

func TestSyncRevisionResolvesOnceApplied(t *testing.T) {
	host, _, stop := newTestHost(t)
	defer stop()
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() {
		errCh <- host.SyncRevision(ctx, revision.Revision{HistoryID: "bootstrap", Seqno: 1}, time.Second)
	}()

	_, err := host.Command(ctx, kvmodule.Command{Op: kvmodule.OpSet, Key: "a", Value: "1"}, time.Second)
	require.NoError(t, err)

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sync_revision never resolved")
	}
}

func TestSyncRevisionMismatchedHistory(t *testing.T) {
	host, _, stop := newTestHost(t)
	defer stop()
	ctx := context.Background()

	err := host.SyncRevision(ctx, revision.Revision{HistoryID: "some-other-history", Seqno: 1}, 200*time.Millisecond)
	assert.Error(t, err)
}

func TestGetAppliedRevisionLeaderRead(t *testing.T) {
	host, _, stop := newTestHost(t)
	defer stop()
	ctx := context.Background()

	rev, err := host.GetAppliedRevision(ctx, rsm.ReadLeader, time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, "bootstrap", rev.HistoryID)
}

func TestGetAppliedRevisionQuorumRead(t *testing.T) {
	host, _, stop := newTestHost(t)
	defer stop()
	ctx := context.Background()

	rev, err := host.GetAppliedRevision(ctx, rsm.ReadQuorum, time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, "bootstrap", rev.HistoryID)
}

func TestSyncTimesOutWithoutQuorumWhenPartitioned(t *testing.T) {
	host, cluster, stop := newTestHost(t)
	defer stop()
	cluster.SetPartitioned(true)
	ctx := context.Background()

	err := host.Sync(ctx, rsm.ReadQuorum, 50*time.Millisecond)
	assert.Error(t, err)
}
