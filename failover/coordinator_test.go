package failover_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timofey-barmin/chronicle/collab/fake"
	"github.com/timofey-barmin/chronicle/failover"
	"github.com/timofey-barmin/chronicle/revision"
	"github.com/timofey-barmin/chronicle/rsmerr"
)

func newPair(t *testing.T) (*fake.Cluster, *fake.Cluster, func()) {
	t.Helper()
	a := fake.NewCluster("a", "bootstrap")
	b := fake.NewCluster("b", "bootstrap")
	a.Join(b)
	return a, b, func() {}
}

func TestFailoverInstallsOnBothPeers(t *testing.T) {
	a, b, _ := newPair(t)
	c := failover.New("a", a)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	branch, err := c.Failover(context.Background(), []revision.PeerID{"a", "b"}, "opaque")
	require.NoError(t, err)
	assert.Equal(t, revision.PeerID("a"), branch.Coordinator)

	md, err := b.GetMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, branch.HistoryID, md.HistoryID)
}

func TestFailoverRejectsWhenSelfNotInPeers(t *testing.T) {
	a, _, _ := newPair(t)
	c := failover.New("a", a)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	_, err := c.Failover(context.Background(), []revision.PeerID{"b"}, nil)
	assert.ErrorIs(t, err, rsmerr.ErrNotInPeers)
}

func TestFailoverAbortsWhenPeerUnreachable(t *testing.T) {
	a, b, _ := newPair(t)
	b.SetPartitioned(true)
	c := failover.New("a", a)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	_, err := c.Failover(context.Background(), []revision.PeerID{"a", "b"}, nil)
	var aborted *rsmerr.AbortedError
	require.ErrorAs(t, err, &aborted)
	assert.Contains(t, aborted.FailedPeers, revision.PeerID("b"))
}

func TestTryCancelUndoesBranchOnAllPeers(t *testing.T) {
	a, b, _ := newPair(t)
	c := failover.New("a", a)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	branch, err := c.Failover(context.Background(), []revision.PeerID{"a", "b"}, nil)
	require.NoError(t, err)

	err = c.TryCancel(context.Background(), branch)
	require.NoError(t, err)

	// Both peers already dropped the branch, so a second undo finds none.
	_, failed, err := a.UndoBranch(context.Background(), []revision.PeerID{"a", "b"}, branch.HistoryID, time.Second)
	require.NoError(t, err)
	assert.Len(t, failed, 2)
	_ = b
}

func TestTryCancelTreatsNoBranchAsSuccess(t *testing.T) {
	a, _, _ := newPair(t)
	c := failover.New("a", a)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	fabricated := revision.Branch{HistoryID: "never-installed", Peers: []revision.PeerID{"a"}}
	err := c.TryCancel(context.Background(), fabricated)
	assert.NoError(t, err)
}

func TestCoordinatorSerializesRequests(t *testing.T) {
	a, b, _ := newPair(t)
	_ = b
	c := failover.New("a", a)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := c.Failover(context.Background(), []revision.PeerID{"a", "b"}, nil)
			errs <- err
		}()
	}

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			// Run one after the other, each call branches from the history
			// the previous one installed; run concurrently, both could
			// branch from "bootstrap" and b would reject the second.
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("failover never completed")
		}
	}
}
