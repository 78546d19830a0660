// Package fake provides an in-memory, single-process stand-in for the
// collab.ConsensusServer, collab.Agent and collab.EventBus collaborators,
// grounded on the donor's mockCluster/mockNode pattern. It is meant for
// cmd/chronicled's demo wiring and for package tests; it does not implement
// real leader election or replication, only the shapes the rsm/failover
// packages depend on.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/timofey-barmin/chronicle/collab"
	"github.com/timofey-barmin/chronicle/revision"
)

// Cluster is one simulated node: it owns a log, a branch table, and a
// metadata pub/sub, and fans StoreBranch/UndoBranch out to its registered
// peers directly (in-process method calls rather than real RPCs).
type Cluster struct {
	self revision.PeerID

	mu            sync.Mutex
	log           []revision.LogEntry
	historyID     revision.HistoryID
	term          revision.Term
	committed     revision.Seqno
	branches      map[revision.HistoryID]revision.Branch
	rsms          map[string]*rsmChannels
	subscribers   map[string][]chan revision.Metadata
	peers         map[revision.PeerID]*Cluster
	partitioned   bool
}

type rsmChannels struct {
	commandOutcomes chan collab.CommandOutcome
	quorumOutcomes  chan collab.QuorumOutcome
	termEvents      chan collab.TermEvent
}

// NewCluster constructs a single simulated node identified by self, on the
// given shared starting history (every node meant to Join one another must
// be constructed with the same historyID, as a real cluster would share
// one at bootstrap).
func NewCluster(self revision.PeerID, historyID revision.HistoryID) *Cluster {
	return &Cluster{
		self:        self,
		historyID:   historyID,
		term:        1,
		branches:    make(map[revision.HistoryID]revision.Branch),
		rsms:        make(map[string]*rsmChannels),
		subscribers: make(map[string][]chan revision.Metadata),
		peers:       make(map[revision.PeerID]*Cluster),
	}
}

// Join registers other as a peer this cluster can reach for branch RPCs,
// symmetrically.
func (c *Cluster) Join(other *Cluster) {
	c.mu.Lock()
	c.peers[other.self] = other
	c.mu.Unlock()

	other.mu.Lock()
	other.peers[c.self] = c
	other.mu.Unlock()
}

// SetPartitioned simulates a node that no longer answers branch RPCs or
// propagates metadata, mirroring mockNode.partition.
func (c *Cluster) SetPartitioned(p bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partitioned = p
}

// --- collab.ConsensusServer ---

// RegisterRSM implements collab.ConsensusServer. It delivers one
// TermEstablished for the cluster's current history/term; this fake ends a
// term only when LocalStoreBranch installs a branch, which sends a
// TermFinished followed by a TermEstablished for the new history.
func (c *Cluster) RegisterRSM(ctx context.Context, name string, self revision.PeerID) (
	revision.HistoryID, revision.Term, revision.Seqno,
	<-chan collab.CommandOutcome, <-chan collab.QuorumOutcome, <-chan collab.TermEvent,
	bool, error) {

	c.mu.Lock()
	defer c.mu.Unlock()

	ch := &rsmChannels{
		commandOutcomes: make(chan collab.CommandOutcome, 64),
		quorumOutcomes:  make(chan collab.QuorumOutcome, 64),
		termEvents:      make(chan collab.TermEvent, 4),
	}
	c.rsms[name] = ch

	historyID, term, committed := c.historyID, c.term, c.committed
	ch.termEvents <- collab.TermEvent{Kind: collab.TermEstablished, HistoryID: historyID, Term: term, WaitSeqno: committed}

	return historyID, term, committed, ch.commandOutcomes, ch.quorumOutcomes, ch.termEvents, true, nil
}

// RsmCommand implements collab.ConsensusServer by appending the command to
// the shared log immediately and replying Accepted asynchronously, the way
// a real consensus server would after a successful preaccept/accept/commit
// round.
func (c *Cluster) RsmCommand(tag collab.Tag, historyID revision.HistoryID, term revision.Term, name string, cmd interface{}) error {
	c.mu.Lock()
	if historyID != c.historyID || term != c.term {
		ch := c.rsms[name]
		c.mu.Unlock()
		if ch != nil {
			ch.commandOutcomes <- collab.CommandOutcome{Tag: tag, Err: collab.ErrHistoryMismatch}
		}
		return nil
	}
	c.committed++
	seqno := c.committed
	c.log = append(c.log, revision.LogEntry{
		Seqno: seqno, Term: term, HistoryID: historyID,
		Kind: revision.EntryRsmCommand, RsmName: name, Command: cmd,
	})
	ch := c.rsms[name]
	md := revision.Metadata{Peer: c.self, HistoryID: historyID, CommittedSeqno: seqno}
	c.mu.Unlock()

	c.publish(md)
	if ch != nil {
		ch.commandOutcomes <- collab.CommandOutcome{Tag: tag, Accepted: true, Seqno: seqno}
	}
	return nil
}

// SyncQuorum implements collab.ConsensusServer; since this fake has no real
// peer quorum, it confirms immediately unless the node is simulated as
// partitioned, in which case the round trip never returns (the caller's
// own timeout is what resolves it).
func (c *Cluster) SyncQuorum(tag collab.Tag, historyID revision.HistoryID, term revision.Term) error {
	c.mu.Lock()
	ch, ok := c.findAnyRsm()
	match := historyID == c.historyID && term == c.term
	partitioned := c.partitioned
	c.mu.Unlock()
	if !ok || partitioned {
		return nil
	}
	var err error
	if !match {
		err = collab.ErrHistoryMismatch
	}
	go func() { ch.quorumOutcomes <- collab.QuorumOutcome{Tag: tag, Err: err} }()
	return nil
}

func (c *Cluster) findAnyRsm() (*rsmChannels, bool) {
	for _, ch := range c.rsms {
		return ch, true
	}
	return nil, false
}

// --- collab.Agent ---

func (c *Cluster) GetMetadata(ctx context.Context) (revision.Metadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return revision.Metadata{Peer: c.self, HistoryID: c.historyID, CommittedSeqno: c.committed}, nil
}

func (c *Cluster) GetLog(ctx context.Context) ([]revision.LogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]revision.LogEntry, len(c.log))
	copy(out, c.log)
	return out, nil
}

// StoreBranch fans out to every named peer on its own goroutine and funnels
// replies back over a buffered channel, one per peer, so a slow or
// unreachable peer cannot hold up the others -- the same shape as the
// donor's per-replica sendAccept fan-out, minus the quorum early-exit
// (branch install needs every named peer, not just a majority).
func (c *Cluster) StoreBranch(ctx context.Context, peers []revision.PeerID, branch revision.Branch, timeout time.Duration) ([]revision.PeerID, []collab.PeerOutcome, error) {
	type result struct {
		peer revision.PeerID
		err  error
	}
	resultCh := make(chan result, len(peers))
	for _, p := range peers {
		go func(p revision.PeerID) {
			peer := c.lookupPeer(p)
			if peer == nil {
				resultCh <- result{peer: p, err: fmt.Errorf("fake: unknown peer %v", p)}
				return
			}
			resultCh <- result{peer: p, err: peer.LocalStoreBranch(ctx, branch, timeout)}
		}(p)
	}

	var ok []revision.PeerID
	var failed []collab.PeerOutcome
	timeoutEvent := time.After(timeout)
	for range peers {
		select {
		case r := <-resultCh:
			if r.err != nil {
				failed = append(failed, collab.PeerOutcome{Peer: r.peer, Err: r.err})
			} else {
				ok = append(ok, r.peer)
			}
		case <-timeoutEvent:
			return ok, failed, fmt.Errorf("fake: store_branch timed out waiting for %d peer(s)", len(peers)-len(ok)-len(failed))
		}
	}
	return ok, failed, nil
}

// LocalStoreBranch implements collab.Agent by durably recording branch and
// adopting it as a new current history, the way the real agent's branch
// install would be observed by the consensus collaborator on the next
// RegisterRSM/term transition.
func (c *Cluster) LocalStoreBranch(ctx context.Context, branch revision.Branch, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.partitioned {
		return fmt.Errorf("fake: node partitioned")
	}
	if branch.OldHistoryID != c.historyID {
		return collab.ErrHistoryMismatch
	}
	c.branches[branch.HistoryID] = branch
	c.historyID = branch.HistoryID
	c.term++
	c.committed = 0
	for _, ch := range c.rsms {
		ch.termEvents <- collab.TermEvent{Kind: collab.TermFinished, HistoryID: branch.OldHistoryID, Term: c.term - 1}
		ch.termEvents <- collab.TermEvent{Kind: collab.TermEstablished, HistoryID: c.historyID, Term: c.term, WaitSeqno: 0}
	}
	return nil
}

// UndoBranch implements collab.Agent by fanning out to peers and deleting
// the branch record locally (or on each named peer).
func (c *Cluster) UndoBranch(ctx context.Context, peers []revision.PeerID, historyID revision.HistoryID, timeout time.Duration) ([]revision.PeerID, []collab.PeerOutcome, error) {
	var ok []revision.PeerID
	var failed []collab.PeerOutcome
	for _, p := range peers {
		peer := c.lookupPeer(p)
		if peer == nil {
			failed = append(failed, collab.PeerOutcome{Peer: p, Err: fmt.Errorf("fake: unknown peer %v", p)})
			continue
		}
		if err := peer.localUndoBranch(historyID); err != nil {
			failed = append(failed, collab.PeerOutcome{Peer: p, Err: err})
			continue
		}
		ok = append(ok, p)
	}
	return ok, failed, nil
}

func (c *Cluster) localUndoBranch(historyID revision.HistoryID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.partitioned {
		return fmt.Errorf("fake: node partitioned")
	}
	if _, ok := c.branches[historyID]; !ok {
		return collab.ErrNoBranch
	}
	delete(c.branches, historyID)
	return nil
}

func (c *Cluster) lookupPeer(p revision.PeerID) *Cluster {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p == c.self {
		return c
	}
	return c.peers[p]
}

// --- collab.EventBus ---

// Subscribe implements collab.EventBus.
func (c *Cluster) Subscribe(topic string) (<-chan revision.Metadata, func()) {
	ch := make(chan revision.Metadata, 64)
	c.mu.Lock()
	c.subscribers[topic] = append(c.subscribers[topic], ch)
	c.mu.Unlock()

	unsubscribe := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		subs := c.subscribers[topic]
		for i, s := range subs {
			if s == ch {
				c.subscribers[topic] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	return ch, unsubscribe
}

func (c *Cluster) publish(md revision.Metadata) {
	c.mu.Lock()
	subs := append([]chan revision.Metadata(nil), c.subscribers[collab.MetadataTopic]...)
	partitioned := c.partitioned
	c.mu.Unlock()
	if partitioned {
		return
	}
	for _, ch := range subs {
		select {
		case ch <- md:
		default:
		}
	}
}

var (
	_ collab.ConsensusServer = (*Cluster)(nil)
	_ collab.Agent           = (*Cluster)(nil)
	_ collab.EventBus        = (*Cluster)(nil)
)
