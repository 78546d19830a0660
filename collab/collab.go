// Package collab declares the external collaborators the RSM host and the
// failover coordinator consume: the consensus server, the agent that
// persists the log and branches, and the cluster event bus. Implementations
// of these interfaces live outside this module's core (the log replication
// wire protocol, on-disk log format and leader election are delegated to
// them); collab only pins down the shapes the core depends on.
package collab

import (
	"context"
	"time"

	"github.com/timofey-barmin/chronicle/revision"
)

// Tag correlates a fire-and-forget request with its eventual async reply.
type Tag uint64

// CommandOutcome is delivered asynchronously by the consensus server in
// response to RsmCommand.
type CommandOutcome struct {
	Tag      Tag
	Accepted bool
	Seqno    revision.Seqno
	Err      error
}

// QuorumOutcome is delivered asynchronously by the consensus server in
// response to SyncQuorum.
type QuorumOutcome struct {
	Tag Tag
	Err error
}

// TermEventKind discriminates the two leader-state transitions the
// consensus server drives the host through.
type TermEventKind int

const (
	// TermEstablished announces the host is now leader of HistoryID at
	// Term, and must not report itself Established for quorum reads
	// until applied_seqno reaches WaitSeqno.
	TermEstablished TermEventKind = iota
	// TermFinished announces the host's current leader term has ended;
	// it must revert to follower.
	TermFinished
)

// TermEvent is delivered asynchronously by the consensus server to drive
// the host's leader state machine (follower, leader waiting for
// WaitSeqno, established leader).
type TermEvent struct {
	Kind      TermEventKind
	HistoryID revision.HistoryID
	Term      revision.Term
	// WaitSeqno is meaningful only for TermEstablished: the host must
	// reach this applied_seqno before it may serve leader-only reads.
	WaitSeqno revision.Seqno
}

// ConsensusServer is the per-node collaborator that owns leader election
// and log replication. The host never blocks waiting on it directly:
// RsmCommand and SyncQuorum are fire-and-forget, and results arrive later
// on the channels handed to RegisterRSM.
type ConsensusServer interface {
	// RegisterRSM announces that name is being hosted locally and returns
	// the history/term/seqno the consensus server is currently driving,
	// plus channels the host should select on for async command, quorum
	// and term-transition events. ok is false if the server holds no
	// term yet (the host starts as a follower).
	RegisterRSM(ctx context.Context, name string, self revision.PeerID) (
		historyID revision.HistoryID, term revision.Term, seqno revision.Seqno,
		commandOutcomes <-chan CommandOutcome, quorumOutcomes <-chan QuorumOutcome, termEvents <-chan TermEvent,
		ok bool, err error)

	// RsmCommand submits cmd for replication under the given history/term.
	// It does not block for the outcome; the result arrives tagged on the
	// commandOutcomes channel returned by RegisterRSM.
	RsmCommand(tag Tag, historyID revision.HistoryID, term revision.Term, name string, cmd interface{}) error

	// SyncQuorum requests a quorum round-trip confirming the given
	// history/term still holds. The result arrives tagged on the
	// quorumOutcomes channel returned by RegisterRSM.
	SyncQuorum(tag Tag, historyID revision.HistoryID, term revision.Term) error
}

// PeerOutcome classifies why a peer did not acknowledge a branch RPC.
type PeerOutcome struct {
	Peer revision.PeerID
	Err  error
}

// Agent is the per-node collaborator that persists the log and branch
// records, and performs the peer fan-out for branch installation/rollback
// on the coordinator's behalf.
type Agent interface {
	GetMetadata(ctx context.Context) (revision.Metadata, error)

	// GetLog returns the full log known locally; the host is responsible
	// for filtering to the seqno window and entry kinds it cares about.
	GetLog(ctx context.Context) ([]revision.LogEntry, error)

	// StoreBranch asks peers (excluding self) to durably record branch.
	// It returns the set of peers that acknowledged and, for the rest,
	// the error each one reported.
	StoreBranch(ctx context.Context, peers []revision.PeerID, branch revision.Branch, timeout time.Duration) (
		ok []revision.PeerID, failed []PeerOutcome, err error)

	// LocalStoreBranch durably records branch on this node.
	LocalStoreBranch(ctx context.Context, branch revision.Branch, timeout time.Duration) error

	// UndoBranch asks peers to roll back a previously stored branch.
	// ErrNoBranch / ErrBadBranch reported per-peer are treated by the
	// caller as success (idempotent).
	UndoBranch(ctx context.Context, peers []revision.PeerID, historyID revision.HistoryID, timeout time.Duration) (
		ok []revision.PeerID, failed []PeerOutcome, err error)
}

// EventBus is the cluster-wide pub/sub the host subscribes to for metadata
// change notifications.
type EventBus interface {
	// Subscribe returns a channel of Metadata events for topic, and an
	// unsubscribe func to be called exactly once when the subscriber is
	// done.
	Subscribe(topic string) (events <-chan revision.Metadata, unsubscribe func())
}

// MetadataTopic is the well-known topic name RSM hosts subscribe to.
const MetadataTopic = "metadata"

// Sentinel agent errors. Callers of UndoBranch treat ErrNoBranch and
// ErrBadBranch as success when reported per-peer: the branch was never
// there, or was already superseded.
var (
	ErrNoBranch  = sentinel("no_branch")
	ErrBadBranch = sentinel("bad_branch")
	// ErrHistoryMismatch is reported per-peer by StoreBranch when the
	// peer's current history does not match branch.OldHistoryID.
	ErrHistoryMismatch = sentinel("history_mismatch")
)

type sentinel string

func (s sentinel) Error() string { return string(s) }
