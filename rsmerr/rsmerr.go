// Package rsmerr collects the error taxonomy the RSM host and failover
// coordinator classify collaborator failures into at their public
// boundary. Clients should test against these with errors.Is/errors.As
// rather than inspecting collaborator-internal error shapes, which never
// cross the boundary unwrapped.
package rsmerr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/timofey-barmin/chronicle/revision"
)

var (
	// ErrNotLeader is returned when a leader-only operation is served by
	// a follower.
	ErrNotLeader = errors.New("rsm: not leader")

	// ErrLeaderLost is returned to a client parked on an accepted command
	// whose term finished before the command was applied.
	ErrLeaderLost = errors.New("rsm: leader lost before commit")

	// ErrHistoryMismatch is returned when a supplied revision's history
	// differs from the applied history.
	ErrHistoryMismatch = errors.New("rsm: history mismatch")

	// ErrTimeout is returned when a per-request timer fires, or a
	// caller's context deadline is exceeded, before completion.
	ErrTimeout = errors.New("rsm: timeout")

	// ErrNotRunning is returned by get_local_revision for a name with no
	// entry in the shared revision table.
	ErrNotRunning = errors.New("rsm: not running")

	// ErrNotInPeers is returned by failover when the coordinator's own
	// peer id is not a member of the requested keep-set.
	ErrNotInPeers = errors.New("failover: self not in keep peers")
)

// LeaderError wraps a generic leader-side failure propagated from a
// collaborator, keeping the inner cause inspectable via errors.Unwrap.
type LeaderError struct {
	Inner error
}

func (e *LeaderError) Error() string { return fmt.Sprintf("rsm: leader error: %v", e.Inner) }
func (e *LeaderError) Unwrap() error { return e.Inner }

// NewLeaderError wraps inner as a leader-side error for client reply.
func NewLeaderError(inner error) error {
	return &LeaderError{Inner: inner}
}

// AbortedError is returned by failover when StoreBranch or
// LocalStoreBranch failed on some peers. IncompatiblePeers holds peers
// that reported a history mismatch; FailedPeers holds everyone else,
// including "self" when the local install failed.
type AbortedError struct {
	IncompatiblePeers []revision.PeerID
	FailedPeers       []revision.PeerID
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("failover: aborted (incompatible=%v failed=%v)", e.IncompatiblePeers, e.FailedPeers)
}

// FailedPeersError is returned by try_cancel when undo could not be
// confirmed on some peers. Peers is a flat list (see design notes: the
// donor's nested-list shape is a bug, not reproduced here).
type FailedPeersError struct {
	Peers []revision.PeerID
}

func (e *FailedPeersError) Error() string {
	ids := make([]string, len(e.Peers))
	for i, p := range e.Peers {
		ids[i] = string(p)
	}
	return fmt.Sprintf("failover: failed peers [%s]", strings.Join(ids, ", "))
}
