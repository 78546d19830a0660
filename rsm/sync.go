package rsm

import (
	"context"
	"time"

	"github.com/timofey-barmin/chronicle/collab"
	"github.com/timofey-barmin/chronicle/revision"
)

// ReadKind selects whether a quorum-sensitive read is satisfied locally by
// leader status alone, or must first round-trip a quorum confirmation.
type ReadKind int

const (
	// ReadLeader is satisfied as soon as this host believes itself the
	// established leader, without any additional round trip.
	ReadLeader ReadKind = iota
	// ReadQuorum requires a fresh quorum acknowledgment in the current
	// (history, term) before the read is considered linearizable.
	ReadQuorum
)

type syncRevReq struct {
	ctx   context.Context
	want  revision.Revision
	reply chan error
}

// SyncRevision blocks until the host has applied at least want (same
// history, seqno >= want.Seqno), returns ErrHistoryMismatch if the
// applied history ever diverges from want.HistoryID, or ErrTimeout if
// timeout elapses first.
func (h *Host) SyncRevision(ctx context.Context, want revision.Revision, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := &syncRevReq{ctx: ctx, want: want, reply: make(chan error, 1)}
	select {
	case h.syncRevCh <- req:
	case <-ctx.Done():
		return errTimeout
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return errTimeout
	}
}

func (h *Host) handleSyncRevision(req *syncRevReq) {
	if req.want.HistoryID != h.appliedHistoryID {
		// Documented trade-off: the host does not retain per-history
		// seqno ranges, so a revision from a history that once existed
		// (but isn't current) is indistinguishable from one that never
		// will be; this may be spuriously reported as a mismatch.
		req.reply <- errHistoryMismatch
		return
	}
	if req.want.Seqno <= h.appliedSeqno {
		req.reply <- nil
		return
	}

	w := &syncWaiter{
		ref:       h.pending.newRef(),
		seqno:     req.want.Seqno,
		historyID: req.want.HistoryID,
		reply:     req.reply,
	}
	w.timer = time.AfterFunc(h.cfg.SyncRevisionTimeout, func() {
		h.infoCh <- syncRevisionTimeout{ref: w.ref}
	})
	h.syncQ.add(w)
}

// syncRevisionTimeout is delivered through infoCh (not handed to the
// module) when a sync_revision timer fires; handleInfo special-cases it
// so it never reaches Module.HandleInfo.
type syncRevisionTimeout struct{ ref ref }

type syncReq struct {
	ctx   context.Context
	kind  ReadKind
	reply chan error
}

// Sync confirms the given read-kind without returning a revision; kind ==
// ReadQuorum performs a fresh quorum round trip, kind == ReadLeader only
// checks established leadership.
func (h *Host) Sync(ctx context.Context, kind ReadKind, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := &syncReq{ctx: ctx, kind: kind, reply: make(chan error, 1)}
	select {
	case h.syncCh <- req:
	case <-ctx.Done():
		return errTimeout
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return errTimeout
	}
}

func (h *Host) handleSync(req *syncReq) {
	h.beginRead(req.ctx, req.kind, func(_ revision.Revision, err error) {
		select {
		case req.reply <- err:
		case <-req.ctx.Done():
		}
	})
}

type appliedRevReq struct {
	ctx   context.Context
	kind  ReadKind
	reply chan appliedRevReply
}

type appliedRevReply struct {
	rev revision.Revision
	err error
}

// GetAppliedRevision returns (applied_history_id, applied_seqno) as of a
// point confirmed by kind: ReadLeader trusts established leader status;
// ReadQuorum first confirms a live quorum in the current term.
func (h *Host) GetAppliedRevision(ctx context.Context, kind ReadKind, timeout time.Duration) (revision.Revision, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := &appliedRevReq{ctx: ctx, kind: kind, reply: make(chan appliedRevReply, 1)}
	select {
	case h.appliedRevCh <- req:
	case <-ctx.Done():
		return revision.Revision{}, errTimeout
	}
	select {
	case r := <-req.reply:
		return r.rev, r.err
	case <-ctx.Done():
		return revision.Revision{}, errTimeout
	}
}

func (h *Host) handleGetAppliedRevision(req *appliedRevReq) {
	h.beginRead(req.ctx, req.kind, func(rev revision.Revision, err error) {
		select {
		case req.reply <- appliedRevReply{rev: rev, err: err}:
		case <-req.ctx.Done():
		}
	})
}

// beginRead implements the shared control flow behind Sync and
// GetAppliedRevision. For ReadLeader it resolves immediately. For
// ReadQuorum it fires SyncQuorum and parks a pending client carrying
// `done`; it never blocks the actor loop waiting for the outcome --
// handleQuorumOutcome invokes `done` later, from the same goroutine, once
// the consensus server replies.
func (h *Host) beginRead(ctx context.Context, kind ReadKind, done func(revision.Revision, error)) {
	if !h.leader.isLeader() {
		done(revision.Revision{}, errNotLeader)
		return
	}
	if h.leader.status == statusWaitForSeqno {
		// Postponed per the design notes: held until applied_seqno
		// reaches the leader's WaitForSeqno target, then retried by
		// flushPostponedReads. Parked here rather than resubmitted
		// through infoCh so a long WaitForSeqno window cannot turn into
		// a busy retry loop.
		h.postponed = append(h.postponed, postponedRead{ctx: ctx, kind: kind, done: done})
		return
	}
	if kind == ReadLeader {
		done(h.appliedRevision(), nil)
		return
	}

	r := h.pending.newRef()
	h.pending.registerByRef(r, &pendingClient{
		ctx:  ctx,
		kind: kindSync,
		deliver: func(cr commandReply) {
			if cr.err != nil {
				done(revision.Revision{}, cr.err)
				return
			}
			done(h.appliedRevision(), nil)
		},
	})
	if err := h.consensus.SyncQuorum(collab.Tag(r), h.leader.historyID, h.leader.term); err != nil {
		h.pending.takeByRef(r)
		done(revision.Revision{}, err)
	}
}

// postponedRead is a ReadQuorum/ReadLeader request parked in h.postponed
// while the leader was in WaitForSeqno; flushPostponedReads retries it via
// beginRead once the leader is Established, and flushTermFinished fails it
// with ErrLeaderLost if the term ends first.
type postponedRead struct {
	ctx  context.Context
	kind ReadKind
	done func(revision.Revision, error)
}

// handleSyncRevisionTimeout fires when a sync_revision waiter's timer
// elapses before its target seqno was applied (or its history diverged and
// was already swept, in which case the ref is simply gone and this is a
// no-op).
func (h *Host) handleSyncRevisionTimeout(r ref) {
	w, ok := h.syncQ.removeRef(r)
	if !ok {
		return
	}
	select {
	case w.reply <- errTimeout:
	default:
	}
}

func (h *Host) handleQuorumOutcome(outcome collab.QuorumOutcome) {
	r := ref(outcome.Tag)
	c, ok := h.pending.takeByRef(r)
	if !ok {
		logger.Debug("quorum outcome for unknown ref %v", r)
		return
	}
	h.statsInc("quorum.outcome.count", 1)
	c.deliver(commandReply{err: classifyOutcomeErr(outcome.Err)})
}

// GetLocalRevision reads the shared revision table directly; unlike every
// other operation it never touches the host's actor loop, matching the
// spec's "revision from shared table" result (the table, not the actor,
// is the source of truth for this one read).
func (h *Host) GetLocalRevision() (revision.Revision, error) {
	return h.revTable.Get(h.name)
}
