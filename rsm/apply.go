package rsm

import "github.com/timofey-barmin/chronicle/revision"

// applyEntry advances the host by exactly one log entry, in seqno order.
// It is the only place appliedSeqno/appliedHistoryID change after startup.
func (h *Host) applyEntry(e revision.LogEntry) {
	before := h.appliedSeqno
	switch e.Kind {
	case revision.EntryConfig:
		h.applyConfigEntry(e)
	case revision.EntryRsmCommand:
		h.applyCommandEntry(e)
	}
	if h.appliedSeqno == before {
		// Same-history ConfigEntry no-op, or a misrouted entry dropped by
		// applyCommandEntry: applied state did not move, so there is
		// nothing to publish and no waiter can have been newly satisfied.
		return
	}

	h.publishRevision()
	h.syncQ.releaseApplied(h.appliedSeqno, h.releaseSyncWaiter)

	if advanced := h.leader.maybeAdvance(h.appliedSeqno); advanced != h.leader {
		h.leader = advanced
		if h.leader.established() {
			h.flushPostponedReads()
		}
	}
}

// applyCommandEntry asserts the entry actually belongs to this RSM and the
// history it claims to extend, applies it against the module, and wakes
// any client waiting on that seqno.
func (h *Host) applyCommandEntry(e revision.LogEntry) {
	if e.RsmName != h.name || e.HistoryID != h.appliedHistoryID {
		logger.Warning("dropping misrouted log entry for %q at %v (history %v != %v)",
			e.RsmName, e.Revision(), e.HistoryID, h.appliedHistoryID)
		return
	}

	reply, newState, newData := h.mod.ApplyCommand(e.Command, e.Revision(), h.appliedRevision(), h.modState, h.modData)
	h.modState, h.modData = newState, newData
	h.appliedSeqno = e.Seqno
	h.statsInc("apply.command.count", 1)
	h.dispatchCommandReply(e.Seqno, e.Term, reply)
}

// applyConfigEntry adopts a new history boundary. Every RSM host observes
// every ConfigEntry (not just ones addressed to it), since a failover
// changes the history for the whole peer set at once.
func (h *Host) applyConfigEntry(e revision.LogEntry) {
	if e.HistoryID == h.appliedHistoryID {
		return
	}
	h.statsInc("apply.config.count", 1)
	h.appliedHistoryID = e.HistoryID
	h.appliedSeqno = e.Seqno
	h.syncQ.sweepDivergedHistory(h.appliedHistoryID, h.releaseSyncWaiterMismatch)
}

// releaseSyncWaiter stops a sync_revision waiter's timeout timer and
// delivers ok (nil error); used as the deliver callback for releaseApplied.
func (h *Host) releaseSyncWaiter(w *syncWaiter) {
	w.timer.Stop()
	select {
	case w.reply <- nil:
	default:
	}
}

// releaseSyncWaiterMismatch is the deliver callback for
// sweepDivergedHistory: the waiter's history no longer matches what was
// just applied, so it wakes with ErrHistoryMismatch instead of ok.
func (h *Host) releaseSyncWaiterMismatch(w *syncWaiter) {
	w.timer.Stop()
	select {
	case w.reply <- errHistoryMismatch:
	default:
	}
}
