package rsm

import (
	"github.com/timofey-barmin/chronicle/collab"
	"github.com/timofey-barmin/chronicle/revision"
)

func (h *Host) handleTermEvent(ev collab.TermEvent) {
	switch ev.Kind {
	case collab.TermEstablished:
		h.statsInc("term.established.count", 1)
		h.leader = onTermEstablished(ev.HistoryID, ev.Term, ev.WaitSeqno, h.appliedSeqno)
		if h.leader.established() {
			h.flushPostponedReads()
		}

	case collab.TermFinished:
		if !h.leader.isLeader() || h.leader.historyID != ev.HistoryID || h.leader.term != ev.Term {
			logger.Warning("term_finished for %v/%v does not match current leader state %+v", ev.HistoryID, ev.Term, h.leader)
		}
		h.statsInc("term.finished.count", 1)
		h.flushTermFinished()
		h.leader = followerState()
	}
}

// flushTermFinished first waits for an in-flight reader and applies what
// it read, then sweeps every command_accepted registration with
// ErrLeaderLost; other pending kinds (command, sync) are assumed resolved
// by the consensus server itself per the design notes.
func (h *Host) flushTermFinished() {
	if h.readerInFlight {
		res := <-h.readerResultCh
		if res.err != nil {
			// Hand the failure back to the run loop, which treats it as fatal.
			h.readerResultCh <- res
		} else {
			h.handleReaderResult(res)
		}
	}
	h.pending.sweepAcceptedAsLeaderLost()
	// Any reads parked in WaitForSeqno never got to run; they reply
	// ErrLeaderLost rather than being silently dropped.
	pending := h.postponed
	h.postponed = nil
	for _, p := range pending {
		p.done(revision.Revision{}, errLeaderLost)
	}
}
