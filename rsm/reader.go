package rsm

import (
	"context"

	"github.com/timofey-barmin/chronicle/revision"
)

// readerResult is what a log-reader task delivers back on readerResultCh.
// err != nil means the reader failed to fetch the log at all, which the
// loop treats as fatal (the host cannot make progress without its log).
type readerResult struct {
	high    revision.Seqno
	entries []revision.LogEntry
	err     error
}

// maybeStartReader launches a one-shot reader goroutine if none is already
// in flight and there is new log to catch up on. Only one reader task runs
// at a time per host; handleMetadata/handleReaderResult re-check after
// every advance to decide whether another pass is needed.
func (h *Host) maybeStartReader(ctx context.Context) {
	if h.readerInFlight || h.availableSeqno <= h.readSeqno {
		return
	}
	h.readerInFlight = true
	target := h.availableSeqno
	readCtx, cancel := context.WithCancel(ctx)
	h.readerCancel = cancel

	go func() {
		defer cancel()
		entries, err := h.agent.GetLog(readCtx)
		if err != nil {
			h.readerResultCh <- readerResult{err: err}
			return
		}
		h.readerResultCh <- readerResult{high: target, entries: filterEntries(entries, h.name, h.readSeqno, target)}
	}()
}

// filterEntries keeps only the entries the host's apply pipeline cares
// about: RsmCommand entries addressed to this RSM, and every ConfigEntry
// (history boundaries apply to every RSM, not just this one), restricted
// to seqnos greater than readSeqno and at most target.
func filterEntries(entries []revision.LogEntry, name string, readSeqno, target revision.Seqno) []revision.LogEntry {
	out := make([]revision.LogEntry, 0, len(entries))
	for _, e := range entries {
		if e.Seqno <= readSeqno || e.Seqno > target {
			continue
		}
		if e.Kind == revision.EntryConfig || (e.Kind == revision.EntryRsmCommand && e.RsmName == name) {
			out = append(out, e)
		}
	}
	return out
}

func (h *Host) handleMetadata(md revision.Metadata) {
	if md.CommittedSeqno <= h.availableSeqno {
		return
	}
	h.availableSeqno = md.CommittedSeqno
	h.maybeStartReader(h.runCtx)
}

func (h *Host) handleReaderResult(res readerResult) {
	h.readerInFlight = false
	h.readerCancel = nil

	for _, e := range res.entries {
		h.applyEntry(e)
	}
	h.readSeqno = res.high

	h.maybeStartReader(h.runCtx)
}
