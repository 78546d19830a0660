package rsm

import "github.com/timofey-barmin/chronicle/revision"

// leaderStatus is the host's view of its own leadership, mirrored from
// TermEstablished/TermFinished events delivered by the consensus server.
type leaderStatus int

const (
	// statusFollower means commands are rejected with ErrNotLeader.
	statusFollower leaderStatus = iota
	// statusWaitForSeqno means this node is leader of historyID/term but
	// must not serve leader-only quorum reads until appliedSeqno reaches
	// waitSeqno (the log may still hold uncommitted entries from the
	// previous leader).
	statusWaitForSeqno
	// statusEstablished means the leader has caught up and may serve
	// commands and leader-only reads.
	statusEstablished
)

// leaderState tracks whether this host is Follower or Leader{...}, as
// described by the state diagram in the design notes.
type leaderState struct {
	status    leaderStatus
	historyID revision.HistoryID
	term      revision.Term
	waitSeqno revision.Seqno
}

func followerState() leaderState {
	return leaderState{status: statusFollower}
}

func (s leaderState) isLeader() bool {
	return s.status == statusWaitForSeqno || s.status == statusEstablished
}

func (s leaderState) established() bool {
	return s.status == statusEstablished
}

// onTermEstablished transitions Follower -> Leader{WaitForSeqno|Established}
// depending on whether appliedSeqno has already reached waitSeqno.
func onTermEstablished(historyID revision.HistoryID, term revision.Term, waitSeqno, appliedSeqno revision.Seqno) leaderState {
	status := statusWaitForSeqno
	if appliedSeqno >= waitSeqno {
		status = statusEstablished
	}
	return leaderState{status: status, historyID: historyID, term: term, waitSeqno: waitSeqno}
}

// maybeAdvance transitions WaitForSeqno -> Established once appliedSeqno
// catches up. It is a no-op in any other status.
func (s leaderState) maybeAdvance(appliedSeqno revision.Seqno) leaderState {
	if s.status == statusWaitForSeqno && appliedSeqno >= s.waitSeqno {
		s.status = statusEstablished
	}
	return s
}
