package rsm

import (
	"errors"

	"github.com/timofey-barmin/chronicle/collab"
	"github.com/timofey-barmin/chronicle/rsmerr"
)

// Aliases for brevity within the package; callers should import rsmerr
// directly rather than these.
var (
	errNotLeader       = rsmerr.ErrNotLeader
	errLeaderLost      = rsmerr.ErrLeaderLost
	errHistoryMismatch = rsmerr.ErrHistoryMismatch
	errTimeout         = rsmerr.ErrTimeout
	errNotRunning      = rsmerr.ErrNotRunning

	// errReaderDied is the fatal termination reason reported when the
	// log-reader task crashes; the donor's equivalent comment calls this
	// "reader_died" and treats it as fatal to the whole host.
	errReaderDied = errors.New("rsm: reader died")
)

// classifyOutcomeErr maps a collab-internal error arriving on a
// CommandOutcome/QuorumOutcome into the rsmerr taxonomy, so a client's
// errors.Is never has to know about collaborator sentinel errors. nil
// passes through unchanged.
func classifyOutcomeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, collab.ErrHistoryMismatch):
		return errHistoryMismatch
	default:
		return rsmerr.NewLeaderError(err)
	}
}
