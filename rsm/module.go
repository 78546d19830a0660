package rsm

import "github.com/timofey-barmin/chronicle/revision"

// Module is the user-supplied deterministic state machine the host drives
// from the committed log. Implementations are plain Go values satisfying
// this interface by explicit assertion; there is no base type to embed.
type Module interface {
	// Init builds the initial (state, data) pair for name from args, or
	// returns stop != nil to refuse hosting.
	Init(name string, args interface{}) (state interface{}, data interface{}, stop error)

	// HandleCommand is called on the leader before a command is
	// submitted to consensus. Returning ApplyDecision tells the host to
	// replicate it; returning RejectDecision replies inline with the
	// decision's Reply without replication.
	HandleCommand(cmd interface{}, applied revision.Revision, state interface{}, data interface{}) Decision

	// ApplyCommand is called exactly once per committed RsmCommand entry,
	// in seqno order, on every replica (leader and followers alike).
	ApplyCommand(cmd interface{}, entryRev revision.Revision, appliedRev revision.Revision, state interface{}, data interface{}) (reply interface{}, newState interface{}, newData interface{})

	// HandleQuery answers a read-only query against the current applied
	// state without going through consensus.
	HandleQuery(q interface{}, applied revision.Revision, state interface{}, data interface{}) (reply interface{}, newData interface{})

	// HandleInfo delivers an out-of-band message to the module. Returning
	// a non-nil error terminates the host.
	HandleInfo(msg interface{}, applied revision.Revision, state interface{}, data interface{}) (newData interface{}, stop error)

	// Terminate is called once as the host shuts down.
	Terminate(reason error, applied revision.Revision, state interface{}, data interface{})
}

// Decision is HandleCommand's verdict: either Apply (replicate the
// command) or Reject (short-circuit with an inline reply).
type Decision struct {
	Apply    bool
	Reply    interface{}
	NewData  interface{}
}

// ApplyDecision tells the host to submit cmd for replication, carrying
// forward the (possibly updated) module data.
func ApplyDecision(newData interface{}) Decision {
	return Decision{Apply: true, NewData: newData}
}

// RejectDecision tells the host to reply inline with reply without
// replicating anything.
func RejectDecision(reply interface{}, newData interface{}) Decision {
	return Decision{Apply: false, Reply: reply, NewData: newData}
}
