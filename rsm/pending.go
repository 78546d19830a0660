package rsm

import (
	"context"

	"github.com/timofey-barmin/chronicle/revision"
)

// ref is an opaque correlation token minted by the host for every request
// it parks while waiting on an external event (consensus outcome, log
// apply, term transition).
type ref uint64

// pendingKind distinguishes why a client is parked in pendingClients.
type pendingKind int

const (
	// kindCommand is a client waiting on RsmCommand's async outcome.
	kindCommand pendingKind = iota
	// kindCommandAccepted is a client whose command was accepted at a
	// given seqno and is now waiting for that entry to be applied.
	kindCommandAccepted
	// kindSync is a client waiting on SyncQuorum's async outcome for
	// get_applied_revision(quorum).
	kindSync
)

// pendingClient is the pure data parked for a request; nothing blocks on
// it except the original caller, who is waiting on its own reply channel
// or ctx.Done(). deliver is invoked from the actor loop, never blocking,
// so a kindSync reply can target a differently-typed reply channel than
// a kindCommand/kindCommandAccepted one without the pending table needing
// to know the concrete type.
type pendingClient struct {
	ctx     context.Context
	kind    pendingKind
	cmd     interface{}
	deliver func(commandReply)
}

type commandReply struct {
	reply interface{}
	err   error
}

// pendingClients is owned exclusively by the host's run loop; no lock is
// required. It is keyed first by ref (while awaiting the consensus
// server's Accepted/Error outcome) and, once accepted, reindexed by the
// seqno the entry will land at -- mirroring the donor's reuse of a single
// instance map across preaccept/accept/commit phases.
type pendingClients struct {
	byRef   map[ref]*pendingClient
	bySeqno map[revision.Seqno]*pendingClient
	nextRef ref
}

func newPendingClients() *pendingClients {
	return &pendingClients{
		byRef:   make(map[ref]*pendingClient),
		bySeqno: make(map[revision.Seqno]*pendingClient),
	}
}

func (p *pendingClients) newRef() ref {
	p.nextRef++
	return p.nextRef
}

func (p *pendingClients) registerByRef(r ref, c *pendingClient) {
	p.byRef[r] = c
}

func (p *pendingClients) takeByRef(r ref) (*pendingClient, bool) {
	c, ok := p.byRef[r]
	if ok {
		delete(p.byRef, r)
	}
	return c, ok
}

// accept moves a command from byRef to bySeqno, asserting no existing
// registration for that seqno (the consensus server must not report the
// same seqno accepted twice).
func (p *pendingClients) accept(r ref, seqno revision.Seqno) (*pendingClient, bool) {
	c, ok := p.byRef[r]
	if !ok {
		return nil, false
	}
	if _, exists := p.bySeqno[seqno]; exists {
		panic("rsm: duplicate Accepted(seqno) for an already pending seqno")
	}
	delete(p.byRef, r)
	c.kind = kindCommandAccepted
	p.bySeqno[seqno] = c
	return c, true
}

func (p *pendingClients) takeBySeqno(seqno revision.Seqno) (*pendingClient, bool) {
	c, ok := p.bySeqno[seqno]
	if ok {
		delete(p.bySeqno, seqno)
	}
	return c, ok
}

// peekBySeqno looks up a pending client without removing it, used when
// the caller must decide whether to reply before committing to removal.
func (p *pendingClients) peekBySeqno(seqno revision.Seqno) (*pendingClient, bool) {
	c, ok := p.bySeqno[seqno]
	return c, ok
}

// sweepAcceptedAsLeaderLost drains every command_accepted registration,
// replying ErrLeaderLost to each, on term_finished.
func (p *pendingClients) sweepAcceptedAsLeaderLost() {
	for seqno, c := range p.bySeqno {
		delete(p.bySeqno, seqno)
		c.deliver(commandReply{err: errLeaderLost})
	}
}
