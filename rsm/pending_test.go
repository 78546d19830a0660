package rsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingAcceptThenTakeBySeqno(t *testing.T) {
	p := newPendingClients()
	r := p.newRef()
	p.registerByRef(r, &pendingClient{kind: kindCommand})

	c, ok := p.accept(r, 7)
	require.True(t, ok)
	assert.Equal(t, kindCommandAccepted, c.kind)

	_, ok = p.takeByRef(r)
	assert.False(t, ok, "accept should have moved the client out of byRef")

	got, ok := p.takeBySeqno(7)
	require.True(t, ok)
	assert.Same(t, c, got)
}

func TestPendingPeekDoesNotRemove(t *testing.T) {
	p := newPendingClients()
	r := p.newRef()
	p.registerByRef(r, &pendingClient{kind: kindCommand})
	p.accept(r, 3)

	_, ok := p.peekBySeqno(3)
	require.True(t, ok)

	_, ok = p.peekBySeqno(3)
	assert.True(t, ok, "peek must not remove the entry")
}

func TestPendingDuplicateAcceptPanics(t *testing.T) {
	p := newPendingClients()
	r1 := p.newRef()
	r2 := p.newRef()
	p.registerByRef(r1, &pendingClient{kind: kindCommand})
	p.registerByRef(r2, &pendingClient{kind: kindCommand})

	p.accept(r1, 1)
	assert.Panics(t, func() { p.accept(r2, 1) })
}

func TestSweepAcceptedAsLeaderLost(t *testing.T) {
	p := newPendingClients()
	var delivered []commandReply
	r := p.newRef()
	p.registerByRef(r, &pendingClient{kind: kindCommand, deliver: func(cr commandReply) { delivered = append(delivered, cr) }})
	p.accept(r, 1)

	p.sweepAcceptedAsLeaderLost()
	require.Len(t, delivered, 1)
	assert.ErrorIs(t, delivered[0].err, errLeaderLost)

	_, ok := p.takeBySeqno(1)
	assert.False(t, ok)
}
