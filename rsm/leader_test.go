package rsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFollowerStateIsNotLeader(t *testing.T) {
	s := followerState()
	assert.False(t, s.isLeader())
	assert.False(t, s.established())
}

func TestOnTermEstablishedImmediate(t *testing.T) {
	s := onTermEstablished("h1", 3, 5, 5)
	assert.True(t, s.isLeader())
	assert.True(t, s.established())
}

func TestOnTermEstablishedWaitsForSeqno(t *testing.T) {
	s := onTermEstablished("h1", 3, 5, 2)
	assert.True(t, s.isLeader())
	assert.False(t, s.established())
	assert.Equal(t, statusWaitForSeqno, s.status)
}

func TestMaybeAdvance(t *testing.T) {
	s := onTermEstablished("h1", 3, 5, 2)
	s = s.maybeAdvance(4)
	assert.False(t, s.established())

	s = s.maybeAdvance(5)
	assert.True(t, s.established())
}
