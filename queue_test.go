package tsch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func addrN(n byte) Address {
	var a Address
	a[7] = n
	return a
}

// Testable property 1 (spec.md §8): enqueue/dequeue symmetry.
func TestStore_EnqueueDequeueSymmetry(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 7).Draw(rt, "n") // N-1, N=8
		s := NewStore(8)
		addr := addrN(1)

		frames := make([][]byte, n)
		for i := range frames {
			frames[i] = []byte{byte(i)}
			require.NoError(rt, s.Enqueue(addr, frames[i], nil, nil))
		}

		for i := range frames {
			p := s.Peek(addr)
			require.NotNil(rt, p)
			assert.Equal(rt, frames[i], p.FrameHandle)
			require.NoError(rt, s.Dequeue(addr))
		}
		assert.Nil(rt, s.Peek(addr))
	})
}

func TestStore_FullWhenNMinus1(t *testing.T) {
	s := NewStore(8)
	addr := addrN(1)
	for i := 0; i < 7; i++ {
		require.NoError(t, s.Enqueue(addr, []byte{byte(i)}, nil, nil))
	}
	assert.ErrorIs(t, s.Enqueue(addr, []byte{99}, nil, nil), ErrQueueFull)
}

func TestStore_DequeueResetsBackoff(t *testing.T) {
	s := NewStore(8)
	addr := addrN(1)
	require.NoError(t, s.Enqueue(addr, []byte{1}, nil, nil))
	n := s.Lookup(addr)
	n.BE = 3
	n.BW = 2
	require.NoError(t, s.Dequeue(addr))
	assert.Equal(t, uint8(MacMinBE), n.BE)
	assert.Equal(t, uint8(0), n.BW)
}

func TestStore_RemoveMissing(t *testing.T) {
	s := NewStore(8)
	assert.ErrorIs(t, s.Remove(addrN(5)), ErrNoNeighbor)
}

func TestStore_NextSharedSlotCandidate_RoundRobin(t *testing.T) {
	s := NewStore(8)
	a1, a2 := addrN(1), addrN(2)
	require.NoError(t, s.Enqueue(a1, []byte{1}, nil, nil))
	require.NoError(t, s.Enqueue(a2, []byte{2}, nil, nil))

	addr, p, ok := s.NextSharedSlotCandidate()
	require.True(t, ok)
	assert.Equal(t, a1, addr)
	assert.Equal(t, []byte{1}, p.FrameHandle)

	_ = s.Dequeue(a1)

	addr2, p2, ok2 := s.NextSharedSlotCandidate()
	require.True(t, ok2)
	assert.Equal(t, a2, addr2)
	assert.Equal(t, []byte{2}, p2.FrameHandle)
}

func TestStore_MutationInProgress(t *testing.T) {
	s := NewStore(8)
	assert.False(t, s.MutationInProgress())
	_, _ = s.Add(addrN(1))
	assert.False(t, s.MutationInProgress())
}
