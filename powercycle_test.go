package tsch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func testCore(t testingTB) *TschCore {
	c := NewCore(Config{
		Timing:    DefaultTimingTemplate,
		Slotframe: &Slotframe{Length: 1, OnSize: 1, Cells: []Cell{{}}},
	})
	c.Init()
	return c
}

// minimal interface so this helper works with both *testing.T and *rapid.T
type testingTB interface {
	Helper()
}

func TestComputeCellDecision(t *testing.T) {
	shared := Cell{LinkOptions: LinkOptionTX | LinkOptionShared}
	dedicated := Cell{LinkOptions: LinkOptionTX | LinkOptionRX}
	rxOnly := Cell{LinkOptions: LinkOptionRX}

	assert.Equal(t, CellOff, computeCellDecision(Cell{}, true, &PacketSlot{}, 0))
	assert.Equal(t, CellTX, computeCellDecision(dedicated, false, &PacketSlot{}, 0))
	assert.Equal(t, CellTX, computeCellDecision(shared, false, &PacketSlot{}, 0))
	assert.Equal(t, CellTXBackoff, computeCellDecision(shared, false, &PacketSlot{}, 2))
	assert.Equal(t, CellRX, computeCellDecision(dedicated, false, nil, 0))
	assert.Equal(t, CellTXIdle, computeCellDecision(Cell{LinkOptions: LinkOptionTX}, false, nil, 0))
	assert.Equal(t, CellRX, computeCellDecision(rxOnly, false, nil, 0))
}

// S1: dedicated-link unicast success.
func TestFinishTx_DedicatedUnicastSuccess(t *testing.T) {
	c := testCore(t)
	addr := addrN(1)
	_, err := c.Store.Add(addr)
	require.NoError(t, err)

	var gotStatus TxStatus
	var gotTx int
	cb := func(ctx any, status TxStatus, transmissions int) {
		gotStatus = status
		gotTx = transmissions
	}
	require.NoError(t, c.Store.Enqueue(addr, []byte{0x41, 0x88, 0x07}, cb, nil))

	n := c.Store.Lookup(addr)
	p := n.peek()
	p.Transmissions = 1
	cell := Cell{LinkOptions: LinkOptionTX | LinkOptionRX, PeerAddress: addr}

	c.finishTx(RadioTxOK, cell, addr, p, n, false)

	assert.Nil(t, n.peek())
	assert.Equal(t, uint8(MacMinBE), n.BE)
	assert.Equal(t, uint8(0), n.BW)

	waitForDispatch(t, c)
	assert.Equal(t, TxOK, gotStatus)
	assert.Equal(t, 1, gotTx)
}

// S3: retry exhaustion after macMaxFrameRetries consecutive NOACKs.
func TestFinishTx_RetryExhaustion(t *testing.T) {
	c := testCore(t)
	addr := addrN(1)
	n, _ := c.Store.Add(addr)
	n.IsTimeSource = false

	var finalStatus TxStatus
	var finalTx int
	cb := func(ctx any, status TxStatus, transmissions int) {
		finalStatus = status
		finalTx = transmissions
	}
	require.NoError(t, c.Store.Enqueue(addr, []byte{0, 0, 1}, cb, nil))

	cell := Cell{LinkOptions: LinkOptionTX | LinkOptionShared}
	for i := 0; i < MacMaxFrameRetries; i++ {
		p := n.peek()
		require.NotNil(t, p)
		c.finishTx(RadioTxNoAck, cell, addr, p, n, false)
	}

	assert.Nil(t, n.peek())
	assert.Equal(t, uint8(MacMinBE), n.BE)
	assert.Equal(t, uint8(0), n.BW)

	waitForDispatch(t, c)
	assert.Equal(t, TxNoAck, finalStatus)
	assert.Equal(t, MacMaxFrameRetries, finalTx)
}

// Testable property 2 (spec.md §8): BE/BW after a shared-cell failure.
func TestFinishTx_SharedFailureBackoffBounds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		bePrev := uint8(rapid.IntRange(MacMinBE, MacMaxBE).Draw(rt, "be_prev"))

		c := testCore(t)
		addr := addrN(1)
		n, _ := c.Store.Add(addr)
		n.BE = bePrev
		require.NoError(rt, c.Store.Enqueue(addr, []byte{0, 0, 1}, func(any, TxStatus, int) {}, nil))
		p := n.peek()

		cell := Cell{LinkOptions: LinkOptionTX | LinkOptionShared}
		c.finishTx(RadioTxNoAck, cell, addr, p, n, false)

		assert.Equal(rt, uint8(min(int(bePrev)+1, MacMaxBE)), n.BE)
		window := uint8(1)<<bePrev - 1
		assert.LessOrEqual(rt, n.BW, window)
	})
}

// Testable property 3 (spec.md §8): after exhausted retries the frame
// is unreachable by peek and BE/BW are reset.
func TestFinishTx_ExhaustedRetriesUnreachable(t *testing.T) {
	c := testCore(t)
	addr := addrN(1)
	n, _ := c.Store.Add(addr)
	require.NoError(t, c.Store.Enqueue(addr, []byte{0, 0, 1}, func(any, TxStatus, int) {}, nil))
	p := n.peek()
	p.Transmissions = MacMaxFrameRetries - 1

	cell := Cell{LinkOptions: LinkOptionTX}
	c.finishTx(RadioTxCollision, cell, addr, p, n, false)

	assert.Nil(t, n.peek())
	assert.Equal(t, uint8(MacMinBE), n.BE)
	assert.Equal(t, uint8(0), n.BW)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// waitForDispatch gives the async callback dispatcher goroutine a
// chance to drain before the test asserts on callback side effects.
func waitForDispatch(t testing.TB, c *TschCore) {
	t.Helper()
	done := make(chan struct{})
	c.Dispatcher.Post(func(any, TxStatus, int) { close(done) }, nil, TxOK, 0)
	<-done
}
