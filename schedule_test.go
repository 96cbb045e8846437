package tsch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

// Testable property 4 (spec.md §8): channel always in [11, 26].
func TestChannel_AlwaysInRange(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		offset := rapid.IntRange(0, 255).Draw(rt, "offset")
		asn := rapid.Uint64().Draw(rt, "asn")
		ch := Channel(Cell{ChannelOffset: uint8(offset)}, asn)
		assert.GreaterOrEqual(rt, int(ch), 11)
		assert.LessOrEqual(rt, int(ch), 26)
	})
}

// Testable property 5 (spec.md §8): NextActiveSlot visits every active
// slot exactly once over one full slotframe cycle and returns to 0.
func TestSlotframe_WrapVisitsEveryActiveSlotOnce(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		onSize := rapid.Uint16Range(1, 50).Draw(rt, "on_size")
		length := onSize + rapid.Uint16Range(0, 20).Draw(rt, "extra")
		sf := &Slotframe{Length: length, OnSize: onSize, Cells: make([]Cell, onSize)}

		seen := map[uint16]bool{}
		cur := uint16(0)
		for i := uint16(0); i < onSize; i++ {
			assert.False(rt, seen[cur], "slot %d visited twice", cur)
			seen[cur] = true
			cur = sf.NextActiveSlot(cur)
		}
		assert.Equal(rt, uint16(0), cur)
		assert.Len(rt, seen, int(onSize))
	})
}

func TestSlotframe_CellAt(t *testing.T) {
	sf := &Slotframe{
		Length: 10,
		OnSize: 2,
		Cells: []Cell{
			{SlotOffset: 0},
			{SlotOffset: 1},
		},
	}
	c, ok := sf.CellAt(0)
	assert.True(t, ok)
	assert.Equal(t, uint16(0), c.SlotOffset)

	_, ok = sf.CellAt(2)
	assert.False(t, ok)
}
