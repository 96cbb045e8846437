package tsch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually-advanced Clock for deterministic scheduler tests.
type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }
func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func TestScheduler_AdvanceSlot_WrapsAndResets(t *testing.T) {
	sf := &Slotframe{Length: 4, OnSize: 4, Cells: make([]Cell, 4)}
	timing := TimingTemplate{SlotDuration: 10 * time.Millisecond}
	clock := &fakeClock{now: time.Unix(0, 0)}
	s := NewScheduler(clock)
	s.Start = clock.now

	for i := 0; i < 3; i++ {
		d := s.AdvanceSlot(sf, timing)
		assert.Equal(t, timing.SlotDuration, d)
		assert.Equal(t, uint64(i+1), s.ASN)
	}

	// wrap: slot 3 -> 0
	d := s.AdvanceSlot(sf, timing)
	assert.Equal(t, timing.SlotDuration, d)
	assert.Equal(t, uint16(0), s.CurrentSlot)
	assert.Equal(t, uint64(4), s.ASN)
}

func TestScheduler_DriftFoldedOnlyAtWrap(t *testing.T) {
	sf := &Slotframe{Length: 2, OnSize: 2, Cells: make([]Cell, 2)}
	timing := TimingTemplate{SlotDuration: 10 * time.Millisecond}
	clock := &fakeClock{now: time.Unix(0, 0)}
	s := NewScheduler(clock)
	s.Start = clock.now
	s.DriftCorrection = 5 * time.Millisecond

	d1 := s.AdvanceSlot(sf, timing) // slot 0 -> 1, no wrap
	assert.Equal(t, timing.SlotDuration, d1)
	assert.Equal(t, 5*time.Millisecond, s.DriftCorrection)

	d2 := s.AdvanceSlot(sf, timing) // slot 1 -> 0, wraps
	assert.Equal(t, timing.SlotDuration+5*time.Millisecond, d2)
	assert.Equal(t, time.Duration(0), s.DriftCorrection)
}

// spec.md §8 S5 / §4.D: missed deadline is detected via the unsigned
// wraparound test and reported as ScheduleMissedDeadline.
func TestScheduler_ScheduleFixed_MissedDeadline(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	s := NewScheduler(clock)
	ref := clock.now
	duration := 10 * time.Millisecond

	// Advance the clock well past the deadline before calling ScheduleFixed.
	clock.Advance(3 * duration)

	_, outcome := s.ScheduleFixed(ref, duration)
	assert.Equal(t, ScheduleMissedDeadline, outcome)
}

func TestScheduler_ScheduleFixed_OnTime(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	s := NewScheduler(clock)
	ref := clock.now
	duration := 10 * time.Millisecond

	deadline, outcome := s.ScheduleFixed(ref, duration)
	require.Equal(t, ScheduleOK, outcome)
	assert.Equal(t, ref.Add(duration), deadline)
}
