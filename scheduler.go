package tsch

import "time"

/*------------------------------------------------------------------
 *
 * Purpose:	Convert ASN/slot-number progression into absolute timer
 *		deadlines, with missed-deadline recovery, spec.md §4.D.
 *
 * Description:	Re-architected from the source's rtimer-reprogramming
 *		coroutine (SPEC_FULL.md / spec.md §9 design notes) into an
 *		explicit Scheduler value whose ScheduleFixed method checks
 *		each slot-boundary deadline; the yield points inside a slot
 *		are WaitUntil calls.
 *		The unsigned-wraparound missed-deadline test is preserved
 *		exactly: it is computed in uint64 nanoseconds, which wraps
 *		identically to a narrower hardware rtimer counter for any
 *		difference that actually occurs.
 *
 *------------------------------------------------------------------*/

// Clock abstracts time so tests can inject missed deadlines
// deterministically (spec.md §8 S5) without sleeping in real time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock is the production Clock.
var RealClock Clock = realClock{}

// ScheduleOutcome reports how a ScheduleFixed call resolved.
type ScheduleOutcome uint8

const (
	ScheduleOK ScheduleOutcome = iota
	ScheduleMissedDeadline
	ScheduleDriverFailure
)

// Scheduler owns ASN, the current slot index, and the absolute instant
// the current slot began ("start" in spec.md §4.D).
type Scheduler struct {
	Clock Clock

	ASN             uint64
	CurrentSlot     uint16
	Start           time.Time
	DriftCorrection time.Duration // folded into the next wrap-crossing sleep, then zeroed
}

// NewScheduler creates a scheduler with ASN 0, ready for Associate.
func NewScheduler(clock Clock) *Scheduler {
	if clock == nil {
		clock = RealClock
	}
	return &Scheduler{Clock: clock}
}

// ScheduleFixed computes the absolute deadline reference+duration and
// detects a missed deadline via the unsigned-distance test from
// spec.md §4.D: if (reference+duration) - now > duration, the deadline
// has already passed (interpreting the subtraction as wrapping
// unsigned arithmetic). On a miss, the caller should treat the slot as
// skipped and let the scheduler wrap recovery (AdvanceSlot) absorb it.
func (s *Scheduler) ScheduleFixed(reference time.Time, duration time.Duration) (time.Time, ScheduleOutcome) {
	deadline := reference.Add(duration)
	now := s.Clock.Now()

	diff := uint64(deadline.Sub(now))
	if diff > uint64(duration) {
		return now.Add(5 * time.Microsecond), ScheduleMissedDeadline
	}
	return deadline, ScheduleOK
}

// WaitUntil blocks the calling goroutine until t, per the "single
// goroutine with a time.Timer" re-architecture in spec.md §9's design
// notes: each yield point of the power-cycle coroutine is one of these
// waits rather than a timer reprogram handed back to an event loop.
func WaitUntil(clock Clock, t time.Time) {
	d := t.Sub(clock.Now())
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	<-timer.C
}

// AdvanceSlot computes dt to the next active slot (wrapping through
// sf.Length - cur when the on-size region is exhausted), advances ASN
// by dt, and returns the sleep duration for that many slots, folding
// in any pending drift correction exactly once at the wrap point
// (spec.md §4.D, §4.E).
func (s *Scheduler) AdvanceSlot(sf *Slotframe, timing TimingTemplate) time.Duration {
	next := sf.NextActiveSlot(s.CurrentSlot)

	var dt uint16
	if next != 0 {
		dt = next - s.CurrentSlot
	} else {
		dt = sf.Length - s.CurrentSlot
	}

	duration := time.Duration(dt) * timing.SlotDuration

	wrapping := next == 0
	if wrapping {
		duration += s.DriftCorrection
		s.DriftCorrection = 0
	}

	s.CurrentSlot = next
	s.ASN += uint64(dt)
	s.Start = s.Start.Add(duration)

	return duration
}

// RecoverMissedSlot implements the §4.D missed-deadline recovery path:
// on top of the slot already advanced by AdvanceSlot, skip one
// additional slot in lockstep so ASN and Start stay aligned to real
// time, returning the extra sleep duration for that second slot.
func (s *Scheduler) RecoverMissedSlot(sf *Slotframe, timing TimingTemplate) time.Duration {
	return s.AdvanceSlot(sf, timing)
}
