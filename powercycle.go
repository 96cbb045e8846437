package tsch

import "time"

/*------------------------------------------------------------------
 *
 * Purpose:	The power-cycle state machine, spec.md §4.E — the core.
 *
 * Description:	A cooperative coroutine, re-architected per SPEC_FULL.md
 *		/ spec.md §9's design notes as a single goroutine that
 *		blocks on WaitUntil at every point the original reprograms
 *		its rtimer. Per slot it computes a cell decision, executes
 *		the matching TX or RX protocol against the RadioDriver, and
 *		folds drift samples and missed-deadline recovery into the
 *		Scheduler.
 *
 *------------------------------------------------------------------*/

// nsPerTick is the exact integer nanoseconds-per-tick implied by the
// §4.C rational constant (3051/100 µs per tick => 30510 ns per tick).
const nsPerTick = TickToMicrosecondNum * 1000 / TickToMicrosecondDen

func ticksToDuration(ticks int64) time.Duration {
	return time.Duration(ticks * nsPerTick)
}

func durationToTicks(d time.Duration) int64 {
	return d.Nanoseconds() / nsPerTick
}

// computeCellDecision implements the decision table of spec.md §4.E.
// candidate is nil when no frame is available for a TX cell.
func computeCellDecision(cell Cell, mutationInProgress bool, candidate *PacketSlot, bw uint8) CellDecision {
	if mutationInProgress {
		return CellOff
	}

	decision := CellOff
	if cell.LinkOptions.Has(LinkOptionTX) {
		if candidate != nil {
			shared := cell.LinkOptions.Has(LinkOptionShared)
			if !shared || bw == 0 {
				decision = CellTX
			} else {
				decision = CellTXBackoff
			}
		} else {
			decision = CellTXIdle
		}
	}

	if cell.LinkOptions.Has(LinkOptionRX) && decision != CellTX {
		decision = CellRX
	}

	return decision
}

// selectCandidate implements the §4.E candidate-selection rule: look up
// the queue keyed by the cell's peer address; if that queue has
// nothing and the cell is a shared broadcast cell, fall back to
// round-robin across all neighbor queues.
func (c *TschCore) selectCandidate(cell Cell) (Address, *PacketSlot, *NeighborQueue) {
	if !cell.LinkOptions.Has(LinkOptionTX) || cell.LinkType == LinkTypeAdvertising {
		return Address{}, nil, nil
	}

	n := c.Store.Lookup(cell.PeerAddress)
	if n != nil {
		if p := n.peek(); p != nil {
			return cell.PeerAddress, p, n
		}
	}

	if cell.PeerAddress.IsBroadcast() && cell.LinkOptions.Has(LinkOptionShared) {
		if addr, p, ok := c.Store.NextSharedSlotCandidate(); ok {
			return addr, p, c.Store.Lookup(addr)
		}
	}

	return Address{}, nil, nil
}

// Run executes the power-cycle machine until stop is closed or the
// core leaves ASSOCIATED/sync, matching §4.E's terminal-coroutine
// semantics ("exits at its next resumption"; restartable via
// Associate).
func (c *TschCore) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		if !c.isSync.Load() || c.State() != StateAssociated {
			return
		}
		c.runOneSlot()
	}
}

func (c *TschCore) runOneSlot() {
	sched := c.Scheduler
	timing := c.cfg.Timing
	start := sched.Start

	if c.cfg.Radio != nil {
		c.cfg.Radio.SFDSync(true, true)
	}

	cell, hasCell := c.cfg.Slotframe.CellAt(sched.CurrentSlot)
	mutating := c.Store.MutationInProgress()

	var candidate *PacketSlot
	var candidateAddr Address
	var candidateQ *NeighborQueue
	decision := CellOff

	if hasCell && !mutating {
		if c.cfg.Radio != nil {
			_ = c.cfg.Radio.SetChannel(Channel(cell, sched.ASN))
		}
		candidateAddr, candidate, candidateQ = c.selectCandidate(cell)
		decision = computeCellDecision(cell, mutating, candidate, backoffWindowOf(candidateQ))
	}

	switch decision {
	case CellTXBackoff:
		if candidateQ != nil {
			candidateQ.BW--
		}
		_ = c.Off(c.keepRadioOn.Load())
		c.trace(sched.ASN, sched.CurrentSlot, decision, "-", 0, 0)
	case CellTX:
		c.txSlot(start, timing, cell, candidateAddr, candidate, candidateQ)
	case CellRX:
		c.rxSlot(start, timing, cell)
	default:
		_ = c.Off(c.keepRadioOn.Load())
		c.trace(sched.ASN, sched.CurrentSlot, decision, "-", 0, 0)
	}

	c.advanceAndSleep()
}

// trace appends one row to the configured TraceLog, a no-op when tracing
// is disabled (SPEC_FULL.md Domain: Frame trace log).
func (c *TschCore) trace(asn uint64, slot uint16, decision CellDecision, outcome string, transmissions int, driftUs int32) {
	if c.cfg.TraceLog == nil {
		return
	}
	c.cfg.TraceLog.Write(time.Now(), asn, slot, decision, outcome, transmissions, driftUs)
}

func backoffWindowOf(n *NeighborQueue) uint8 {
	if n == nil {
		return 0
	}
	return n.BW
}

func (c *TschCore) advanceAndSleep() {
	sched := c.Scheduler
	timing := c.cfg.Timing

	wrapping := sched.CurrentSlot+1 >= c.cfg.Slotframe.OnSize
	if wrapping {
		c.foldDriftAtWrap()
	}

	prevStart := sched.Start
	duration := sched.AdvanceSlot(c.cfg.Slotframe, timing)
	nextWake := prevStart.Add(duration)

	_, outcome := sched.ScheduleFixed(prevStart, duration)
	if outcome == ScheduleMissedDeadline {
		c.Log.Warn("missed slot deadline, skipping one additional slot", "asn", sched.ASN)
		extra := sched.RecoverMissedSlot(c.cfg.Slotframe, timing)
		nextWake = sched.Start
		_ = extra
	}

	WaitUntil(sched.Clock, nextWake)
}

func (c *TschCore) foldDriftAtWrap() {
	c.driftMu.Lock()
	defer c.driftMu.Unlock()

	if c.driftCount > 0 {
		ticks := (c.driftSum * int64(TickToMicrosecondDen)) / (int64(TickToMicrosecondNum) * int64(c.driftCount))
		c.Scheduler.DriftCorrection += ticksToDuration(ticks)
	}
	c.driftSum = 0
	c.driftCount = 0
}

func (c *TschCore) recordDrift(us int32) {
	c.driftMu.Lock()
	c.driftSum += int64(us)
	c.driftCount++
	c.driftMu.Unlock()
}

// --- TX slot protocol, spec.md §4.E ---

func (c *TschCore) txSlot(start time.Time, timing TimingTemplate, cell Cell, addr Address, p *PacketSlot, n *NeighborQueue) {
	radio := c.cfg.Radio
	clock := c.Scheduler.Clock
	isBroadcast := addr.IsBroadcast()

	if timing.CCA > 0 {
		WaitUntil(clock, start.Add(timing.CCAOffset))
		_ = c.On()
		WaitUntil(clock, start.Add(timing.CCAOffset+timing.CCA))
		if radio != nil && !radio.ChannelClear() {
			c.finishTx(RadioTxCollision, cell, addr, p, n, isBroadcast)
			return
		}
		_ = c.Off(c.keepRadioOn.Load())
	}

	if radio != nil {
		_ = radio.Prepare(p.FrameHandle)
		radio.SFDSync(true, false)
	}

	WaitUntil(clock, start.Add(timing.TxOffset-timing.DelayTx))

	var txTime time.Duration
	outcome := RadioTxOK
	if radio != nil {
		before := radio.ReadSFDTimer()
		outcome = radio.Transmit(len(p.FrameHandle))
		txTime = radio.ReadSFDTimer() - before
		if txTime > timing.WdDataMax {
			txTime = timing.WdDataMax
		}
	}
	_ = c.Off(c.keepRadioOn.Load())

	if outcome != RadioTxOK {
		c.finishTx(outcome, cell, addr, p, n, isBroadcast)
		return
	}

	if isBroadcast {
		c.finishTx(RadioTxOK, cell, addr, p, n, isBroadcast)
		return
	}

	// Wait for the ACK window, then poll for signs of an incoming frame.
	WaitUntil(clock, start.Add(timing.TxOffset+txTime+timing.TxAckDelay-timing.ShortGT-timing.DelayRx))
	if radio != nil {
		radio.SFDSync(false, false)
	}
	_ = c.On()

	seen := c.ackSignsDetected(radio)
	if !seen {
		WaitUntil(clock, start.Add(timing.TxOffset+txTime+timing.TxAckDelay+timing.ShortGT))
		seen = c.ackSignsDetected(radio)
	}
	if !seen {
		c.finishTx(RadioTxNoAck, cell, addr, p, n, isBroadcast)
		return
	}

	WaitUntil(clock, start.Add(timing.TxOffset+txTime+timing.TxAckDelay+timing.ShortGT+timing.WdAckMax))

	ackbuf := make([]byte, 16)
	var ackLen int
	if radio != nil {
		if radio.PendingPacket() {
			ackLen, _ = radio.Read(ackbuf)
		} else if radio.PendingIRQ() {
			ackLen, _ = radio.ReadAck(ackbuf)
		}
	}

	seqno := frameSeqNo(p.FrameHandle)
	if ackLen < 3 || ackbuf[0] != 0x02 || ackbuf[2] != seqno {
		c.finishTx(RadioTxNoAck, cell, addr, p, n, isBroadcast)
		return
	}

	if ackbuf[1]&0x02 != 0 && ackLen >= 7 {
		ie, ok, err := ParseAckSyncIE(ackbuf[3:ackLen])
		if ok && err == nil {
			if n != nil && n.IsTimeSource {
				c.recordDrift(ie.Microseconds)
			}
			_ = ie.Nack // NACK-with-info still acknowledged at the MAC layer, per spec.md §4.E step 6
		}
	}

	_ = c.Off(c.keepRadioOn.Load())
	c.finishTx(RadioTxOK, cell, addr, p, n, isBroadcast)
}

func (c *TschCore) ackSignsDetected(radio RadioDriver) bool {
	if radio == nil {
		return false
	}
	return radio.ReceivingPacket() || radio.PendingPacket() || !radio.ChannelClear()
}

// frameSeqNo reads the sequence-number byte at offset 2, matching the
// wire layout used throughout this module (FCF lo/hi, seqno, ...).
func frameSeqNo(frame []byte) uint8 {
	if len(frame) < 3 {
		return 0
	}
	return frame[2]
}

// finishTx applies the retry/backoff policy table of spec.md §4.E and,
// once the frame leaves the queue (delivered or retries exhausted),
// posts the outcome to the Async Callback Dispatcher.
func (c *TschCore) finishTx(outcome RadioOutcome, cell Cell, addr Address, p *PacketSlot, n *NeighborQueue, isBroadcast bool) {
	if n == nil {
		return
	}

	// Dequeue clears the ring slot p points at, so keep what the
	// callback needs before any removal.
	sent, cbCtx := p.Sent, p.CallbackCtx
	transmissions := p.Transmissions

	var status TxStatus
	switch outcome {
	case RadioTxOK:
		status = TxOK
		_ = c.Store.Dequeue(addr)
		if n.peek() == nil {
			n.BW = 0
			n.BE = MacMinBE
		} else {
			n.BW = 0
		}
	default:
		switch outcome {
		case RadioTxNoAck:
			status = TxNoAck
		case RadioTxCollision:
			status = TxCollision
		default:
			status = TxErr
		}

		p.Transmissions++
		transmissions = p.Transmissions
		exhausted := transmissions >= MacMaxFrameRetries
		switch {
		case exhausted:
			_ = c.Store.Dequeue(addr)
			n.BE = MacMinBE
			n.BW = 0
		case cell.LinkOptions.Has(LinkOptionShared) && !isBroadcast:
			window := uint8(1)<<n.BE - 1
			n.BW = HighByte(c.cfg.RNG, window)
			if n.BE < MacMaxBE {
				n.BE++
			}
		}
	}

	c.trace(c.Scheduler.ASN, cell.SlotOffset, CellTX, status.String(), transmissions, 0)
	if outcome != RadioTxOK && transmissions < MacMaxFrameRetries {
		return // frame stays queued for another attempt; no callback yet
	}
	c.Dispatcher.Post(sent, cbCtx, status, transmissions)
}

// --- RX slot protocol, spec.md §4.E ---

func (c *TschCore) rxSlot(start time.Time, timing TimingTemplate, cell Cell) {
	radio := c.cfg.Radio
	clock := c.Scheduler.Clock

	WaitUntil(clock, start.Add(timing.TxOffset-timing.LongGT))
	_ = c.On()

	carrierEarly := c.ackSignsDetected(radio)

	WaitUntil(clock, start.Add(timing.TxOffset+timing.LongGT))

	if radio == nil {
		_ = c.Off(c.keepRadioOn.Load())
		return
	}

	rxEnd := radio.GetRxEndTime()
	if rxEnd == 0 && !carrierEarly && !radio.PendingPacket() && radio.ChannelClear() && !radio.ReceivingPacket() {
		_ = c.Off(c.keepRadioOn.Load())
		c.trace(c.Scheduler.ASN, cell.SlotOffset, CellRX, "idle", 0, 0)
		return
	}

	_ = c.Off(c.keepRadioOn.Load())

	buf := make([]byte, 256)
	n, _ := radio.Read(buf)
	if n == 0 {
		c.trace(c.Scheduler.ASN, cell.SlotOffset, CellRX, "empty", 0, 0)
		return
	}

	rf, err := c.cfg.Framer.Parse(buf[:n])
	if err != nil {
		c.Log.Warn("framer parse failed", "err", err)
		c.trace(c.Scheduler.ASN, cell.SlotOffset, CellRX, "parse_err", 0, 0)
		return
	}

	if rf.RequestsAck {
		ackAt := start.Add(timing.TxOffset).Add(rxEnd).Add(timing.TxAckDelay - timing.DelayTx)
		WaitUntil(clock, ackAt)
		_ = radio.SendAck()
	}

	var driftUs int32
	if rf.Source != c.cfg.OurAddress {
		neigh := c.Store.Lookup(rf.Source)
		if neigh != nil && neigh.IsTimeSource {
			drift := start.Add(timing.TxOffset).Sub(start.Add(rxEnd))
			driftUs = int32(drift.Microseconds())
			c.recordDrift(driftUs)
		}
	}

	c.trace(c.Scheduler.ASN, cell.SlotOffset, CellRX, "ok", 0, driftUs)
	c.PacketInput(rf, c.cfg.upperLayerInput())
}

// makeSyncAck is the SoftAckMakeFunc for the softack protocol (§6):
// it computes this node's view of the sender's drift and writes the
// ACK FCF, sequence number, and sync IE into buf.
func (c *TschCore) makeSyncAck(buf []byte, seqno uint8, lastPacketTimestamp time.Duration, nack bool) int {
	start := c.Scheduler.Start
	driftInstant := start.Add(c.cfg.Timing.TxOffset)
	ticks := durationToTicks(driftInstant.Sub(start.Add(lastPacketTimestamp)))

	buf[0] = 0x02
	buf[1] = 0x22
	buf[2] = seqno
	EncodeSyncIE(buf[3:7], int32(ticks), nack)
	return 7
}

// resumePowerCycle is the SoftAckExitFunc: hardware backends that
// drive ACKs from their own ISR call this to hand control back once
// the exchange is done (§9 ISR -> state-machine handoff). The
// poll-based Run loop above does not need the wakeup, so this ignores
// its arguments and stores nothing.
func (c *TschCore) resumePowerCycle(isAck, needAck bool, lastRF *ReceivedFrame) {
	_ = isAck
	_ = needAck
	_ = lastRF
}
