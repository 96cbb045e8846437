package tsch

/*------------------------------------------------------------------
 *
 * Purpose:	Send-Path Façade, spec.md §4.F.
 *
 * Description:	Assigns the MAC sequence number, sets the ACK-requested
 *		attribute unless broadcast, asks the framer to build the
 *		wire bytes, and enqueues on the destination's neighbor
 *		queue (creating it lazily if needed).
 *
 *------------------------------------------------------------------*/

// nextSeqNo preserves spec.md §9's documented source quirk bit-for-bit:
// (++dsn) ? dsn : ++dsn. A downstream framer treats sequence number 0
// specially, so incrementing is meant to skip it — but because the
// increment happens before the zero check, a wrap that lands exactly on
// zero causes a second increment, which both skips 0 *and* leaves this
// node's sequence numbers permanently offset by one relative to a peer
// that skips zero a different way. Documented here rather than fixed,
// per the REDESIGN FLAGS guidance to preserve existing wire behavior.
func (c *TschCore) nextSeqNo() uint8 {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()

	c.dsn++
	if c.dsn == 0 {
		c.dsn++
	}
	return c.dsn
}

// Send assigns a sequence number, builds the frame via the configured
// Framer, and enqueues it on dest's neighbor queue, creating the queue
// if this is the first frame sent to dest.
func (c *TschCore) Send(dest Address, payload []byte, cb SentCallback, ctx any) error {
	seqno := c.nextSeqNo()
	ackRequested := !dest.IsBroadcast()

	frame, err := c.cfg.Framer.Create(dest, seqno, ackRequested, payload)
	if err != nil {
		c.Log.Warn("framer create failed", "dest", dest, "err", err)
		return err
	}

	if err := c.Store.Enqueue(dest, frame, cb, ctx); err != nil {
		c.Log.Warn("send enqueue failed", "dest", dest, "err", err)
		return err
	}
	return nil
}

// Outbound is one item of a SendList batch.
type Outbound struct {
	Dest    Address
	Payload []byte
}

// SendList submits multiple frames in order, stopping at the first
// enqueue failure to preserve fragment order (spec.md §4.F).
func (c *TschCore) SendList(frames []Outbound, cb SentCallback, ctx any) error {
	for _, f := range frames {
		if err := c.Send(f.Dest, f.Payload, cb, ctx); err != nil {
			return err
		}
	}
	return nil
}
