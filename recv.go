package tsch

/*------------------------------------------------------------------
 *
 * Purpose:	Receive-Path Façade, spec.md §4.G.
 *
 * Description:	Address filtering (optional) then duplicate
 *		suppression over a fixed-size LRU window of {sender,
 *		seqno} tuples before handing a frame up to the network
 *		stack.
 *
 *------------------------------------------------------------------*/

// UpperLayerInput is the network-stack entry point for accepted
// frames; out of scope per spec.md §1, specified only by this
// function type.
type UpperLayerInput func(frame *ReceivedFrame)

// PacketInput is invoked by the power-cycle machine once a frame has
// been received and parsed. It applies address filtering (if enabled)
// and duplicate suppression, then calls up.
func (c *TschCore) PacketInput(frame *ReceivedFrame, up UpperLayerInput) {
	if c.cfg.AddressFilter {
		if frame.Destination != c.cfg.OurAddress && !frame.Destination.IsBroadcast() {
			c.Log.Debug("packet not for us, dropped", "dest", frame.Destination)
			return
		}
	}

	if c.isDuplicate(frame.Source, frame.SeqNo) {
		c.Log.Debug("duplicate dropped", "sender", frame.Source, "seqno", frame.SeqNo)
		return
	}

	up(frame)
}

// isDuplicate checks the incoming tuple against the LRU window,
// inserting it at the front and evicting the oldest if it's new.
func (c *TschCore) isDuplicate(sender Address, seqno uint8) bool {
	c.dedupMu.Lock()
	defer c.dedupMu.Unlock()

	for _, e := range c.dedup {
		if e.sender == sender && e.seqno == seqno {
			return true
		}
	}

	entry := dedupEntry{sender: sender, seqno: seqno}
	c.dedup = append([]dedupEntry{entry}, c.dedup...)
	if len(c.dedup) > c.dedupWindow {
		c.dedup = c.dedup[:c.dedupWindow]
	}
	return false
}
