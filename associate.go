package tsch

/*------------------------------------------------------------------
 *
 * Purpose:	Enter ASSOCIATED and create the neighbor queues implied
 *		by the schedule, spec.md §3 Lifecycle / §4.E state machine.
 *
 * Description:	Association/joining itself is a documented Non-goal
 *		(spec.md §1): this assumes the slotframe is already known
 *		and simply walks it once, same as the original's
 *		tsch_associate(), to create a queue for every address that
 *		appears on a TX or TIME_KEEPING cell and to mark
 *		time-source neighbors.
 *
 *------------------------------------------------------------------*/

// Associate moves the core to ASSOCIATED and builds neighbor queues for
// every scheduled TX/TIME_KEEPING peer. The caller still starts the
// power-cycle machine by running Run in its own goroutine.
func (c *TschCore) Associate() {
	c.isSync.Store(true)
	c.setState(StateAssociated)

	if !c.Store.MutationInProgress() {
		for _, cell := range c.cfg.Slotframe.Cells {
			needsQueue := cell.LinkOptions.Has(LinkOptionTimeKeeping) || cell.LinkOptions.Has(LinkOptionTX)
			if !needsQueue || cell.PeerAddress.IsBroadcast() {
				continue
			}
			n := c.Store.Lookup(cell.PeerAddress)
			if n == nil {
				var err error
				n, err = c.Store.Add(cell.PeerAddress)
				if err != nil {
					continue
				}
			}
			if cell.LinkOptions.Has(LinkOptionTimeKeeping) {
				n.IsTimeSource = true
			}
		}
	}

	c.Scheduler.Start = c.Scheduler.Clock.Now()
	c.Log.Info("tsch associated", "asn", c.Scheduler.ASN, "slotframe_len", c.cfg.Slotframe.Length)
}

// Disassociate sets state to OFF; the power-cycle coroutine exits at
// its next resumption (spec.md §4.E, §5 Cancellation).
func (c *TschCore) Disassociate() {
	c.setState(StateOff)
}
