package tsch

import (
	"sync"

	"github.com/charmbracelet/log"
)

/*------------------------------------------------------------------
 *
 * Purpose:	Async Callback Dispatcher, spec.md §4.H.
 *
 * Description:	TX outcomes are produced inside the power-cycle
 *		machine's timer context; this posts the result as a
 *		message to a cooperative task (here, a dedicated goroutine
 *		reading a channel) that invokes the upper-layer sent
 *		callback on its own schedule. A single channel, drained in
 *		post order by one goroutine, trivially preserves per-
 *		neighbor FIFO ordering since the power-cycle machine posts
 *		in the order it dequeues frames from any one neighbor.
 *
 *------------------------------------------------------------------*/

// callbackMsg is what tsch_resume_powercycle's polled process
// receives in the original; here it's the literal channel payload.
type callbackMsg struct {
	cb            SentCallback
	ctx           any
	status        TxStatus
	transmissions int
}

// Dispatcher runs the cooperative callback-delivery task.
type Dispatcher struct {
	log  *log.Logger
	ch   chan callbackMsg
	done chan struct{}
	once sync.Once
}

// NewDispatcher creates a Dispatcher; call Start to begin draining it.
func NewDispatcher(logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		log:  logger,
		ch:   make(chan callbackMsg, 64),
		done: make(chan struct{}),
	}
}

// Start launches the dispatcher's draining goroutine. Safe to call
// more than once; only the first call has effect.
func (d *Dispatcher) Start() {
	d.once.Do(func() {
		go d.run()
	})
}

// Stop halts the draining goroutine.
func (d *Dispatcher) Stop() {
	close(d.done)
}

func (d *Dispatcher) run() {
	for {
		select {
		case msg := <-d.ch:
			if msg.cb != nil {
				msg.cb(msg.ctx, msg.status, msg.transmissions)
			}
		case <-d.done:
			return
		}
	}
}

// Post enqueues a TX outcome for asynchronous delivery. Called from
// the power-cycle machine's context; never blocks the caller on the
// upper-layer callback itself.
func (d *Dispatcher) Post(cb SentCallback, ctx any, status TxStatus, transmissions int) {
	d.ch <- callbackMsg{cb: cb, ctx: ctx, status: status, transmissions: transmissions}
}
