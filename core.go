package tsch

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

/*------------------------------------------------------------------
 *
 * Purpose:	TschCore ties together the neighbor queue store,
 *		schedule, scheduler, and power-cycle machine into the
 *		single context value spec.md §9's design notes call for
 *		in place of the source's process-wide statics.
 *
 *------------------------------------------------------------------*/

// State is the association state machine of §4.E: INIT -> ASSOCIATED <-> OFF.
type State uint8

const (
	StateInit State = iota
	StateAssociated
	StateOff
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateAssociated:
		return "ASSOCIATED"
	case StateOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// Config bundles everything NewCore needs from the outside world: the
// timing template, the slotframe, and the external collaborators.
type Config struct {
	Timing    TimingTemplate
	Slotframe *Slotframe
	Radio     RadioDriver
	Framer    Framer
	RNG       RNG
	Log       *log.Logger
	TraceLog  *TraceLog // optional; nil disables per-slot CSV tracing

	QueueSize     int // per-neighbor ring size N, power of two
	DedupWindow   int // duplicate-suppression window size
	AddressFilter bool
	OurAddress    Address

	// UpperLayerInput receives frames accepted by the Receive-Path
	// Façade (spec.md §4.G); the power-cycle machine's RX slot hands
	// frames to it directly. When nil, accepted frames are discarded.
	UpperLayerInput UpperLayerInput
}

func (cfg Config) upperLayerInput() UpperLayerInput {
	if cfg.UpperLayerInput != nil {
		return cfg.UpperLayerInput
	}
	return func(*ReceivedFrame) {}
}

// TschCore is the single context value all entry points take a
// reference to (spec.md §9 design notes: "Global mutable state").
type TschCore struct {
	cfg Config

	Store     *Store
	Scheduler *Scheduler
	Dispatcher *Dispatcher
	Log       *log.Logger

	state atomic.Int32 // State

	isSync       atomic.Bool
	keepRadioOn  atomic.Bool

	seqMu sync.Mutex
	dsn   uint8 // last-assigned MAC sequence number, never 0

	ebSeqMu sync.Mutex
	ebsn    uint8

	dedupMu     sync.Mutex
	dedup       []dedupEntry
	dedupWindow int

	// drift accumulation for the current slotframe (§4.E)
	driftMu    sync.Mutex
	driftSum   int64 // accumulated microseconds
	driftCount int

	// inert fields carried from the original association state per
	// SPEC_FULL.md's Supplement (association/joining is out of scope):
	joinPriority uint8
	syncTimeout  time.Duration
}

type dedupEntry struct {
	sender Address
	seqno  uint8
}

// NewCore constructs a TschCore. Call Init to reset MAC state, then
// Associate to enter ASSOCIATED and create the initial neighbor queues.
func NewCore(cfg Config) *TschCore {
	if cfg.QueueSize == 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.DedupWindow == 0 {
		cfg.DedupWindow = DefaultDedupWindow
	}
	if cfg.RNG == nil {
		cfg.RNG = DefaultRNG
	}
	if cfg.Log == nil {
		cfg.Log = log.Default()
	}

	c := &TschCore{
		cfg:         cfg,
		Store:       NewStore(cfg.QueueSize),
		Scheduler:   NewScheduler(RealClock),
		Log:         cfg.Log,
		dedupWindow: cfg.DedupWindow,
	}
	c.Dispatcher = NewDispatcher(c.Log)
	c.state.Store(int32(StateInit))
	return c
}

func (c *TschCore) State() State { return State(c.state.Load()) }

func (c *TschCore) setState(s State) { c.state.Store(int32(s)) }

// Init resets MAC-layer state and subscribes the softack callbacks to
// the radio driver, mirroring the original's init() (spec.md §6).
func (c *TschCore) Init() {
	c.Scheduler.ASN = 0
	c.isSync.Store(false)
	c.setState(StateInit)
	c.joinPriority = 0xff // inherit from routing layer: PAN coordinator is 0, lower is better
	c.syncTimeout = 0

	if c.cfg.Radio != nil {
		c.cfg.Radio.SoftAckSubscribe(c.makeSyncAck, c.resumePowerCycle)
	}

	c.Dispatcher.Start()
}

// ChannelCheckInterval is always 0 for TSCH: the schedule itself
// decides when the radio is on (spec.md §6).
func (c *TschCore) ChannelCheckInterval() time.Duration { return 0 }

// On turns the radio on unconditionally.
func (c *TschCore) On() error {
	if c.cfg.Radio == nil {
		return nil
	}
	return c.cfg.Radio.On()
}

// Off turns the radio off, unless keepRadioOn overrides the
// off-transition to "stay on" (spec.md §5 Shared-resource policy).
func (c *TschCore) Off(keepRadioOn bool) error {
	c.keepRadioOn.Store(keepRadioOn)
	if c.cfg.Radio == nil {
		return nil
	}
	if keepRadioOn {
		return c.cfg.Radio.On()
	}
	return c.cfg.Radio.Off()
}
