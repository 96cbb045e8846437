// Package tsch implements the slot-driven core of an IEEE 802.15.4e
// Time-Slotted Channel Hopping MAC: the power-cycle state machine, its
// per-neighbor send queues, the slotframe/cell schedule, and the
// synchronization IE codec carried in ACK frames.
//
// The physical radio, the 802.15.4 framer, the upper-layer buffer
// allocator, the RNG source, and the address book are all external
// collaborators, reached only through the interfaces in radio.go.
package tsch

import "time"

// Address is an opaque link-layer address. The core never inspects its
// bytes beyond equality and the broadcast test; address formatting and
// the address book live with the upper layer.
type Address [8]byte

// Broadcast is the all-zero address used for shared and advertising cells.
var Broadcast = Address{}

func (a Address) IsBroadcast() bool {
	return a == Broadcast
}

func (a Address) String() string {
	if a.IsBroadcast() {
		return "ff:ff:ff:ff:ff:ff:ff:ff"
	}
	const hex = "0123456789abcdef"
	buf := make([]byte, 0, len(a)*3-1)
	for i, b := range a {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, hex[b>>4], hex[b&0xf])
	}
	return string(buf)
}

// LinkOptions is a bitmask of cell capabilities, §3.
type LinkOptions uint8

const (
	LinkOptionTX LinkOptions = 1 << iota
	LinkOptionRX
	LinkOptionShared
	LinkOptionTimeKeeping
)

func (o LinkOptions) Has(bit LinkOptions) bool { return o&bit != 0 }

// LinkType distinguishes ordinary cells from EB/advertising cells.
// EB payload construction itself is a documented Non-goal (spec.md §1);
// the schedule model and power-cycle machine still recognize the type
// so an advertising cell never silently behaves like a normal one
// (SPEC_FULL.md Supplement).
type LinkType uint8

const (
	LinkTypeNormal LinkType = iota
	LinkTypeAdvertising
)

// Cell is one scheduled position in a Slotframe, §3.
type Cell struct {
	SlotOffset    uint16
	ChannelOffset uint8
	LinkOptions   LinkOptions
	LinkType      LinkType
	PeerAddress   Address
}

// Slotframe is the fixed-length cyclic cell schedule, §3. Immutable for
// the lifetime of an association.
type Slotframe struct {
	Handle  uint16
	Length  uint16 // total slots in one cycle
	OnSize  uint16 // number of leading slots that carry cells; must be <= Length
	Cells   []Cell // len(Cells) == OnSize
}

// TxStatus is the outcome taxonomy surfaced to the upper layer, §7.
type TxStatus uint8

const (
	TxOK TxStatus = iota
	TxNoAck
	TxCollision
	TxErr
	TxDeferred
)

func (s TxStatus) String() string {
	switch s {
	case TxOK:
		return "OK"
	case TxNoAck:
		return "NOACK"
	case TxCollision:
		return "COLLISION"
	case TxErr:
		return "ERR"
	case TxDeferred:
		return "DEFERRED"
	default:
		return "UNKNOWN"
	}
}

// CellDecision is the per-slot action computed by the power-cycle
// machine, §4.E.
type CellDecision uint8

const (
	CellOff CellDecision = iota
	CellTX
	CellTXBackoff
	CellTXIdle
	CellRX
)

// MAC-layer tunables, §3. Defaults match the reference timing template.
const (
	MacMinBE           = 1
	MacMaxBE           = 4
	MacMaxFrameRetries = 4
	DefaultQueueSize   = 8 // N, must stay a power of two
	DefaultDedupWindow = 8
)

// TimingTemplate holds the absolute-µs constants from §6. Interoperating
// implementations MUST adopt identical values; these are carried as
// configuration (SPEC_FULL.md Ambient: Configuration) rather than
// compile-time constants so a deployment can match its network's
// template.
type TimingTemplate struct {
	SlotDuration time.Duration

	TxOffset    time.Duration
	CCAOffset   time.Duration
	CCA         time.Duration
	TxAckDelay  time.Duration
	ShortGT     time.Duration
	LongGT      time.Duration
	DelayTx     time.Duration
	DelayRx     time.Duration
	WdDataMax   time.Duration
	WdAckMax    time.Duration
}

// DefaultTimingTemplate mirrors the values commonly used by
// Contiki-NG-derived implementations (100 ticks/slot reference unit
// expressed here directly in time.Duration).
var DefaultTimingTemplate = TimingTemplate{
	SlotDuration: 10 * time.Millisecond,
	TxOffset:     2120 * time.Microsecond,
	CCAOffset:    1800 * time.Microsecond,
	CCA:          128 * time.Microsecond,
	TxAckDelay:   1000 * time.Microsecond,
	ShortGT:      1000 * time.Microsecond,
	LongGT:       2200 * time.Microsecond,
	DelayTx:      50 * time.Microsecond,
	DelayRx:      50 * time.Microsecond,
	WdDataMax:    5 * time.Millisecond,
	WdAckMax:     2 * time.Millisecond,
}

// TickToMicrosecondNum/Den preserve the rational constant from
// spec.md §4.C: 1 tick = 3051/100 µs. Implementations must keep
// this exact ratio to match existing wire behavior.
const (
	TickToMicrosecondNum = 3051
	TickToMicrosecondDen = 100
)
