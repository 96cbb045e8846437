// Package simradio is an in-process loopback RadioDriver pair, the
// Go-native analog of the teacher's audio-loopback test fixtures
// (gen_packets/atest): two nodes sharing a single "medium" channel so
// the full power-cycle machine and softack protocol can be exercised
// without real hardware.
package simradio

import (
	"sync"
	"time"

	"github.com/ieee154e/tsch"
)

// Medium is a shared channel between simulated radios. Frames written
// by one Driver become readable by every other Driver tuned to the
// same channel number, after LinkDelay.
type Medium struct {
	mu      sync.Mutex
	tuned   map[*Driver]uint8
	LinkDelay time.Duration
	// Lossy, if set, is consulted for every frame; returning true drops it
	// (simulating a collision or an out-of-range peer) without reaching
	// any other Driver's Read queue.
	Lossy func(from *Driver, frame []byte) bool
}

// NewMedium creates an empty shared medium.
func NewMedium() *Medium {
	return &Medium{tuned: make(map[*Driver]uint8)}
}

func (m *Medium) setChannel(d *Driver, ch uint8) {
	m.mu.Lock()
	m.tuned[d] = ch
	m.mu.Unlock()
}

func (m *Medium) deliver(from *Driver, channel uint8, frame []byte) {
	if m.Lossy != nil && m.Lossy(from, frame) {
		return
	}
	m.mu.Lock()
	var targets []*Driver
	for d, ch := range m.tuned {
		if d != from && ch == channel {
			targets = append(targets, d)
		}
	}
	m.mu.Unlock()

	cp := append([]byte(nil), frame...)
	delay := m.LinkDelay
	for _, d := range targets {
		d := d
		time.AfterFunc(delay, func() { d.receive(cp) })
	}
}

// Driver is a simulated radio tuned to one channel of a shared Medium.
type Driver struct {
	medium  *Medium
	channel uint8

	mu            sync.Mutex
	on            bool
	pending       [][]byte
	prepared      []byte
	sfdAt         time.Time
	rxEndAt       time.Duration
	lastReadFrame []byte

	softAckMake tsch.SoftAckMakeFunc
	softAckExit tsch.SoftAckExitFunc
}

var _ tsch.RadioDriver = (*Driver)(nil)

// NewDriver creates a simulated radio on medium, initially tuned to
// channel 0.
func NewDriver(medium *Medium) *Driver {
	d := &Driver{medium: medium}
	medium.setChannel(d, 0)
	return d
}

func (d *Driver) receive(frame []byte) {
	d.mu.Lock()
	d.pending = append(d.pending, frame)
	d.rxEndAt = time.Since(d.sfdAt)
	d.mu.Unlock()
}

func (d *Driver) On() error {
	d.mu.Lock()
	d.on = true
	d.mu.Unlock()
	return nil
}

func (d *Driver) Off() error {
	d.mu.Lock()
	d.on = false
	d.mu.Unlock()
	return nil
}

func (d *Driver) Prepare(frame []byte) error {
	d.mu.Lock()
	d.prepared = frame
	d.mu.Unlock()
	return nil
}

func (d *Driver) Transmit(frameLen int) tsch.RadioOutcome {
	d.mu.Lock()
	frame := d.prepared
	ch := d.channel
	d.mu.Unlock()
	if frame == nil {
		return tsch.RadioTxErr
	}
	d.medium.deliver(d, ch, frame)
	return tsch.RadioTxOK
}

func (d *Driver) ChannelClear() bool { return true }

func (d *Driver) ReceivingPacket() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending) > 0
}

func (d *Driver) PendingPacket() bool { return d.ReceivingPacket() }

func (d *Driver) Read(buf []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		return 0, nil
	}
	f := d.pending[0]
	d.pending = d.pending[1:]
	d.lastReadFrame = f
	return copy(buf, f), nil
}

// frameSeqNo reads the sequence-number byte at the fixed offset this
// module's wire layout uses throughout (FCF lo/hi, seqno, ...).
func frameSeqNo(frame []byte) uint8 {
	if len(frame) < 3 {
		return 0
	}
	return frame[2]
}

func (d *Driver) SetChannel(channel uint8) error {
	d.mu.Lock()
	d.channel = channel
	d.mu.Unlock()
	d.medium.setChannel(d, channel)
	return nil
}

func (d *Driver) SFDSync(captureTx, captureRx bool) {
	d.mu.Lock()
	d.sfdAt = time.Now()
	d.mu.Unlock()
}

func (d *Driver) ReadSFDTimer() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return time.Since(d.sfdAt)
}

func (d *Driver) GetRxEndTime() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rxEndAt
}

func (d *Driver) PendingIRQ() bool                { return false }
func (d *Driver) ReadAck(buf []byte) (int, error) { return 0, nil }

// SendAck builds and transmits the ACK for the most recently read data
// frame. Real hardware generates this from its own auto-ack logic
// without host involvement; this loopback driver stands in for that by
// invoking the make callback the core registered via SoftAckSubscribe.
func (d *Driver) SendAck() error {
	d.mu.Lock()
	makeAck := d.softAckMake
	frame := d.lastReadFrame
	rxEnd := d.rxEndAt
	ch := d.channel
	d.mu.Unlock()

	if makeAck == nil || frame == nil {
		return nil
	}

	buf := make([]byte, 16)
	n := makeAck(buf, frameSeqNo(frame), rxEnd, false)
	d.medium.deliver(d, ch, buf[:n])
	return nil
}

func (d *Driver) SoftAckSubscribe(make tsch.SoftAckMakeFunc, exit tsch.SoftAckExitFunc) {
	d.mu.Lock()
	d.softAckMake = make
	d.softAckExit = exit
	d.mu.Unlock()
}
