// Package serialradio is a RadioDriver backend for a companion
// transceiver reachable over a serial line, in the spirit of the
// teacher's serial_port.go: a single github.com/pkg/term handle shared
// by a line-discipline encoder and a background reader.
//
// The wire format reuses the FEND/FESC escaping the teacher's KISS
// framer (src/kiss_frame.go) uses for AX.25 frames, but the command
// byte set is this module's own: it carries TSCH primitives (transmit,
// channel-clear status, channel-hop) rather than a KISS port/command
// nibble pair, since there is no AX.25 frame type to multiplex here.
package serialradio

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/term"

	"github.com/ieee154e/tsch"
)

const (
	fend = 0xC0
	fesc = 0xDB
	tfend = 0xDC
	tfesc = 0xDD
)

type cmd byte

const (
	cmdData cmd = iota
	cmdSetChannel
	cmdPTTOn
	cmdPTTOff
	cmdStatus // companion firmware sends cmdStatus frames unprompted
)

// Driver talks to a companion radio over a raw serial link. It does not
// key PTT itself: it neither drives RTS nor sends cmdPTTOn/cmdPTTOff,
// and keying is left to the companion firmware or to a decorator such
// as gpioradio or hamlibradio.
type Driver struct {
	mu   sync.Mutex
	port *term.Term

	rxBuf    []byte
	rxFrames [][]byte

	channelClear    bool
	receivingPacket bool
	lastSFD         time.Time
	lastRxEnd       time.Duration
	pendingTxFrame  []byte

	stop chan struct{}
}

var _ tsch.RadioDriver = (*Driver)(nil)

// Open opens device at baud and starts the background reader. device is
// typically /dev/ttyUSB0 or similar; baud 0 leaves the port's current
// speed alone, matching serial_port_open's behavior.
func Open(device string, baud int) (*Driver, error) {
	port, err := term.Open(device, term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("serialradio: open %s: %w", device, err)
	}
	if baud != 0 {
		if err := port.SetSpeed(baud); err != nil {
			port.Close()
			return nil, fmt.Errorf("serialradio: set speed: %w", err)
		}
	}

	d := &Driver{
		port:         port,
		channelClear: true,
		stop:         make(chan struct{}),
	}
	go d.readLoop()
	return d, nil
}

func (d *Driver) readLoop() {
	buf := make([]byte, 256)
	var frame bytes.Buffer
	inEscape := false
	inFrame := false

	for {
		select {
		case <-d.stop:
			return
		default:
		}

		n, err := d.port.Read(buf)
		if err != nil {
			return
		}
		for _, b := range buf[:n] {
			switch {
			case b == fend:
				if inFrame && frame.Len() > 0 {
					d.deliverFrame(append([]byte(nil), frame.Bytes()...))
				}
				frame.Reset()
				inFrame = true
				inEscape = false
			case b == fesc && inFrame:
				inEscape = true
			case inEscape:
				switch b {
				case tfend:
					frame.WriteByte(fend)
				case tfesc:
					frame.WriteByte(fesc)
				}
				inEscape = false
			case inFrame:
				frame.WriteByte(b)
			}
		}
	}
}

func (d *Driver) deliverFrame(raw []byte) {
	if len(raw) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	switch cmd(raw[0]) {
	case cmdStatus:
		if len(raw) >= 2 {
			d.channelClear = raw[1]&0x01 == 0
			d.receivingPacket = raw[1]&0x02 != 0
		}
	case cmdData:
		d.rxFrames = append(d.rxFrames, raw[1:])
		d.lastRxEnd = time.Since(d.lastSFD)
	}
}

func encodeFrame(c cmd, payload []byte) []byte {
	var out bytes.Buffer
	out.WriteByte(fend)
	writeEscaped(&out, byte(c))
	for _, b := range payload {
		writeEscaped(&out, b)
	}
	out.WriteByte(fend)
	return out.Bytes()
}

func writeEscaped(out *bytes.Buffer, b byte) {
	switch b {
	case fend:
		out.WriteByte(fesc)
		out.WriteByte(tfend)
	case fesc:
		out.WriteByte(fesc)
		out.WriteByte(tfesc)
	default:
		out.WriteByte(b)
	}
}

func (d *Driver) On() error  { return nil } // serial line stays powered; nothing to do
func (d *Driver) Off() error { return nil }

func (d *Driver) Prepare(frame []byte) error {
	d.mu.Lock()
	d.pendingTxFrame = frame
	d.mu.Unlock()
	return nil
}

func (d *Driver) Transmit(frameLen int) tsch.RadioOutcome {
	d.mu.Lock()
	frame := d.pendingTxFrame
	d.mu.Unlock()
	if frame == nil {
		return tsch.RadioTxErr
	}
	_, err := d.port.Write(encodeFrame(cmdData, frame))
	if err != nil {
		return tsch.RadioTxErr
	}
	return tsch.RadioTxOK
}

func (d *Driver) ChannelClear() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channelClear
}

func (d *Driver) ReceivingPacket() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.receivingPacket
}

func (d *Driver) PendingPacket() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rxFrames) > 0
}

func (d *Driver) Read(buf []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.rxFrames) == 0 {
		return 0, nil
	}
	f := d.rxFrames[0]
	d.rxFrames = d.rxFrames[1:]
	n := copy(buf, f)
	return n, nil
}

func (d *Driver) SetChannel(channel uint8) error {
	_, err := d.port.Write(encodeFrame(cmdSetChannel, []byte{channel}))
	return err
}

func (d *Driver) SFDSync(captureTx, captureRx bool) {
	d.mu.Lock()
	d.lastSFD = time.Now()
	d.mu.Unlock()
}

func (d *Driver) ReadSFDTimer() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return time.Since(d.lastSFD)
}

func (d *Driver) GetRxEndTime() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastRxEnd
}

func (d *Driver) PendingIRQ() bool { return false } // softack is driven by Read/PendingPacket here, not a separate IRQ path

func (d *Driver) ReadAck(buf []byte) (int, error) { return 0, nil }

func (d *Driver) SendAck() error {
	_, err := d.port.Write(encodeFrame(cmdData, nil))
	return err
}

func (d *Driver) SoftAckSubscribe(make tsch.SoftAckMakeFunc, exit tsch.SoftAckExitFunc) {
	// The companion firmware owns ACK timing entirely; the host never
	// gets an ISR callback to hook. Nothing to subscribe to.
}

// Close stops the reader and closes the port, mirroring serial_port_close.
func (d *Driver) Close() error {
	close(d.stop)
	return d.port.Close()
}
