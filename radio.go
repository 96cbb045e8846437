package tsch

import "time"

/*------------------------------------------------------------------
 *
 * Purpose:	Downward interfaces the core consumes from the radio
 *		driver and the 802.15.4 framer.
 *
 * Description:	Neither the physical radio nor the frame parser is
 *		part of this module (spec.md §1, Out of scope). Everything
 *		below is an external collaborator's contract; concrete
 *		backends live under radio/simradio, radio/serialradio,
 *		radio/gpioradio and radio/hamlibradio.
 *
 *------------------------------------------------------------------*/

// RadioOutcome is the result of a transmit attempt, §4.E / §7.
type RadioOutcome uint8

const (
	RadioTxOK RadioOutcome = iota
	RadioTxCollision
	RadioTxNoAck
	RadioTxErr
)

// RadioDriver is the downward contract of §6 ("Downward (radio driver
// expectations)"). Every method must be safe to call from the
// power-cycle machine's timer context; none may block on I/O for more
// than a few instruction cycles' worth of setup (actual RF timing is
// governed by the caller's own deadlines, not by this interface).
type RadioDriver interface {
	On() error
	Off() error

	Prepare(frame []byte) error
	Transmit(frameLen int) RadioOutcome

	ChannelClear() bool
	ReceivingPacket() bool
	PendingPacket() bool
	Read(buf []byte) (int, error)

	SetChannel(channel uint8) error

	// SFDSync arms or disarms hardware capture of the SFD instant on
	// transmit and/or receive.
	SFDSync(captureTx, captureRx bool)
	ReadSFDTimer() time.Duration
	GetRxEndTime() time.Duration

	PendingIRQ() bool
	ReadAck(buf []byte) (int, error)
	SendAck() error

	// SoftAckSubscribe registers the softack protocol callbacks (§6).
	// make is invoked by the driver's ISR when a unicast frame
	// requiring ACK has arrived, to obtain the ACK bytes to send.
	// exit is invoked once the ISR has finished, handing control back
	// to the power-cycle state machine.
	SoftAckSubscribe(make SoftAckMakeFunc, exit SoftAckExitFunc)
}

// SoftAckMakeFunc builds the ACK byte sequence for a just-received
// unicast frame. last_packet_timestamp is the driver's SFD-capture
// instant for that frame; the sync IE encodes the difference between
// the instant the frame was expected (slot start + TxOffset) and that
// timestamp (§4.E RX protocol, step 4).
type SoftAckMakeFunc func(buf []byte, seqno uint8, lastPacketTimestamp time.Duration, nack bool) int

// SoftAckExitFunc hands control back to the power-cycle coroutine once
// the driver's ISR has finished the softack exchange.
type SoftAckExitFunc func(isAck, needAck bool, lastRF *ReceivedFrame)

// ReceivedFrame is what the radio driver/framer hand up about an
// inbound frame for drift integration and dedup (§4.E RX step 5, §4.G).
type ReceivedFrame struct {
	Source      Address
	Destination Address
	SeqNo       uint8
	RequestsAck bool
	Payload     []byte
	RxEndTime   time.Duration
}

// Framer is the upward-facing collaborator that builds and parses
// link-layer frames; out of scope per spec.md §1, specified here only
// by the operations the Send/Receive façades call.
type Framer interface {
	// Create builds the wire bytes for an outgoing frame given its
	// destination, sequence number and ack-request attribute, and the
	// upper-layer payload. Returns an error if the frame cannot be
	// constructed (e.g. payload too large for one frame).
	Create(dest Address, seqno uint8, ackRequested bool, payload []byte) ([]byte, error)

	// Parse parses raw radio bytes into a ReceivedFrame. Returns an
	// error if the bytes do not parse as a valid frame.
	Parse(raw []byte) (*ReceivedFrame, error)
}

// RNG is the configurable random source the core draws backoff windows
// from (§4.E Retry/backoff policy, §9 Random source). Implementations
// must sample bits that are not known to be low-quality; HighByte below
// shows the recommended shape.
type RNG interface {
	// Uint32 returns a full-width random value; callers extract the
	// high byte themselves via HighByte to avoid relying on a
	// particular RNG's bit-quality characteristics.
	Uint32() uint32
}
