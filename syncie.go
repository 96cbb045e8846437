package tsch

import "errors"

/*------------------------------------------------------------------
 *
 * Purpose:	Encode/decode the 4-byte synchronization IE carried in
 *		ACK frames, spec.md §4.C.
 *
 * Description:	Header bytes {0x02, 0x1e} (IE length-and-id, little
 *		endian) prefix a 16-bit ack_status word:
 *
 *		  bits 0..10  magnitude of the time correction, µs
 *		  bit 11      sign (1 = negative)
 *		  bit 15      NACK flag
 *
 *		Ticks and microseconds are related by the rational
 *		constant 1 tick = 3051/100 µs; this must be preserved
 *		exactly to match existing wire behavior.
 *
 *------------------------------------------------------------------*/

const (
	syncIEHeaderByte0 = 0x02
	syncIEHeaderByte1 = 0x1e
	syncIELen         = 4

	syncIEMagnitudeMask = 0x07ff
	syncIESignBit       = 0x0800
	syncIENackBit       = 0x8000
)

var ErrShortSyncIE = errors.New("tsch: sync IE shorter than 4 bytes")
var ErrBadSyncIEHeader = errors.New("tsch: sync IE header mismatch")

// SyncIE is a decoded synchronization IE.
type SyncIE struct {
	Microseconds int32 // signed time correction, clamped to 11-bit magnitude
	Nack         bool
}

// EncodeSyncIE converts ticks (1 tick = 3051/100 µs) to microseconds,
// packs sign/magnitude/NACK into buf[0:4], and returns the
// microsecond value it encoded so the caller can record its own view
// of the correction (spec.md §4.C).
func EncodeSyncIE(buf []byte, ticks int32, nack bool) int32 {
	us := (ticks * TickToMicrosecondNum) / TickToMicrosecondDen

	mag := us
	if mag < 0 {
		mag = -mag
	}
	if mag > syncIEMagnitudeMask {
		mag = syncIEMagnitudeMask
	}
	status := uint16(mag)
	if us < 0 {
		status |= syncIESignBit
	}
	if nack {
		status |= syncIENackBit
	}

	buf[0] = syncIEHeaderByte0
	buf[1] = syncIEHeaderByte1
	buf[2] = byte(status & 0xff)
	buf[3] = byte(status >> 8)

	// Reconstruct the signed, magnitude-clamped microsecond value that
	// was actually encoded (clamping may have truncated a large us).
	encoded := int32(status & syncIEMagnitudeMask)
	if status&syncIESignBit != 0 {
		return -encoded
	}
	return encoded
}

// DecodeSyncIE parses a sync IE from buf (which must be at least 4
// bytes, header included) into its microsecond correction and NACK
// flag. It does not validate the header bytes; callers that received
// the IE framed within a larger ACK should check those themselves
// (see ParseAckSyncIE) since the header is also how the presence of a
// sync IE is detected in the first place.
func DecodeSyncIE(buf []byte) (SyncIE, error) {
	if len(buf) < syncIELen {
		return SyncIE{}, ErrShortSyncIE
	}
	status := uint16(buf[2]) | uint16(buf[3])<<8
	mag := int32(status & syncIEMagnitudeMask)
	if status&syncIESignBit != 0 {
		mag = -mag
	}
	return SyncIE{Microseconds: mag, Nack: status&syncIENackBit != 0}, nil
}

// ParseAckSyncIE validates the sync-IE header at buf[0:2] and decodes
// the correction word. Returns ok=false (no error) if the header bytes
// don't match, since an ACK with an IE-list-present bit but a
// different IE is not malformed, just not a sync IE.
func ParseAckSyncIE(buf []byte) (SyncIE, bool, error) {
	if len(buf) < syncIELen {
		return SyncIE{}, false, ErrShortSyncIE
	}
	if buf[0] != syncIEHeaderByte0 || buf[1] != syncIEHeaderByte1 {
		return SyncIE{}, false, nil
	}
	ie, err := DecodeSyncIE(buf)
	return ie, true, err
}
