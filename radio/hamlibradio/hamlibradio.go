// Package hamlibradio drives PTT and channel hopping through a CAT-
// controlled rig via github.com/xylo04/goHamlib, the Go-native rig
// control library standing in for the teacher's hand-written cgo
// binding to librig (ptt.go's PTT_METHOD_HAMLIB case: rig_open,
// rig_set_ptt, RIG_VFO_CURR).
//
// Where the teacher only ever asserts PTT through hamlib, TSCH also
// needs to retune the rig once per slot (channel hopping, §4.C), so
// this driver additionally maps SetChannel onto rig_set_freq.
package hamlibradio

import (
	"fmt"

	"github.com/xylo04/goHamlib"

	"github.com/ieee154e/tsch"
)

// channelHz is the IEEE 802.15.4 channel-to-frequency map used when the
// rig is standing in for a narrowband transceiver tuned by channel
// number rather than a 2.4GHz radio. Channels 11-26 map onto the
// standard 5MHz-spaced 2.4GHz plan. Driver.SetChannel always tunes
// through this table, so a frequency programmed on the rig beforehand
// is replaced at the first SetChannel call; no other band plan is
// supported.
func channelHz(channel uint8) uint64 {
	return 2405000000 + uint64(channel-11)*5000000
}

// Driver decorates an inner RadioDriver (typically serialradio, for the
// actual TX/RX data path) with hamlib-controlled PTT and frequency.
type Driver struct {
	tsch.RadioDriver
	rig *goHamlib.Rig
	vfo goHamlib.Vfo
}

var _ tsch.RadioDriver = (*Driver)(nil)

// Open opens rigModel on device at baud (0 leaves hamlib's default rate
// for the model) and wraps inner.
func Open(inner tsch.RadioDriver, rigModel int, device string, baud int) (*Driver, error) {
	rig := goHamlib.NewRig(rigModel)
	rig.SetConf("rig_pathname", device)
	if baud != 0 {
		rig.SetConf("serial_speed", fmt.Sprintf("%d", baud))
	}
	if err := rig.Open(); err != nil {
		return nil, fmt.Errorf("hamlibradio: rig_open: %w", err)
	}
	return &Driver{RadioDriver: inner, rig: rig, vfo: goHamlib.RIG_VFO_CURR}, nil
}

func (d *Driver) assert(on bool) error {
	return d.rig.SetPtt(d.vfo, on)
}

// Transmit keys PTT around the inner driver's Transmit, same policy as
// gpioradio's decorator.
func (d *Driver) Transmit(frameLen int) tsch.RadioOutcome {
	if err := d.assert(true); err != nil {
		return tsch.RadioTxErr
	}
	outcome := d.RadioDriver.Transmit(frameLen)
	_ = d.assert(false)
	return outcome
}

// SetChannel retunes the rig to the frequency implied by channel, then
// forwards to the inner driver so a companion transceiver sharing the
// same channel number (e.g. over serialradio) stays in step.
func (d *Driver) SetChannel(channel uint8) error {
	if err := d.rig.SetFreq(d.vfo, float64(channelHz(channel))); err != nil {
		return fmt.Errorf("hamlibradio: rig_set_freq: %w", err)
	}
	return d.RadioDriver.SetChannel(channel)
}

// Close closes the rig connection. The inner driver's lifecycle is the
// caller's responsibility.
func (d *Driver) Close() error {
	return d.rig.Close()
}
