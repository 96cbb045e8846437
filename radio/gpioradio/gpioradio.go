// Package gpioradio asserts push-to-talk on a Linux GPIO line around an
// inner RadioDriver's Transmit, the gpiocdev-backed analog of the
// PTT_METHOD_GPIO case in the teacher's ptt.go (out_gpio_num driven
// high/low through /sys/class/gpio in the original; here through
// github.com/warthog618/go-gpiocdev's character-device ABI instead,
// since the sysfs GPIO interface the teacher used is deprecated).
package gpioradio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/ieee154e/tsch"
)

// Driver decorates an inner RadioDriver, asserting a GPIO output line
// for the duration of each Transmit and releasing it once the radio
// has been keyed off again.
type Driver struct {
	tsch.RadioDriver
	line   *gpiocdev.Line
	invert bool
}

var _ tsch.RadioDriver = (*Driver)(nil)

// Open acquires chip/offset as a GPIO output (e.g. "gpiochip0", 25,
// mirroring out_gpio_num) and wraps inner so every Transmit asserts it.
// invert matches ptt_invert: when true, the idle level is high and PTT
// pulls the line low.
func Open(inner tsch.RadioDriver, chip string, offset int, invert bool) (*Driver, error) {
	initial := 0
	if invert {
		initial = 1
	}
	line, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsOutput(initial),
		gpiocdev.WithConsumer("tsch-ptt"))
	if err != nil {
		return nil, fmt.Errorf("gpioradio: request %s:%d: %w", chip, offset, err)
	}
	return &Driver{RadioDriver: inner, line: line, invert: invert}, nil
}

func (d *Driver) assert(on bool) error {
	level := 0
	if on != d.invert {
		level = 1
	}
	return d.line.SetValue(level)
}

// Transmit keys PTT, delegates to the inner driver, then un-keys. A PTT
// assertion failure is reported as RadioTxErr without attempting the
// transmit at all, same as the teacher refusing ptt_set failures rather
// than keying a dead line.
func (d *Driver) Transmit(frameLen int) tsch.RadioOutcome {
	if err := d.assert(true); err != nil {
		return tsch.RadioTxErr
	}
	outcome := d.RadioDriver.Transmit(frameLen)
	_ = d.assert(false)
	return outcome
}

// Close releases the GPIO line. It does not close the inner driver;
// callers own that lifecycle separately.
func (d *Driver) Close() error {
	return d.line.Close()
}
