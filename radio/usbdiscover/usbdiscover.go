// Package usbdiscover enumerates serial-capable USB transceivers using
// github.com/jochenvg/go-udev, the Go cgo binding to libudev that
// replaces the teacher's hand-rolled C.udev_enumerate_* walk in
// cm108.go (there scanning the "sound" subsystem for CM108/CM119
// PTT-over-GPIO adapters; here scanning "tty" for the companion
// transceivers serialradio talks to).
package usbdiscover

import (
	"fmt"

	"github.com/jochenvg/go-udev"
)

// Adapter describes one candidate serial device found on the USB bus.
type Adapter struct {
	DevNode      string // e.g. /dev/ttyUSB0
	VendorID     string
	ProductID    string
	SysAttrModel string
}

// List walks the "tty" subsystem the way cm108_inventory walks "sound",
// returning every USB-backed device node. Non-USB ttys (onboard UARTs)
// are skipped since they can't be hot-plug identified by vendor/product
// ID the way the companion radios this module targets are.
func List() ([]Adapter, error) {
	u := udev.Udev{}
	e := u.NewEnumerate()
	if err := e.AddMatchSubsystem("tty"); err != nil {
		return nil, fmt.Errorf("usbdiscover: match subsystem: %w", err)
	}

	devices, err := e.Devices()
	if err != nil {
		return nil, fmt.Errorf("usbdiscover: enumerate: %w", err)
	}

	var out []Adapter
	for _, d := range devices {
		usb := d.ParentWithSubsystemDevtype("usb", "usb_device")
		if usb == nil {
			continue
		}
		node := d.Devnode()
		if node == "" {
			continue
		}
		out = append(out, Adapter{
			DevNode:      node,
			VendorID:     usb.PropertyValue("ID_VENDOR_ID"),
			ProductID:    usb.PropertyValue("ID_MODEL_ID"),
			SysAttrModel: usb.SysattrValue("product"),
		})
	}
	return out, nil
}
