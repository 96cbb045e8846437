/*------------------------------------------------------------------
 *
 * Purpose:	Command-line TSCH node: loads a slotframe/timing config,
 *		picks a radio backend, associates, and runs the
 *		power-cycle machine until interrupted.
 *
 *------------------------------------------------------------------*/
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/brutella/dnssd"
	"github.com/spf13/pflag"

	"github.com/ieee154e/tsch"
	"github.com/ieee154e/tsch/radio/gpioradio"
	"github.com/ieee154e/tsch/radio/hamlibradio"
	"github.com/ieee154e/tsch/radio/serialradio"
)

type basicFramer struct {
	own tsch.Address
}

func (f *basicFramer) Create(dest tsch.Address, seqno uint8, ackRequested bool, payload []byte) ([]byte, error) {
	buf := make([]byte, 19+len(payload))
	buf[0] = 0x41
	if ackRequested {
		buf[1] = 0x88
	} else {
		buf[1] = 0x80
	}
	buf[2] = seqno
	copy(buf[3:11], dest[:])
	copy(buf[11:19], f.own[:])
	copy(buf[19:], payload)
	return buf, nil
}

func (f *basicFramer) Parse(raw []byte) (*tsch.ReceivedFrame, error) {
	if len(raw) < 19 {
		return nil, fmt.Errorf("tsch-node: short frame (%d bytes)", len(raw))
	}
	var dest, src tsch.Address
	copy(dest[:], raw[3:11])
	copy(src[:], raw[11:19])
	return &tsch.ReceivedFrame{
		Source:      src,
		Destination: dest,
		SeqNo:       raw[2],
		RequestsAck: raw[1]&0x08 != 0,
		Payload:     append([]byte(nil), raw[19:]...),
	}, nil
}

type osRNG struct{}

func (osRNG) Uint32() uint32 { return rand.Uint32() }

func main() {
	var (
		configPath   = pflag.StringP("config", "c", "", "path to TSCH YAML config")
		ourAddress   = pflag.String("address", "", "this node's 8-byte hex address (aa:bb:...)")
		device       = pflag.String("device", "", "serial device for the companion transceiver, e.g. /dev/ttyUSB0")
		baud         = pflag.Int("baud", 115200, "serial baud rate")
		logLevel     = pflag.String("log-level", "info", "debug|info|warn|error")
		pttGPIOChip  = pflag.String("ptt-gpio-chip", "", "gpiochip device for PTT, e.g. gpiochip0 (optional)")
		pttGPIOLine  = pflag.Int("ptt-gpio-line", -1, "GPIO offset for PTT (optional)")
		pttInvert    = pflag.Bool("ptt-invert", false, "invert PTT GPIO polarity")
		hamlibModel  = pflag.Int("hamlib-model", 0, "hamlib rig model number for channel/PTT control (optional)")
		advertiseDNS = pflag.Bool("advertise-mdns", false, "advertise this node over mDNS for diagnostics")
		traceDir     = pflag.String("trace-dir", "", "directory for daily-rotated per-slot CSV trace files (optional)")
	)
	pflag.Parse()

	log := tsch.NewLogger(*logLevel)

	traceLog, err := tsch.NewTraceLog(*traceDir)
	if err != nil {
		log.Fatal("open trace log", "err", err)
	}
	defer traceLog.Close()

	if *configPath == "" || *ourAddress == "" || *device == "" {
		fmt.Fprintln(os.Stderr, "usage: tsch-node --config <file> --address <hex> --device <path> [flags]")
		os.Exit(2)
	}

	fc, err := tsch.LoadConfigFile(*configPath)
	if err != nil {
		log.Fatal("load config", "err", err)
	}
	slotframe, err := fc.Slotframe()
	if err != nil {
		log.Fatal("parse slotframe", "err", err)
	}
	addr, err := tsch.ParseAddress(*ourAddress)
	if err != nil {
		log.Fatal("parse address", "err", err)
	}

	serial, err := serialradio.Open(*device, *baud)
	if err != nil {
		log.Fatal("open serial radio", "err", err)
	}
	defer serial.Close()

	var radio tsch.RadioDriver = serial
	if *pttGPIOChip != "" && *pttGPIOLine >= 0 {
		gpio, err := gpioradio.Open(radio, *pttGPIOChip, *pttGPIOLine, *pttInvert)
		if err != nil {
			log.Fatal("open GPIO PTT", "err", err)
		}
		defer gpio.Close()
		radio = gpio
	}
	if *hamlibModel != 0 {
		rig, err := hamlibradio.Open(radio, *hamlibModel, *device, *baud)
		if err != nil {
			log.Fatal("open hamlib rig", "err", err)
		}
		defer rig.Close()
		radio = rig
	}

	core := tsch.NewCore(tsch.Config{
		Timing:     fc.Timing(),
		Slotframe:  slotframe,
		Radio:      radio,
		Framer:     &basicFramer{own: addr},
		RNG:        osRNG{},
		Log:        log,
		TraceLog:   traceLog,
		OurAddress: addr,
		QueueSize:   fc.QueueSize,
		DedupWindow: fc.DedupWindow,
		UpperLayerInput: func(rf *tsch.ReceivedFrame) {
			log.Info("frame received", "source", rf.Source.String(), "seqno", rf.SeqNo, "len", len(rf.Payload))
		},
	})
	core.Init()
	core.Associate()
	defer core.Disassociate()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *advertiseDNS {
		go advertiseMDNS(ctx, log, addr)
	}

	stopRun := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stopRun)
	}()

	log.Info("tsch node running", "address", addr.String())
	core.Run(stopRun)
}

// advertiseMDNS publishes this node under _tsch._udp for LAN-local
// discovery while debugging a deployment; it carries no protocol
// semantics of its own; TSCH association itself is out of scope here.
func advertiseMDNS(ctx context.Context, log interface {
	Warn(msg string, keyvals ...interface{})
}, addr tsch.Address) {
	cfg := dnssd.Config{
		Name: "tsch-" + addr.String(),
		Type: "_tsch._udp",
		Port: 7645,
	}
	service, err := dnssd.NewService(cfg)
	if err != nil {
		log.Warn("mdns: new service", "err", err)
		return
	}
	responder, err := dnssd.NewResponder()
	if err != nil {
		log.Warn("mdns: new responder", "err", err)
		return
	}
	if _, err := responder.Add(service); err != nil {
		log.Warn("mdns: add service", "err", err)
		return
	}
	if err := responder.Respond(ctx); err != nil && ctx.Err() == nil {
		log.Warn("mdns: respond", "err", err)
	}
}
