package tsch

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

/*------------------------------------------------------------------
 *
 * Purpose:	Read timing-template and slotframe configuration from a
 *		YAML file (SPEC_FULL.md Ambient: Configuration), matching
 *		the teacher's use of gopkg.in/yaml.v3 for its own
 *		device-identification table in deviceid.go.
 *
 *------------------------------------------------------------------*/

// FileConfig is the on-disk shape of a TSCH configuration file.
type FileConfig struct {
	Timing struct {
		SlotDurationUs int `yaml:"slot_duration_us"`
		TxOffsetUs     int `yaml:"tx_offset_us"`
		CCAOffsetUs    int `yaml:"cca_offset_us"`
		CCAUs          int `yaml:"cca_us"`
		TxAckDelayUs   int `yaml:"tx_ack_delay_us"`
		ShortGTUs      int `yaml:"short_gt_us"`
		LongGTUs       int `yaml:"long_gt_us"`
		DelayTxUs      int `yaml:"delay_tx_us"`
		DelayRxUs      int `yaml:"delay_rx_us"`
		WdDataMaxUs    int `yaml:"wd_data_max_us"`
		WdAckMaxUs     int `yaml:"wd_ack_max_us"`
	} `yaml:"timing"`

	Slotframe struct {
		Handle uint16        `yaml:"handle"`
		Length uint16        `yaml:"length"`
		OnSize uint16        `yaml:"on_size"`
		Cells  []FileCell    `yaml:"cells"`
	} `yaml:"slotframe"`

	QueueSize   int `yaml:"queue_size"`
	DedupWindow int `yaml:"dedup_window"`
}

// FileCell is one cell's on-disk representation. Address is the hex
// string form produced by Address.String(), or "broadcast".
type FileCell struct {
	SlotOffset    uint16   `yaml:"slot_offset"`
	ChannelOffset uint8    `yaml:"channel_offset"`
	Options       []string `yaml:"options"` // "TX", "RX", "SHARED", "TIME_KEEPING"
	Type          string   `yaml:"type"`    // "NORMAL" (default) or "ADVERTISING"
	PeerAddress   string   `yaml:"peer_address"`
}

// LoadConfigFile reads and parses a YAML config file into a
// FileConfig.
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tsch: reading config: %w", err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("tsch: parsing config: %w", err)
	}
	return &fc, nil
}

// Timing converts the microsecond fields into a TimingTemplate,
// falling back to DefaultTimingTemplate for any field left at zero.
func (fc *FileConfig) Timing() TimingTemplate {
	d := DefaultTimingTemplate
	apply := func(us int, dst *time.Duration) {
		if us > 0 {
			*dst = time.Duration(us) * time.Microsecond
		}
	}
	apply(fc.Timing.SlotDurationUs, &d.SlotDuration)
	apply(fc.Timing.TxOffsetUs, &d.TxOffset)
	apply(fc.Timing.CCAOffsetUs, &d.CCAOffset)
	apply(fc.Timing.CCAUs, &d.CCA)
	apply(fc.Timing.TxAckDelayUs, &d.TxAckDelay)
	apply(fc.Timing.ShortGTUs, &d.ShortGT)
	apply(fc.Timing.LongGTUs, &d.LongGT)
	apply(fc.Timing.DelayTxUs, &d.DelayTx)
	apply(fc.Timing.DelayRxUs, &d.DelayRx)
	apply(fc.Timing.WdDataMaxUs, &d.WdDataMax)
	apply(fc.Timing.WdAckMaxUs, &d.WdAckMax)
	return d
}

// ParseAddress parses either "broadcast" or a colon-separated hex
// address into an Address.
func ParseAddress(s string) (Address, error) {
	if s == "" || s == "broadcast" || s == Broadcast.String() {
		return Broadcast, nil
	}
	var a Address
	n, err := fmt.Sscanf(s, "%02x:%02x:%02x:%02x:%02x:%02x:%02x:%02x",
		&a[0], &a[1], &a[2], &a[3], &a[4], &a[5], &a[6], &a[7])
	if err != nil || n != 8 {
		return Address{}, fmt.Errorf("tsch: bad address %q", s)
	}
	return a, nil
}

func parseLinkOptions(opts []string) LinkOptions {
	var lo LinkOptions
	for _, o := range opts {
		switch o {
		case "TX":
			lo |= LinkOptionTX
		case "RX":
			lo |= LinkOptionRX
		case "SHARED":
			lo |= LinkOptionShared
		case "TIME_KEEPING":
			lo |= LinkOptionTimeKeeping
		}
	}
	return lo
}

// Slotframe converts the on-disk representation into a *Slotframe.
func (fc *FileConfig) Slotframe() (*Slotframe, error) {
	sf := &Slotframe{
		Handle: fc.Slotframe.Handle,
		Length: fc.Slotframe.Length,
		OnSize: fc.Slotframe.OnSize,
		Cells:  make([]Cell, 0, len(fc.Slotframe.Cells)),
	}
	for _, fcell := range fc.Slotframe.Cells {
		addr, err := ParseAddress(fcell.PeerAddress)
		if err != nil {
			return nil, err
		}
		lt := LinkTypeNormal
		if fcell.Type == "ADVERTISING" {
			lt = LinkTypeAdvertising
		}
		sf.Cells = append(sf.Cells, Cell{
			SlotOffset:    fcell.SlotOffset,
			ChannelOffset: fcell.ChannelOffset,
			LinkOptions:   parseLinkOptions(fcell.Options),
			LinkType:      lt,
			PeerAddress:   addr,
		})
	}
	if int(sf.OnSize) != len(sf.Cells) {
		return nil, fmt.Errorf("tsch: slotframe on_size=%d but %d cells given", sf.OnSize, len(sf.Cells))
	}
	return sf, nil
}
