package tsch

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lestrrat-go/strftime"
)

/*------------------------------------------------------------------
 *
 * Purpose:	Daily-rotated CSV trace of slot decisions and TX/RX
 *		outcomes, for offline debugging of a running mesh
 *		(SPEC_FULL.md Domain: Frame trace log).
 *
 * Description:	Grounded on the teacher's log.go (CSV log of received
 *		packets, rotated by date) and its use of
 *		lestrrat-go/strftime for building the daily file name —
 *		same split here: this is protocol post-mortem data, kept
 *		separate from the structured operational logger in
 *		logging.go, matching the teacher's own split between
 *		log.go and its other logging.
 *
 *------------------------------------------------------------------*/

const traceLogNamePattern = "tsch-%Y%m%d.csv"

// TraceLog writes one CSV row per slot outcome.
type TraceLog struct {
	mu       sync.Mutex
	dir      string
	pattern  *strftime.Strftime
	openName string
	file     *os.File
	writer   *csv.Writer
}

// NewTraceLog prepares a trace log rooted at dir. dir is created if it
// doesn't exist. Pass "" to disable (all writes become no-ops).
func NewTraceLog(dir string) (*TraceLog, error) {
	if dir == "" {
		return &TraceLog{}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("tsch: trace log dir: %w", err)
	}
	pattern, err := strftime.New(traceLogNamePattern)
	if err != nil {
		return nil, fmt.Errorf("tsch: trace log pattern: %w", err)
	}
	return &TraceLog{dir: dir, pattern: pattern}, nil
}

// Write appends one row: timestamp, ASN, slot offset, decision,
// outcome, transmissions, drift sample in microseconds (0 if none).
// The power-cycle machine fills the drift column only for RX slots that
// sampled a time source; TX rows always carry 0.
func (t *TraceLog) Write(now time.Time, asn uint64, slot uint16, decision CellDecision, outcome string, transmissions int, driftUs int32) {
	if t.dir == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	name := t.pattern.FormatString(now)
	if name != t.openName {
		if t.file != nil {
			t.writer.Flush()
			t.file.Close()
		}
		f, err := os.OpenFile(filepath.Join(t.dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return
		}
		t.file = f
		t.writer = csv.NewWriter(f)
		t.openName = name
	}

	_ = t.writer.Write([]string{
		now.Format(time.RFC3339Nano),
		fmt.Sprintf("%d", asn),
		fmt.Sprintf("%d", slot),
		decisionName(decision),
		outcome,
		fmt.Sprintf("%d", transmissions),
		fmt.Sprintf("%d", driftUs),
	})
	t.writer.Flush()
}

func decisionName(d CellDecision) string {
	switch d {
	case CellOff:
		return "OFF"
	case CellTX:
		return "TX"
	case CellTXBackoff:
		return "TX_BACKOFF"
	case CellTXIdle:
		return "TX_IDLE"
	case CellRX:
		return "RX"
	default:
		return "UNKNOWN"
	}
}

// Close flushes and closes the currently-open file, if any.
func (t *TraceLog) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	t.writer.Flush()
	return t.file.Close()
}
