package line

import (
	"testing"
	"time"
)

const testByteTime Tick = 100

type fakeEntry struct {
	sym   Symbol
	flags RxFlags
}

// fakeHardware is a scripted UART: tests push received characters and
// inspect what was written.
type fakeHardware struct {
	rx       []fakeEntry
	overrun  bool
	driving  bool
	written  []Symbol
	txBusy   bool
	fifoFull bool

	engageTx int
	engageRx int
}

func (h *fakeHardware) EngageTransmit() { h.driving = true; h.engageTx++ }
func (h *fakeHardware) EngageReceive()  { h.driving = false; h.engageRx++ }

func (h *fakeHardware) ReadSymbol() (Symbol, RxFlags, bool) {
	if h.overrun {
		h.overrun = false
		return 0, RxOverrun, false
	}
	if len(h.rx) == 0 {
		return 0, 0, false
	}
	e := h.rx[0]
	h.rx = h.rx[1:]

	return e.sym, e.flags, true
}

func (h *fakeHardware) WriteSymbol(sym Symbol) bool {
	if h.fifoFull {
		return false
	}
	h.written = append(h.written, sym)

	return true
}

func (h *fakeHardware) TxComplete() bool { return !h.txBusy }

func (h *fakeHardware) receive(syms ...Symbol) {
	for _, s := range syms {
		h.rx = append(h.rx, fakeEntry{sym: s})
	}
}

func newTestFramer(t *testing.T) (*Framer, *fakeHardware, *ManualClock) {
	t.Helper()

	cfg, err := NewConfig(WithByteTime(time.Duration(testByteTime) * time.Microsecond))
	if err != nil {
		t.Fatalf("newTestFramer: %v", err)
	}

	hw := &fakeHardware{}
	clock := NewManualClock(0)
	f, err := NewFramer(hw, clock, cfg)
	if err != nil {
		t.Fatalf("newTestFramer: %v", err)
	}

	// Start from an idle line.
	clock.Advance(10 * testByteTime)
	mustPoll(t, f)
	f.MarkCondition()

	return f, hw, clock
}

func mustPoll(t *testing.T, f *Framer) bool {
	t.Helper()

	busy, err := f.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}

	return busy
}
