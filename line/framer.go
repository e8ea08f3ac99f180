package line

import (
	"errors"
	"fmt"

	"github.com/arloliu/go-nodebus/internal/queue"
	"github.com/arloliu/go-nodebus/logger"
)

// ErrReceiveOverrun is returned once the hardware lost received characters.
// The receive buffer no longer matches the wire; only a restart recovers.
var ErrReceiveOverrun = errors.New("line: hardware receive overrun")

// State is the line direction state of a Framer.
type State uint8

const (
	// Receiving: driver off, characters are appended to the receive buffer.
	Receiving State = iota
	// TransmitDisengaging: everything is sent; the driver is held for the disengage delay.
	TransmitDisengaging
	// Transmitting: the driver is on and queued characters are being shifted out.
	Transmitting
	// WaitingForEngage: a write is pending; waiting for the line to be quiet for the engage gap.
	WaitingForEngage
	// WaitingForStartTransmit: the driver is on; waiting out the engage delay.
	WaitingForStartTransmit
	// SkippingToFrameEnd: receiving, but characters are dropped until the
	// next mark condition. Reported by State only; the skip itself is kept
	// apart from the line direction so that a write does not end it.
	SkippingToFrameEnd
)

func (s State) String() string {
	switch s {
	case Receiving:
		return "Receiving"
	case TransmitDisengaging:
		return "TransmitDisengaging"
	case Transmitting:
		return "Transmitting"
	case WaitingForEngage:
		return "WaitingForEngage"
	case WaitingForStartTransmit:
		return "WaitingForStartTransmit"
	case SkippingToFrameEnd:
		return "SkippingToFrameEnd"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Framer arbitrates one shared half-duplex line.
//
// This type is NOT goroutine-safe. One loop owns it and calls Poll, Write,
// Read and Discard from the same goroutine.
type Framer struct {
	hw     Hardware
	clock  Clock
	cfg    *Config
	logger logger.Logger

	state      State
	stateSince Tick
	// skipping drops received characters until the next mark condition or
	// until this side engages the driver.
	skipping bool

	// lastActivity is the tick of the last character seen on the wire,
	// sent or received.
	lastActivity Tick
	// markReported is set once the current idle gap was reported as a mark
	// condition; any activity clears it.
	markReported bool
	markPending  bool

	frameErr bool
	handover bool
	fatal    error

	rx queue.Queue[Symbol]
	tx queue.Queue[Symbol]

	discardHook func(Symbol)

	metrics FramerMetrics
}

// NewFramer creates a Framer in the Receiving state and switches hw to receive.
func NewFramer(hw Hardware, clock Clock, cfg *Config) (*Framer, error) {
	if hw == nil {
		return nil, errors.New("line: hardware is nil")
	}
	if clock == nil {
		return nil, errors.New("line: clock is nil")
	}
	if cfg == nil {
		return nil, errors.New("line: config is nil")
	}

	now := clock.Now()
	f := &Framer{
		hw:           hw,
		clock:        clock,
		cfg:          cfg,
		logger:       cfg.logger,
		state:        Receiving,
		stateSince:   now,
		lastActivity: now,
		rx:           queue.NewRingQueue[Symbol](cfg.rxBufferSize),
		tx:           queue.NewRingQueue[Symbol](32),
	}
	hw.EngageReceive()

	return f, nil
}

// Config returns the framer configuration.
func (f *Framer) Config() *Config { return f.cfg }

// Clock returns the tick source the framer runs on.
func (f *Framer) Clock() Clock { return f.clock }

// State returns the current line state.
func (f *Framer) State() State {
	if f.state == Receiving && f.skipping {
		return SkippingToFrameEnd
	}

	return f.state
}

// GetMetrics returns the framer metrics.
func (f *Framer) GetMetrics() *FramerMetrics { return &f.metrics }

// SetDiscardHook installs fn to observe every symbol consumed by Discard.
// Callers use it to keep a running checksum over consumed bytes.
func (f *Framer) SetDiscardHook(fn func(Symbol)) {
	f.discardHook = fn
}

// Poll services the hardware and advances the line state machine.
//
// It never blocks. busy reports whether the caller must keep polling at the
// fast cadence (half a byte time) because a packet may be in flight.
func (f *Framer) Poll() (busy bool, err error) {
	if f.fatal != nil {
		return false, f.fatal
	}

	now := f.clock.Now()
	if err := f.drainHardware(now); err != nil {
		return false, err
	}

	switch f.state {
	case Receiving:
		f.checkMark(now)

	case WaitingForEngage:
		if now.Sub(f.lastActivity) >= f.cfg.EngageGap() {
			f.skipping = false
			f.hw.EngageTransmit()
			f.metrics.incEngageCount()
			f.enter(WaitingForStartTransmit, now)
		}

	case WaitingForStartTransmit:
		if now.Sub(f.stateSince) >= f.cfg.EngageDelay() {
			f.enter(Transmitting, now)
			f.pump(now)
		}

	case Transmitting:
		f.pump(now)

	case TransmitDisengaging:
		switch {
		case !f.tx.IsEmpty():
			f.enter(Transmitting, now)
			f.pump(now)
		case now.Sub(f.stateSince) >= f.cfg.DisengageDelay():
			f.toReceive(now)
		}
	}

	return f.busy(now), nil
}

func (f *Framer) busy(now Tick) bool {
	if f.state != Receiving || !f.tx.IsEmpty() {
		return true
	}

	return now.Sub(f.lastActivity) <= f.cfg.MarkThreshold()
}

func (f *Framer) enter(s State, now Tick) {
	f.state = s
	f.stateSince = now
}

func (f *Framer) toReceive(now Tick) {
	f.hw.EngageReceive()
	f.enter(Receiving, now)
}

// drainHardware moves every pending hardware character into the software buffer.
func (f *Framer) drainHardware(now Tick) error {
	for {
		sym, flags, ok := f.hw.ReadSymbol()
		if flags&RxOverrun != 0 {
			f.fatal = ErrReceiveOverrun
			f.logger.Error("line: hardware receive overrun", "state", f.state.String())

			return f.fatal
		}
		if !ok {
			return nil
		}

		f.lastActivity = now
		f.markReported = false

		if flags&RxFrameError != 0 {
			f.frameErr = true
			f.metrics.incFrameErrCount()
			f.metrics.incSymbolsDropped()
			if f.receiving() && !f.skipping {
				f.logger.Debug("line: frame error, skipping to frame end", "state", f.state.String())
				f.skipping = true
			}

			continue
		}

		if f.receiving() && !f.skipping {
			f.rx.Enqueue(sym)
			f.metrics.incSymbolsRecv()
		} else {
			// Skipping, or our own echo while driving.
			f.metrics.incSymbolsDropped()
		}
	}
}

// receiving reports whether the driver is off.
func (f *Framer) receiving() bool {
	return f.state == Receiving || f.state == WaitingForEngage
}

func (f *Framer) checkMark(now Tick) {
	if f.markReported || now.Sub(f.lastActivity) <= f.cfg.MarkThreshold() {
		return
	}

	f.markReported = true
	f.markPending = true
	f.metrics.incMarkCount()
	f.skipping = false
}

// pump feeds queued characters to the hardware and moves to disengaging
// once everything has left the wire.
func (f *Framer) pump(now Tick) {
	for !f.tx.IsEmpty() {
		sym, _ := f.tx.Peek(0)
		if !f.hw.WriteSymbol(sym) {
			break
		}
		f.tx.Discard(1)
		f.metrics.incSymbolsSent()
		f.lastActivity = now
		f.markReported = false
	}

	if !f.tx.IsEmpty() || !f.hw.TxComplete() {
		return
	}

	f.lastActivity = now
	if f.handover {
		f.handover = false
		f.toReceive(now)

		return
	}
	f.enter(TransmitDisengaging, now)
}

// Write queues symbols for transmission.
//
// From Receiving the framer waits for the engage gap and the engage delay
// before the first bit. A pending skip stays in force until the driver is
// engaged. While transmitting or
// disengaging the symbols are appended to the burst without re-engaging.
func (f *Framer) Write(syms ...Symbol) error {
	if f.fatal != nil {
		return f.fatal
	}
	if len(syms) == 0 {
		return nil
	}

	for _, s := range syms {
		f.tx.Enqueue(s)
	}

	now := f.clock.Now()
	switch f.state {
	case Receiving:
		f.enter(WaitingForEngage, now)
	case TransmitDisengaging:
		f.enter(Transmitting, now)
		f.pump(now)
	case Transmitting:
		f.pump(now)
	}

	return nil
}

// WriteData queues bs as unmarked payload symbols.
func (f *Framer) WriteData(bs []byte) error {
	syms := make([]Symbol, len(bs))
	for i, b := range bs {
		syms[i] = Data(b)
	}

	return f.Write(syms...)
}

// Handover releases the line as soon as the queued burst has left the wire,
// skipping the disengage delay. Used when the peer has been told it may
// transmit next.
func (f *Framer) Handover() {
	if f.state == TransmitDisengaging && f.tx.IsEmpty() {
		f.toReceive(f.clock.Now())
		return
	}
	if f.state != Receiving {
		f.handover = true
	}
}

// TxBusy reports whether the framer holds or is acquiring the line.
func (f *Framer) TxBusy() bool {
	return f.state != Receiving
}

// TxPending returns the number of symbols not yet handed to the hardware.
func (f *Framer) TxPending() int {
	return f.tx.Length()
}

// Avail returns the number of symbols in the receive buffer.
func (f *Framer) Avail() int {
	return f.rx.Length()
}

// Peek returns the i-th buffered symbol without consuming it.
func (f *Framer) Peek(i int) (Symbol, bool) {
	return f.rx.Peek(i)
}

// Read consumes up to len(p) symbols into p.
func (f *Framer) Read(p []Symbol) int {
	n := 0
	for n < len(p) {
		sym, ok := f.rx.Dequeue()
		if !ok {
			break
		}
		p[n] = sym
		n++
	}

	return n
}

// Discard consumes up to n symbols, passing each to the discard hook.
func (f *Framer) Discard(n int) int {
	if f.discardHook == nil {
		return f.rx.Discard(n)
	}

	done := 0
	for done < n {
		sym, ok := f.rx.Dequeue()
		if !ok {
			break
		}
		f.discardHook(sym)
		done++
	}

	return done
}

// MarkCondition reports, once per idle gap, that the line has been quiet
// for longer than the mark threshold.
func (f *Framer) MarkCondition() bool {
	if !f.markPending {
		return false
	}
	f.markPending = false

	return true
}

// Idle reports whether the line is currently quiet past the mark threshold.
func (f *Framer) Idle() bool {
	return f.state == Receiving && f.clock.Now().Sub(f.lastActivity) > f.cfg.MarkThreshold()
}

// SinceActivity returns the ticks elapsed since the last character on the wire.
func (f *Framer) SinceActivity() Tick {
	return f.clock.Now().Sub(f.lastActivity)
}

// TakeFrameError reports and clears the soft frame-error flag.
func (f *Framer) TakeFrameError() bool {
	if !f.frameErr {
		return false
	}
	f.frameErr = false

	return true
}

// SkipToFrameEnd flushes the receive buffer and drops characters until the
// next mark condition. It has no effect when the line is already idle.
func (f *Framer) SkipToFrameEnd() {
	f.rx.Reset()
	if !f.receiving() {
		return
	}
	if f.clock.Now().Sub(f.lastActivity) > f.cfg.MarkThreshold() {
		return
	}
	f.skipping = true
}

// Flush drops every buffered received symbol.
func (f *Framer) Flush() {
	f.rx.Reset()
}
