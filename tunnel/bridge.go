package tunnel

import (
	"fmt"

	"github.com/arloliu/go-nodebus/line"
)

// Result is the outcome of one Bridge step.
type Result uint8

const (
	// Open: the tunnel continues.
	Open Result = iota
	// ClosedLocally: the endpoint closed; Close was sent after the remaining data.
	ClosedLocally
	// AbortedLocally: the endpoint failed; Abort was sent.
	AbortedLocally
	// ClosedByPeer: the peer sent Close.
	ClosedByPeer
	// AbortedByPeer: the peer sent Abort.
	AbortedByPeer
	// Interrupted: a marked symbol that is not a tunnel control arrived. It is
	// left in the receive buffer for the bus protocol.
	Interrupted
)

func (r Result) String() string {
	switch r {
	case Open:
		return "Open"
	case ClosedLocally:
		return "ClosedLocally"
	case AbortedLocally:
		return "AbortedLocally"
	case ClosedByPeer:
		return "ClosedByPeer"
	case AbortedByPeer:
		return "AbortedByPeer"
	case Interrupted:
		return "Interrupted"
	default:
		return fmt.Sprintf("Result(%d)", uint8(r))
	}
}

// Ended reports whether r finishes the tunnel.
func (r Result) Ended() bool {
	return r != Open
}

// BridgeConfig tunes the floor passing of a Bridge.
type BridgeConfig struct {
	// MaxBurst caps the payload bytes sent before passing the floor.
	MaxBurst int
	// IdleHoldoff is how long the floor holder waits for data before it
	// passes the floor with Idle.
	IdleHoldoff line.Tick
}

// DefaultBridgeConfig returns the floor passing defaults for a line with the
// given byte time.
func DefaultBridgeConfig(byteTime line.Tick) BridgeConfig {
	return BridgeConfig{MaxBurst: 64, IdleHoldoff: 8 * byteTime}
}

// Bridge moves bytes between an Endpoint and a Framer for one open tunnel.
//
// Bridge is NOT goroutine-safe; it runs on the loop that owns the framer.
type Bridge struct {
	framer *line.Framer
	ep     Endpoint
	cfg    BridgeConfig

	hasFloor bool
	floorAt  line.Tick
	waitFrom line.Tick
	ended    bool

	in  []byte
	out []byte

	bytesIn  uint64
	bytesOut uint64
	crcIn    *line.CRC16
	crcOut   *line.CRC16
}

// NewBridge starts a tunnel over f. holdsFloor is true for the side that may
// transmit first, which is the primary.
func NewBridge(f *line.Framer, ep Endpoint, holdsFloor bool, cfg BridgeConfig) *Bridge {
	if cfg.MaxBurst < 1 {
		cfg.MaxBurst = 1
	}

	return &Bridge{
		framer:   f,
		ep:       ep,
		cfg:      cfg,
		hasFloor: holdsFloor,
		floorAt:  f.Clock().Now(),
		waitFrom: f.Clock().Now(),
		out:      make([]byte, cfg.MaxBurst),
		crcIn:    line.NewCRC16(),
		crcOut:   line.NewCRC16(),
	}
}

// HasFloor reports whether this side may transmit.
func (b *Bridge) HasFloor() bool { return b.hasFloor }

// BytesIn returns the payload bytes delivered to the endpoint.
func (b *Bridge) BytesIn() uint64 { return b.bytesIn }

// BytesOut returns the payload bytes queued onto the line.
func (b *Bridge) BytesOut() uint64 { return b.bytesOut }

// Checksums returns the CRC-16/MODBUS of the payload delivered to the
// endpoint and of the payload sent. One side's in matches the other's out.
func (b *Bridge) Checksums() (in, out uint16) {
	return b.crcIn.Sum(), b.crcOut.Sum()
}

// Silence returns how long the peer has kept the floor without a character
// on the line, counted from when this side gave up the floor. It is zero
// while this side holds or uses the floor.
func (b *Bridge) Silence() line.Tick {
	if b.hasFloor || b.framer.TxBusy() {
		return 0
	}

	return min(b.framer.SinceActivity(), b.framer.Clock().Now().Sub(b.waitFrom))
}

// Step forwards received symbols to the endpoint and, when holding the
// floor, sends the next burst. Write errors come from the framer.
func (b *Bridge) Step() (Result, error) {
	if b.ended {
		return Interrupted, nil
	}

	if res := b.receive(); res.Ended() {
		return res, nil
	}
	if !b.hasFloor {
		return Open, nil
	}

	return b.send()
}

// Abort ends the tunnel from outside, sending Abort to the peer and shutting
// the endpoint down with reason.
func (b *Bridge) Abort(reason Status) error {
	if b.ended {
		return nil
	}
	b.finish(reason, true)

	return b.framer.Write(ControlToken(ControlAbort).Symbol())
}

// Drop ends the tunnel locally without notifying the peer, for a peer that
// is no longer there to be told.
func (b *Bridge) Drop(reason Status) {
	b.finish(reason, true)
}

func (b *Bridge) receive() Result {
	defer b.deliver()

	for b.framer.Avail() > 0 {
		sym, _ := b.framer.Peek(0)
		tok, ok := DecodeToken(sym)
		if !ok {
			b.deliver()
			b.finish(StatusNotConnected, false)

			return Interrupted
		}

		b.framer.Discard(1)
		if !tok.IsControl {
			b.in = append(b.in, tok.Payload)
			continue
		}

		switch tok.Control {
		case ControlIdle, ControlOver:
			b.takeFloor()
		case ControlClose:
			b.deliver()
			b.finish(StatusClosedByPeer, false)

			return ClosedByPeer
		case ControlAbort:
			b.finish(StatusClosedByPeer, true)

			return AbortedByPeer
		}
	}

	return Open
}

func (b *Bridge) send() (Result, error) {
	requested, abrupt := b.ep.CloseRequested()
	if requested && abrupt {
		b.finish(StatusNotConnected, true)
		return AbortedLocally, b.framer.Write(ControlToken(ControlAbort).Symbol())
	}

	if requested {
		for b.ep.Available() > 0 {
			if err := b.sendPayload(); err != nil {
				return Open, err
			}
		}
		b.finish(StatusNotConnected, false)

		return ClosedLocally, b.framer.Write(ControlToken(ControlClose).Symbol())
	}

	if b.ep.Available() > 0 {
		if err := b.sendPayload(); err != nil {
			return Open, err
		}

		return Open, b.passFloor(ControlOver)
	}

	if b.framer.Clock().Now().Sub(b.floorAt) >= b.cfg.IdleHoldoff {
		return Open, b.passFloor(ControlIdle)
	}

	return Open, nil
}

func (b *Bridge) sendPayload() error {
	n := b.ep.Read(b.out)
	if n == 0 {
		return nil
	}
	b.bytesOut += uint64(n) //nolint:gosec // n is non-negative
	b.crcOut.Update(b.out[:n])

	return b.framer.WriteData(b.out[:n])
}

func (b *Bridge) passFloor(c Control) error {
	b.hasFloor = false
	b.waitFrom = b.framer.Clock().Now()
	if err := b.framer.Write(ControlToken(c).Symbol()); err != nil {
		return err
	}
	if c == ControlOver {
		b.framer.Handover()
	}

	return nil
}

func (b *Bridge) takeFloor() {
	b.hasFloor = true
	b.floorAt = b.framer.Clock().Now()
}

func (b *Bridge) deliver() {
	if len(b.in) == 0 {
		return
	}
	b.bytesIn += uint64(len(b.in))
	b.crcIn.Update(b.in)
	b.ep.Write(b.in)
	b.in = b.in[:0]
}

func (b *Bridge) finish(reason Status, abrupt bool) {
	if b.ended {
		return
	}
	b.ended = true
	b.ep.Shutdown(reason, abrupt)
}
