package tunnel

import (
	"fmt"

	"github.com/arloliu/go-nodebus/line"
)

// Control is a tunnel control signal, sent as a marked symbol.
type Control byte

const (
	ControlIdle  Control = 0xC0
	ControlOver  Control = 0xC1
	ControlClose Control = 0xC2
	ControlAbort Control = 0xC3
)

func (c Control) valid() bool {
	return c >= ControlIdle && c <= ControlAbort
}

func (c Control) String() string {
	switch c {
	case ControlIdle:
		return "Idle"
	case ControlOver:
		return "Over"
	case ControlClose:
		return "Close"
	case ControlAbort:
		return "Abort"
	default:
		return fmt.Sprintf("Control(0x%02X)", byte(c))
	}
}

// Token is one tunnel symbol: either a payload byte or a control signal.
type Token struct {
	Control   Control
	Payload   byte
	IsControl bool
}

// PayloadToken wraps a payload byte.
func PayloadToken(b byte) Token {
	return Token{Payload: b}
}

// ControlToken wraps a control signal.
func ControlToken(c Control) Token {
	return Token{Control: c, IsControl: true}
}

// Symbol returns the line symbol for t. Only controls carry the marker bit.
func (t Token) Symbol() line.Symbol {
	if t.IsControl {
		return line.Marked(byte(t.Control))
	}

	return line.Data(t.Payload)
}

// DecodeToken classifies a line symbol. ok is false for a marked symbol that
// is not a tunnel control, which means the peer is no longer tunneling.
func DecodeToken(sym line.Symbol) (Token, bool) {
	if !sym.Marker() {
		return PayloadToken(sym.Byte()), true
	}

	c := Control(sym.Byte())
	if !c.valid() {
		return Token{}, false
	}

	return ControlToken(c), true
}
