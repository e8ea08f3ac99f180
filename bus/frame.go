package bus

import (
	"fmt"

	"github.com/arloliu/go-nodebus/line"
)

// Frame sync bytes.
const (
	Sync1 byte = 0x55
	Sync2 byte = 0xAA
)

// FrameSize is the size of every poll and acknowledgement frame.
const FrameSize = 4

// MsgType is the command byte of a primary -> secondary frame.
type MsgType byte

const (
	MsgHeartbeat     MsgType = 0x01
	MsgReadyForHello MsgType = 0x02
	MsgAddressAssign MsgType = 0x03
	MsgConnect       MsgType = 0x04
)

func (m MsgType) String() string {
	switch m {
	case MsgHeartbeat:
		return "Heartbeat"
	case MsgReadyForHello:
		return "ReadyForHello"
	case MsgAddressAssign:
		return "AddressAssign"
	case MsgConnect:
		return "Connect"
	default:
		return fmt.Sprintf("MsgType(0x%02X)", byte(m))
	}
}

// AckType is the command byte of a secondary -> primary frame.
type AckType byte

const (
	AckHeartbeat  AckType = 0x20
	AckHello      AckType = 0x21
	AckReadStatus AckType = 0x22
)

// Valid reports whether a is one of the defined acknowledgement types.
func (a AckType) Valid() bool {
	return a >= AckHeartbeat && a <= AckReadStatus
}

func (a AckType) String() string {
	switch a {
	case AckHeartbeat:
		return "Heartbeat"
	case AckHello:
		return "Hello"
	case AckReadStatus:
		return "ReadStatus"
	default:
		return fmt.Sprintf("AckType(0x%02X)", byte(a))
	}
}

// Frame is a decoded poll or acknowledgement.
type Frame struct {
	Address Address
	Command byte
}

// Encode returns the 4 wire bytes of f.
func (f Frame) Encode() [FrameSize]byte {
	return [FrameSize]byte{Sync1, Sync2, byte(f.Address), f.Command}
}

// Symbols returns the wire symbols of f. The first sync byte carries the
// marker bit, which is how a tunnel peer sees that polling resumed.
func (f Frame) Symbols() []line.Symbol {
	b := f.Encode()

	return []line.Symbol{line.Marked(b[0]), line.Data(b[1]), line.Data(b[2]), line.Data(b[3])}
}

// HeaderSymbolOK reports whether sym is valid at position pos of a frame:
// only the first sync byte is marked.
func HeaderSymbolOK(pos int, sym line.Symbol) bool {
	switch pos {
	case 0:
		return sym == line.Marked(Sync1)
	case 1:
		return sym == line.Data(Sync2)
	default:
		return !sym.Marker()
	}
}

// Poll builds a primary -> secondary frame.
func Poll(addr Address, msg MsgType) Frame {
	return Frame{Address: addr, Command: byte(msg)}
}

// Ack builds a secondary -> primary frame.
func Ack(addr Address, ack AckType) Frame {
	return Frame{Address: addr, Command: byte(ack)}
}

// ParseFrame decodes a 4-byte frame. ok is false when the sync bytes do not match.
func ParseFrame(b [FrameSize]byte) (Frame, bool) {
	if b[0] != Sync1 || b[1] != Sync2 {
		return Frame{}, false
	}

	return Frame{Address: Address(b[2]), Command: b[3]}, true
}
