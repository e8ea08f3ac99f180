package tunnel

import (
	"fmt"

	"github.com/arloliu/go-nodebus/bus"
)

// Status is the tunnel state seen by the endpoint layer. A non-negative value
// is the address of the connected node; negative values say why no tunnel is
// open.
type Status int16

const (
	StatusNotConnected Status = -1
	StatusTimedOut     Status = -2
	StatusFrameError   Status = -3
	StatusClosedByPeer Status = -4
)

// ConnectedTo returns the status of an open tunnel to addr.
func ConnectedTo(addr bus.Address) Status {
	return Status(addr)
}

// Connected reports whether s is an open tunnel.
func (s Status) Connected() bool {
	return s >= 0
}

// Address returns the connected address; it is only meaningful when Connected.
func (s Status) Address() bus.Address {
	if s < 0 {
		return bus.Broadcast
	}

	return bus.Address(s) //nolint:gosec // non-negative status holds an address
}

func (s Status) String() string {
	switch s {
	case StatusNotConnected:
		return "NotConnected"
	case StatusTimedOut:
		return "TimedOut"
	case StatusFrameError:
		return "FrameError"
	case StatusClosedByPeer:
		return "ClosedByPeer"
	}
	if s >= 0 {
		return fmt.Sprintf("Connected(%d)", int16(s))
	}

	return fmt.Sprintf("Status(%d)", int16(s))
}
