package sim

import (
	"errors"

	"github.com/arloliu/go-nodebus/line"
)

// ErrNotManual is returned by Advance and RunUntil on a network that does not
// run on a *line.ManualClock.
var ErrNotManual = errors.New("sim: network clock is not manual")

func (n *Network) quantum() (*line.ManualClock, line.Tick, error) {
	clock, ok := n.clock.(*line.ManualClock)
	if !ok {
		return nil, 0, ErrNotManual
	}

	q := n.ByteTime() / 4
	if q == 0 {
		q = 1
	}

	return clock, q, nil
}

// Advance moves the manual clock forward by d, stepping the network every
// quarter byte time.
func (n *Network) Advance(d line.Tick) error {
	_, err := n.RunUntil(func() bool { return false }, d)

	return err
}

// RunUntil advances the manual clock a quarter byte time at a time, stepping
// the network, until cond holds or limit ticks have passed. It reports
// whether cond held.
func (n *Network) RunUntil(cond func() bool, limit line.Tick) (bool, error) {
	clock, q, err := n.quantum()
	if err != nil {
		return false, err
	}

	for elapsed := line.Tick(0); ; elapsed += q {
		if cond() {
			return true, nil
		}
		if elapsed >= limit {
			return false, nil
		}

		clock.Advance(q)
		if err := n.Step(); err != nil {
			return false, err
		}
	}
}
