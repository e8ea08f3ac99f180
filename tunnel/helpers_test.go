package tunnel

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-nodebus/line"
	"github.com/arloliu/go-nodebus/linkio"
	"github.com/arloliu/go-nodebus/logger"
)

const testByteTime line.Tick = 100

type testEnd struct {
	port   *linkio.Port
	framer *line.Framer
	bridge *Bridge
	pipe   *Pipe
	result Result
}

type testLine struct {
	t     *testing.T
	clock *line.ManualClock
	bus   *linkio.Bus
	ends  []*testEnd
}

func newTestLine(t *testing.T) *testLine {
	t.Helper()

	clock := line.NewManualClock(0)
	return &testLine{t: t, clock: clock, bus: linkio.NewBus(clock, testByteTime)}
}

func (l *testLine) newFramer(name string) (*linkio.Port, *line.Framer) {
	l.t.Helper()

	cfg, err := line.NewConfig(
		line.WithByteTime(time.Duration(testByteTime)*time.Microsecond),
		line.WithLogger(logger.NewSlogWriter(io.Discard, logger.ErrorLevel, false)),
	)
	require.NoError(l.t, err)

	port := l.bus.Attach(name)
	f, err := line.NewFramer(port, l.clock, cfg)
	require.NoError(l.t, err)

	return port, f
}

// newTunnel opens a tunnel between a floor-holding and a waiting end on an
// idle line.
func (l *testLine) newTunnel() (*testEnd, *testEnd) {
	l.t.Helper()

	cfg := DefaultBridgeConfig(testByteTime)
	a := &testEnd{pipe: NewPipe()}
	b := &testEnd{pipe: NewPipe()}
	a.port, a.framer = l.newFramer("primary")
	b.port, b.framer = l.newFramer("secondary")

	l.clock.Advance(10 * testByteTime)
	for _, e := range []*testEnd{a, b} {
		_, err := e.framer.Poll()
		require.NoError(l.t, err)
		e.framer.MarkCondition()
	}

	a.bridge = NewBridge(a.framer, a.pipe, true, cfg)
	b.bridge = NewBridge(b.framer, b.pipe, false, cfg)
	l.ends = append(l.ends, a, b)

	return a, b
}

// step advances the clock by a quarter byte time and services every end.
func (l *testLine) step() {
	l.t.Helper()

	l.clock.Advance(testByteTime / 4)
	for _, e := range l.ends {
		_, err := e.framer.Poll()
		require.NoError(l.t, err)
		if e.bridge == nil || e.result.Ended() {
			continue
		}
		res, err := e.bridge.Step()
		require.NoError(l.t, err)
		e.result = res
	}
}

func (l *testLine) runUntil(cond func() bool, maxByteTimes int) {
	l.t.Helper()

	for range maxByteTimes * 4 {
		if cond() {
			return
		}
		l.step()
	}
	require.True(l.t, cond(), "condition not met within %d byte times", maxByteTimes)
}

func (l *testLine) run(byteTimes int) {
	l.t.Helper()

	for range byteTimes * 4 {
		l.step()
	}
}

func inbound(p *Pipe) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]byte(nil), p.inbound...)
}
