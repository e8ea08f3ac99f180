package secondary

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-nodebus/bus"
	"github.com/arloliu/go-nodebus/line"
	"github.com/arloliu/go-nodebus/linkio"
	"github.com/arloliu/go-nodebus/logger"
	"github.com/arloliu/go-nodebus/store"
	"github.com/arloliu/go-nodebus/tunnel"
)

const byteTick line.Tick = 100

func quietLogger() logger.Logger {
	return logger.NewSlogWriter(io.Discard, logger.ErrorLevel, false)
}

// harness drives an Agent from a bare host framer standing in for the primary.
type harness struct {
	t     *testing.T
	clock *line.ManualClock
	host  *line.Framer
	agent *Agent
	st    store.AddressStore
}

func newLineConfig(t *testing.T) *line.Config {
	t.Helper()

	cfg, err := line.NewConfig(
		line.WithByteTime(time.Duration(byteTick)*time.Microsecond),
		line.WithLogger(quietLogger()),
	)
	require.NoError(t, err)

	return cfg
}

func newHarness(t *testing.T, st store.AddressStore, opts ...Option) *harness {
	t.Helper()

	clock := line.NewManualClock(0)
	lcfg := newLineConfig(t)
	b := linkio.NewBus(clock, byteTick)

	host, err := line.NewFramer(b.Attach("host"), clock, lcfg)
	require.NoError(t, err)
	f, err := line.NewFramer(b.Attach("node"), clock, lcfg)
	require.NoError(t, err)

	cfg, err := NewConfig(append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	a, err := NewAgent(f, st, cfg)
	require.NoError(t, err)

	h := &harness{t: t, clock: clock, host: host, agent: a, st: st}
	h.run(10)

	return h
}

func (h *harness) step() {
	h.t.Helper()

	h.clock.Advance(byteTick / 4)
	_, err := h.host.Poll()
	require.NoError(h.t, err)
	_, err = h.agent.Step()
	require.NoError(h.t, err)
}

func (h *harness) run(byteTimes int) {
	h.t.Helper()

	for range byteTimes * 4 {
		h.step()
	}
}

// send writes raw symbols from the host and lets the line settle.
func (h *harness) send(syms ...line.Symbol) {
	h.t.Helper()

	require.NoError(h.t, h.host.Write(syms...))
	h.run(len(syms) + 20)
}

func (h *harness) poll(addr bus.Address, msg bus.MsgType) {
	h.t.Helper()

	h.send(bus.Poll(addr, msg).Symbols()...)
}

// acks returns every complete frame the host has received since the last call.
func (h *harness) acks() []bus.Frame {
	h.t.Helper()

	buf := make([]line.Symbol, h.host.Avail())
	n := h.host.Read(buf)
	require.Zero(h.t, n%bus.FrameSize, "partial frame on the line")

	var frames []bus.Frame
	for i := 0; i < n; i += bus.FrameSize {
		var raw [bus.FrameSize]byte
		for j := range raw {
			raw[j] = buf[i+j].Byte()
		}
		f, ok := bus.ParseFrame(raw)
		require.True(h.t, ok, "bad ack %v", buf[i:i+bus.FrameSize])
		frames = append(frames, f)
	}

	return frames
}

type pipeAcceptor struct {
	mu    sync.Mutex
	pipes []*tunnel.Pipe
}

func (a *pipeAcceptor) AcceptTunnel() tunnel.Endpoint {
	a.mu.Lock()
	defer a.mu.Unlock()

	p := tunnel.NewPipe()
	a.pipes = append(a.pipes, p)

	return p
}

func (a *pipeAcceptor) last() *tunnel.Pipe {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.pipes) == 0 {
		return nil
	}

	return a.pipes[len(a.pipes)-1]
}
