package primary_test

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-nodebus/bus"
	"github.com/arloliu/go-nodebus/internal/sim"
	"github.com/arloliu/go-nodebus/line"
	"github.com/arloliu/go-nodebus/logger"
	"github.com/arloliu/go-nodebus/primary"
	"github.com/arloliu/go-nodebus/secondary"
	"github.com/arloliu/go-nodebus/store"
	"github.com/arloliu/go-nodebus/tunnel"
)

const (
	testByteTime               = 100 * time.Microsecond
	byteTick         line.Tick = 100
	testMaxChildren            = 8
)

type fixture struct {
	t     *testing.T
	clock *line.ManualClock
	net   *sim.Network
	ctrl  *primary.Controller
}

func quietLogger() logger.Logger {
	return logger.NewSlogWriter(io.Discard, logger.ErrorLevel, false)
}

func newFixture(t *testing.T, opts ...primary.Option) *fixture {
	t.Helper()

	clock := line.NewManualClock(0)
	n, err := sim.New(clock, testByteTime, quietLogger())
	require.NoError(t, err)

	opts = append([]primary.Option{primary.WithMaxChildren(testMaxChildren)}, opts...)
	ctrl, err := n.AddPrimary(opts...)
	require.NoError(t, err)

	return &fixture{t: t, clock: clock, net: n, ctrl: ctrl}
}

func (fx *fixture) addNode(name string, st store.AddressStore, opts ...secondary.Option) *sim.Node {
	fx.t.Helper()

	node, err := fx.net.AddNode(name, st, opts...)
	require.NoError(fx.t, err)

	return node
}

// runUntil fails the test when cond does not hold within maxByteTimes.
func (fx *fixture) runUntil(cond func() bool, maxByteTimes int) {
	fx.t.Helper()

	ok, err := fx.net.RunUntil(cond, line.Tick(maxByteTimes)*byteTick) //nolint:gosec // test bounds
	require.NoError(fx.t, err)
	require.True(fx.t, ok, "condition not met within %d byte times", maxByteTimes)
}

func (fx *fixture) advance(byteTimes int) {
	fx.t.Helper()

	require.NoError(fx.t, fx.net.Advance(line.Tick(byteTimes)*byteTick)) //nolint:gosec // test bounds
}

// scanBudget bounds one full scan cycle of testMaxChildren silent addresses.
func (fx *fixture) scanBudget() int {
	perPoll := int(fx.ctrl.AckTimeout()/byteTick) + 16

	return (testMaxChildren + 2) * perPoll
}

func (fx *fixture) knownNode(name string, addr bus.Address, opts ...secondary.Option) *sim.Node {
	fx.t.Helper()

	node := fx.addNode(name, store.NewMemoryStore(addr), opts...)
	fx.runUntil(func() bool { return fx.ctrl.Known().Has(addr) }, fx.scanBudget())

	return node
}

// recordingAcceptor hands out pipes and remembers them.
type recordingAcceptor struct {
	mu    sync.Mutex
	pipes []*tunnel.Pipe
}

func (a *recordingAcceptor) AcceptTunnel() tunnel.Endpoint {
	a.mu.Lock()
	defer a.mu.Unlock()

	p := tunnel.NewPipe()
	a.pipes = append(a.pipes, p)

	return p
}

func (a *recordingAcceptor) last() *tunnel.Pipe {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.pipes) == 0 {
		return nil
	}

	return a.pipes[len(a.pipes)-1]
}

// echoEndpoint sends every received byte back without a goroutine.
type echoEndpoint struct {
	buf    []byte
	ended  bool
	reason tunnel.Status
}

func (e *echoEndpoint) Available() int { return len(e.buf) }

func (e *echoEndpoint) Read(p []byte) int {
	n := copy(p, e.buf)
	e.buf = e.buf[n:]

	return n
}

func (e *echoEndpoint) Write(p []byte) { e.buf = append(e.buf, p...) }

func (e *echoEndpoint) CloseRequested() (bool, bool) { return false, false }

func (e *echoEndpoint) Shutdown(reason tunnel.Status, _ bool) {
	e.ended = true
	e.reason = reason
}

// drain reads what the pipe's application side has received so far without
// blocking past the end of the tunnel.
func drain(t *testing.T, p *tunnel.Pipe) []byte {
	t.Helper()

	_, _, ended := p.Result()
	require.True(t, ended, "drain needs an ended tunnel")

	out, err := io.ReadAll(p.Conn())
	require.NoError(t, err)

	return out
}
