package secondary

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/arloliu/go-nodebus/bus"
	"github.com/arloliu/go-nodebus/line"
	"github.com/arloliu/go-nodebus/logger"
	"github.com/arloliu/go-nodebus/store"
	"github.com/arloliu/go-nodebus/tunnel"
)

// State is the bus state of an Agent.
type State uint32

const (
	// StateMatchingHeader: decoding frame headers; the position is tracked separately.
	StateMatchingHeader State = iota
	// StateTunnelOpen: a tunnel to the primary is open.
	StateTunnelOpen
	// StateWaitingForTxFlush: an ack or a tunnel close is leaving the line.
	StateWaitingForTxFlush
)

func (s State) String() string {
	switch s {
	case StateMatchingHeader:
		return "MatchingHeader"
	case StateTunnelOpen:
		return "TunnelOpen"
	case StateWaitingForTxFlush:
		return "WaitingForTxFlush"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

// Agent is the secondary bus state machine.
//
// Step must be called from the single loop that owns the framer. Address,
// Registered, Known, State, SetPendingStatus and GetMetrics are safe to call
// from any goroutine.
type Agent struct {
	framer *line.Framer
	store  store.AddressStore
	cfg    *Config
	logger logger.Logger

	bridgeCfg     tunnel.BridgeConfig
	tunnelTimeout line.Tick

	state   atomic.Uint32
	address atomic.Uint32
	known   atomic.Bool
	pending atomic.Bool

	pos      int
	captured bus.Address
	// helloSent is set while this node's Hello answers the last ReadyForHello.
	helloSent bool

	bridge *tunnel.Bridge

	metrics AgentMetrics
}

// NewAgent creates an agent on f. The node address is loaded from st; a node
// that was never registered starts in the registration window.
func NewAgent(f *line.Framer, st store.AddressStore, cfg *Config) (*Agent, error) {
	if f == nil {
		return nil, errors.New("secondary: framer is nil")
	}
	if st == nil {
		return nil, errors.New("secondary: address store is nil")
	}
	if cfg == nil {
		return nil, errors.New("secondary: config is nil")
	}

	addr, err := st.LoadAddress()
	if err != nil {
		return nil, fmt.Errorf("secondary: load address: %w", err)
	}
	if addr != bus.Unassigned && !addr.Valid(bus.MaxChildren) {
		return nil, fmt.Errorf("secondary: stored address %d out of range", addr)
	}

	byteTime := f.Config().ByteTime()
	a := &Agent{
		framer:        f,
		store:         st,
		cfg:           cfg,
		bridgeCfg:     tunnel.DefaultBridgeConfig(byteTime),
		tunnelTimeout: byteTime * DefaultTunnelTimeoutBytes,
	}
	a.address.Store(uint32(addr))
	a.logger = cfg.logger.With("role", "secondary")

	a.bridgeCfg.MaxBurst = cfg.maxBurst
	if cfg.idleHoldoff > 0 {
		a.bridgeCfg.IdleHoldoff = line.TicksOf(cfg.idleHoldoff)
	} else {
		a.bridgeCfg.IdleHoldoff = byteTime * DefaultIdleHoldoffBytes
	}
	if cfg.tunnelTimeout > 0 {
		a.tunnelTimeout = line.TicksOf(cfg.tunnelTimeout)
	}

	a.logger.Info("nodebus: agent started", "address", addr, "registered", a.Registered())

	return a, nil
}

// Config returns the agent configuration.
func (a *Agent) Config() *Config { return a.cfg }

// Framer returns the framer owned by the agent.
func (a *Agent) Framer() *line.Framer { return a.framer }

// GetMetrics returns the agent metrics.
func (a *Agent) GetMetrics() *AgentMetrics { return &a.metrics }

// State returns the current bus state.
func (a *Agent) State() State { return State(a.state.Load()) }

// Address returns the node address, bus.Unassigned while unregistered.
func (a *Agent) Address() bus.Address { return bus.Address(a.address.Load()) } //nolint:gosec // stores an Address

// Registered reports whether the node has an address.
func (a *Agent) Registered() bool { return a.Address() != bus.Unassigned }

// Known reports whether the node has introduced itself to the current primary.
func (a *Agent) Known() bool { return a.known.Load() }

// SetPendingStatus makes the next Heartbeat ack a ReadStatus, telling the
// primary to mark this node dirty.
func (a *Agent) SetPendingStatus() {
	a.pending.Store(true)
}

// Step polls the framer and advances the agent. It never blocks. busy
// reports whether the caller must step again within the framer's poll
// interval. The only error is a fatal line error.
func (a *Agent) Step() (busy bool, err error) {
	busy, err = a.framer.Poll()
	if err != nil {
		return false, err
	}

	if a.framer.MarkCondition() && a.State() == StateMatchingHeader {
		a.pos = 0
	}

	switch a.State() {
	case StateMatchingHeader:
		err = a.match()
	case StateWaitingForTxFlush:
		if !a.framer.TxBusy() {
			a.pos = 0
			a.setState(StateMatchingHeader)
		}
	case StateTunnelOpen:
		err = a.stepTunnel()
	}
	if err != nil {
		return false, err
	}

	return busy || a.State() != StateMatchingHeader, nil
}

// Shutdown drops an open tunnel. The agent must not be stepped afterwards.
func (a *Agent) Shutdown() {
	if a.bridge != nil {
		a.bridge.Drop(tunnel.StatusNotConnected)
		a.endTunnel(tunnel.Interrupted)
	}
}

func (a *Agent) setState(s State) {
	a.state.Store(uint32(s))
}

func (a *Agent) match() error {
	if a.framer.TakeFrameError() {
		a.pos = 0
	}

	for a.framer.Avail() > 0 {
		sym, _ := a.framer.Peek(0)
		if !bus.HeaderSymbolOK(a.pos, sym) {
			a.skip("bad header")
			return nil
		}
		a.framer.Discard(1)

		switch a.pos {
		case 2:
			addr := bus.Address(sym.Byte())
			if a.Registered() {
				if addr != a.Address() {
					a.skip("not addressed")
					return nil
				}
			} else {
				a.captured = addr
			}
		case 3:
			a.pos = 0
			a.metrics.incFrameRecvCount()

			return a.command(bus.MsgType(sym.Byte()))
		}
		a.pos++
	}

	return nil
}

func (a *Agent) skip(reason string) {
	a.pos = 0
	a.framer.SkipToFrameEnd()
	a.metrics.incHeaderSkipCount()
	a.logger.Debug("nodebus: frame skipped", "reason", reason)
}

func (a *Agent) protocolError(msg bus.MsgType) {
	a.metrics.incProtocolErrCount()
	a.logger.Debug("nodebus: unexpected command", "msg", msg.String(), "registered", a.Registered())
	a.skip("protocol error")
}

func (a *Agent) command(msg bus.MsgType) error {
	window := !a.Registered()
	// An assignment is only ours right after our own Hello.
	hello := a.helloSent
	a.helloSent = false

	switch msg {
	case bus.MsgAddressAssign:
		if !window || !hello {
			a.protocolError(msg)
			return nil
		}

		return a.assign(a.captured)

	case bus.MsgHeartbeat:
		if window {
			a.protocolError(msg)
			return nil
		}

		ack := bus.AckHeartbeat
		switch {
		case !a.known.Load():
			ack = bus.AckHello
			a.known.Store(true)
		case a.pending.CompareAndSwap(true, false):
			ack = bus.AckReadStatus
		}

		return a.sendAck(a.Address(), ack)

	case bus.MsgReadyForHello:
		if !window || a.captured != bus.Broadcast {
			a.protocolError(msg)
			return nil
		}

		if a.cfg.rand.Float64() >= a.cfg.helloProbability {
			a.metrics.incHelloDeferCount()
			return nil
		}
		a.helloSent = true

		return a.sendAck(bus.Broadcast, bus.AckHello)

	case bus.MsgConnect:
		if window {
			a.protocolError(msg)
			return nil
		}
		a.known.Store(true)
		a.openTunnel()

		return nil

	default:
		a.protocolError(msg)
		return nil
	}
}

func (a *Agent) assign(addr bus.Address) error {
	if !addr.Valid(bus.MaxChildren) {
		a.protocolError(bus.MsgAddressAssign)
		return nil
	}

	if err := a.store.SaveAddress(addr); err != nil {
		a.logger.Error("nodebus: persist address failed", "address", addr, "error", err)
		a.skip("store failure")

		return nil
	}

	a.address.Store(uint32(addr))
	a.known.Store(true)
	a.logger.Info("nodebus: address assigned", "address", addr)

	return a.sendAck(addr, bus.AckHeartbeat)
}

func (a *Agent) sendAck(addr bus.Address, ack bus.AckType) error {
	if err := a.framer.Write(bus.Ack(addr, ack).Symbols()...); err != nil {
		return err
	}
	a.metrics.incAckSendCount()
	a.setState(StateWaitingForTxFlush)

	return nil
}

func (a *Agent) openTunnel() {
	ep := a.cfg.acceptor.AcceptTunnel()
	if ep == nil {
		// Nothing to bridge to: close as soon as the floor arrives.
		p := tunnel.NewPipe()
		_ = p.Conn().Close()
		ep = p
	}

	a.bridge = tunnel.NewBridge(a.framer, ep, false, a.bridgeCfg)
	a.setState(StateTunnelOpen)
	a.metrics.incTunnelOpenCount()
	a.logger.Info("nodebus: tunnel accepted", "address", a.Address())
}

func (a *Agent) stepTunnel() error {
	// A damaged tunnel byte cannot be recovered here; the primary decides.
	a.framer.TakeFrameError()

	res, err := a.bridge.Step()
	if err != nil {
		return err
	}

	if !res.Ended() {
		if a.bridge.Silence() > a.tunnelTimeout {
			a.logger.Warn("nodebus: primary silent in tunnel, dropping it",
				"timeout", a.tunnelTimeout.Duration().String())
			a.bridge.Drop(tunnel.StatusTimedOut)
			a.endTunnel(tunnel.Interrupted)
		}

		return nil
	}

	a.endTunnel(res)

	return nil
}

func (a *Agent) endTunnel(res tunnel.Result) {
	in, out := a.bridge.BytesIn(), a.bridge.BytesOut()
	crcIn, crcOut := a.bridge.Checksums()
	a.metrics.addTunnelBytes(in, out)
	a.logger.Info("nodebus: tunnel closed",
		"address", a.Address(),
		"result", res.String(),
		"in", humanize.Bytes(in),
		"out", humanize.Bytes(out),
		"crc_in", fmt.Sprintf("%04X", crcIn),
		"crc_out", fmt.Sprintf("%04X", crcOut))

	a.bridge = nil
	a.pos = 0
	switch res {
	case tunnel.ClosedLocally, tunnel.AbortedLocally:
		a.setState(StateWaitingForTxFlush)
	default:
		// An interrupting frame header stays buffered for the matcher.
		a.setState(StateMatchingHeader)
	}
}
