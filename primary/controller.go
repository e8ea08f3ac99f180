package primary

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/arloliu/go-nodebus/bus"
	"github.com/arloliu/go-nodebus/line"
	"github.com/arloliu/go-nodebus/logger"
	"github.com/arloliu/go-nodebus/tunnel"
)

var (
	// ErrTunnelBusy is returned when a tunnel is already open or requested.
	ErrTunnelBusy = errors.New("primary: tunnel busy")
	// ErrInvalidAddress is returned when a tunnel is requested to an address
	// outside the scan range.
	ErrInvalidAddress = errors.New("primary: invalid node address")
)

// State is the bus state of a Controller.
type State uint32

const (
	// StateIdle: between polls; the next poll or a requested tunnel starts here.
	StateIdle State = iota
	// StateWaitingForAck: a poll was sent and its ack is awaited.
	StateWaitingForAck
	// StateSocketConnected: a tunnel is open and polling is suspended.
	StateSocketConnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateWaitingForAck:
		return "WaitingForAck"
	case StateSocketConnected:
		return "SocketConnected"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

type tunnelRequest struct {
	addr bus.Address
	ep   tunnel.Endpoint
}

// Controller is the primary bus state machine.
//
// Step, RequestTunnel and AbortTunnel must be called from the single loop
// that owns the framer. Known, Dirty, ClearDirty, State, TunnelStatus and
// GetMetrics are safe to call from any goroutine.
type Controller struct {
	framer *line.Framer
	clock  line.Clock
	cfg    *Config
	logger logger.Logger

	ackTimeout    line.Tick
	socketTimeout line.Tick
	scanInterval  line.Tick
	bridgeCfg     tunnel.BridgeConfig

	state  atomic.Uint32
	known  atomic.Uint64
	dirty  atomic.Uint64
	status atomic.Int32

	// next is the next address of the scan cycle; maxChildren selects the
	// broadcast round.
	next     int
	polled   bus.Frame
	sentAt   line.Tick
	lastDone line.Tick

	assigning bool
	assignTo  bus.Address

	ack    [bus.FrameSize]byte
	ackPos int

	pending  *tunnelRequest
	bridge   *tunnel.Bridge
	tunnelTo bus.Address
	abortReq bool

	metrics ControllerMetrics
}

// NewController creates a controller driving f. All timeouts derive from the
// byte time of f's configuration.
func NewController(f *line.Framer, cfg *Config) (*Controller, error) {
	if f == nil {
		return nil, errors.New("primary: framer is nil")
	}
	if cfg == nil {
		return nil, errors.New("primary: config is nil")
	}

	byteTime := f.Config().ByteTime()
	c := &Controller{
		framer:       f,
		clock:        f.Clock(),
		cfg:          cfg,
		logger:       cfg.logger.With("role", "primary"),
		ackTimeout:   byteTime * bus.FrameSize * line.Tick(cfg.ackMultiplier), //nolint:gosec // range checked
		scanInterval: line.TicksOf(cfg.scanInterval),
		bridgeCfg:    tunnel.DefaultBridgeConfig(byteTime),
	}

	c.socketTimeout = c.ackTimeout * DefaultSocketTimeoutFactor
	if cfg.socketTimeout > 0 {
		c.socketTimeout = line.TicksOf(cfg.socketTimeout)
	}
	if c.socketTimeout <= c.ackTimeout {
		return nil, fmt.Errorf("primary: socket timeout %v must exceed ack timeout %v",
			c.socketTimeout.Duration(), c.ackTimeout.Duration())
	}

	c.bridgeCfg.MaxBurst = cfg.maxBurst
	if cfg.idleHoldoff > 0 {
		c.bridgeCfg.IdleHoldoff = line.TicksOf(cfg.idleHoldoff)
	} else {
		c.bridgeCfg.IdleHoldoff = byteTime * DefaultIdleHoldoffBytes
	}

	c.status.Store(int32(tunnel.StatusNotConnected))
	c.lastDone = c.clock.Now()

	return c, nil
}

// Config returns the controller configuration.
func (c *Controller) Config() *Config { return c.cfg }

// Framer returns the framer owned by the controller.
func (c *Controller) Framer() *line.Framer { return c.framer }

// GetMetrics returns the controller metrics.
func (c *Controller) GetMetrics() *ControllerMetrics { return &c.metrics }

// AckTimeout returns how long a poll waits for its ack once it left the wire.
func (c *Controller) AckTimeout() line.Tick { return c.ackTimeout }

// SocketTimeout returns how long the connected node may stay silent while it
// holds the tunnel floor.
func (c *Controller) SocketTimeout() line.Tick { return c.socketTimeout }

// State returns the current bus state.
func (c *Controller) State() State { return State(c.state.Load()) }

// Known returns the set of nodes that answered their last poll.
func (c *Controller) Known() bus.ChildSet { return bus.ChildSet(c.known.Load()) }

// Dirty returns the set of nodes whose state changed since last cleared.
func (c *Controller) Dirty() bus.ChildSet { return bus.ChildSet(c.dirty.Load()) }

// ClearDirty clears the bits of mask in the dirty set and returns the bits
// that were actually set.
func (c *Controller) ClearDirty(mask bus.ChildSet) bus.ChildSet {
	old := c.dirty.And(^uint64(mask))

	return bus.ChildSet(old) & mask
}

// TunnelStatus returns the connected address while a tunnel is open, or the
// reason the last tunnel ended.
func (c *Controller) TunnelStatus() tunnel.Status {
	return tunnel.Status(c.status.Load()) //nolint:gosec // only Status values are stored
}

// Outstanding returns the poll awaiting its ack; ok is false outside
// StateWaitingForAck. Loop only.
func (c *Controller) Outstanding() (f bus.Frame, ok bool) {
	if c.State() != StateWaitingForAck {
		return bus.Frame{}, false
	}

	return c.polled, true
}

// RequestTunnel asks for a tunnel to addr bridged to ep. The tunnel opens on
// the next Step taken in the Idle state; an outstanding poll completes first.
func (c *Controller) RequestTunnel(addr bus.Address, ep tunnel.Endpoint) error {
	if ep == nil {
		return errors.New("primary: endpoint is nil")
	}
	if !addr.Valid(c.cfg.maxChildren) {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, addr)
	}
	if c.pending != nil || c.bridge != nil {
		return ErrTunnelBusy
	}

	c.pending = &tunnelRequest{addr: addr, ep: ep}
	c.logger.Debug("nodebus: tunnel requested", "address", addr)

	return nil
}

// AbortTunnel drops a pending tunnel request or aborts the open tunnel.
func (c *Controller) AbortTunnel() {
	if c.pending != nil {
		c.pending.ep.Shutdown(tunnel.StatusNotConnected, true)
		c.pending = nil
	}
	if c.bridge != nil {
		c.abortReq = true
	}
}

// Step polls the framer and advances the controller. It never blocks.
// busy reports whether the caller must step again within the framer's poll
// interval. The only error is a fatal line error.
func (c *Controller) Step() (busy bool, err error) {
	busy, err = c.framer.Poll()
	if err != nil {
		return false, err
	}

	now := c.clock.Now()
	if c.framer.MarkCondition() {
		c.ackPos = 0
	}

	switch c.State() {
	case StateIdle:
		err = c.stepIdle(now)
	case StateWaitingForAck:
		c.stepWaitingForAck(now)
	case StateSocketConnected:
		err = c.stepTunnel(now)
	}
	if err != nil {
		return false, err
	}

	return busy || c.State() != StateIdle, nil
}

// Shutdown ends any tunnel activity. The controller must not be stepped
// afterwards.
func (c *Controller) Shutdown() {
	c.AbortTunnel()
	if c.bridge != nil {
		_ = c.abortTunnel(c.clock.Now(), tunnel.StatusNotConnected)
	}
}

func (c *Controller) setState(s State) {
	c.state.Store(uint32(s))
}

func (c *Controller) stepIdle(now line.Tick) error {
	// Let the previous burst leave the line first.
	if c.framer.TxBusy() {
		return nil
	}
	if c.pending != nil {
		return c.openTunnel()
	}
	if now.Sub(c.lastDone) < c.scanInterval {
		return nil
	}

	return c.sendPoll(c.nextPoll())
}

func (c *Controller) nextPoll() bus.Frame {
	if c.assigning {
		return bus.Poll(c.assignTo, bus.MsgAddressAssign)
	}
	if c.next >= c.cfg.maxChildren {
		c.next = 0
		return bus.Poll(bus.Broadcast, bus.MsgReadyForHello)
	}

	addr := bus.Address(c.next) //nolint:gosec // next < maxChildren <= 64
	c.next++

	return bus.Poll(addr, bus.MsgHeartbeat)
}

func (c *Controller) sendPoll(f bus.Frame) error {
	c.framer.Flush()
	c.ackPos = 0
	if err := c.framer.Write(f.Symbols()...); err != nil {
		return err
	}

	c.polled = f
	c.sentAt = c.clock.Now()
	c.setState(StateWaitingForAck)
	c.metrics.incPollSendCount()

	return nil
}

func (c *Controller) stepWaitingForAck(now line.Tick) {
	// The ack window opens once the poll has left the wire.
	if c.framer.TxBusy() {
		c.sentAt = now
		return
	}

	for c.framer.Avail() > 0 {
		sym, _ := c.framer.Peek(0)
		if !bus.HeaderSymbolOK(c.ackPos, sym) {
			c.garbled("bad header")
			break
		}
		c.framer.Discard(1)
		c.ack[c.ackPos] = sym.Byte()
		c.ackPos++
		if c.ackPos < bus.FrameSize {
			continue
		}

		c.ackPos = 0
		f, _ := bus.ParseFrame(c.ack)
		if c.acceptAck(f) {
			c.finishPoll(now)
			return
		}
	}

	if c.framer.TakeFrameError() {
		c.garbled("frame error")
	}

	if now.Sub(c.sentAt) > c.ackTimeout {
		c.ackTimedOut()
		c.finishPoll(now)
	}
}

func (c *Controller) garbled(reason string) {
	c.ackPos = 0
	c.framer.SkipToFrameEnd()
	c.metrics.incGarbledAckCount()
	c.logger.Debug("nodebus: garbled ack dropped", "reason", reason, "address", c.polled.Address)
}

func (c *Controller) finishPoll(now line.Tick) {
	c.lastDone = now
	c.setState(StateIdle)
}

// acceptAck processes an ack for the outstanding poll. Acks from another
// address or with an unknown type are ignored.
func (c *Controller) acceptAck(f bus.Frame) bool {
	ack := bus.AckType(f.Command)
	if !ack.Valid() || f.Address != c.polled.Address {
		c.metrics.incGarbledAckCount()
		c.logger.Debug("nodebus: mismatched ack ignored",
			"address", f.Address, "ack", ack.String(), "polled", c.polled.Address)

		return false
	}
	c.metrics.incAckRecvCount()

	switch bus.MsgType(c.polled.Command) {
	case bus.MsgReadyForHello:
		if ack == bus.AckHello {
			c.startAssign()
		}

	case bus.MsgAddressAssign:
		c.assigning = false
		c.join(f.Address)

	case bus.MsgHeartbeat:
		switch {
		case !c.Known().Has(f.Address):
			c.join(f.Address)
		case ack == bus.AckHello || ack == bus.AckReadStatus:
			c.markDirty(f.Address)
			c.logger.Debug("nodebus: node reported a change", "address", f.Address, "ack", ack.String())
		}
	}

	return true
}

func (c *Controller) startAssign() {
	addr, ok := c.Known().LowestFree(c.cfg.maxChildren)
	if !ok {
		c.logger.Warn("nodebus: no free address, registration abandoned", "known", c.Known().Len())
		return
	}

	c.assigning = true
	c.assignTo = addr
	c.metrics.incAddressAssignCount()
	c.logger.Info("nodebus: assigning address", "address", addr)
}

func (c *Controller) ackTimedOut() {
	c.metrics.incAckTimeoutCount()
	c.ackPos = 0

	switch bus.MsgType(c.polled.Command) {
	case bus.MsgHeartbeat:
		if c.Known().Has(c.polled.Address) {
			c.lose(c.polled.Address)
		}
	case bus.MsgAddressAssign:
		c.assigning = false
		c.logger.Warn("nodebus: address assignment unanswered", "address", c.polled.Address)
	}
}

func (c *Controller) join(addr bus.Address) {
	known := c.Known().With(addr)
	c.known.Store(uint64(known))
	c.markDirty(addr)
	c.metrics.incNodeJoinCount()
	c.metrics.KnownGauge.Store(int64(known.Len()))
	c.logger.Info("nodebus: node discovered", "address", addr, "known", known.Len())
}

func (c *Controller) lose(addr bus.Address) {
	known := c.Known().Without(addr)
	c.known.Store(uint64(known))
	c.markDirty(addr)
	c.metrics.incNodeLostCount()
	c.metrics.KnownGauge.Store(int64(known.Len()))
	c.logger.Info("nodebus: node lost", "address", addr, "known", known.Len())
}

func (c *Controller) markDirty(addr bus.Address) {
	c.dirty.Or(uint64(bus.ChildSet(0).With(addr)))
}

func (c *Controller) openTunnel() error {
	req := c.pending
	c.pending = nil

	c.framer.Flush()
	if err := c.framer.Write(bus.Poll(req.addr, bus.MsgConnect).Symbols()...); err != nil {
		return err
	}

	c.bridge = tunnel.NewBridge(c.framer, req.ep, true, c.bridgeCfg)
	c.tunnelTo = req.addr
	c.abortReq = false
	c.status.Store(int32(tunnel.ConnectedTo(req.addr)))
	c.setState(StateSocketConnected)
	c.metrics.incTunnelOpenCount()
	c.logger.Info("nodebus: tunnel opened", "address", req.addr)

	return nil
}

func (c *Controller) stepTunnel(now line.Tick) error {
	if c.framer.TakeFrameError() {
		c.logger.Warn("nodebus: frame error in tunnel", "address", c.tunnelTo)
		return c.abortTunnel(now, tunnel.StatusFrameError)
	}
	if c.abortReq {
		return c.abortTunnel(now, tunnel.StatusNotConnected)
	}

	res, err := c.bridge.Step()
	if err != nil {
		return err
	}
	switch res {
	case tunnel.Open:
	case tunnel.ClosedByPeer, tunnel.AbortedByPeer:
		c.endTunnel(now, tunnel.StatusClosedByPeer, res)
		return nil
	default:
		c.endTunnel(now, tunnel.StatusNotConnected, res)
		return nil
	}

	if c.bridge.Silence() > c.socketTimeout {
		c.metrics.incTunnelTimeoutCount()
		c.logger.Warn("nodebus: tunnel timed out", "address", c.tunnelTo,
			"timeout", c.socketTimeout.Duration().String())

		return c.abortTunnel(now, tunnel.StatusTimedOut)
	}

	return nil
}

func (c *Controller) abortTunnel(now line.Tick, reason tunnel.Status) error {
	err := c.bridge.Abort(reason)
	c.endTunnel(now, reason, tunnel.AbortedLocally)

	return err
}

func (c *Controller) endTunnel(now line.Tick, reason tunnel.Status, res tunnel.Result) {
	in, out := c.bridge.BytesIn(), c.bridge.BytesOut()
	crcIn, crcOut := c.bridge.Checksums()
	c.metrics.addTunnelBytes(in, out)
	c.logger.Info("nodebus: tunnel closed",
		"address", c.tunnelTo,
		"reason", reason.String(),
		"result", res.String(),
		"in", humanize.Bytes(in),
		"out", humanize.Bytes(out),
		"crc_in", fmt.Sprintf("%04X", crcIn),
		"crc_out", fmt.Sprintf("%04X", crcOut))

	c.bridge = nil
	c.abortReq = false
	c.status.Store(int32(reason))
	c.framer.Flush()
	c.finishPoll(now)
}
