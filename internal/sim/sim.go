// Package sim wires a primary and any number of secondaries onto one
// in-memory linkio.Bus. Tests step it on a manual clock; the sim role of the
// command runs it on the system clock.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/go-nodebus/bus"
	"github.com/arloliu/go-nodebus/internal/loop"
	"github.com/arloliu/go-nodebus/line"
	"github.com/arloliu/go-nodebus/linkio"
	"github.com/arloliu/go-nodebus/logger"
	"github.com/arloliu/go-nodebus/primary"
	"github.com/arloliu/go-nodebus/secondary"
	"github.com/arloliu/go-nodebus/store"
	"github.com/arloliu/go-nodebus/tunnel"
)

// Network is a simulated line.
type Network struct {
	clock   line.Clock
	bus     *linkio.Bus
	lineCfg *line.Config
	logger  logger.Logger
	loop    *loop.Loop

	mu      sync.Mutex
	primary *primary.Controller
	nodes   []*Node
}

// Node is one simulated secondary.
type Node struct {
	net   *Network
	name  string
	port  *linkio.Port
	store store.AddressStore
	opts  []secondary.Option

	mu    sync.Mutex
	agent *secondary.Agent
}

// New creates an empty network with the given byte time.
func New(clock line.Clock, byteTime time.Duration, l logger.Logger) (*Network, error) {
	if l == nil {
		l = logger.GetLogger()
	}

	cfg, err := line.NewConfig(line.WithByteTime(byteTime), line.WithLogger(l))
	if err != nil {
		return nil, err
	}

	n := &Network{
		clock:   clock,
		bus:     linkio.NewBus(clock, cfg.ByteTime()),
		lineCfg: cfg,
		logger:  l,
	}
	every := cfg.PollInterval().Duration()
	n.loop = loop.New(func() (bool, error) { return true, n.Step() }, every, every)

	return n, nil
}

// Clock returns the network clock.
func (n *Network) Clock() line.Clock { return n.clock }

// ByteTime returns the byte time of every framer on the network.
func (n *Network) ByteTime() line.Tick { return n.lineCfg.ByteTime() }

// Bus returns the simulated medium.
func (n *Network) Bus() *linkio.Bus { return n.bus }

// Primary returns the controller added with AddPrimary.
func (n *Network) Primary() *primary.Controller {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.primary
}

// Nodes returns the secondaries in the order they were added.
func (n *Network) Nodes() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]*Node(nil), n.nodes...)
}

// AddPrimary attaches the bus controller.
func (n *Network) AddPrimary(opts ...primary.Option) (*primary.Controller, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.primary != nil {
		return nil, errors.New("sim: primary already added")
	}

	f, err := line.NewFramer(n.bus.Attach("primary"), n.clock, n.lineCfg)
	if err != nil {
		return nil, err
	}

	cfg, err := primary.NewConfig(append([]primary.Option{primary.WithLogger(n.logger)}, opts...)...)
	if err != nil {
		return nil, err
	}

	c, err := primary.NewController(f, cfg)
	if err != nil {
		return nil, err
	}
	n.primary = c

	return c, nil
}

// AddNode attaches a powered secondary whose address lives in st.
func (n *Network) AddNode(name string, st store.AddressStore, opts ...secondary.Option) (*Node, error) {
	node := &Node{
		net:   n,
		name:  name,
		port:  n.bus.Attach(name),
		store: st,
		opts:  append([]secondary.Option{secondary.WithLogger(n.logger.With("node", name))}, opts...),
	}
	if err := node.boot(); err != nil {
		return nil, err
	}

	n.mu.Lock()
	n.nodes = append(n.nodes, node)
	n.mu.Unlock()

	return node, nil
}

// Step steps the primary and every powered node once. It returns the first
// fatal line error.
func (n *Network) Step() error {
	if c := n.Primary(); c != nil {
		if _, err := c.Step(); err != nil {
			return fmt.Errorf("sim: primary: %w", err)
		}
	}

	for _, node := range n.Nodes() {
		a := node.Agent()
		if a == nil {
			continue
		}
		if _, err := a.Step(); err != nil {
			return fmt.Errorf("sim: %s: %w", node.name, err)
		}
	}

	return nil
}

// Run steps the network at the framer poll cadence until ctx is done.
func (n *Network) Run(ctx context.Context) error {
	return n.loop.Run(ctx)
}

// RequestTunnel asks the primary for a tunnel while Run is stepping the
// network. It is safe to call from any goroutine.
func (n *Network) RequestTunnel(ctx context.Context, addr bus.Address, ep tunnel.Endpoint) error {
	var err error
	doErr := n.loop.Do(ctx, func() {
		c := n.Primary()
		if c == nil {
			err = errors.New("sim: no primary")
			return
		}
		err = c.RequestTunnel(addr, ep)
	})
	if doErr != nil {
		return doErr
	}

	return err
}

// Name returns the node name.
func (node *Node) Name() string { return node.name }

// Port returns the node's bus port.
func (node *Node) Port() *linkio.Port { return node.port }

// Agent returns the running agent, nil while powered off.
func (node *Node) Agent() *secondary.Agent {
	node.mu.Lock()
	defer node.mu.Unlock()

	return node.agent
}

// PowerOff cuts the node off the line.
func (node *Node) PowerOff() {
	node.mu.Lock()
	defer node.mu.Unlock()

	node.port.SetPowered(false)
	if node.agent != nil {
		node.agent.Shutdown()
		node.agent = nil
	}
}

// PowerOn boots the node again with its stored address.
func (node *Node) PowerOn() error {
	node.port.SetPowered(true)

	return node.boot()
}

func (node *Node) boot() error {
	f, err := line.NewFramer(node.port, node.net.clock, node.net.lineCfg)
	if err != nil {
		return err
	}

	cfg, err := secondary.NewConfig(node.opts...)
	if err != nil {
		return err
	}

	a, err := secondary.NewAgent(f, node.store, cfg)
	if err != nil {
		return err
	}

	node.mu.Lock()
	node.agent = a
	node.mu.Unlock()

	return nil
}
