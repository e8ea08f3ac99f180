package linkio

import (
	"sync"

	"github.com/arloliu/go-nodebus/line"
)

// DefaultHardwareFIFO is the receive and transmit FIFO depth of a Port.
const DefaultHardwareFIFO = 16

type rxEntry struct {
	sym   line.Symbol
	flags line.RxFlags
}

// Bus is a simulated shared half-duplex medium.
//
// Each character occupies the medium for one byte time of the bus clock.
// A character shifted while more than one port drives the line is delivered
// with a framing error. Ports that do not drain their receive FIFO in time
// see an overrun, exactly like a UART.
//
// Bus is goroutine-safe; time only advances through its clock, and the
// medium is settled lazily whenever a port is touched.
type Bus struct {
	mu       sync.Mutex
	clock    line.Clock
	byteTime line.Tick
	ports    []*Port
}

// NewBus creates a medium timed by clock with one character per byteTime ticks.
func NewBus(clock line.Clock, byteTime line.Tick) *Bus {
	if byteTime == 0 {
		byteTime = 1
	}

	return &Bus{clock: clock, byteTime: byteTime}
}

// Attach connects a new powered port to the medium.
func (b *Bus) Attach(name string) *Port {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := &Port{bus: b, name: name, powered: true, fifo: DefaultHardwareFIFO}
	b.ports = append(b.ports, p)

	return p
}

// settle delivers every character whose slot has ended by now. Caller holds b.mu.
func (b *Bus) settle() {
	now := b.clock.Now()

	for {
		progressed := false
		for _, p := range b.ports {
			if !p.shifting || now.Sub(p.slotStart) < b.byteTime {
				continue
			}
			sym := p.tx[0]
			p.tx = p.tx[1:]
			p.slotStart += b.byteTime
			if len(p.tx) == 0 {
				p.shifting = false
			}
			b.deliver(p, sym)
			progressed = true
		}
		if !progressed {
			return
		}
	}
}

func (b *Bus) deliver(src *Port, sym line.Symbol) {
	var flags line.RxFlags
	if b.driversLocked() > 1 {
		flags = line.RxFrameError
	}

	for _, q := range b.ports {
		if q == src || q.driving || !q.powered {
			continue
		}
		if len(q.rx) >= q.fifo {
			q.overrun = true
			continue
		}
		q.rx = append(q.rx, rxEntry{sym: sym, flags: flags})
	}
}

func (b *Bus) driversLocked() int {
	n := 0
	for _, p := range b.ports {
		if p.driving && p.powered {
			n++
		}
	}

	return n
}

// Port is one node's UART on a Bus. It implements line.Hardware.
type Port struct {
	bus     *Bus
	name    string
	powered bool
	fifo    int

	driving   bool
	tx        []line.Symbol
	shifting  bool
	slotStart line.Tick

	rx      []rxEntry
	overrun bool
}

var _ line.Hardware = (*Port)(nil)

// Name returns the port label given to Attach.
func (p *Port) Name() string { return p.name }

// SetPowered simulates power to the node. An unpowered port neither drives
// nor receives, and loses its FIFOs.
func (p *Port) SetPowered(on bool) {
	p.bus.mu.Lock()
	defer p.bus.mu.Unlock()

	p.bus.settle()
	p.powered = on
	if !on {
		p.driving = false
		p.tx = nil
		p.shifting = false
		p.rx = nil
		p.overrun = false
	}
}

// SetFIFODepth changes the hardware FIFO depth.
func (p *Port) SetFIFODepth(n int) {
	p.bus.mu.Lock()
	defer p.bus.mu.Unlock()

	if n > 0 {
		p.fifo = n
	}
}

// Driving reports whether the port's line driver is on.
func (p *Port) Driving() bool {
	p.bus.mu.Lock()
	defer p.bus.mu.Unlock()

	return p.driving
}

func (p *Port) EngageTransmit() {
	p.bus.mu.Lock()
	defer p.bus.mu.Unlock()

	p.bus.settle()
	if p.powered {
		p.driving = true
	}
}

func (p *Port) EngageReceive() {
	p.bus.mu.Lock()
	defer p.bus.mu.Unlock()

	p.bus.settle()
	p.driving = false
	// Characters still in the shifter are cut off.
	p.tx = nil
	p.shifting = false
}

func (p *Port) ReadSymbol() (line.Symbol, line.RxFlags, bool) {
	p.bus.mu.Lock()
	defer p.bus.mu.Unlock()

	p.bus.settle()
	if p.overrun {
		p.overrun = false
		return 0, line.RxOverrun, false
	}
	if len(p.rx) == 0 {
		return 0, 0, false
	}
	e := p.rx[0]
	p.rx = p.rx[1:]

	return e.sym, e.flags, true
}

func (p *Port) WriteSymbol(sym line.Symbol) bool {
	p.bus.mu.Lock()
	defer p.bus.mu.Unlock()

	p.bus.settle()
	if len(p.tx) >= p.fifo {
		return false
	}
	if !p.driving || !p.powered {
		// Shifted into a disabled driver: the character never reaches the wire.
		return true
	}
	p.tx = append(p.tx, sym)
	if !p.shifting {
		p.shifting = true
		p.slotStart = p.bus.clock.Now()
	}

	return true
}

func (p *Port) TxComplete() bool {
	p.bus.mu.Lock()
	defer p.bus.mu.Unlock()

	p.bus.settle()

	return len(p.tx) == 0
}
