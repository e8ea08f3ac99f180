package tunnel

import (
	"errors"
	"io"
	"sync"
)

// Endpoint is the local side of a tunnel as seen by a Bridge.
//
// Implementations must be goroutine-safe: the bridge calls them from the bus
// loop while the application uses them from its own goroutines.
type Endpoint interface {
	// Available returns the number of bytes waiting to go onto the line.
	Available() int
	// Read consumes up to len(p) outbound bytes.
	Read(p []byte) int
	// Write delivers bytes received from the line.
	Write(p []byte)
	// CloseRequested reports whether the local side asked to end the tunnel.
	// abrupt is set when remaining data must be dropped and the peer aborted.
	CloseRequested() (requested bool, abrupt bool)
	// Shutdown is called exactly once when the tunnel ends. abrupt is set
	// when the connection must be torn down without flushing.
	Shutdown(reason Status, abrupt bool)
}

// ErrPipeClosed is returned by PipeConn.Write after the tunnel ended or the
// application closed its side.
var ErrPipeClosed = errors.New("tunnel: pipe closed")

// Pipe is an in-memory Endpoint with a blocking application side.
type Pipe struct {
	mu   sync.Mutex
	cond *sync.Cond

	outbound []byte // application to line
	inbound  []byte // line to application

	closeReq bool
	abortReq bool

	ended      bool
	reason     Status
	peerAbrupt bool
	done       chan struct{}
}

var _ Endpoint = (*Pipe)(nil)

// NewPipe creates an open pipe.
func NewPipe() *Pipe {
	p := &Pipe{reason: StatusNotConnected, done: make(chan struct{})}
	p.cond = sync.NewCond(&p.mu)

	return p
}

func (p *Pipe) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.outbound)
}

func (p *Pipe) Read(b []byte) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := copy(b, p.outbound)
	p.outbound = p.outbound[n:]
	if len(p.outbound) == 0 {
		p.outbound = nil
	}

	return n
}

func (p *Pipe) Write(b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ended {
		return
	}
	p.inbound = append(p.inbound, b...)
	p.cond.Broadcast()
}

func (p *Pipe) CloseRequested() (bool, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closeReq || p.abortReq, p.abortReq
}

func (p *Pipe) Shutdown(reason Status, abrupt bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ended {
		return
	}
	p.ended = true
	p.reason = reason
	p.peerAbrupt = abrupt
	if abrupt {
		p.inbound = nil
	}
	p.outbound = nil
	close(p.done)
	p.cond.Broadcast()
}

// Done is closed when the tunnel has ended.
func (p *Pipe) Done() <-chan struct{} {
	return p.done
}

// Result returns why the tunnel ended and whether it ended abruptly.
// ended is false while the tunnel is still open.
func (p *Pipe) Result() (reason Status, abrupt bool, ended bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.reason, p.peerAbrupt, p.ended
}

// Conn returns the application side of the pipe.
func (p *Pipe) Conn() *PipeConn {
	return &PipeConn{p: p}
}

// PipeConn is the application side of a Pipe. Read blocks until data arrives
// or the tunnel ends.
type PipeConn struct {
	p *Pipe
}

var _ io.ReadWriteCloser = (*PipeConn)(nil)

func (c *PipeConn) Read(b []byte) (int, error) {
	p := c.p
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.inbound) == 0 && !p.ended {
		p.cond.Wait()
	}
	if len(p.inbound) == 0 {
		return 0, io.EOF
	}

	n := copy(b, p.inbound)
	p.inbound = p.inbound[n:]

	return n, nil
}

func (c *PipeConn) Write(b []byte) (int, error) {
	p := c.p
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ended || p.closeReq || p.abortReq {
		return 0, ErrPipeClosed
	}
	p.outbound = append(p.outbound, b...)

	return len(b), nil
}

// Buffered returns the number of received bytes Read can return without blocking.
func (c *PipeConn) Buffered() int {
	p := c.p
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.inbound)
}

// Close asks for a graceful close: buffered bytes are still sent.
func (c *PipeConn) Close() error {
	p := c.p
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closeReq = true

	return nil
}

// Abort asks for an abrupt close: buffered bytes are dropped.
func (c *PipeConn) Abort() {
	p := c.p
	p.mu.Lock()
	defer p.mu.Unlock()

	p.abortReq = true
	p.outbound = nil
}

// Done is closed when the tunnel has ended.
func (c *PipeConn) Done() <-chan struct{} {
	return c.p.done
}
