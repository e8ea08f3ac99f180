package linkio

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-nodebus/line"
	"github.com/arloliu/go-nodebus/logger"
)

// Stream encoding: every symbol travels as [tag][data], where the tag is
// streamTag with the low bit carrying the marker.
const (
	streamTag     byte = 0xA0
	streamTagMask byte = 0xFE
)

// ErrStreamClosed is returned by Close when the stream was already closed.
var ErrStreamClosed = errors.New("linkio: stream closed")

// StreamHardware implements line.Hardware over a byte stream that has no
// ninth bit, by sending each symbol as a tag byte plus a data byte.
//
// A byte where a tag is expected is reported as a framing error, so a
// desynchronized stream is handled by the framer's skip-to-frame-end logic.
// Characters arriving while the driver is engaged are the line echo and are
// dropped.
type StreamHardware struct {
	rw     io.ReadWriter
	logger logger.Logger
	fifo   int

	mu      sync.Mutex
	rx      []rxEntry
	overrun bool
	driving bool

	closeMu   sync.RWMutex // guards txCh against send after close
	txCh      chan []byte
	txPending atomic.Int32
	closed    atomic.Bool
	done      chan struct{}
}

var _ line.Hardware = (*StreamHardware)(nil)

// NewStreamHardware starts the reader and writer goroutines over rw.
// fifo is the receive FIFO depth; values < 1 select DefaultHardwareFIFO*16.
func NewStreamHardware(rw io.ReadWriter, fifo int, l logger.Logger) *StreamHardware {
	if fifo < 1 {
		fifo = DefaultHardwareFIFO * 16
	}
	if l == nil {
		l = logger.GetLogger()
	}

	h := &StreamHardware{
		rw:     rw,
		logger: l,
		fifo:   fifo,
		txCh:   make(chan []byte, fifo),
		done:   make(chan struct{}),
	}

	go h.readLoop()
	go h.writeLoop()

	return h
}

// EncodeSymbol returns the two stream bytes for sym.
func EncodeSymbol(sym line.Symbol) [2]byte {
	tag := streamTag
	if sym.Marker() {
		tag |= 1
	}

	return [2]byte{tag, sym.Byte()}
}

func (h *StreamHardware) readLoop() {
	buf := make([]byte, 256)
	var tag byte
	haveTag := false

	for {
		n, err := h.rw.Read(buf)
		for _, b := range buf[:n] {
			if !haveTag {
				if b&streamTagMask != streamTag {
					h.push(rxEntry{flags: line.RxFrameError})
					continue
				}
				tag = b
				haveTag = true

				continue
			}
			haveTag = false
			sym := line.Data(b)
			if tag&1 != 0 {
				sym = line.Marked(b)
			}
			h.push(rxEntry{sym: sym})
		}

		if err != nil {
			if !h.closed.Load() {
				h.logger.Error("linkio: stream read failed", "error", err)
			}
			close(h.done)

			return
		}
	}
}

func (h *StreamHardware) push(e rxEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.driving {
		return
	}
	if len(h.rx) >= h.fifo {
		h.overrun = true
		return
	}
	h.rx = append(h.rx, e)
}

func (h *StreamHardware) writeLoop() {
	for data := range h.txCh {
		if _, err := h.rw.Write(data); err != nil && !h.closed.Load() {
			h.logger.Error("linkio: stream write failed", "error", err)
		}
		h.txPending.Add(-1)
	}
}

// Done is closed when the underlying stream reports an error or EOF.
func (h *StreamHardware) Done() <-chan struct{} {
	return h.done
}

func (h *StreamHardware) EngageTransmit() {
	h.mu.Lock()
	h.driving = true
	h.mu.Unlock()
}

func (h *StreamHardware) EngageReceive() {
	h.mu.Lock()
	h.driving = false
	h.mu.Unlock()
}

func (h *StreamHardware) ReadSymbol() (line.Symbol, line.RxFlags, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.overrun {
		h.overrun = false
		return 0, line.RxOverrun, false
	}
	if len(h.rx) == 0 {
		return 0, 0, false
	}
	e := h.rx[0]
	h.rx = h.rx[1:]

	return e.sym, e.flags, true
}

func (h *StreamHardware) WriteSymbol(sym line.Symbol) bool {
	h.closeMu.RLock()
	defer h.closeMu.RUnlock()

	if h.closed.Load() {
		return true
	}

	enc := EncodeSymbol(sym)
	h.txPending.Add(1)
	select {
	case h.txCh <- enc[:]:
		return true
	default:
		h.txPending.Add(-1)
		return false
	}
}

func (h *StreamHardware) TxComplete() bool {
	return h.txPending.Load() == 0
}

// Close stops the writer and closes the stream when it is an io.Closer.
func (h *StreamHardware) Close() error {
	h.closeMu.Lock()
	if !h.closed.CompareAndSwap(false, true) {
		h.closeMu.Unlock()
		return ErrStreamClosed
	}
	close(h.txCh)
	h.closeMu.Unlock()

	if c, ok := h.rw.(io.Closer); ok {
		return c.Close()
	}

	return nil
}
