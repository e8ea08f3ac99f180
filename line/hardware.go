package line

// RxFlags are the per-character receive status bits reported by the UART.
type RxFlags uint8

const (
	// RxFrameError means the character had a bad stop bit; its boundary is untrustworthy.
	RxFrameError RxFlags = 1 << iota
	// RxOverrun means characters were lost before this read because the
	// hardware FIFO was not drained in time.
	RxOverrun
)

// Hardware is the UART/driver collaborator. All methods are non-blocking.
type Hardware interface {
	// EngageTransmit turns the line driver on.
	EngageTransmit()
	// EngageReceive turns the line driver off and enables the receiver.
	EngageReceive()
	// ReadSymbol pops one received character. ok is false when nothing is
	// pending; flags may still report an overrun in that case.
	ReadSymbol() (sym Symbol, flags RxFlags, ok bool)
	// WriteSymbol queues one character for shifting out. It returns false
	// when the transmit FIFO is full.
	WriteSymbol(sym Symbol) bool
	// TxComplete reports whether every queued character has left the wire.
	TxComplete() bool
}
