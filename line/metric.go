package line

import "sync/atomic"

// FramerMetrics contains atomic metrics for a Framer.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type FramerMetrics struct {
	// SymbolsSent indicates the number of characters shifted out.
	SymbolsSent atomic.Uint64
	// SymbolsRecv indicates the number of characters appended to the receive buffer.
	SymbolsRecv atomic.Uint64
	// SymbolsDropped indicates characters read but dropped while skipping to a frame end.
	SymbolsDropped atomic.Uint64
	// FrameErrCount indicates the number of hardware framing errors.
	FrameErrCount atomic.Uint64
	// MarkCount indicates the number of mark conditions detected.
	MarkCount atomic.Uint64
	// EngageCount indicates how many times the driver was turned on.
	EngageCount atomic.Uint64
}

func (m *FramerMetrics) incSymbolsSent() {
	m.SymbolsSent.Add(1)
}

func (m *FramerMetrics) incSymbolsRecv() {
	m.SymbolsRecv.Add(1)
}

func (m *FramerMetrics) incSymbolsDropped() {
	m.SymbolsDropped.Add(1)
}

func (m *FramerMetrics) incFrameErrCount() {
	m.FrameErrCount.Add(1)
}

func (m *FramerMetrics) incMarkCount() {
	m.MarkCount.Add(1)
}

func (m *FramerMetrics) incEngageCount() {
	m.EngageCount.Add(1)
}
