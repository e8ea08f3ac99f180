package primary

import "sync/atomic"

// ControllerMetrics contains atomic metrics for a Controller.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type ControllerMetrics struct {
	// PollSendCount indicates the number of poll frames sent.
	PollSendCount atomic.Uint64
	// AckRecvCount indicates the number of matching acks processed.
	AckRecvCount atomic.Uint64
	// AckTimeoutCount indicates the number of polls that went unanswered.
	AckTimeoutCount atomic.Uint64
	// GarbledAckCount indicates acks dropped for a bad header or frame error.
	GarbledAckCount atomic.Uint64

	// NodeJoinCount indicates how many times a node became known.
	NodeJoinCount atomic.Uint64
	// NodeLostCount indicates how many times a known node stopped answering.
	NodeLostCount atomic.Uint64
	// AddressAssignCount indicates the number of addresses handed out.
	AddressAssignCount atomic.Uint64

	// TunnelOpenCount indicates the number of tunnels opened.
	TunnelOpenCount atomic.Uint64
	// TunnelTimeoutCount indicates tunnels aborted for inactivity.
	TunnelTimeoutCount atomic.Uint64
	// TunnelBytesIn indicates payload bytes received from tunneled nodes.
	TunnelBytesIn atomic.Uint64
	// TunnelBytesOut indicates payload bytes sent to tunneled nodes.
	TunnelBytesOut atomic.Uint64

	// KnownGauge indicates the number of known nodes.
	KnownGauge atomic.Int64
}

func (m *ControllerMetrics) incPollSendCount() {
	m.PollSendCount.Add(1)
}

func (m *ControllerMetrics) incAckRecvCount() {
	m.AckRecvCount.Add(1)
}

func (m *ControllerMetrics) incAckTimeoutCount() {
	m.AckTimeoutCount.Add(1)
}

func (m *ControllerMetrics) incGarbledAckCount() {
	m.GarbledAckCount.Add(1)
}

func (m *ControllerMetrics) incNodeJoinCount() {
	m.NodeJoinCount.Add(1)
}

func (m *ControllerMetrics) incNodeLostCount() {
	m.NodeLostCount.Add(1)
}

func (m *ControllerMetrics) incAddressAssignCount() {
	m.AddressAssignCount.Add(1)
}

func (m *ControllerMetrics) incTunnelOpenCount() {
	m.TunnelOpenCount.Add(1)
}

func (m *ControllerMetrics) incTunnelTimeoutCount() {
	m.TunnelTimeoutCount.Add(1)
}

func (m *ControllerMetrics) addTunnelBytes(in, out uint64) {
	m.TunnelBytesIn.Add(in)
	m.TunnelBytesOut.Add(out)
}
