package secondary

import "sync/atomic"

// AgentMetrics contains atomic metrics for an Agent.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type AgentMetrics struct {
	// FrameRecvCount indicates the number of frames addressed to this node.
	FrameRecvCount atomic.Uint64
	// HeaderSkipCount indicates frames skipped for a header mismatch.
	HeaderSkipCount atomic.Uint64
	// ProtocolErrCount indicates frames with a command not valid in the current mode.
	ProtocolErrCount atomic.Uint64
	// AckSendCount indicates the number of acks sent.
	AckSendCount atomic.Uint64
	// HelloDeferCount indicates ReadyForHello broadcasts left unanswered by the backoff.
	HelloDeferCount atomic.Uint64

	// TunnelOpenCount indicates the number of tunnels accepted.
	TunnelOpenCount atomic.Uint64
	// TunnelBytesIn indicates payload bytes received from the primary.
	TunnelBytesIn atomic.Uint64
	// TunnelBytesOut indicates payload bytes sent to the primary.
	TunnelBytesOut atomic.Uint64
}

func (m *AgentMetrics) incFrameRecvCount() {
	m.FrameRecvCount.Add(1)
}

func (m *AgentMetrics) incHeaderSkipCount() {
	m.HeaderSkipCount.Add(1)
}

func (m *AgentMetrics) incProtocolErrCount() {
	m.ProtocolErrCount.Add(1)
}

func (m *AgentMetrics) incAckSendCount() {
	m.AckSendCount.Add(1)
}

func (m *AgentMetrics) incHelloDeferCount() {
	m.HelloDeferCount.Add(1)
}

func (m *AgentMetrics) incTunnelOpenCount() {
	m.TunnelOpenCount.Add(1)
}

func (m *AgentMetrics) addTunnelBytes(in, out uint64) {
	m.TunnelBytesIn.Add(in)
	m.TunnelBytesOut.Add(out)
}
