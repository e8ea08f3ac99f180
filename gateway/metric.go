package gateway

import "sync/atomic"

// ServerMetrics contains atomic metrics for a Server.
type ServerMetrics struct {
	// AcceptCount indicates the number of client connections accepted.
	AcceptCount atomic.Uint64
	// RefuseCount indicates connections closed because MaxSessions was reached.
	RefuseCount atomic.Uint64
	// RejectCount indicates tunnel requests the controller refused.
	RejectCount atomic.Uint64
	// TunnelCount indicates tunnel requests the controller took.
	TunnelCount atomic.Uint64
}

func (m *ServerMetrics) incAcceptCount() {
	m.AcceptCount.Add(1)
}

func (m *ServerMetrics) incRefuseCount() {
	m.RefuseCount.Add(1)
}

func (m *ServerMetrics) incRejectCount() {
	m.RejectCount.Add(1)
}

func (m *ServerMetrics) incTunnelCount() {
	m.TunnelCount.Add(1)
}
