package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arloliu/go-nodebus/gateway"
	"github.com/arloliu/go-nodebus/line"
	"github.com/arloliu/go-nodebus/logger"
	"github.com/arloliu/go-nodebus/primary"
	"github.com/arloliu/go-nodebus/report"
	"github.com/arloliu/go-nodebus/secondary"
)

const metricsNamespace = "nodebus"

// metricSet exports the atomic component metrics as Prometheus collectors.
type metricSet struct {
	reg *prometheus.Registry
}

func newMetricSet() *metricSet {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &metricSet{reg: reg}
}

func (m *metricSet) counter(subsystem, name, help string, load func() uint64) {
	m.reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(load()) }))
}

func (m *metricSet) gauge(subsystem, name, help string, fn func() float64) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn))
}

func (m *metricSet) addFramer(f *line.Framer) {
	fm := f.GetMetrics()
	m.counter("line", "symbols_sent_total", "Characters shifted out.", fm.SymbolsSent.Load)
	m.counter("line", "symbols_received_total", "Characters received.", fm.SymbolsRecv.Load)
	m.counter("line", "symbols_dropped_total", "Characters dropped while skipping to a frame end.", fm.SymbolsDropped.Load)
	m.counter("line", "frame_errors_total", "Hardware framing errors.", fm.FrameErrCount.Load)
	m.counter("line", "marks_total", "Mark conditions detected.", fm.MarkCount.Load)
	m.counter("line", "engages_total", "Driver engagements.", fm.EngageCount.Load)
}

func (m *metricSet) addController(c *primary.Controller) {
	cm := c.GetMetrics()
	m.counter("primary", "polls_sent_total", "Poll frames sent.", cm.PollSendCount.Load)
	m.counter("primary", "acks_received_total", "Matching acks processed.", cm.AckRecvCount.Load)
	m.counter("primary", "ack_timeouts_total", "Polls left unanswered.", cm.AckTimeoutCount.Load)
	m.counter("primary", "garbled_acks_total", "Acks dropped for a bad header or frame error.", cm.GarbledAckCount.Load)
	m.counter("primary", "node_joins_total", "Nodes that became known.", cm.NodeJoinCount.Load)
	m.counter("primary", "node_losses_total", "Known nodes that stopped answering.", cm.NodeLostCount.Load)
	m.counter("primary", "address_assigns_total", "Addresses handed out.", cm.AddressAssignCount.Load)
	m.counter("primary", "tunnels_opened_total", "Tunnels opened.", cm.TunnelOpenCount.Load)
	m.counter("primary", "tunnel_timeouts_total", "Tunnels aborted for inactivity.", cm.TunnelTimeoutCount.Load)
	m.counter("primary", "tunnel_bytes_in_total", "Payload bytes received from tunneled nodes.", cm.TunnelBytesIn.Load)
	m.counter("primary", "tunnel_bytes_out_total", "Payload bytes sent to tunneled nodes.", cm.TunnelBytesOut.Load)
	m.gauge("primary", "known_nodes", "Nodes currently known.", func() float64 {
		return float64(cm.KnownGauge.Load())
	})
	m.gauge("primary", "tunnel_open", "1 while a tunnel is open.", func() float64 {
		if c.TunnelStatus().Connected() {
			return 1
		}
		return 0
	})
}

func (m *metricSet) addAgent(a *secondary.Agent) {
	am := a.GetMetrics()
	m.counter("secondary", "frames_received_total", "Frames addressed to this node.", am.FrameRecvCount.Load)
	m.counter("secondary", "header_skips_total", "Frames skipped for a header mismatch.", am.HeaderSkipCount.Load)
	m.counter("secondary", "protocol_errors_total", "Commands not valid in the current mode.", am.ProtocolErrCount.Load)
	m.counter("secondary", "acks_sent_total", "Acks sent.", am.AckSendCount.Load)
	m.counter("secondary", "hello_defers_total", "Registration broadcasts left unanswered by the backoff.", am.HelloDeferCount.Load)
	m.counter("secondary", "tunnels_opened_total", "Tunnels accepted.", am.TunnelOpenCount.Load)
	m.counter("secondary", "tunnel_bytes_in_total", "Payload bytes received from the primary.", am.TunnelBytesIn.Load)
	m.counter("secondary", "tunnel_bytes_out_total", "Payload bytes sent to the primary.", am.TunnelBytesOut.Load)
	m.gauge("secondary", "registered", "1 once the node has an address.", func() float64 {
		if a.Registered() {
			return 1
		}
		return 0
	})
}

func (m *metricSet) addGateway(s *gateway.Server) {
	gm := s.GetMetrics()
	m.counter("gateway", "accepts_total", "Client connections accepted.", gm.AcceptCount.Load)
	m.counter("gateway", "refusals_total", "Connections refused at the session limit.", gm.RefuseCount.Load)
	m.counter("gateway", "rejects_total", "Tunnel requests the controller refused.", gm.RejectCount.Load)
	m.counter("gateway", "tunnels_total", "Tunnel requests the controller took.", gm.TunnelCount.Load)
	m.gauge("gateway", "sessions", "Connected clients.", func() float64 {
		return float64(s.ActiveSessions())
	})
}

func (m *metricSet) addReporter(r *report.Reporter) {
	m.counter("report", "published_total", "Node status messages published.", r.PublishCount)
	m.counter("report", "failures_total", "Failed publish attempts.", r.FailCount)
}

// serve runs the metrics endpoint until ctx is done.
func (m *metricSet) serve(ctx context.Context, address, path string, l logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return err
	}
	l.Info("nodebus: metrics listening", "address", ln.Addr().String(), "path", path)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
