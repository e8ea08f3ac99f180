package config

import (
	"strings"

	"github.com/arloliu/go-nodebus/bus"
	"github.com/arloliu/go-nodebus/gateway"
	"github.com/arloliu/go-nodebus/line"
	"github.com/arloliu/go-nodebus/primary"
	"github.com/arloliu/go-nodebus/report"
	"github.com/arloliu/go-nodebus/secondary"
)

// DefaultSimNodes is the number of simulated secondaries when none is set.
const DefaultSimNodes = 4

// Normalize fills unset fields with defaults. It is called before Validate
// so that zero values are never mistaken for bad input.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	cfg.Role = strings.ToLower(strings.TrimSpace(cfg.Role))
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.Line.Baud == 0 && cfg.Line.ByteTimeUs == 0 {
		cfg.Line.Baud = line.DefaultBaudRate
	}

	p := &cfg.Primary
	if p.MaxChildren == 0 {
		p.MaxChildren = bus.MaxChildren
	}
	if p.AckMultiplier == 0 {
		p.AckMultiplier = primary.DefaultAckMultiplier
	}
	if p.MaxBurst == 0 {
		p.MaxBurst = primary.DefaultMaxBurst
	}

	s := &cfg.Secondary
	if s.HelloProbability == 0 {
		s.HelloProbability = secondary.DefaultHelloProbability
	}
	if s.MaxBurst == 0 {
		s.MaxBurst = secondary.DefaultMaxBurst
	}
	if s.StorePath == "" {
		s.StorePath = "nodebus-data"
	}

	g := &cfg.Gateway
	if g.MaxSessions == 0 {
		g.MaxSessions = gateway.DefaultMaxSessions
	}
	if g.HandshakeTimeoutMs == 0 {
		g.HandshakeTimeoutMs = int(gateway.DefaultHandshakeTimeout.Milliseconds())
	}

	m := &cfg.MQTT
	if m.TopicPrefix == "" {
		m.TopicPrefix = report.DefaultTopicPrefix
	}
	if m.IntervalMs == 0 {
		m.IntervalMs = int(report.DefaultInterval.Milliseconds())
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Sim.Nodes == 0 {
		cfg.Sim.Nodes = DefaultSimNodes
	}
}
