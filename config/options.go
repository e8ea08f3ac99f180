package config

import (
	"time"

	"github.com/arloliu/go-nodebus/gateway"
	"github.com/arloliu/go-nodebus/line"
	"github.com/arloliu/go-nodebus/logger"
	"github.com/arloliu/go-nodebus/primary"
	"github.com/arloliu/go-nodebus/report"
	"github.com/arloliu/go-nodebus/secondary"
)

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// ByteTime returns the configured byte time: ByteTimeUs when set, else the
// time of one 11-bit character at Baud.
func (c LineConfig) ByteTime() time.Duration {
	if c.ByteTimeUs > 0 {
		return time.Duration(c.ByteTimeUs) * time.Microsecond
	}

	us := (line.BitsPerSymbol*1_000_000 + c.Baud - 1) / c.Baud

	return time.Duration(us) * time.Microsecond
}

// LineOptions returns the framer options.
func (c LineConfig) LineOptions(l logger.Logger) []line.Option {
	opts := []line.Option{line.WithLogger(l)}
	if c.ByteTimeUs > 0 {
		return append(opts, line.WithByteTime(c.ByteTime()))
	}

	return append(opts, line.WithBaudRate(c.Baud))
}

// Options returns the controller options.
func (c PrimaryConfig) Options(l logger.Logger) []primary.Option {
	opts := []primary.Option{
		primary.WithLogger(l),
		primary.WithMaxChildren(c.MaxChildren),
		primary.WithAckMultiplier(c.AckMultiplier),
		primary.WithScanInterval(ms(c.ScanIntervalMs)),
		primary.WithMaxBurst(c.MaxBurst),
	}
	if c.SocketTimeoutMs > 0 {
		opts = append(opts, primary.WithSocketTimeout(ms(c.SocketTimeoutMs)))
	}
	if c.IdleHoldoffMs > 0 {
		opts = append(opts, primary.WithIdleHoldoff(ms(c.IdleHoldoffMs)))
	}

	return opts
}

// Options returns the agent options. Tunnels go to Service when set and are
// echoed otherwise.
func (c SecondaryConfig) Options(l logger.Logger) []secondary.Option {
	opts := []secondary.Option{
		secondary.WithLogger(l),
		secondary.WithHelloProbability(c.HelloProbability),
		secondary.WithMaxBurst(c.MaxBurst),
	}
	if c.IdleHoldoffMs > 0 {
		opts = append(opts, secondary.WithIdleHoldoff(ms(c.IdleHoldoffMs)))
	}
	if c.TunnelTimeoutMs > 0 {
		opts = append(opts, secondary.WithTunnelTimeout(ms(c.TunnelTimeoutMs)))
	}
	if c.Service != "" {
		opts = append(opts, secondary.WithAcceptor(secondary.DialAcceptor(c.Service, 5*time.Second, l)))
	}

	return opts
}

// Options returns the gateway server options.
func (c GatewayConfig) Options(l logger.Logger) []gateway.Option {
	return []gateway.Option{
		gateway.WithLogger(l),
		gateway.WithMaxSessions(c.MaxSessions),
		gateway.WithHandshakeTimeout(ms(c.HandshakeTimeoutMs)),
	}
}

// ReporterOptions returns the reporter options.
func (c MQTTConfig) ReporterOptions(l logger.Logger) []report.Option {
	return []report.Option{
		report.WithLogger(l),
		report.WithTopicPrefix(c.TopicPrefix),
		report.WithInterval(ms(c.IntervalMs)),
	}
}

// Publisher returns the broker settings of the MQTT publisher.
func (c MQTTConfig) Publisher() report.MQTTConfig {
	return report.MQTTConfig{
		Broker:   c.Broker,
		ClientID: c.ClientID,
		Username: c.Username,
		Password: c.Password,
		QoS:      byte(c.QoS), //nolint:gosec // validated range
		Retained: c.Retained,
	}
}
