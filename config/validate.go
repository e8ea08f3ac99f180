package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/arloliu/go-nodebus/bus"
	"github.com/arloliu/go-nodebus/line"
	"github.com/arloliu/go-nodebus/primary"
	"github.com/arloliu/go-nodebus/secondary"
)

// Validate checks a normalized configuration. It does not mutate it.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil config")
	}

	switch cfg.Role {
	case RolePrimary, RoleSecondary:
		if cfg.Line.Device == "" {
			return fmt.Errorf("config: line.device is required for role %q", cfg.Role)
		}
	case RoleSim:
	default:
		return fmt.Errorf("config: unknown role %q (want primary, secondary or sim)", cfg.Role)
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log.level %q", cfg.Log.Level)
	}

	if cfg.Line.ByteTimeUs < 0 {
		return errors.New("config: line.byte_time_us must not be negative")
	}
	if cfg.Line.ByteTimeUs == 0 && (cfg.Line.Baud < line.MinBaudRate || cfg.Line.Baud > line.MaxBaudRate) {
		return fmt.Errorf("config: line.baud %d out of range [%d, %d]", cfg.Line.Baud, line.MinBaudRate, line.MaxBaudRate)
	}

	if err := validatePrimary(&cfg.Primary); err != nil {
		return err
	}
	if err := validateSecondary(&cfg.Secondary); err != nil {
		return err
	}

	if cfg.Gateway.MaxSessions < 1 || cfg.Gateway.HandshakeTimeoutMs < 1 {
		return errors.New("config: gateway.max_sessions and gateway.handshake_timeout_ms must be positive")
	}
	if cfg.Gateway.Listen != "" && cfg.Role == RoleSecondary {
		return errors.New("config: gateway.listen is only valid for the primary and sim roles")
	}

	if cfg.MQTT.Broker != "" {
		if cfg.Role == RoleSecondary {
			return errors.New("config: mqtt is only valid for the primary and sim roles")
		}
		if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
			return fmt.Errorf("config: mqtt.qos %d out of range [0, 2]", cfg.MQTT.QoS)
		}
		if cfg.MQTT.IntervalMs < 1 {
			return errors.New("config: mqtt.interval_ms must be positive")
		}
	}

	if cfg.Metrics.Listen != "" && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("config: metrics.path %q must start with /", cfg.Metrics.Path)
	}

	if cfg.Role == RoleSim && (cfg.Sim.Nodes < 1 || cfg.Sim.Nodes > cfg.Primary.MaxChildren) {
		return fmt.Errorf("config: sim.nodes %d out of range [1, %d]", cfg.Sim.Nodes, cfg.Primary.MaxChildren)
	}

	return nil
}

func validatePrimary(p *PrimaryConfig) error {
	if p.MaxChildren < 1 || p.MaxChildren > bus.MaxChildren {
		return fmt.Errorf("config: primary.max_children %d out of range [1, %d]", p.MaxChildren, bus.MaxChildren)
	}
	if p.AckMultiplier < 1 || p.AckMultiplier > primary.MaxAckMultiplier {
		return fmt.Errorf("config: primary.ack_multiplier %d out of range [1, %d]", p.AckMultiplier, primary.MaxAckMultiplier)
	}
	if p.MaxBurst < 1 || p.MaxBurst > primary.MaxBurst {
		return fmt.Errorf("config: primary.max_burst %d out of range [1, %d]", p.MaxBurst, primary.MaxBurst)
	}
	if p.ScanIntervalMs < 0 || p.SocketTimeoutMs < 0 || p.IdleHoldoffMs < 0 {
		return errors.New("config: primary timing values must not be negative")
	}

	return nil
}

func validateSecondary(s *SecondaryConfig) error {
	if s.HelloProbability <= 0 || s.HelloProbability > 1 {
		return fmt.Errorf("config: secondary.hello_probability %v out of range (0, 1]", s.HelloProbability)
	}
	if s.MaxBurst < 1 || s.MaxBurst > secondary.MaxBurst {
		return fmt.Errorf("config: secondary.max_burst %d out of range [1, %d]", s.MaxBurst, secondary.MaxBurst)
	}
	if s.IdleHoldoffMs < 0 || s.TunnelTimeoutMs < 0 {
		return errors.New("config: secondary timing values must not be negative")
	}

	return nil
}
