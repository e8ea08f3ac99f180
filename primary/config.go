package primary

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-nodebus/bus"
	"github.com/arloliu/go-nodebus/logger"
)

// Defaults.
const (
	DefaultAckMultiplier = 4
	DefaultMaxBurst      = 64

	// DefaultSocketTimeoutFactor scales the ack timeout into the tunnel
	// inactivity timeout when none is configured.
	DefaultSocketTimeoutFactor = 4
	// DefaultIdleHoldoffBytes is the idle hold-off, in byte times, when none
	// is configured.
	DefaultIdleHoldoffBytes = 8

	MaxAckMultiplier = 64
	MaxBurst         = 4096
)

// Config holds the configuration of a Controller.
type Config struct {
	maxChildren   int
	ackMultiplier int
	scanInterval  time.Duration
	socketTimeout time.Duration
	maxBurst      int
	idleHoldoff   time.Duration
	logger        logger.Logger
}

// NewConfig creates a controller configuration with defaults applied and
// opts applied in order.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		maxChildren:   bus.MaxChildren,
		ackMultiplier: DefaultAckMultiplier,
		maxBurst:      DefaultMaxBurst,
		logger:        logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// MaxChildren returns the number of addresses polled per scan cycle.
func (cfg *Config) MaxChildren() int { return cfg.maxChildren }

// AckMultiplier returns the safety multiplier of the ack timeout.
func (cfg *Config) AckMultiplier() int { return cfg.ackMultiplier }

// ScanInterval returns the minimum spacing between two polls.
func (cfg *Config) ScanInterval() time.Duration { return cfg.scanInterval }

// SocketTimeout returns the configured tunnel inactivity timeout; zero means
// derived from the ack timeout.
func (cfg *Config) SocketTimeout() time.Duration { return cfg.socketTimeout }

// MaxBurst returns the tunnel payload bytes sent before passing the floor.
func (cfg *Config) MaxBurst() int { return cfg.maxBurst }

// IdleHoldoff returns the configured tunnel idle hold-off; zero means derived
// from the byte time.
func (cfg *Config) IdleHoldoff() time.Duration { return cfg.idleHoldoff }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// Option is a functional option for configuring a controller Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithMaxChildren sets the number of addresses in the scan cycle.
func WithMaxChildren(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 || n > bus.MaxChildren {
			return fmt.Errorf("primary: max children %d out of range [1, %d]", n, bus.MaxChildren)
		}
		cfg.maxChildren = n

		return nil
	})
}

// WithAckMultiplier sets the safety multiplier applied to the ack frame time.
func WithAckMultiplier(m int) Option {
	return optFunc(func(cfg *Config) error {
		if m < 1 || m > MaxAckMultiplier {
			return fmt.Errorf("primary: ack multiplier %d out of range [1, %d]", m, MaxAckMultiplier)
		}
		cfg.ackMultiplier = m

		return nil
	})
}

// WithScanInterval sets the minimum spacing between two polls.
func WithScanInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 {
			return errors.New("primary: scan interval must not be negative")
		}
		cfg.scanInterval = d

		return nil
	})
}

// WithSocketTimeout sets how long the connected node may hold the floor
// silently before the tunnel is aborted. It must exceed the ack timeout,
// which is checked when the controller is created.
func WithSocketTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return errors.New("primary: socket timeout must be positive")
		}
		cfg.socketTimeout = d

		return nil
	})
}

// WithMaxBurst sets the tunnel payload bytes sent before passing the floor.
func WithMaxBurst(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 || n > MaxBurst {
			return fmt.Errorf("primary: max burst %d out of range [1, %d]", n, MaxBurst)
		}
		cfg.maxBurst = n

		return nil
	})
}

// WithIdleHoldoff sets how long the floor holder waits for tunnel data before
// passing the floor with Idle.
func WithIdleHoldoff(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return errors.New("primary: idle hold-off must be positive")
		}
		cfg.idleHoldoff = d

		return nil
	})
}

// WithLogger sets the logger for the controller.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("primary: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
