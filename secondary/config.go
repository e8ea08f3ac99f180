package secondary

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/arloliu/go-nodebus/logger"
	"github.com/arloliu/go-nodebus/tunnel"
)

// Defaults.
const (
	DefaultHelloProbability = 0.5
	DefaultMaxBurst         = 64

	// DefaultIdleHoldoffBytes is the idle hold-off, in byte times, when none
	// is configured.
	DefaultIdleHoldoffBytes = 8
	// DefaultTunnelTimeoutBytes is how many byte times the agent waits for
	// the primary inside a tunnel before dropping it.
	DefaultTunnelTimeoutBytes = 256

	MaxBurst = 4096
)

// Acceptor supplies the local endpoint of a tunnel opened by the primary.
type Acceptor interface {
	AcceptTunnel() tunnel.Endpoint
}

// AcceptorFunc adapts a function to Acceptor.
type AcceptorFunc func() tunnel.Endpoint

func (f AcceptorFunc) AcceptTunnel() tunnel.Endpoint { return f() }

// Config holds the configuration of an Agent.
type Config struct {
	helloProbability float64
	rand             *rand.Rand
	acceptor         Acceptor
	maxBurst         int
	idleHoldoff      time.Duration
	tunnelTimeout    time.Duration
	logger           logger.Logger
}

// NewConfig creates an agent configuration with defaults applied and opts
// applied in order.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		helloProbability: DefaultHelloProbability,
		maxBurst:         DefaultMaxBurst,
		acceptor:         EchoAcceptor(),
		logger:           logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.rand == nil {
		cfg.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // backoff jitter
	}

	return cfg, nil
}

// HelloProbability returns the chance of answering one ReadyForHello.
func (cfg *Config) HelloProbability() float64 { return cfg.helloProbability }

// MaxBurst returns the tunnel payload bytes sent before passing the floor.
func (cfg *Config) MaxBurst() int { return cfg.maxBurst }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// Option is a functional option for configuring an agent Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithHelloProbability sets the chance of answering a ReadyForHello
// broadcast. Below 1 several unregistered nodes spread their answers over
// scan cycles instead of colliding every time.
func WithHelloProbability(p float64) Option {
	return optFunc(func(cfg *Config) error {
		if p <= 0 || p > 1 {
			return fmt.Errorf("secondary: hello probability %v out of range (0, 1]", p)
		}
		cfg.helloProbability = p

		return nil
	})
}

// WithSeed makes the hello backoff deterministic.
func WithSeed(seed uint64) Option {
	return optFunc(func(cfg *Config) error {
		cfg.rand = rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15)) //nolint:gosec // backoff jitter

		return nil
	})
}

// WithAcceptor sets the source of tunnel endpoints.
func WithAcceptor(a Acceptor) Option {
	return optFunc(func(cfg *Config) error {
		if a == nil {
			return errors.New("secondary: acceptor must not be nil")
		}
		cfg.acceptor = a

		return nil
	})
}

// WithMaxBurst sets the tunnel payload bytes sent before passing the floor.
func WithMaxBurst(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 || n > MaxBurst {
			return fmt.Errorf("secondary: max burst %d out of range [1, %d]", n, MaxBurst)
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
			return errors.New("secondary: idle hold-off must be positive")
		}
		cfg.idleHoldoff = d

		return nil
	})
}

// WithTunnelTimeout sets how long the agent waits for the primary inside a
// tunnel before dropping it locally.
func WithTunnelTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return errors.New("secondary: tunnel timeout must be positive")
		}
		cfg.tunnelTimeout = d

		return nil
	})
}

// WithLogger sets the logger for the agent.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("secondary: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
