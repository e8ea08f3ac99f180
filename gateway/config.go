package gateway

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-nodebus/logger"
)

// Defaults.
const (
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultAcceptTimeout    = time.Second
	DefaultMaxSessions      = 16

	MaxSessions = 1024
)

// Config holds the configuration of a Server.
type Config struct {
	handshakeTimeout time.Duration
	acceptTimeout    time.Duration
	maxSessions      int
	logger           logger.Logger
}

// NewConfig creates a server configuration with defaults applied and opts
// applied in order.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		handshakeTimeout: DefaultHandshakeTimeout,
		acceptTimeout:    DefaultAcceptTimeout,
		maxSessions:      DefaultMaxSessions,
		logger:           logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// HandshakeTimeout returns how long a new client has to send the address byte.
func (cfg *Config) HandshakeTimeout() time.Duration { return cfg.handshakeTimeout }

// AcceptTimeout returns the listener deadline used to notice cancellation.
func (cfg *Config) AcceptTimeout() time.Duration { return cfg.acceptTimeout }

// MaxSessions returns the number of client connections served at once.
func (cfg *Config) MaxSessions() int { return cfg.maxSessions }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// Option is a functional option for configuring a Server.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithHandshakeTimeout sets how long a new client has to send the address byte.
func WithHandshakeTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return errors.New("gateway: handshake timeout must be positive")
		}
		cfg.handshakeTimeout = d

		return nil
	})
}

// WithAcceptTimeout sets the listener deadline used to notice cancellation.
func WithAcceptTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return errors.New("gateway: accept timeout must be positive")
		}
		cfg.acceptTimeout = d

		return nil
	})
}

// WithMaxSessions limits the client connections served at once; extra
// connections are closed right after accept.
func WithMaxSessions(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 || n > MaxSessions {
			return fmt.Errorf("gateway: max sessions %d out of range [1, %d]", n, MaxSessions)
		}
		cfg.maxSessions = n

		return nil
	})
}

// WithLogger sets the logger for the server.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("gateway: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
