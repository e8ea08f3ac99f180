package line

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-nodebus/logger"
)

// BitsPerSymbol is the on-wire size of one character: start bit, 8 data
// bits, marker bit, stop bit.
const BitsPerSymbol = 11

// Defaults and limits.
const (
	DefaultBaudRate = 9600
	MinBaudRate     = 300
	MaxBaudRate     = 4_000_000

	MinByteTime = 2 * time.Microsecond
	MaxByteTime = 50 * time.Millisecond

	DefaultRxBufferSize = 256
)

// Config holds the timing configuration of one Framer.
//
// All thresholds derive from the byte time, which must match the actual
// transport; it is configuration, never a protocol constant.
type Config struct {
	byteTime     Tick
	rxBufferSize int
	logger       logger.Logger
}

// NewConfig creates a line configuration. The byte time defaults to
// DefaultBaudRate; opts are applied in order.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		byteTime:     byteTimeOf(DefaultBaudRate),
		rxBufferSize: DefaultRxBufferSize,
		logger:       logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func byteTimeOf(baud int) Tick {
	// Round up so the thresholds never undershoot the real character time.
	return Tick((BitsPerSymbol*1_000_000 + baud - 1) / baud) //nolint:gosec // baud range checked
}

// ByteTime returns the duration of one character on the wire.
func (cfg *Config) ByteTime() Tick { return cfg.byteTime }

// MarkThreshold returns the idle time (3.5 byte times) after which the line
// is considered resynchronized.
func (cfg *Config) MarkThreshold() Tick { return cfg.byteTime * 7 / 2 }

// EngageGap returns the quiet time required before taking the driver. It
// exceeds the peer's disengage delay so the peer has released the line.
func (cfg *Config) EngageGap() Tick { return cfg.byteTime * 2 }

// EngageDelay returns the settle time between enabling the driver and the first bit.
func (cfg *Config) EngageDelay() Tick { return cfg.byteTime }

// DisengageDelay returns the hold time after the last bit before releasing the driver.
func (cfg *Config) DisengageDelay() Tick { return cfg.byteTime }

// PollInterval returns the maximum spacing between Poll calls while a packet
// may be in flight.
func (cfg *Config) PollInterval() Tick {
	if cfg.byteTime < 2 {
		return 1
	}

	return cfg.byteTime / 2
}

// RxBufferSize returns the initial software receive buffer capacity.
func (cfg *Config) RxBufferSize() int { return cfg.rxBufferSize }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// Option is a functional option for configuring a line Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithBaudRate derives the byte time from a symbol rate in bits per second.
func WithBaudRate(baud int) Option {
	return optFunc(func(cfg *Config) error {
		if baud < MinBaudRate || baud > MaxBaudRate {
			return fmt.Errorf("line: baud rate %d out of range [%d, %d]", baud, MinBaudRate, MaxBaudRate)
		}
		cfg.byteTime = byteTimeOf(baud)

		return nil
	})
}

// WithByteTime sets the byte time directly, for transports without a fixed baud rate.
func WithByteTime(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinByteTime || d > MaxByteTime {
			return fmt.Errorf("line: byte time %v out of range [%v, %v]", d, MinByteTime, MaxByteTime)
		}
		cfg.byteTime = TicksOf(d)

		return nil
	})
}

// WithRxBufferSize sets the initial software receive buffer capacity.
func WithRxBufferSize(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 {
			return errors.New("line: rx buffer size must be >= 1")
		}
		cfg.rxBufferSize = n

		return nil
	})
}

// WithLogger sets the logger for the framer.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("line: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
