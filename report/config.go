package report

import (
	"errors"
	"strings"
	"time"

	"github.com/arloliu/go-nodebus/logger"
)

// Defaults.
const (
	DefaultTopicPrefix = "nodebus/nodes"
	DefaultInterval    = time.Second
)

// Config holds the configuration of a Reporter.
type Config struct {
	topicPrefix string
	interval    time.Duration
	logger      logger.Logger
}

// NewConfig creates a reporter configuration with defaults applied and opts
// applied in order.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		topicPrefix: DefaultTopicPrefix,
		interval:    DefaultInterval,
		logger:      logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// TopicPrefix returns the topic under which per-node messages are published.
func (cfg *Config) TopicPrefix() string { return cfg.topicPrefix }

// Interval returns the spacing between two flushes.
func (cfg *Config) Interval() time.Duration { return cfg.interval }

// Option is a functional option for configuring a Reporter.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithTopicPrefix sets the topic prefix; node n publishes to "<prefix>/n".
func WithTopicPrefix(prefix string) Option {
	return optFunc(func(cfg *Config) error {
		prefix = strings.TrimRight(prefix, "/")
		if prefix == "" {
			return errors.New("report: topic prefix must not be empty")
		}
		if strings.ContainsAny(prefix, "+#") {
			return errors.New("report: topic prefix must not contain wildcards")
		}
		cfg.topicPrefix = prefix

		return nil
	})
}

// WithInterval sets the spacing between two flushes.
func WithInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return errors.New("report: interval must be positive")
		}
		cfg.interval = d

		return nil
	})
}

// WithLogger sets the logger for the reporter.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("report: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
