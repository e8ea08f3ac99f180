package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-nodebus/bus"
	"github.com/arloliu/go-nodebus/logger"
)

// Source is the membership view a Reporter consumes. primary.Controller
// implements it.
type Source interface {
	Known() bus.ChildSet
	Dirty() bus.ChildSet
	ClearDirty(mask bus.ChildSet) bus.ChildSet
}

// Publisher sends one message.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// NodeStatus is the message published for a changed node.
type NodeStatus struct {
	Address bus.Address `json:"address"`
	Online  bool        `json:"online"`
}

// Reporter publishes dirty nodes from a Source.
type Reporter struct {
	src    Source
	pub    Publisher
	cfg    *Config
	logger logger.Logger

	mu sync.Mutex
	// retry holds nodes taken from the dirty set whose publish failed.
	retry bus.ChildSet

	publishCount atomic.Uint64
	failCount    atomic.Uint64
}

// NewReporter creates a reporter publishing changes of src through pub.
func NewReporter(src Source, pub Publisher, opts ...Option) (*Reporter, error) {
	if src == nil {
		return nil, errors.New("report: source is nil")
	}
	if pub == nil {
		return nil, errors.New("report: publisher is nil")
	}

	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	return &Reporter{
		src:    src,
		pub:    pub,
		cfg:    cfg,
		logger: cfg.logger.With("component", "report"),
	}, nil
}

// PublishCount returns the number of messages published.
func (r *Reporter) PublishCount() uint64 { return r.publishCount.Load() }

// FailCount returns the number of failed publish attempts.
func (r *Reporter) FailCount() uint64 { return r.failCount.Load() }

// Topic returns the topic of addr.
func (r *Reporter) Topic(addr bus.Address) string {
	return fmt.Sprintf("%s/%d", r.cfg.topicPrefix, addr)
}

// Flush publishes every node changed since the last flush. Nodes whose
// publish fails are retried by the next flush; the first error is returned.
func (r *Reporter) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Clear first so a change racing with the publish marks the node again.
	changed := r.src.ClearDirty(r.src.Dirty()) | r.retry
	if changed == 0 {
		return nil
	}
	known := r.src.Known()
	r.retry = 0

	var firstErr error
	for _, addr := range changed.Addresses() {
		msg := NodeStatus{Address: addr, Online: known.Has(addr)}
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}

		if err := r.pub.Publish(r.Topic(addr), payload); err != nil {
			r.failCount.Add(1)
			r.retry = r.retry.With(addr)
			if firstErr == nil {
				firstErr = fmt.Errorf("report: publish node %d: %w", addr, err)
			}

			continue
		}
		r.publishCount.Add(1)
		r.logger.Debug("nodebus: node status published", "address", addr, "online", msg.Online)
	}

	return firstErr
}

// Run flushes every interval until ctx is done, then flushes once more.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := r.Flush(); err != nil {
				r.logger.Warn("nodebus: final report flush failed", "error", err)
			}

			return ctx.Err()
		case <-ticker.C:
			if err := r.Flush(); err != nil {
				r.logger.Warn("nodebus: report flush failed", "error", err)
			}
		}
	}
}
