package report

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-nodebus/bus"
	"github.com/arloliu/go-nodebus/logger"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(topic string, payload []byte) error {
	args := m.Called(topic, string(payload))
	return args.Error(0)
}

type fakeSource struct {
	mu    sync.Mutex
	known bus.ChildSet
	dirty bus.ChildSet
}

func (s *fakeSource) Known() bus.ChildSet {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.known
}

func (s *fakeSource) Dirty() bus.ChildSet {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.dirty
}

func (s *fakeSource) ClearDirty(mask bus.ChildSet) bus.ChildSet {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := s.dirty & mask
	s.dirty &^= mask

	return cleared
}

func newTestReporter(t *testing.T, src Source, pub Publisher, opts ...Option) *Reporter {
	t.Helper()

	opts = append([]Option{WithLogger(logger.NewSlogWriter(io.Discard, logger.ErrorLevel, false))}, opts...)
	r, err := NewReporter(src, pub, opts...)
	require.NoError(t, err)

	return r
}

func TestReporter_FlushPublishesDirtyNodes(t *testing.T) {
	src := &fakeSource{
		known: bus.ChildSet(0).With(1).With(4),
		dirty: bus.ChildSet(0).With(1).With(2),
	}
	pub := &mockPublisher{}
	pub.On("Publish", "site/a/1", `{"address":1,"online":true}`).Return(nil).Once()
	pub.On("Publish", "site/a/2", `{"address":2,"online":false}`).Return(nil).Once()

	r := newTestReporter(t, src, pub, WithTopicPrefix("site/a/"))
	require.NoError(t, r.Flush())

	pub.AssertExpectations(t)
	assert.Zero(t, src.Dirty())
	assert.Equal(t, uint64(2), r.PublishCount())

	// Nothing changed: nothing published.
	require.NoError(t, r.Flush())
	pub.AssertNumberOfCalls(t, "Publish", 2)
}

func TestReporter_FailedPublishIsRetried(t *testing.T) {
	src := &fakeSource{dirty: bus.ChildSet(0).With(3)}
	pub := &mockPublisher{}
	pub.On("Publish", "nodebus/nodes/3", `{"address":3,"online":false}`).Return(errors.New("offline")).Once()

	r := newTestReporter(t, src, pub)
	err := r.Flush()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node 3")
	assert.Equal(t, uint64(1), r.FailCount())
	assert.Zero(t, src.Dirty())

	// The node came back meanwhile; the retry carries the current state.
	src.mu.Lock()
	src.known = src.known.With(3)
	src.mu.Unlock()
	pub.On("Publish", "nodebus/nodes/3", `{"address":3,"online":true}`).Return(nil).Once()

	require.NoError(t, r.Flush())
	pub.AssertExpectations(t)
	assert.Equal(t, uint64(1), r.PublishCount())
}

func TestReporter_RunFlushesOnCancel(t *testing.T) {
	src := &fakeSource{known: bus.ChildSet(0).With(0), dirty: bus.ChildSet(0).With(0)}
	pub := &mockPublisher{}
	pub.On("Publish", "nodebus/nodes/0", `{"address":0,"online":true}`).Return(nil)

	r := newTestReporter(t, src, pub, WithInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, r.Run(ctx), context.Canceled)
	pub.AssertNumberOfCalls(t, "Publish", 1)
}

func TestReporter_RunPeriodic(t *testing.T) {
	src := &fakeSource{dirty: bus.ChildSet(0).With(5)}
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil)

	r := newTestReporter(t, src, pub, WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return r.PublishCount() == 1 }, time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestNewReporter_Invalid(t *testing.T) {
	_, err := NewReporter(nil, &mockPublisher{})
	require.Error(t, err)
	_, err = NewReporter(&fakeSource{}, nil)
	require.Error(t, err)
	_, err = NewReporter(&fakeSource{}, &mockPublisher{}, WithTopicPrefix("/"))
	require.Error(t, err)
	_, err = NewReporter(&fakeSource{}, &mockPublisher{}, WithTopicPrefix("a/#"))
	require.Error(t, err)
	_, err = NewReporter(&fakeSource{}, &mockPublisher{}, WithInterval(0))
	require.Error(t, err)
}

func TestNewMQTTPublisher(t *testing.T) {
	_, err := NewMQTTPublisher(MQTTConfig{}, nil)
	require.Error(t, err)
	_, err = NewMQTTPublisher(MQTTConfig{Broker: "tcp://localhost:1883", QoS: 3}, nil)
	require.Error(t, err)

	p, err := NewMQTTPublisher(MQTTConfig{Broker: "tcp://localhost:1883"}, nil)
	require.NoError(t, err)
	assert.False(t, p.IsConnected())
	assert.NotEmpty(t, p.cfg.ClientID)
	p.Close()
}
