package loop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_RunsCallsOnLoop(t *testing.T) {
	var steps atomic.Int64

	l := New(func() (bool, error) {
		steps.Add(1)

		return false, nil
	}, time.Millisecond, 2*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	value := 0
	require.NoError(t, l.Do(ctx, func() { value = 42 }))
	assert.Equal(t, 42, value)

	require.Eventually(t, func() bool { return steps.Load() > 3 }, time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	require.ErrorIs(t, l.Do(context.Background(), func() {}), ErrStopped)
}

func TestLoop_StepError(t *testing.T) {
	boom := errors.New("boom")
	n := 0
	l := New(func() (bool, error) {
		n++
		if n == 3 {
			return false, boom
		}

		return true, nil
	}, time.Millisecond, time.Millisecond)

	require.ErrorIs(t, l.Run(context.Background()), boom)
	assert.Equal(t, 3, n)

	select {
	case <-l.Done():
	default:
		t.Fatal("done not closed")
	}
}
