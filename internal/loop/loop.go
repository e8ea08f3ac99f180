// Package loop drives a non-blocking bus state machine from one goroutine
// and runs calls from other goroutines on that goroutine.
package loop

import (
	"context"
	"errors"
	"time"

	"github.com/arloliu/go-nodebus/internal/pool"
)

// ErrStopped is returned by Do once Run has returned.
var ErrStopped = errors.New("loop: stopped")

// StepFunc advances the state machine once. busy asks for the fast cadence.
type StepFunc func() (busy bool, err error)

// Loop paces a StepFunc: every fast interval while busy, every slow interval
// otherwise.
type Loop struct {
	step StepFunc
	fast time.Duration
	slow time.Duration

	reqCh chan func()
	done  chan struct{}
}

// New creates a loop around step. slow is raised to fast when smaller.
func New(step StepFunc, fast, slow time.Duration) *Loop {
	if fast <= 0 {
		fast = time.Millisecond
	}
	if slow < fast {
		slow = fast
	}

	return &Loop{
		step:  step,
		fast:  fast,
		slow:  slow,
		reqCh: make(chan func()),
		done:  make(chan struct{}),
	}
}

// Run steps until ctx is done or step fails. It returns ctx.Err() or the step error.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	for {
		busy, err := l.step()
		if err != nil {
			return err
		}

		wait := l.slow
		if busy {
			wait = l.fast
		}

		timer := pool.GetTimer(wait)
		select {
		case <-ctx.Done():
			pool.PutTimer(timer)
			return ctx.Err()
		case fn := <-l.reqCh:
			fn()
		case <-timer.C:
		}
		pool.PutTimer(timer)
	}
}

// Do runs fn on the loop goroutine and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	call := func() {
		defer close(finished)
		fn()
	}

	select {
	case l.reqCh <- call:
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	<-finished

	return nil
}

// Done is closed when Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
