package primary

import (
	"context"

	"github.com/arloliu/go-nodebus/bus"
	"github.com/arloliu/go-nodebus/internal/loop"
	"github.com/arloliu/go-nodebus/tunnel"
)

// idleStepFactor scales the framer poll interval into the step interval used
// while nothing is in flight.
const idleStepFactor = 4

// Runner drives a Controller from its own goroutine and makes its tunnel
// operations safe to call from any goroutine.
type Runner struct {
	ctrl *Controller
	loop *loop.Loop
}

// NewRunner creates a runner for c. Call Run to start it.
func NewRunner(c *Controller) *Runner {
	fast := c.framer.Config().PollInterval().Duration()

	return &Runner{
		ctrl: c,
		loop: loop.New(c.Step, fast, fast*idleStepFactor),
	}
}

// Controller returns the driven controller. Only its goroutine-safe methods
// may be used while the runner is running.
func (r *Runner) Controller() *Controller { return r.ctrl }

// Run steps the controller until ctx is done or the line fails. On return any
// tunnel is aborted.
func (r *Runner) Run(ctx context.Context) error {
	err := r.loop.Run(ctx)
	r.ctrl.Shutdown()

	if err != nil && ctx.Err() == nil {
		r.ctrl.logger.Error("nodebus: controller stopped", "error", err)
	}

	return err
}

// RequestTunnel asks for a tunnel to addr bridged to ep.
func (r *Runner) RequestTunnel(ctx context.Context, addr bus.Address, ep tunnel.Endpoint) error {
	var err error
	if doErr := r.loop.Do(ctx, func() { err = r.ctrl.RequestTunnel(addr, ep) }); doErr != nil {
		return doErr
	}

	return err
}

// AbortTunnel drops a pending tunnel request or aborts the open tunnel.
func (r *Runner) AbortTunnel(ctx context.Context) error {
	return r.loop.Do(ctx, r.ctrl.AbortTunnel)
}

// Done is closed when Run has returned.
func (r *Runner) Done() <-chan struct{} {
	return r.loop.Done()
}
