package secondary

import (
	"context"

	"github.com/arloliu/go-nodebus/internal/loop"
)

// idleStepFactor scales the framer poll interval into the step interval used
// while the line is quiet.
const idleStepFactor = 4

// Runner drives an Agent from its own goroutine.
type Runner struct {
	agent *Agent
	loop  *loop.Loop
}

// NewRunner creates a runner for a. Call Run to start it.
func NewRunner(a *Agent) *Runner {
	fast := a.framer.Config().PollInterval().Duration()

	return &Runner{
		agent: a,
		loop:  loop.New(a.Step, fast, fast*idleStepFactor),
	}
}

// Agent returns the driven agent. Only its goroutine-safe methods may be used
// while the runner is running.
func (r *Runner) Agent() *Agent { return r.agent }

// Run steps the agent until ctx is done or the line fails.
func (r *Runner) Run(ctx context.Context) error {
	err := r.loop.Run(ctx)
	r.agent.Shutdown()

	if err != nil && ctx.Err() == nil {
		r.agent.logger.Error("nodebus: agent stopped", "error", err)
	}

	return err
}

// Done is closed when Run has returned.
func (r *Runner) Done() <-chan struct{} {
	return r.loop.Done()
}
