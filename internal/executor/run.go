package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"hkmacro/internal/macro"
)

type loopFrame struct {
	start int
	total int
	done  int
}

// Run is the execution context of one macro. It holds a private snapshot of
// the macro, so edits made while it runs are not observed.
type Run struct {
	ID    string
	Macro macro.Macro

	vars   *macro.Environment
	ctx    context.Context
	cancel context.CancelFunc
	paused atomic.Bool
	loops  []loopFrame
	done   chan struct{}

	mu         sync.Mutex
	status     Status
	err        error
	executed   int
	startedAt  time.Time
	finishedAt time.Time
}

// Info is a point in time view of a run.
type Info struct {
	RunID      string
	MacroID    string
	MacroName  string
	Status     Status
	Executed   int
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// Status returns the current state.
func (r *Run) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Err returns nil for a completed run, ErrCancelled for a cancelled one and
// the failure otherwise. It is nil while the run is active.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Done is closed once the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run ends or ctx is done.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Variables returns the environment the run writes to.
func (r *Run) Variables() *macro.Environment { return r.vars }

// Info returns a snapshot of the run's state.
func (r *Run) Info() Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Info{
		RunID:      r.ID,
		MacroID:    r.Macro.ID,
		MacroName:  r.Macro.Name,
		Status:     r.status,
		Executed:   r.executed,
		StartedAt:  r.startedAt,
		FinishedAt: r.finishedAt,
		Err:        r.err,
	}
}

func (r *Run) setStatus(s Status) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
}

func (r *Run) finish(s Status, err error, at time.Time) {
	r.mu.Lock()
	r.status = s
	r.err = err
	r.finishedAt = at
	r.mu.Unlock()
}

func (r *Run) countExecuted() {
	r.mu.Lock()
	r.executed++
	r.mu.Unlock()
}
