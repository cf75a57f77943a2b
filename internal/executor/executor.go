package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"hkmacro/internal/input"
	"hkmacro/internal/macro"
)

// Options tune the worker.
type Options struct {
	// PauseInterval is how often a paused run re-checks its flags.
	PauseInterval time.Duration
	// ActionDelay is slept after every dispatched action.
	ActionDelay time.Duration
	// Debug logs every action.
	Debug bool
	// Now is the clock used for event and run timestamps.
	Now func() time.Time
}

const (
	DefaultPauseInterval = 100 * time.Millisecond
	minMoveSteps         = 10
	moveStepsPerSecond   = 100
)

// Executor runs macros against an input injector. At most one run is live
// at any time.
type Executor struct {
	injector input.Injector
	sink     func(Event)
	opts     Options

	mu      sync.Mutex
	current *Run
}

// New creates an executor. A nil injector is allowed; input actions then fail
// with ErrInputUnavailable. sink receives every event on the worker goroutine.
func New(injector input.Injector, sink func(Event), opts Options) *Executor {
	if opts.PauseInterval <= 0 {
		opts.PauseInterval = DefaultPauseInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if sink == nil {
		sink = func(Event) {}
	}
	return &Executor{injector: injector, sink: sink, opts: opts}
}

// Execute starts m on a new worker. The macro is copied; vars becomes the
// run's environment and may be nil.
func (e *Executor) Execute(m macro.Macro, vars *macro.Environment) (*Run, error) {
	if !m.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrMacroDisabled, m.Name)
	}
	if vars == nil {
		vars, _ = macro.NewEnvironment(nil)
	}

	e.mu.Lock()
	if e.current != nil && e.current.Status().Active() {
		e.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Run{
		ID:        macro.NewID(),
		Macro:     *m.Clone(),
		vars:      vars,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		status:    Running,
		startedAt: e.opts.Now(),
	}
	e.current = r
	e.mu.Unlock()

	go e.work(r)
	return r, nil
}

// Stop requests cancellation of the live run.
func (e *Executor) Stop() error {
	r := e.active()
	if r == nil {
		return ErrNotRunning
	}
	log.Printf("Executor: Stop requested for '%s'", r.Macro.Name)
	r.cancel()
	return nil
}

// Pause asks the live run to wait before its next action.
func (e *Executor) Pause() error {
	r := e.active()
	if r == nil {
		return ErrNotRunning
	}
	r.paused.Store(true)
	return nil
}

// Resume lets a paused run continue.
func (e *Executor) Resume() error {
	r := e.active()
	if r == nil {
		return ErrNotRunning
	}
	r.paused.Store(false)
	return nil
}

// Status returns the state of the most recent run, or Idle.
func (e *Executor) Status() Status {
	e.mu.Lock()
	r := e.current
	e.mu.Unlock()
	if r == nil {
		return Idle
	}
	return r.Status()
}

// Current returns the most recent run, if any.
func (e *Executor) Current() (*Run, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current, e.current != nil
}

func (e *Executor) active() *Run {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil || !e.current.Status().Active() {
		return nil
	}
	return e.current
}

func (e *Executor) emit(r *Run, ev Event) {
	ev.RunID = r.ID
	ev.MacroID = r.Macro.ID
	ev.MacroName = r.Macro.Name
	ev.Time = e.opts.Now()
	e.sink(ev)
}

func (e *Executor) work(r *Run) {
	defer r.cancel()
	log.Printf("Executor: Running macro '%s' (%d actions, %d repeats)", r.Macro.Name, len(r.Macro.Actions), r.Macro.RepeatCount)
	e.emit(r, Event{Type: EventStarted, Status: Running, Total: len(r.Macro.Actions)})

	err := e.runRepeats(r)

	status := Completed
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		status, err = Cancelled, ErrCancelled
	default:
		status = Failed
		log.Printf("Executor: Macro '%s' failed: %v", r.Macro.Name, err)
		e.emit(r, Event{Type: EventError, Status: Failed, Error: err.Error()})
	}

	r.finish(status, err, e.opts.Now())
	ev := Event{Type: EventFinished, Status: status}
	if err != nil {
		ev.Error = err.Error()
	}
	e.emit(r, ev)
	close(r.done)
	log.Printf("Executor: Macro '%s' %s", r.Macro.Name, status)
}

func (e *Executor) runRepeats(r *Run) error {
	for rep := 0; rep < r.Macro.RepeatCount; rep++ {
		if r.ctx.Err() != nil {
			return r.ctx.Err()
		}
		if err := e.runPass(r); err != nil {
			return err
		}
		if rep < r.Macro.RepeatCount-1 && r.Macro.RepeatDelay > 0 {
			if err := sleep(r.ctx, r.Macro.RepeatInterval()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Executor) runPass(r *Run) error {
	actions := r.Macro.Actions
	r.loops = r.loops[:0]

	for i := 0; i < len(actions); i++ {
		if err := e.waitWhilePaused(r); err != nil {
			return err
		}

		a := actions[i]
		if !a.Enabled {
			continue
		}
		if e.opts.Debug {
			log.Printf("Executor: [%d/%d] %s %v", i+1, len(actions), a.Kind, a.Params)
		}

		next, err := e.dispatch(r, i, a)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			return &ActionError{Index: i, ActionID: a.ID, Kind: a.Kind, Err: err}
		}

		r.countExecuted()
		e.emit(r, Event{Type: EventActionExecuted, Description: a.Label(), Current: i + 1, Total: len(actions), Status: Running})
		e.emit(r, Event{Type: EventProgress, Current: i + 1, Total: len(actions), Status: Running})

		if e.opts.ActionDelay > 0 {
			if err := sleep(r.ctx, e.opts.ActionDelay); err != nil {
				return err
			}
		}
		i = next
	}
	return nil
}

// waitWhilePaused blocks while the pause flag is set and reports
// cancellation, including cancellation requested during the pause.
func (e *Executor) waitWhilePaused(r *Run) error {
	if r.ctx.Err() != nil {
		return r.ctx.Err()
	}
	if !r.paused.Load() {
		return nil
	}

	r.setStatus(Paused)
	e.emit(r, Event{Type: EventStatus, Status: Paused})
	log.Printf("Executor: Macro '%s' paused", r.Macro.Name)

	ticker := time.NewTicker(e.opts.PauseInterval)
	defer ticker.Stop()
	for r.paused.Load() {
		select {
		case <-r.ctx.Done():
			return r.ctx.Err()
		case <-ticker.C:
		}
	}

	r.setStatus(Running)
	e.emit(r, Event{Type: EventStatus, Status: Running})
	log.Printf("Executor: Macro '%s' resumed", r.Macro.Name)
	return r.ctx.Err()
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
