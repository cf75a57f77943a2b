// Package executor runs one macro at a time on a background worker.
package executor

import (
	"errors"
	"fmt"
	"time"

	"hkmacro/internal/macro"
)

// Status is the state of a run.
type Status int

const (
	Idle Status = iota
	Running
	Paused
	Completed
	Cancelled
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Active reports whether a run in this state blocks new executions.
func (s Status) Active() bool {
	return s == Running || s == Paused
}

// Terminal reports whether the run has ended.
func (s Status) Terminal() bool {
	return s == Completed || s == Cancelled || s == Failed
}

var (
	ErrMacroDisabled    = errors.New("macro is disabled")
	ErrAlreadyRunning   = errors.New("a macro is already running")
	ErrNotRunning       = errors.New("no macro is running")
	ErrInputUnavailable = errors.New("input injection is unavailable")
	ErrCancelled        = errors.New("execution cancelled")
)

// ActionError wraps the failure of a single action.
type ActionError struct {
	Index    int
	ActionID string
	Kind     macro.Kind
	Err      error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action #%d (%s) failed: %v", e.Index+1, e.Kind, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// EventType identifies an executor event.
type EventType string

const (
	EventStarted        EventType = "started"
	EventActionExecuted EventType = "action_executed"
	EventProgress       EventType = "progress"
	EventStatus         EventType = "status"
	EventError          EventType = "error"
	EventFinished       EventType = "finished"
)

// Event is emitted by the worker in the order things happen.
type Event struct {
	Type        EventType
	RunID       string
	MacroID     string
	MacroName   string
	Description string
	Current     int
	Total       int
	Status      Status
	Error       string
	Time        time.Time
}
