// Package recorder turns live key and mouse button activity into macro
// actions.
package recorder

import (
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"hkmacro/internal/input"
	"hkmacro/internal/macro"
)

var (
	ErrAlreadyRecording = errors.New("already recording")
	ErrNotRecording     = errors.New("not recording")
)

const (
	DefaultMinDelay      = 50 * time.Millisecond
	DefaultHoldThreshold = 300 * time.Millisecond
)

// Options tune how edges become actions.
type Options struct {
	// Gaps shorter than MinDelay are dropped instead of becoming delays.
	MinDelay time.Duration
	// Keys held at least HoldThreshold become key_hold actions.
	HoldThreshold time.Duration
}

var modifiers = map[string]bool{"CTRL": true, "ALT": true, "SHIFT": true, "CMD": true}

var mouseButtons = map[string]input.Button{
	"MOUSE1": input.ButtonLeft,
	"MOUSE2": input.ButtonMiddle,
	"MOUSE3": input.ButtonRight,
}

type press struct {
	at    time.Time
	combo string
	// used is set on a modifier that became part of a combination
	used bool
}

// Recorder collects actions between Start and Stop. It is safe for use
// from the hook goroutine and the caller at once.
type Recorder struct {
	opts Options

	mu        sync.Mutex
	recording bool
	actions   []macro.Action
	held      map[string]*press
	order     []string
	lastEdge  time.Time
}

// New creates a recorder.
func New(opts Options) *Recorder {
	if opts.MinDelay <= 0 {
		opts.MinDelay = DefaultMinDelay
	}
	if opts.HoldThreshold <= 0 {
		opts.HoldThreshold = DefaultHoldThreshold
	}
	return &Recorder{opts: opts}
}

// Start begins a recording at the given time.
func (r *Recorder) Start(at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return ErrAlreadyRecording
	}
	r.recording = true
	r.actions = nil
	r.held = make(map[string]*press)
	r.order = nil
	r.lastEdge = at
	return nil
}

// Recording reports whether a recording is in progress.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Feed records one key or button edge. Keys use canonical names.
func (r *Recorder) Feed(key string, down bool, at time.Time) {
	key = input.CanonicalKey(key)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	if down {
		r.keyDown(key, at)
	} else {
		r.keyUp(key, at)
	}
}

func (r *Recorder) keyDown(key string, at time.Time) {
	if _, ok := r.held[key]; ok {
		return
	}
	combo := key
	if !modifiers[key] && !input.IsMouseButton(key) {
		var mods []string
		for _, k := range r.order {
			if p := r.held[k]; modifiers[k] {
				mods = append(mods, k)
				p.used = true
			}
		}
		if len(mods) > 0 {
			combo = strings.Join(append(mods, key), "+")
		}
	}
	r.gap(at)
	r.held[key] = &press{at: at, combo: combo}
	r.order = append(r.order, key)
}

func (r *Recorder) keyUp(key string, at time.Time) {
	p, ok := r.held[key]
	if !ok {
		return
	}
	delete(r.held, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if p.used {
		r.lastEdge = at
		return
	}

	heldFor := at.Sub(p.at)
	switch {
	case mouseButtons[key] != "":
		r.actions = append(r.actions, macro.NewAction(macro.KindMouseClick,
			macro.Params{macro.ParamButton: string(mouseButtons[key])}, ""))
	case input.IsMouseButton(key):
		// side buttons cannot be replayed
		return
	case heldFor >= r.opts.HoldThreshold:
		r.actions = append(r.actions, macro.NewAction(macro.KindKeyHold,
			macro.Params{macro.ParamKey: p.combo, macro.ParamDuration: seconds(heldFor)}, ""))
	default:
		r.actions = append(r.actions, macro.NewAction(macro.KindKeyPress,
			macro.Params{macro.ParamKey: p.combo}, ""))
	}
	r.lastEdge = at
}

// gap inserts a delay for the idle time since the last recorded action.
func (r *Recorder) gap(at time.Time) {
	idle := at.Sub(r.lastEdge)
	if len(r.held) == 0 && idle >= r.opts.MinDelay {
		r.actions = append(r.actions, macro.NewAction(macro.KindDelay,
			macro.Params{macro.ParamDuration: seconds(idle)}, ""))
	}
	r.lastEdge = at
}

// Stop ends the recording and returns the actions. Keys still held are
// dropped.
func (r *Recorder) Stop() ([]macro.Action, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return nil, ErrNotRecording
	}
	r.recording = false
	out := r.actions
	r.actions = nil
	r.held = nil
	r.order = nil
	// a leading delay only measures how long it took to start typing
	if len(out) > 0 && out[0].Kind == macro.KindDelay {
		out = out[1:]
	}
	if out == nil {
		out = []macro.Action{}
	}
	return out, nil
}

func seconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}
