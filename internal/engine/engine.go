// Package engine wires the macro store, executor, hotkey dispatcher and
// recorder into one object the front ends talk to.
package engine

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"hkmacro/internal/executor"
	"hkmacro/internal/hotkey"
	"hkmacro/internal/input"
	"hkmacro/internal/macro"
	"hkmacro/internal/recorder"
	"hkmacro/internal/store"
)

var (
	ErrMacroNotFound        = errors.New("macro not found")
	ErrNoPersister          = errors.New("no persister configured")
	ErrRecordingUnavailable = errors.New("recording needs a global input hook")
)

// Persister stores the macro collection and global variables.
type Persister interface {
	Persist(macros store.Document, globals map[string]any) error
}

// Observer reports raw key and button edges; hotkey.Manager is one.
type Observer interface {
	Observe(fn func(key string, down bool)) (cancel func())
}

// Options configure an Engine. Every capability is optional.
type Options struct {
	Injector  input.Injector
	Backend   hotkey.Backend
	Observer  Observer
	Persister Persister

	AutoSave       bool
	Globals        map[string]any
	ExecutionDelay time.Duration
	Debug          bool
	// StopHotkey stops whatever macro is running.
	StopHotkey string
	Debounce   time.Duration
	Recorder   recorder.Options
}

// Statistics are aggregate counters over finished runs.
type Statistics struct {
	TotalExecuted int       `json:"total_executed"`
	Successful    int       `json:"successful"`
	Failed        int       `json:"failed"`
	Cancelled     int       `json:"cancelled"`
	LastExecution time.Time `json:"last_execution"`
}

// Engine is the facade over one store, one executor and one dispatcher.
type Engine struct {
	opts       Options
	store      *store.Store
	exec       *executor.Executor
	dispatcher *hotkey.Dispatcher
	globals    *macro.Environment
	recorder   *recorder.Recorder

	statsMu sync.Mutex
	stats   Statistics

	subMu   sync.RWMutex
	subs    map[int]chan executor.Event
	nextSub int

	recMu       sync.Mutex
	stopObserve func()
}

// New creates an engine.
func New(opts Options) (*Engine, error) {
	globals, err := macro.NewEnvironment(opts.Globals)
	if err != nil {
		return nil, fmt.Errorf("global variables: %w", err)
	}

	e := &Engine{
		opts:     opts,
		store:    store.New(),
		globals:  globals,
		recorder: recorder.New(opts.Recorder),
		subs:     make(map[int]chan executor.Event),
	}
	e.exec = executor.New(opts.Injector, e.onEvent, executor.Options{
		ActionDelay: opts.ExecutionDelay,
		Debug:       opts.Debug,
	})
	e.dispatcher = hotkey.NewDispatcher(opts.Backend, func(id string) error {
		_, err := e.Execute(id, nil)
		return err
	}, opts.Debounce)

	e.store.Subscribe(e.onStoreEvent)

	if opts.StopHotkey != "" {
		err := e.dispatcher.BindAction(opts.StopHotkey, func() {
			if err := e.Stop(); err == nil {
				log.Printf("Engine: Stopped by hotkey %s", opts.StopHotkey)
			}
		})
		if err != nil && !errors.Is(err, hotkey.ErrHotkeyUnavailable) {
			return nil, fmt.Errorf("stop hotkey: %w", err)
		}
	}
	if opts.Injector == nil {
		log.Println("Engine: No input injector, input actions will fail.")
	}
	return e, nil
}

func (e *Engine) onStoreEvent(ev store.Event) {
	switch ev.Type {
	case store.EventLoaded:
		e.dispatcher.Sync(e.store.All())
		return
	default:
		e.dispatcher.HandleStoreEvent(ev)
	}
	if e.opts.AutoSave && e.opts.Persister != nil {
		if err := e.Save(); err != nil {
			log.Printf("Engine: Auto-save failed: %v", err)
		}
	}
}

// Store returns the macro store.
func (e *Engine) Store() *store.Store { return e.store }

// Dispatcher returns the hotkey dispatcher.
func (e *Engine) Dispatcher() *hotkey.Dispatcher { return e.dispatcher }

// CreateMacro adds an empty macro.
func (e *Engine) CreateMacro(name, category string) string {
	return e.store.Create(name, category)
}

// AddMacro imports a complete macro.
func (e *Engine) AddMacro(m macro.Macro) (string, error) {
	return e.store.Add(m)
}

// UpdateMacro edits a macro in place.
func (e *Engine) UpdateMacro(id string, mutate func(*macro.Macro) error) error {
	err := e.store.Update(id, mutate)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrMacroNotFound, id)
	}
	return err
}

// DeleteMacro removes a macro and its hotkey.
func (e *Engine) DeleteMacro(id string) error {
	if !e.store.Delete(id) {
		return fmt.Errorf("%w: %s", ErrMacroNotFound, id)
	}
	return nil
}

// CloneMacro copies a macro and returns the new id.
func (e *Engine) CloneMacro(id string) (string, error) {
	newID, err := e.store.Clone(id)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrMacroNotFound, id)
	}
	return newID, err
}

// BindHotkey assigns hotkey to a macro. Any other macro holding the same
// hotkey loses it. An empty hotkey removes the binding.
func (e *Engine) BindHotkey(id, hk string) error {
	if _, ok := e.store.Get(id); !ok {
		return fmt.Errorf("%w: %s", ErrMacroNotFound, id)
	}
	if hk != "" {
		norm, err := hotkey.Normalize(hk)
		if err != nil {
			return err
		}
		hk = norm
		for _, other := range e.store.All() {
			if other.ID == id || !sameHotkey(other.Hotkey, hk) {
				continue
			}
			log.Printf("Engine: Hotkey %s moves from '%s' to %s", hk, other.Name, id)
			if err := e.store.Update(other.ID, func(m *macro.Macro) error {
				m.Hotkey = ""
				return nil
			}); err != nil {
				return err
			}
		}
	}
	return e.UpdateMacro(id, func(m *macro.Macro) error {
		m.Hotkey = hk
		return nil
	})
}

func sameHotkey(a, b string) bool {
	na, errA := hotkey.Normalize(a)
	nb, errB := hotkey.Normalize(b)
	return errA == nil && errB == nil && na == nb
}

// Execute starts the macro with the global variables overridden by
// overrides. It fails fast with executor.ErrAlreadyRunning while another
// macro runs.
func (e *Engine) Execute(id string, overrides map[string]any) (*executor.Run, error) {
	m, ok := e.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMacroNotFound, id)
	}
	vars, err := macro.Merge(e.globals, overrides)
	if err != nil {
		return nil, err
	}
	return e.exec.Execute(m, vars)
}

// Stop cancels the running macro.
func (e *Engine) Stop() error { return e.exec.Stop() }

// Pause pauses the running macro.
func (e *Engine) Pause() error { return e.exec.Pause() }

// Resume resumes a paused macro.
func (e *Engine) Resume() error { return e.exec.Resume() }

// Status returns the executor status.
func (e *Engine) Status() executor.Status { return e.exec.Status() }

// Current describes the most recent run.
func (e *Engine) Current() (executor.Info, bool) {
	r, ok := e.exec.Current()
	if !ok {
		return executor.Info{}, false
	}
	return r.Info(), true
}

// Statistics returns a copy of the counters.
func (e *Engine) Statistics() Statistics {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

// SetGlobal sets a default variable for future runs.
func (e *Engine) SetGlobal(name string, value any) error {
	if err := e.globals.Set(name, value); err != nil {
		return err
	}
	if e.opts.AutoSave && e.opts.Persister != nil {
		return e.Save()
	}
	return nil
}

// Globals returns the default variables.
func (e *Engine) Globals() map[string]any { return e.globals.Snapshot() }

// Load replaces the macro collection.
func (e *Engine) Load(doc store.Document) error {
	if err := e.store.LoadAll(doc); err != nil {
		return err
	}
	log.Printf("Engine: Loaded %d macros", e.store.Len())
	return nil
}

// Save writes the macros and globals to the persister.
func (e *Engine) Save() error {
	if e.opts.Persister == nil {
		return ErrNoPersister
	}
	return e.opts.Persister.Persist(e.store.SerializeAll(), e.globals.Snapshot())
}

// Subscribe returns a channel of executor events. Events are dropped for a
// subscriber whose buffer is full.
func (e *Engine) Subscribe(buffer int) (<-chan executor.Event, func()) {
	ch := make(chan executor.Event, buffer)
	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.subMu.Lock()
			delete(e.subs, id)
			e.subMu.Unlock()
			close(ch)
		})
	}
}

func (e *Engine) onEvent(ev executor.Event) {
	if ev.Type == executor.EventFinished {
		e.statsMu.Lock()
		e.stats.TotalExecuted++
		switch ev.Status {
		case executor.Completed:
			e.stats.Successful++
		case executor.Cancelled:
			e.stats.Cancelled++
		default:
			e.stats.Failed++
		}
		e.stats.LastExecution = ev.Time
		e.statsMu.Unlock()
	}

	e.subMu.RLock()
	defer e.subMu.RUnlock()
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// StartRecording begins capturing key and button activity.
func (e *Engine) StartRecording() error {
	if e.opts.Observer == nil {
		return ErrRecordingUnavailable
	}
	e.recMu.Lock()
	defer e.recMu.Unlock()
	if err := e.recorder.Start(time.Now()); err != nil {
		return err
	}
	e.stopObserve = e.opts.Observer.Observe(func(key string, down bool) {
		e.recorder.Feed(key, down, time.Now())
	})
	log.Println("Engine: Recording started")
	return nil
}

// StopRecording ends the capture and stores the result as a new macro.
func (e *Engine) StopRecording(name string) (string, error) {
	e.recMu.Lock()
	if e.stopObserve != nil {
		e.stopObserve()
		e.stopObserve = nil
	}
	e.recMu.Unlock()

	actions, err := e.recorder.Stop()
	if err != nil {
		return "", err
	}
	m := macro.New(name, "Recorded", time.Now().UTC().Round(0))
	m.Actions = actions
	id, err := e.store.Add(*m)
	if err != nil {
		return "", err
	}
	log.Printf("Engine: Recorded macro '%s' with %d actions", name, len(actions))
	return id, nil
}

// Close stops any run and releases hotkeys.
func (e *Engine) Close() {
	_ = e.exec.Stop()
	if r, ok := e.exec.Current(); ok {
		<-r.Done()
	}
	e.recMu.Lock()
	if e.stopObserve != nil {
		e.stopObserve()
		e.stopObserve = nil
	}
	e.recMu.Unlock()
	e.dispatcher.Close()
}
