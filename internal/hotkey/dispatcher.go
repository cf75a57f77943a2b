package hotkey

import (
	"cmp"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"hkmacro/internal/macro"
	"hkmacro/internal/store"
)

var (
	// ErrHotkeyUnavailable is returned when no backend can deliver hotkeys.
	ErrHotkeyUnavailable = errors.New("global hotkeys unavailable")
	ErrNotBound          = errors.New("hotkey not bound")
	ErrDebounced         = errors.New("hotkey fired too soon after the previous trigger")
)

// DefaultDebounce suppresses repeated triggers of one hotkey.
const DefaultDebounce = 500 * time.Millisecond

// Binding is one entry of the hotkey map.
type Binding struct {
	Hotkey  string
	MacroID string
	// Registered is false when the backend refused the hotkey.
	Registered bool

	handle Handle
	action func()
}

// Dispatcher maps hotkeys onto macro executions.
type Dispatcher struct {
	backend  Backend
	execute  func(macroID string) error
	debounce time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	bindings map[string]*Binding
	lastFire map[string]time.Time
}

// NewDispatcher creates a dispatcher. backend may be nil, in which case
// bindings are kept but nothing fires them except Fire.
func NewDispatcher(backend Backend, execute func(macroID string) error, debounce time.Duration) *Dispatcher {
	return &Dispatcher{
		backend:  backend,
		execute:  execute,
		debounce: debounce,
		now:      time.Now,
		bindings: make(map[string]*Binding),
		lastFire: make(map[string]time.Time),
	}
}

// Bind maps hotkey to macroID, replacing any previous binding of the same
// hotkey. A backend failure is returned, but the binding is kept.
func (d *Dispatcher) Bind(hotkey, macroID string) error {
	return d.bind(hotkey, &Binding{MacroID: macroID})
}

// BindAction maps hotkey to fn instead of a macro.
func (d *Dispatcher) BindAction(hotkey string, fn func()) error {
	return d.bind(hotkey, &Binding{action: fn})
}

func (d *Dispatcher) bind(hotkey string, b *Binding) error {
	key, err := Normalize(hotkey)
	if err != nil {
		return err
	}
	b.Hotkey = key

	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.bindings[key]; ok {
		d.unregisterLocked(prev)
		if prev.MacroID != b.MacroID {
			log.Printf("Hotkey Dispatcher: %s moved from macro %s to %s", key, prev.MacroID, b.MacroID)
		}
	}
	d.bindings[key] = b

	if d.backend == nil {
		return fmt.Errorf("%w: %s", ErrHotkeyUnavailable, key)
	}
	h, err := d.backend.Register(key, func() {
		if err := d.Fire(key); err != nil && !errors.Is(err, ErrDebounced) {
			log.Printf("Hotkey Dispatcher: %s: %v", key, err)
		}
	})
	if err != nil {
		log.Printf("Hotkey Dispatcher: Failed to register %s: %v", key, err)
		return fmt.Errorf("%w: %s: %v", ErrHotkeyUnavailable, key, err)
	}
	b.handle = h
	b.Registered = true
	return nil
}

func (d *Dispatcher) unregisterLocked(b *Binding) {
	if !b.Registered || d.backend == nil {
		return
	}
	if err := d.backend.Unregister(b.handle); err != nil {
		log.Printf("Hotkey Dispatcher: Failed to unregister %s: %v", b.Hotkey, err)
	}
	b.Registered = false
}

// Unbind removes the binding of hotkey.
func (d *Dispatcher) Unbind(hotkey string) error {
	key, err := Normalize(hotkey)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.bindings[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotBound, key)
	}
	d.unregisterLocked(b)
	delete(d.bindings, key)
	delete(d.lastFire, key)
	return nil
}

// UnbindMacro removes every binding that targets macroID.
func (d *Dispatcher) UnbindMacro(macroID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, b := range d.bindings {
		if b.action == nil && b.MacroID == macroID {
			d.unregisterLocked(b)
			delete(d.bindings, key)
			delete(d.lastFire, key)
		}
	}
}

// Lookup returns the macro bound to hotkey.
func (d *Dispatcher) Lookup(hotkey string) (string, bool) {
	key, err := Normalize(hotkey)
	if err != nil {
		return "", false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.bindings[key]
	if !ok || b.action != nil {
		return "", false
	}
	return b.MacroID, true
}

// Bindings returns the macro bindings sorted by hotkey.
func (d *Dispatcher) Bindings() []Binding {
	d.mu.RLock()
	out := make([]Binding, 0, len(d.bindings))
	for _, b := range d.bindings {
		if b.action == nil {
			out = append(out, *b)
		}
	}
	d.mu.RUnlock()
	slices.SortFunc(out, func(a, b Binding) int { return cmp.Compare(a.Hotkey, b.Hotkey) })
	return out
}

// Fire runs whatever is bound to hotkey. Backend callbacks call it; it may
// be called directly to simulate a trigger.
func (d *Dispatcher) Fire(hotkey string) error {
	key, err := Normalize(hotkey)
	if err != nil {
		return err
	}

	d.mu.Lock()
	b, ok := d.bindings[key]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotBound, key)
	}
	now := d.now()
	if last, seen := d.lastFire[key]; seen && d.debounce > 0 && now.Sub(last) < d.debounce {
		d.mu.Unlock()
		return ErrDebounced
	}
	d.lastFire[key] = now
	action, macroID := b.action, b.MacroID
	d.mu.Unlock()

	if action != nil {
		action()
		return nil
	}
	return d.execute(macroID)
}

// Sync replaces every macro binding with the hotkeys of ms. Disabled macros
// and macros without a hotkey are not bound.
func (d *Dispatcher) Sync(ms []macro.Macro) {
	d.mu.Lock()
	for key, b := range d.bindings {
		if b.action == nil {
			d.unregisterLocked(b)
			delete(d.bindings, key)
		}
	}
	d.mu.Unlock()

	for _, m := range ms {
		d.bindMacro(m.ID, m.Hotkey, m.Enabled)
	}
}

// HandleStoreEvent keeps bindings in line with store changes.
func (d *Dispatcher) HandleStoreEvent(ev store.Event) {
	switch ev.Type {
	case store.EventDeleted:
		d.UnbindMacro(ev.MacroID)
	case store.EventCreated, store.EventUpdated:
		if ev.Macro == nil {
			return
		}
		if cur, ok := d.macroHotkey(ev.MacroID); ok {
			if want, err := Normalize(ev.Macro.Hotkey); err == nil && want == cur && ev.Macro.Enabled {
				return
			}
		}
		d.UnbindMacro(ev.MacroID)
		d.bindMacro(ev.MacroID, ev.Macro.Hotkey, ev.Macro.Enabled)
	}
}

func (d *Dispatcher) macroHotkey(macroID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for key, b := range d.bindings {
		if b.action == nil && b.MacroID == macroID {
			return key, true
		}
	}
	return "", false
}

func (d *Dispatcher) bindMacro(id, hotkey string, enabled bool) {
	if hotkey == "" || !enabled {
		return
	}
	if err := d.Bind(hotkey, id); err != nil && !errors.Is(err, ErrHotkeyUnavailable) {
		log.Printf("Hotkey Dispatcher: Cannot bind '%s' for macro %s: %v", hotkey, id, err)
	}
}

// Close unregisters everything.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, b := range d.bindings {
		d.unregisterLocked(b)
		delete(d.bindings, key)
	}
}
