// Package hotkey provides global system-wide hotkey and mouse button
// monitoring, and the dispatcher that maps hotkeys onto macros.
package hotkey

import (
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"

	"hkmacro/internal/input"
)

// ErrUnsupported is returned by Start when the platform has no global hooks.
var ErrUnsupported = errors.New("global hotkeys not supported on this platform")

// Handle identifies a registration with a Backend.
type Handle int

// Backend registers OS level hotkeys. Callbacks run on a goroutine owned by
// the backend.
type Backend interface {
	Register(hotkey string, callback func()) (Handle, error)
	Unregister(h Handle) error
}

// Normalize returns the canonical form of a hotkey string, e.g.
// "control + alt + t" becomes "CTRL+ALT+T".
func Normalize(hotkey string) (string, error) {
	return input.NormalizeCombo(hotkey)
}

// Manager handles global hotkey and mouse button registration and matching
type Manager struct {
	mu           sync.RWMutex
	hotkeys      map[Handle]*registeredHotkey
	nextHandle   Handle
	currentState map[string]bool // map of current keys/buttons pressed

	observers    map[int]func(key string, down bool)
	nextObserver int
}

type registeredHotkey struct {
	parts    []string // e.g., ["CTRL", "ALT", "MOUSE4"]
	original string
	callback func()
}

// NewManager creates a new hotkey manager
func NewManager() *Manager {
	return &Manager{
		hotkeys:      make(map[Handle]*registeredHotkey),
		currentState: make(map[string]bool),
		observers:    make(map[int]func(string, bool)),
	}
}

// Register registers a hotkey string (e.g. "Ctrl+Alt+1", "Mouse2+Mouse3") and a callback.
func (m *Manager) Register(hotkeyStr string, callback func()) (Handle, error) {
	parts, err := input.ParseCombo(hotkeyStr)
	if err != nil {
		return 0, err
	}
	if callback == nil {
		return 0, fmt.Errorf("hotkey %q: nil callback", hotkeyStr)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextHandle++
	m.hotkeys[m.nextHandle] = &registeredHotkey{
		parts:    parts,
		original: hotkeyStr,
		callback: callback,
	}
	return m.nextHandle, nil
}

// Unregister removes a registration.
func (m *Manager) Unregister(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hotkeys[h]; !ok {
		return fmt.Errorf("hotkey handle %d not registered", h)
	}
	delete(m.hotkeys, h)
	return nil
}

// Clear removes all registered hotkeys
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hotkeys = make(map[Handle]*registeredHotkey)
}

// Observe calls fn for every key or button edge until the returned function
// is called.
func (m *Manager) Observe(fn func(key string, down bool)) (cancel func()) {
	m.mu.Lock()
	id := m.nextObserver
	m.nextObserver++
	m.observers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.observers, id)
		m.mu.Unlock()
	}
}

// UpdateState updates the internal state of a key or button and checks for
// matches. Only the press that completes a combination fires it; repeated
// key-down events while a key is held are ignored.
func (m *Manager) UpdateState(key string, isDown bool) {
	key = input.CanonicalKey(key)
	if key == "" {
		return
	}

	m.mu.Lock()
	wasDown := m.currentState[key]
	if isDown {
		m.currentState[key] = true
	} else {
		delete(m.currentState, key)
	}
	var observers []func(string, bool)
	if wasDown != isDown {
		for _, fn := range m.observers {
			observers = append(observers, fn)
		}
	}
	m.mu.Unlock()

	for _, fn := range observers {
		fn(key, isDown)
	}
	if isDown && !wasDown {
		m.checkMatches(key)
	}
}

func (m *Manager) checkMatches(pressed string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, hk := range m.hotkeys {
		if !slices.Contains(hk.parts, pressed) {
			continue
		}
		match := true
		// All parts of the hotkey must be in currentState
		for _, part := range hk.parts {
			if !m.currentState[part] {
				match = false
				break
			}
		}

		if match {
			log.Printf("Hotkey triggered: %s", hk.original)
			go hk.callback()
		}
	}
}

// Pressed returns the keys and buttons currently held.
func (m *Manager) Pressed() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.currentState))
	for k := range m.currentState {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Start initiates the platform-specific global hooks.
// This is implemented in platform-specific files (hotkey_windows.go, hotkey_darwin.go).
func (m *Manager) Start() error {
	return m.startPlatform()
}

// Stop removes the platform hooks.
func (m *Manager) Stop() {
	m.stopPlatform()
}
