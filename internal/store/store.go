// Package store owns the durable collection of macros.
package store

import (
	"cmp"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"hkmacro/internal/macro"
)

// ErrNotFound is returned for unknown macro ids.
var ErrNotFound = errors.New("macro not found")

// EventType identifies a store change.
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
	EventLoaded  EventType = "loaded"
)

// Event describes a change to the store. Macro is a copy of the macro after
// the change (before it, for deletions); it is nil for EventLoaded.
type Event struct {
	Type    EventType
	MacroID string
	Macro   *macro.Macro
}

// Store is a concurrency safe collection of macros. Readers always receive
// copies so a running macro can never observe later edits.
type Store struct {
	mu     sync.RWMutex
	macros map[string]*macro.Macro

	subMu sync.RWMutex
	subs  []func(Event)

	now func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		macros: make(map[string]*macro.Macro),
		now:    func() time.Time { return time.Now().UTC().Round(0) },
	}
}

// SetClock replaces the time source used for created/modified stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Subscribe registers fn for every subsequent change. Events are delivered
// synchronously on the goroutine that made the change, after the store lock
// is released.
func (s *Store) Subscribe(fn func(Event)) {
	s.subMu.Lock()
	s.subs = append(s.subs, fn)
	s.subMu.Unlock()
}

func (s *Store) emit(ev Event) {
	s.subMu.RLock()
	subs := slices.Clone(s.subs)
	s.subMu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// Create adds an empty macro and returns its id.
func (s *Store) Create(name, category string) string {
	s.mu.Lock()
	m := macro.New(name, category, s.now())
	s.macros[m.ID] = m
	snapshot := m.Clone()
	s.mu.Unlock()

	log.Printf("Store: Created macro '%s' (%s)", name, m.ID)
	s.emit(Event{Type: EventCreated, MacroID: m.ID, Macro: snapshot})
	return m.ID
}

// Add validates and inserts a complete macro. Missing ids and timestamps are
// filled in; an existing id is replaced.
func (s *Store) Add(m macro.Macro) (string, error) {
	c := m.Clone()
	if c.ID == "" {
		c.ID = macro.NewID()
	}
	for i := range c.Actions {
		if c.Actions[i].ID == "" {
			c.Actions[i].ID = macro.NewID()
		}
	}
	if c.Category == "" {
		c.Category = macro.DefaultCategory
	}
	if err := macro.ValidateMacro(c); err != nil {
		return "", err
	}

	s.mu.Lock()
	now := s.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.ModifiedAt = now
	_, existed := s.macros[c.ID]
	s.macros[c.ID] = c
	snapshot := c.Clone()
	s.mu.Unlock()

	evType := EventCreated
	if existed {
		evType = EventUpdated
	}
	s.emit(Event{Type: evType, MacroID: c.ID, Macro: snapshot})
	return c.ID, nil
}

// Get returns a copy of the macro with the given id.
func (s *Store) Get(id string) (macro.Macro, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.macros[id]
	if !ok {
		return macro.Macro{}, false
	}
	return *m.Clone(), true
}

// Update applies mutate to a copy of the macro. The result is validated and
// committed only if mutate returns nil and validation passes.
func (s *Store) Update(id string, mutate func(*macro.Macro) error) error {
	s.mu.Lock()
	cur, ok := s.macros[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := cur.Clone()
	if err := mutate(next); err != nil {
		s.mu.Unlock()
		return err
	}
	next.ID = id
	next.CreatedAt = cur.CreatedAt
	for i := range next.Actions {
		if next.Actions[i].ID == "" {
			next.Actions[i].ID = macro.NewID()
		}
	}
	if err := macro.ValidateMacro(next); err != nil {
		s.mu.Unlock()
		return err
	}
	next.ModifiedAt = s.now()
	s.macros[id] = next
	snapshot := next.Clone()
	s.mu.Unlock()

	s.emit(Event{Type: EventUpdated, MacroID: id, Macro: snapshot})
	return nil
}

// Delete removes the macro and reports whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	m, ok := s.macros[id]
	if ok {
		delete(s.macros, id)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	log.Printf("Store: Deleted macro '%s' (%s)", m.Name, id)
	s.emit(Event{Type: EventDeleted, MacroID: id, Macro: m})
	return true
}

// Clone copies a macro under a new id. The copy gets fresh action ids and no
// hotkey, since a hotkey may only point at one macro.
func (s *Store) Clone(id string) (string, error) {
	s.mu.Lock()
	src, ok := s.macros[id]
	if !ok {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	now := s.now()
	c := src.Clone()
	c.ID = macro.NewID()
	c.Name = src.Name + " (Copy)"
	c.Hotkey = ""
	c.CreatedAt = now
	c.ModifiedAt = now
	for i := range c.Actions {
		c.Actions[i].ID = macro.NewID()
	}
	s.macros[c.ID] = c
	snapshot := c.Clone()
	s.mu.Unlock()

	s.emit(Event{Type: EventCreated, MacroID: c.ID, Macro: snapshot})
	return c.ID, nil
}

// List returns summaries ordered by category, then name.
func (s *Store) List() []macro.Summary {
	s.mu.RLock()
	out := make([]macro.Summary, 0, len(s.macros))
	for _, m := range s.macros {
		out = append(out, m.Summarize())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b macro.Summary) int {
		return cmp.Or(
			cmp.Compare(a.Category, b.Category),
			cmp.Compare(a.Name, b.Name),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return out
}

// All returns copies of every macro.
func (s *Store) All() []macro.Macro {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]macro.Macro, 0, len(s.macros))
	for _, m := range s.macros {
		out = append(out, *m.Clone())
	}
	return out
}

// Len returns the number of macros.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.macros)
}
