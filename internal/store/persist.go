package store

import (
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"hkmacro/internal/macro"
)

// Document is the persisted form of the whole collection, keyed by macro id.
// It is embedded in the host configuration under a single key.
type Document map[string]Record

// Record is the persisted form of one macro.
type Record struct {
	Name         string         `yaml:"name" json:"name"`
	Actions      []ActionRecord `yaml:"actions" json:"actions"`
	Hotkey       string         `yaml:"hotkey" json:"hotkey"`
	Enabled      *bool          `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	RepeatCount  int            `yaml:"repeat_count,omitempty" json:"repeat_count,omitempty"`
	RepeatDelay  float64        `yaml:"repeat_delay" json:"repeat_delay"`
	Description  string         `yaml:"description" json:"description"`
	Category     string         `yaml:"category" json:"category"`
	CreatedDate  string         `yaml:"created_date" json:"created_date"`
	ModifiedDate string         `yaml:"modified_date" json:"modified_date"`
}

// ActionRecord is the persisted form of one action.
type ActionRecord struct {
	ActionType  string         `yaml:"action_type" json:"action_type"`
	Parameters  map[string]any `yaml:"parameters" json:"parameters"`
	Enabled     *bool          `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Description string         `yaml:"description" json:"description"`
	ID          string         `yaml:"id" json:"id"`
}

// LoadError enumerates every persisted macro that could not be loaded.
type LoadError struct {
	Problems map[string]error
}

func (e *LoadError) Error() string {
	ids := make([]string, 0, len(e.Problems))
	for id := range e.Problems {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%s: %v", id, e.Problems[id])
	}
	return fmt.Sprintf("failed to load %d macro(s): %s", len(ids), strings.Join(parts, "; "))
}

// IDs returns the offending macro ids in sorted order.
func (e *LoadError) IDs() []string {
	ids := make([]string, 0, len(e.Problems))
	for id := range e.Problems {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// SerializeAll returns the persisted form of every macro.
func (s *Store) SerializeAll() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc := make(Document, len(s.macros))
	for id, m := range s.macros {
		doc[id] = ToRecord(m)
	}
	return doc
}

// LoadAll replaces the store contents with doc. Missing optional fields get
// macro defaults; an unknown action type or invalid data in any entry fails
// the whole load and leaves the store untouched.
func (s *Store) LoadAll(doc Document) error {
	loaded := make(map[string]*macro.Macro, len(doc))
	problems := make(map[string]error)
	for id, rec := range doc {
		m, err := FromRecord(id, rec)
		if err != nil {
			problems[id] = err
			continue
		}
		loaded[id] = m
	}
	if len(problems) > 0 {
		return &LoadError{Problems: problems}
	}

	s.mu.Lock()
	s.macros = loaded
	s.mu.Unlock()

	log.Printf("Store: Loaded %d macros", len(loaded))
	s.emit(Event{Type: EventLoaded})
	return nil
}

// ToRecord converts a macro to its persisted form.
func ToRecord(m *macro.Macro) Record {
	actions := make([]ActionRecord, len(m.Actions))
	for i, a := range m.Actions {
		actions[i] = ActionRecord{
			ActionType:  string(a.Kind),
			Parameters:  map[string]any(a.Params.Clone()),
			Enabled:     boolPtr(a.Enabled),
			Description: a.Description,
			ID:          a.ID,
		}
	}
	return Record{
		Name:         m.Name,
		Actions:      actions,
		Hotkey:       m.Hotkey,
		Enabled:      boolPtr(m.Enabled),
		RepeatCount:  m.RepeatCount,
		RepeatDelay:  m.RepeatDelay,
		Description:  m.Description,
		Category:     m.Category,
		CreatedDate:  formatTime(m.CreatedAt),
		ModifiedDate: formatTime(m.ModifiedAt),
	}
}

// FromRecord converts a persisted record back into a macro, applying
// defaults for absent optional fields.
func FromRecord(id string, rec Record) (*macro.Macro, error) {
	if id == "" {
		return nil, errors.New("empty macro id")
	}
	m := &macro.Macro{
		ID:          id,
		Name:        rec.Name,
		Actions:     make([]macro.Action, 0, len(rec.Actions)),
		Hotkey:      rec.Hotkey,
		Enabled:     boolOr(rec.Enabled, true),
		RepeatCount: rec.RepeatCount,
		RepeatDelay: rec.RepeatDelay,
		Description: rec.Description,
		Category:    rec.Category,
	}
	if m.RepeatCount == 0 {
		m.RepeatCount = 1
	}
	if m.Category == "" {
		m.Category = macro.DefaultCategory
	}

	var err error
	if m.CreatedAt, err = parseTime(rec.CreatedDate); err != nil {
		return nil, fmt.Errorf("created_date: %w", err)
	}
	if m.ModifiedAt, err = parseTime(rec.ModifiedDate); err != nil {
		return nil, fmt.Errorf("modified_date: %w", err)
	}
	if m.ModifiedAt.IsZero() {
		m.ModifiedAt = m.CreatedAt
	}

	for i, ar := range rec.Actions {
		kind, err := macro.ParseKind(ar.ActionType)
		if err != nil {
			return nil, fmt.Errorf("action #%d: %w", i+1, err)
		}
		actionID := ar.ID
		if actionID == "" {
			actionID = macro.NewID()
		}
		params := macro.Params(ar.Parameters).Clone()
		m.Actions = append(m.Actions, macro.Action{
			ID:          actionID,
			Kind:        kind,
			Params:      params,
			Enabled:     boolOr(ar.Enabled, true),
			Description: ar.Description,
		})
	}

	if err := macro.ValidateMacro(m); err != nil {
		return nil, err
	}
	return m, nil
}

func boolPtr(b bool) *bool { return &b }

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime accepts RFC3339 as well as the naive ISO form without a zone,
// which is read as UTC.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02T15:04:05.999999999", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
