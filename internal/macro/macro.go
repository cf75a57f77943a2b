package macro

import (
	"fmt"
	"time"
)

// DefaultCategory is used when a macro is created without one.
const DefaultCategory = "General"

// Macro is a named, ordered sequence of actions plus execution settings.
type Macro struct {
	ID          string
	Name        string
	Actions     []Action
	Hotkey      string
	Enabled     bool
	RepeatCount int
	RepeatDelay float64 // seconds between repeats
	Description string
	Category    string
	CreatedAt   time.Time
	ModifiedAt  time.Time
}

// New returns an empty, enabled macro with default settings.
func New(name, category string, now time.Time) *Macro {
	if category == "" {
		category = DefaultCategory
	}
	return &Macro{
		ID:          NewID(),
		Name:        name,
		Actions:     []Action{},
		Enabled:     true,
		RepeatCount: 1,
		Category:    category,
		CreatedAt:   now,
		ModifiedAt:  now,
	}
}

// Clone returns a deep copy of m.
func (m *Macro) Clone() *Macro {
	c := *m
	c.Actions = make([]Action, len(m.Actions))
	for i, a := range m.Actions {
		c.Actions[i] = a.Clone()
	}
	return &c
}

// RepeatInterval returns RepeatDelay as a duration.
func (m *Macro) RepeatInterval() time.Duration {
	return Seconds(m.RepeatDelay)
}

// ValidateMacro checks macro level settings and every action.
func ValidateMacro(m *Macro) error {
	if m.RepeatCount < 1 {
		return &ValidationError{MacroID: m.ID, Field: "repeat_count", Reason: "must be at least 1"}
	}
	if m.RepeatDelay < 0 {
		return &ValidationError{MacroID: m.ID, Field: "repeat_delay", Reason: "must not be negative"}
	}
	for i, a := range m.Actions {
		if err := Validate(a); err != nil {
			if ve, ok := err.(*ValidationError); ok {
				ve.MacroID = m.ID
				ve.Index = i
			}
			return err
		}
	}
	return nil
}

// Seconds converts a float number of seconds into a duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Summary is the listing view of a macro.
type Summary struct {
	ID          string
	Name        string
	Category    string
	Hotkey      string
	Enabled     bool
	ActionCount int
	RepeatCount int
	ModifiedAt  time.Time
}

// Summarize builds the listing view of m.
func (m *Macro) Summarize() Summary {
	return Summary{
		ID:          m.ID,
		Name:        m.Name,
		Category:    m.Category,
		Hotkey:      m.Hotkey,
		Enabled:     m.Enabled,
		ActionCount: len(m.Actions),
		RepeatCount: m.RepeatCount,
		ModifiedAt:  m.ModifiedAt,
	}
}

func (s Summary) String() string {
	return fmt.Sprintf("%s (%s)", s.Name, s.ID)
}
