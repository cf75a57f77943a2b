package store

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hkmacro/internal/macro"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tick := 0
	s.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	id := s.Create("Farm", "Games")

	m, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, "Farm", m.Name)
	assert.Equal(t, "Games", m.Category)
	assert.True(t, m.Enabled)
	assert.Equal(t, 1, m.RepeatCount)
	assert.Empty(t, m.Actions)
	assert.False(t, m.CreatedAt.IsZero())

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestGetReturnsCopy(t *testing.T) {
	s := newTestStore(t)
	id := s.Create("Copy", "")
	require.NoError(t, s.Update(id, func(m *macro.Macro) error {
		m.Actions = append(m.Actions, macro.NewAction(macro.KindKeyPress, macro.Params{"key": "a"}, ""))
		return nil
	}))

	snapshot, _ := s.Get(id)
	snapshot.Actions[0].Params["key"] = "z"
	snapshot.Actions = nil

	again, _ := s.Get(id)
	require.Len(t, again.Actions, 1)
	assert.Equal(t, "a", again.Actions[0].Params["key"])
}

func TestUpdate(t *testing.T) {
	s := newTestStore(t)
	id := s.Create("Update", "")
	before, _ := s.Get(id)

	var events []Event
	s.Subscribe(func(ev Event) { events = append(events, ev) })

	require.NoError(t, s.Update(id, func(m *macro.Macro) error {
		m.RepeatCount = 3
		m.Hotkey = "ctrl+alt+u"
		return nil
	}))

	after, _ := s.Get(id)
	assert.Equal(t, 3, after.RepeatCount)
	assert.True(t, after.ModifiedAt.After(before.ModifiedAt))
	assert.Equal(t, before.CreatedAt, after.CreatedAt)

	require.Len(t, events, 1)
	assert.Equal(t, EventUpdated, events[0].Type)
	assert.Equal(t, "ctrl+alt+u", events[0].Macro.Hotkey)
}

func TestUpdateRejectsInvalidAndKeepsOriginal(t *testing.T) {
	s := newTestStore(t)
	id := s.Create("Invalid", "")

	err := s.Update(id, func(m *macro.Macro) error {
		m.Name = "changed"
		m.Actions = append(m.Actions, macro.NewAction(macro.KindDelay, nil, ""))
		return nil
	})
	var ve *macro.ValidationError
	require.True(t, errors.As(err, &ve))

	m, _ := s.Get(id)
	assert.Equal(t, "Invalid", m.Name)
	assert.Empty(t, m.Actions)

	mutErr := errors.New("abort")
	assert.ErrorIs(t, s.Update(id, func(*macro.Macro) error { return mutErr }), mutErr)
	assert.ErrorIs(t, s.Update("missing", func(*macro.Macro) error { return nil }), ErrNotFound)
}

func TestDeleteEmitsEvent(t *testing.T) {
	s := newTestStore(t)
	id := s.Create("Delete", "")

	var got []Event
	s.Subscribe(func(ev Event) { got = append(got, ev) })

	assert.True(t, s.Delete(id))
	assert.False(t, s.Delete(id))

	require.Len(t, got, 1)
	assert.Equal(t, EventDeleted, got[0].Type)
	assert.Equal(t, id, got[0].MacroID)
	assert.Equal(t, 0, s.Len())
}

func TestClone(t *testing.T) {
	s := newTestStore(t)
	id := s.Create("Original", "")
	require.NoError(t, s.Update(id, func(m *macro.Macro) error {
		m.Hotkey = "F5"
		m.Actions = append(m.Actions, macro.NewAction(macro.KindDelay, macro.Params{"duration": 1}, "wait"))
		return nil
	}))

	cloneID, err := s.Clone(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, cloneID)

	orig, _ := s.Get(id)
	c, _ := s.Get(cloneID)
	assert.Equal(t, "Original (Copy)", c.Name)
	assert.Empty(t, c.Hotkey)
	require.Len(t, c.Actions, 1)
	assert.NotEqual(t, orig.Actions[0].ID, c.Actions[0].ID)
	assert.Equal(t, orig.Actions[0].Params, c.Actions[0].Params)

	_, err = s.Clone("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList(t *testing.T) {
	s := newTestStore(t)
	s.Create("b", "Work")
	s.Create("a", "Work")
	s.Create("z", "Games")

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, []string{"z", "a", "b"}, []string{list[0].Name, list[1].Name, list[2].Name})
}

func TestAdd(t *testing.T) {
	s := newTestStore(t)
	m := macro.Macro{
		Name:        "Imported",
		Enabled:     true,
		RepeatCount: 2,
		Actions: []macro.Action{
			{Kind: macro.KindKeyPress, Params: macro.Params{"key": "e"}, Enabled: true},
		},
	}
	id, err := s.Add(m)
	require.NoError(t, err)

	got, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, macro.DefaultCategory, got.Category)
	assert.NotEmpty(t, got.Actions[0].ID)

	m.RepeatCount = 0
	_, err = s.Add(m)
	assert.Error(t, err)
}

func TestSerializeLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	id := s.Create("Round trip", "Testing")
	require.NoError(t, s.Update(id, func(m *macro.Macro) error {
		m.Hotkey = "ctrl+alt+t"
		m.RepeatCount = 4
		m.RepeatDelay = 0.25
		m.Description = "all the kinds"
		m.Actions = []macro.Action{
			macro.NewAction(macro.KindLoopStart, macro.Params{"iterations": 3}, "loop"),
			macro.NewAction(macro.KindKeyHold, macro.Params{"key": "w", "duration": 0.5}, ""),
			macro.NewAction(macro.KindMouseMove, macro.Params{"x": -5, "y": 7, "relative": true}, ""),
			macro.NewAction(macro.KindLoopEnd, nil, ""),
			macro.NewAction(macro.KindVariableSet, macro.Params{"name": "n", "value": "v"}, ""),
		}
		m.Actions[2].Enabled = false
		return nil
	}))
	other := s.Create("Disabled", "")
	require.NoError(t, s.Update(other, func(m *macro.Macro) error {
		m.Enabled = false
		return nil
	}))

	doc := s.SerializeAll()
	require.Len(t, doc, 2)

	loaded := New()
	require.NoError(t, loaded.LoadAll(doc))

	for _, want := range s.All() {
		got, ok := loaded.Get(want.ID)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestLoadAllAppliesDefaults(t *testing.T) {
	s := New()
	doc := Document{
		"m1": {
			Name: "Legacy",
			Actions: []ActionRecord{
				{ActionType: "key_press", Parameters: map[string]any{"key": "space"}},
			},
			CreatedDate: "2025-05-01T10:00:00.123456",
		},
	}
	require.NoError(t, s.LoadAll(doc))

	m, ok := s.Get("m1")
	require.True(t, ok)
	assert.True(t, m.Enabled)
	assert.Equal(t, 1, m.RepeatCount)
	assert.Equal(t, macro.DefaultCategory, m.Category)
	require.Len(t, m.Actions, 1)
	assert.True(t, m.Actions[0].Enabled)
	assert.NotEmpty(t, m.Actions[0].ID)
	assert.Equal(t, 2025, m.CreatedAt.Year())
	assert.Equal(t, m.CreatedAt, m.ModifiedAt)
}

func TestLoadAllReportsEveryOffendingID(t *testing.T) {
	s := New()
	keep := s.Create("keep me", "")

	doc := Document{
		"good": {Name: "ok", Actions: []ActionRecord{{ActionType: "delay", Parameters: map[string]any{"duration": 1}}}},
		"bad1": {Name: "unknown", Actions: []ActionRecord{{ActionType: "teleport"}}},
		"bad2": {Name: "invalid", Actions: []ActionRecord{{ActionType: "loop_start", Parameters: map[string]any{"iterations": 0}}}},
	}

	var loadedEvents int
	s.Subscribe(func(ev Event) {
		if ev.Type == EventLoaded {
			loadedEvents++
		}
	})

	err := s.LoadAll(doc)
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, []string{"bad1", "bad2"}, le.IDs())
	assert.Contains(t, err.Error(), "teleport")

	_, ok := s.Get(keep)
	assert.True(t, ok, "store must be untouched after a failed load")
	assert.Equal(t, 0, loadedEvents)
}
