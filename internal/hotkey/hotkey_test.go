package hotkey

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hkmacro/internal/macro"
	"hkmacro/internal/store"
)

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"ctrl+alt+t":         "CTRL+ALT+T",
		" Control + Shift+1": "CTRL+SHIFT+1",
		"win+escape":         "CMD+ESC",
		"option+f5":          "ALT+F5",
		"mouse4":             "MOUSE4",
	}
	for in, want := range tests {
		got, err := Normalize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := Normalize("")
	assert.Error(t, err)
}

func TestManagerFiresOnCompletingPress(t *testing.T) {
	m := NewManager()
	fired := make(chan struct{}, 10)
	_, err := m.Register("Ctrl+Alt+1", func() { fired <- struct{}{} })
	require.NoError(t, err)

	m.UpdateState("CTRL", true)
	m.UpdateState("ALT", true)
	select {
	case <-fired:
		t.Fatal("fired before the combination was complete")
	case <-time.After(20 * time.Millisecond):
	}

	m.UpdateState("1", true)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("hotkey did not fire")
	}

	// auto-repeat of the held key does not fire again
	m.UpdateState("1", true)
	m.UpdateState("1", true)
	select {
	case <-fired:
		t.Fatal("fired on key repeat")
	case <-time.After(20 * time.Millisecond):
	}

	m.UpdateState("1", false)
	m.UpdateState("1", true)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("hotkey did not fire again after release")
	}
}

func TestManagerMouseCombination(t *testing.T) {
	m := NewManager()
	fired := make(chan struct{}, 1)
	_, err := m.Register("Mouse2+Mouse3", func() { fired <- struct{}{} })
	require.NoError(t, err)

	m.UpdateState("MOUSE3", true)
	m.UpdateState("mouse2", true)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("mouse combination did not fire")
	}
}

func TestManagerUnregister(t *testing.T) {
	m := NewManager()
	fired := make(chan struct{}, 1)
	h, err := m.Register("F5", func() { fired <- struct{}{} })
	require.NoError(t, err)
	require.NoError(t, m.Unregister(h))
	assert.Error(t, m.Unregister(h))

	m.UpdateState("F5", true)
	select {
	case <-fired:
		t.Fatal("unregistered hotkey fired")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestManagerObserveEdges(t *testing.T) {
	m := NewManager()
	type edge struct {
		key  string
		down bool
	}
	var got []edge
	cancel := m.Observe(func(key string, down bool) { got = append(got, edge{key, down}) })

	m.UpdateState("a", true)
	m.UpdateState("a", true)
	m.UpdateState("a", false)
	assert.Equal(t, []edge{{"A", true}, {"A", false}}, got)

	cancel()
	m.UpdateState("b", true)
	assert.Len(t, got, 2)
	assert.Equal(t, []string{"B"}, m.Pressed())
}

type fakeBackend struct {
	mu        sync.Mutex
	next      Handle
	callbacks map[Handle]func()
	hotkeys   map[Handle]string
	fail      bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{callbacks: make(map[Handle]func()), hotkeys: make(map[Handle]string)}
}

func (f *fakeBackend) Register(hotkey string, cb func()) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return 0, errors.New("permission denied")
	}
	f.next++
	f.callbacks[f.next] = cb
	f.hotkeys[f.next] = hotkey
	return f.next, nil
}

func (f *fakeBackend) Unregister(h Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.callbacks, h)
	delete(f.hotkeys, h)
	return nil
}

func (f *fakeBackend) press(hotkey string) {
	f.mu.Lock()
	var cb func()
	for h, hk := range f.hotkeys {
		if hk == hotkey {
			cb = f.callbacks[h]
		}
	}
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (f *fakeBackend) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.callbacks)
}

type execRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *execRecorder) execute(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return nil
}

func (r *execRecorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func TestDispatcherFiresBoundMacro(t *testing.T) {
	backend := newFakeBackend()
	var rec execRecorder
	d := NewDispatcher(backend, rec.execute, 0)

	require.NoError(t, d.Bind("ctrl+alt+t", "macro-1"))
	backend.press("CTRL+ALT+T")

	assert.Equal(t, []string{"macro-1"}, rec.calls())
	id, ok := d.Lookup("Ctrl+Alt+T")
	require.True(t, ok)
	assert.Equal(t, "macro-1", id)
}

func TestDispatcherLastWriterWins(t *testing.T) {
	backend := newFakeBackend()
	var rec execRecorder
	d := NewDispatcher(backend, rec.execute, 0)

	require.NoError(t, d.Bind("F6", "a"))
	require.NoError(t, d.Bind("f6", "b"))
	assert.Equal(t, 1, backend.count())

	backend.press("F6")
	assert.Equal(t, []string{"b"}, rec.calls())
}

func TestDispatcherUnbind(t *testing.T) {
	backend := newFakeBackend()
	var rec execRecorder
	d := NewDispatcher(backend, rec.execute, 0)

	require.NoError(t, d.Bind("F7", "a"))
	require.NoError(t, d.Bind("F8", "a"))
	require.NoError(t, d.Unbind("f7"))
	assert.ErrorIs(t, d.Unbind("F7"), ErrNotBound)
	assert.Equal(t, 1, backend.count())

	d.UnbindMacro("a")
	assert.Equal(t, 0, backend.count())
	assert.Empty(t, d.Bindings())
	assert.ErrorIs(t, d.Fire("F8"), ErrNotBound)
}

func TestDispatcherDebounce(t *testing.T) {
	var rec execRecorder
	d := NewDispatcher(newFakeBackend(), rec.execute, DefaultDebounce)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	require.NoError(t, d.Bind("F9", "a"))
	require.NoError(t, d.Fire("F9"))
	assert.ErrorIs(t, d.Fire("F9"), ErrDebounced)

	now = now.Add(DefaultDebounce)
	require.NoError(t, d.Fire("F9"))
	assert.Len(t, rec.calls(), 2)
}

func TestDispatcherBackendFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.fail = true
	var rec execRecorder
	d := NewDispatcher(backend, rec.execute, 0)

	err := d.Bind("F10", "a")
	assert.ErrorIs(t, err, ErrHotkeyUnavailable)

	bindings := d.Bindings()
	require.Len(t, bindings, 1)
	assert.False(t, bindings[0].Registered)

	nilBackend := NewDispatcher(nil, rec.execute, 0)
	assert.ErrorIs(t, nilBackend.Bind("F10", "a"), ErrHotkeyUnavailable)
	require.NoError(t, nilBackend.Fire("F10"))
	assert.Equal(t, []string{"a"}, rec.calls())
}

func TestDispatcherBindAction(t *testing.T) {
	backend := newFakeBackend()
	var rec execRecorder
	d := NewDispatcher(backend, rec.execute, 0)

	stopped := false
	require.NoError(t, d.BindAction("ctrl+esc", func() { stopped = true }))
	backend.press("CTRL+ESC")
	assert.True(t, stopped)
	assert.Empty(t, rec.calls())
	assert.Empty(t, d.Bindings(), "actions are not listed as macro bindings")

	d.Sync(nil)
	backend.press("CTRL+ESC")
	assert.Equal(t, 1, backend.count(), "sync keeps action bindings")
}

func TestDispatcherFollowsStore(t *testing.T) {
	backend := newFakeBackend()
	var rec execRecorder
	d := NewDispatcher(backend, rec.execute, 0)

	s := store.New()
	s.Subscribe(d.HandleStoreEvent)

	id := s.Create("Delay", "")
	require.NoError(t, s.Update(id, func(m *macro.Macro) error {
		m.Hotkey = "ctrl+alt+t"
		m.Actions = []macro.Action{macro.NewAction(macro.KindDelay, macro.Params{"duration": 1.0}, "")}
		return nil
	}))
	backend.press("CTRL+ALT+T")
	assert.Equal(t, []string{id}, rec.calls())

	require.NoError(t, s.Update(id, func(m *macro.Macro) error {
		m.Hotkey = "ctrl+alt+y"
		return nil
	}))
	_, ok := d.Lookup("ctrl+alt+t")
	assert.False(t, ok)
	got, ok := d.Lookup("ctrl+alt+y")
	require.True(t, ok)
	assert.Equal(t, id, got)

	require.NoError(t, s.Update(id, func(m *macro.Macro) error {
		m.Enabled = false
		return nil
	}))
	_, ok = d.Lookup("ctrl+alt+y")
	assert.False(t, ok, "disabled macros are unbound")

	require.NoError(t, s.Update(id, func(m *macro.Macro) error {
		m.Enabled = true
		return nil
	}))
	require.True(t, s.Delete(id))
	assert.Equal(t, 0, backend.count())
}

func TestDispatcherSync(t *testing.T) {
	backend := newFakeBackend()
	var rec execRecorder
	d := NewDispatcher(backend, rec.execute, 0)
	require.NoError(t, d.Bind("F1", "stale"))

	d.Sync([]macro.Macro{
		{ID: "a", Hotkey: "F2", Enabled: true},
		{ID: "b", Hotkey: "F3", Enabled: false},
		{ID: "c", Enabled: true},
	})

	bindings := d.Bindings()
	require.Len(t, bindings, 1)
	assert.Equal(t, "F2", bindings[0].Hotkey)
	assert.Equal(t, "a", bindings[0].MacroID)
}
