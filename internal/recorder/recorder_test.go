package recorder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hkmacro/internal/macro"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ms(n int) time.Time { return t0.Add(time.Duration(n) * time.Millisecond) }

func kinds(actions []macro.Action) []macro.Kind {
	out := make([]macro.Kind, len(actions))
	for i, a := range actions {
		out[i] = a.Kind
	}
	return out
}

func TestRecordPressesAndDelays(t *testing.T) {
	r := New(Options{})
	require.NoError(t, r.Start(t0))

	r.Feed("a", true, ms(1000))
	r.Feed("a", false, ms(1080))
	r.Feed("b", true, ms(1100)) // 20ms gap is below MinDelay
	r.Feed("b", false, ms(1150))
	r.Feed("space", true, ms(1650))
	r.Feed("space", false, ms(2150))

	actions, err := r.Stop()
	require.NoError(t, err)
	require.Equal(t, []macro.Kind{
		macro.KindKeyPress, macro.KindKeyPress, macro.KindDelay, macro.KindKeyHold,
	}, kinds(actions))

	assert.Equal(t, "A", actions[0].Params["key"])
	assert.Equal(t, "B", actions[1].Params["key"])
	assert.Equal(t, 0.5, actions[2].Params["duration"])
	assert.Equal(t, "SPACE", actions[3].Params["key"])
	assert.Equal(t, 0.5, actions[3].Params["duration"])

	for _, a := range actions {
		assert.NoError(t, macro.Validate(a))
	}
}

func TestRecordCombination(t *testing.T) {
	r := New(Options{})
	require.NoError(t, r.Start(t0))

	r.Feed("CTRL", true, ms(0))
	r.Feed("SHIFT", true, ms(10))
	r.Feed("S", true, ms(20))
	r.Feed("S", false, ms(60))
	r.Feed("SHIFT", false, ms(70))
	r.Feed("CTRL", false, ms(80))

	actions, err := r.Stop()
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, macro.KindKeyPress, actions[0].Kind)
	assert.Equal(t, "CTRL+SHIFT+S", actions[0].Params["key"])
}

func TestRecordMouseButtons(t *testing.T) {
	r := New(Options{})
	require.NoError(t, r.Start(t0))

	r.Feed("MOUSE1", true, ms(0))
	r.Feed("MOUSE1", false, ms(30))
	r.Feed("MOUSE3", true, ms(40))
	r.Feed("MOUSE3", false, ms(60))
	r.Feed("MOUSE4", true, ms(70))
	r.Feed("MOUSE4", false, ms(80))

	actions, err := r.Stop()
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, "left", actions[0].Params["button"])
	assert.Equal(t, "right", actions[1].Params["button"])
}

func TestRecorderLifecycle(t *testing.T) {
	r := New(Options{})
	_, err := r.Stop()
	assert.ErrorIs(t, err, ErrNotRecording)

	r.Feed("a", true, ms(0)) // ignored while idle
	require.NoError(t, r.Start(t0))
	assert.True(t, r.Recording())
	assert.ErrorIs(t, r.Start(t0), ErrAlreadyRecording)

	r.Feed("a", false, ms(10)) // release without press is ignored
	actions, err := r.Stop()
	require.NoError(t, err)
	assert.Empty(t, actions)
	assert.False(t, r.Recording())
}
