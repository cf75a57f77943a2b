package tray

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hkmacro/internal/executor"
	"hkmacro/internal/macro"
)

func TestMenuEntries(t *testing.T) {
	entries := menuEntries([]macro.Summary{
		{ID: "1", Name: "Farm", Hotkey: "F5", Enabled: true},
		{ID: "2", Name: "Off", Enabled: false},
		{ID: "3", Name: "Plain", Enabled: true},
	})
	assert.Equal(t, []menuEntry{
		{ID: "1", Title: "Farm (F5)"},
		{ID: "3", Title: "Plain"},
	}, entries)
}

func TestControlStates(t *testing.T) {
	assert.Equal(t, map[int]bool{0: true, 1: false, 2: true}, controlStates(executor.Running, 0, 1, 2))
	assert.Equal(t, map[int]bool{0: false, 1: true, 2: true}, controlStates(executor.Paused, 0, 1, 2))
	assert.Equal(t, map[int]bool{0: false, 1: false, 2: false}, controlStates(executor.Completed, 0, 1, 2))
}

func TestIconHeader(t *testing.T) {
	icon := getIcon()
	assert.Len(t, icon, 1118)
	assert.Equal(t, []byte{0, 0, 1, 0, 1, 0}, icon[:6])
}
