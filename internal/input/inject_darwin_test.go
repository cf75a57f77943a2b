//go:build darwin

package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMacKeyName(t *testing.T) {
	assert.Equal(t, "A", MacKeyName(0x00))
	assert.Equal(t, "F5", MacKeyName(0x60))
	assert.Equal(t, "CMD", MacKeyName(0x37))
	assert.Equal(t, "DELETE", MacKeyName(0x75))
	assert.Equal(t, "", MacKeyName(0xFF))
}

func TestEveryNamedKeyHasMacCode(t *testing.T) {
	for _, name := range []string{"a", "z", "0", "9", "f1", "f12", "space", "enter", "esc", "ctrl", "alt", "shift", "cmd", "left", "pageup"} {
		vk, ok := VirtualKey(name)
		if assert.True(t, ok, name) {
			_, ok = vkToMacKey[vk]
			assert.True(t, ok, name)
		}
	}
}
