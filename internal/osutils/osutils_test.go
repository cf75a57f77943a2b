package osutils

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrivilegeNote(t *testing.T) {
	switch runtime.GOOS {
	case "windows":
		assert.Empty(t, privilegeNote(true))
		assert.Contains(t, privilegeNote(false), "administrator")
	case "darwin":
		assert.Contains(t, privilegeNote(false), "Accessibility")
	default:
		assert.Empty(t, privilegeNote(false))
	}
	assert.NotPanics(t, WarnIfUnprivileged)
}
