//go:build !windows

package osutils

import (
	"os"
	"runtime"
)

// IsElevated reports whether the process runs as root.
func IsElevated() bool {
	return os.Geteuid() == 0
}

func privilegeNote(bool) string {
	if runtime.GOOS == "darwin" {
		return "global hotkeys need Accessibility permission in System Settings > Privacy & Security"
	}
	return ""
}
