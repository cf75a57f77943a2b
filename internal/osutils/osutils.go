// Package osutils reports process privileges that limit input injection.
package osutils

import "log"

// WarnIfUnprivileged logs a hint when the process may be unable to send
// input to other applications.
func WarnIfUnprivileged() {
	if note := privilegeNote(IsElevated()); note != "" {
		log.Printf("Note: %s", note)
	}
}
