//go:build !windows && !darwin

package input

import "log"

// NewInjector reports that no injection backend exists on this platform.
// Callers treat the capability as absent.
func NewInjector() (Injector, error) {
	log.Println("Input: Injection not supported on this platform.")
	return nil, ErrUnsupported
}
