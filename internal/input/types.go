// Package input provides the keyboard and mouse injection capability that
// macros run against.
package input

import "errors"

// ErrUnsupported is returned by NewInjector when the platform has no
// injection backend.
var ErrUnsupported = errors.New("input injection not supported on this platform")

// Button is a mouse button name as used in macro parameters.
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
)

// Injector simulates keyboard and mouse input. Keys are named with the
// names understood by VirtualKey ("a", "space", "f5", "ctrl").
type Injector interface {
	Press(key string) error
	Release(key string) error
	MoveTo(x, y int) error
	MoveRelative(dx, dy int) error
	Position() (x, y int, err error)
	Click(button Button, count int) error
	Scroll(delta int) error
}
