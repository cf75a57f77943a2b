//go:build windows

package input

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32           = windows.NewLazySystemDLL("user32.dll")
	procSendInput    = user32.NewProc("SendInput")
	procSetCursorPos = user32.NewProc("SetCursorPos")
	procGetCursorPos = user32.NewProc("GetCursorPos")
)

const (
	inputMouse    = 0
	inputKeyboard = 1

	keyeventfKeyUp       = 0x0002
	keyeventfExtendedKey = 0x0001

	mouseeventfMove       = 0x0001
	mouseeventfLeftDown   = 0x0002
	mouseeventfLeftUp     = 0x0004
	mouseeventfRightDown  = 0x0008
	mouseeventfRightUp    = 0x0010
	mouseeventfMiddleDown = 0x0020
	mouseeventfMiddleUp   = 0x0040
	mouseeventfWheel      = 0x0800

	wheelDelta = 120
)

type mouseInput struct {
	dx          int32
	dy          int32
	mouseData   uint32
	dwFlags     uint32
	time        uint32
	dwExtraInfo uintptr
}

type keybdInput struct {
	wVk         uint16
	wScan       uint16
	dwFlags     uint32
	time        uint32
	dwExtraInfo uintptr
}

// The INPUT union is as large as its biggest member, MOUSEINPUT.
type mouseINPUT struct {
	inputType uint32
	mi        mouseInput
}

type keyboardINPUT struct {
	inputType uint32
	ki        keybdInput
	_         [unsafe.Sizeof(mouseInput{}) - unsafe.Sizeof(keybdInput{})]byte
}

type point struct {
	X, Y int32
}

// extended keys need KEYEVENTF_EXTENDEDKEY to be told apart from the numpad
var extendedKeys = map[uint16]bool{
	0x21: true, 0x22: true, 0x23: true, 0x24: true,
	0x25: true, 0x26: true, 0x27: true, 0x28: true,
	0x2D: true, 0x2E: true, 0x5B: true, 0x5C: true,
}

// SendInputInjector injects input through SendInput.
type SendInputInjector struct{}

// NewInjector creates the Windows injector.
func NewInjector() (Injector, error) {
	if err := procSendInput.Find(); err != nil {
		return nil, fmt.Errorf("SendInput unavailable: %w", err)
	}
	return &SendInputInjector{}, nil
}

func (i *SendInputInjector) key(name string, up bool) error {
	vk, ok := VirtualKey(name)
	if !ok {
		return fmt.Errorf("unknown key %q", name)
	}
	in := keyboardINPUT{inputType: inputKeyboard}
	in.ki.wVk = vk
	if up {
		in.ki.dwFlags |= keyeventfKeyUp
	}
	if extendedKeys[vk] {
		in.ki.dwFlags |= keyeventfExtendedKey
	}
	return sendInput(unsafe.Pointer(&in), unsafe.Sizeof(in))
}

// Press pushes a key down.
func (i *SendInputInjector) Press(key string) error { return i.key(key, false) }

// Release lets a key up.
func (i *SendInputInjector) Release(key string) error { return i.key(key, true) }

// MoveTo moves the cursor to absolute screen coordinates.
func (i *SendInputInjector) MoveTo(x, y int) error {
	ret, _, err := procSetCursorPos.Call(uintptr(x), uintptr(y))
	if ret == 0 {
		return fmt.Errorf("SetCursorPos failed: %w", err)
	}
	return nil
}

// MoveRelative moves the cursor by a delta.
func (i *SendInputInjector) MoveRelative(dx, dy int) error {
	return i.mouse(mouseInput{dx: int32(dx), dy: int32(dy), dwFlags: mouseeventfMove})
}

// Position returns the cursor position.
func (i *SendInputInjector) Position() (int, int, error) {
	var p point
	ret, _, err := procGetCursorPos.Call(uintptr(unsafe.Pointer(&p)))
	if ret == 0 {
		return 0, 0, fmt.Errorf("GetCursorPos failed: %w", err)
	}
	return int(p.X), int(p.Y), nil
}

// Click clicks button count times at the current position.
func (i *SendInputInjector) Click(button Button, count int) error {
	var down, up uint32
	switch button {
	case ButtonLeft, "":
		down, up = mouseeventfLeftDown, mouseeventfLeftUp
	case ButtonRight:
		down, up = mouseeventfRightDown, mouseeventfRightUp
	case ButtonMiddle:
		down, up = mouseeventfMiddleDown, mouseeventfMiddleUp
	default:
		return fmt.Errorf("unknown mouse button %q", button)
	}
	for n := 0; n < count; n++ {
		if err := i.mouse(mouseInput{dwFlags: down}); err != nil {
			return err
		}
		if err := i.mouse(mouseInput{dwFlags: up}); err != nil {
			return err
		}
	}
	return nil
}

// Scroll turns the wheel by delta notches; positive scrolls up.
func (i *SendInputInjector) Scroll(delta int) error {
	return i.mouse(mouseInput{mouseData: uint32(int32(delta * wheelDelta)), dwFlags: mouseeventfWheel})
}

func (i *SendInputInjector) mouse(mi mouseInput) error {
	in := mouseINPUT{inputType: inputMouse, mi: mi}
	return sendInput(unsafe.Pointer(&in), unsafe.Sizeof(in))
}

func sendInput(in unsafe.Pointer, size uintptr) error {
	ret, _, err := procSendInput.Call(1, uintptr(in), size)
	if ret != 1 {
		return fmt.Errorf("SendInput failed: %w", err)
	}
	return nil
}
