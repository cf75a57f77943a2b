//go:build darwin

package input

/*
#cgo LDFLAGS: -framework CoreGraphics -framework CoreFoundation -framework ApplicationServices

#include <stdbool.h>
#include <CoreGraphics/CoreGraphics.h>
#include <CoreFoundation/CoreFoundation.h>
#include <ApplicationServices/ApplicationServices.h>

static bool hasAccessibilityPermissions() {
    return AXIsProcessTrusted();
}

static CGPoint currentMousePosition() {
    CGEventRef event = CGEventCreate(NULL);
    CGPoint cursor = CGEventGetLocation(event);
    CFRelease(event);
    return cursor;
}

static void postMouseMove(CGFloat x, CGFloat y) {
    CGEventRef event = CGEventCreateMouseEvent(NULL, kCGEventMouseMoved, CGPointMake(x, y), kCGMouseButtonLeft);
    CGEventPost(kCGSessionEventTap, event);
    CFRelease(event);
}

static void postMouseButton(int button, bool pressed, int64_t clickState) {
    CGMouseButton cgButton;
    CGEventType eventType;

    switch (button) {
        case 1:
            cgButton = kCGMouseButtonLeft;
            eventType = pressed ? kCGEventLeftMouseDown : kCGEventLeftMouseUp;
            break;
        case 2:
            cgButton = kCGMouseButtonRight;
            eventType = pressed ? kCGEventRightMouseDown : kCGEventRightMouseUp;
            break;
        case 3:
            cgButton = kCGMouseButtonCenter;
            eventType = pressed ? kCGEventOtherMouseDown : kCGEventOtherMouseUp;
            break;
        default:
            return;
    }

    CGEventRef event = CGEventCreateMouseEvent(NULL, eventType, currentMousePosition(), cgButton);
    CGEventSetIntegerValueField(event, kCGMouseEventClickState, clickState);
    CGEventPost(kCGSessionEventTap, event);
    CFRelease(event);
}

static void postScroll(int32_t lines) {
    CGEventRef event = CGEventCreateScrollWheelEvent(NULL, kCGScrollEventUnitLine, 1, lines);
    CGEventPost(kCGSessionEventTap, event);
    CFRelease(event);
}

static void postKey(CGKeyCode keyCode, bool pressed, uint64_t flags) {
    CGEventRef event = CGEventCreateKeyboardEvent(NULL, keyCode, pressed);
    CGEventSetFlags(event, (CGEventFlags)flags);
    CGEventPost(kCGSessionEventTap, event);
    CFRelease(event);
}
*/
import "C"

import (
	"fmt"
	"log"
	"sync"
)

// vkToMacKey maps Windows virtual-key codes, the codes VirtualKey returns,
// to macOS CGKeyCodes.
var vkToMacKey = map[uint16]uint16{
	0x41: 0x00, // A
	0x42: 0x0B, // B
	0x43: 0x08, // C
	0x44: 0x02, // D
	0x45: 0x0E, // E
	0x46: 0x03, // F
	0x47: 0x05, // G
	0x48: 0x04, // H
	0x49: 0x22, // I
	0x4A: 0x26, // J
	0x4B: 0x28, // K
	0x4C: 0x25, // L
	0x4D: 0x2E, // M
	0x4E: 0x2D, // N
	0x4F: 0x1F, // O
	0x50: 0x23, // P
	0x51: 0x0C, // Q
	0x52: 0x0F, // R
	0x53: 0x01, // S
	0x54: 0x11, // T
	0x55: 0x20, // U
	0x56: 0x09, // V
	0x57: 0x0D, // W
	0x58: 0x07, // X
	0x59: 0x10, // Y
	0x5A: 0x06, // Z

	0x30: 0x1D, // 0
	0x31: 0x12, // 1
	0x32: 0x13, // 2
	0x33: 0x14, // 3
	0x34: 0x15, // 4
	0x35: 0x17, // 5
	0x36: 0x16, // 6
	0x37: 0x1A, // 7
	0x38: 0x1C, // 8
	0x39: 0x19, // 9

	0x70: 0x7A, // F1
	0x71: 0x78, // F2
	0x72: 0x63, // F3
	0x73: 0x76, // F4
	0x74: 0x60, // F5
	0x75: 0x61, // F6
	0x76: 0x62, // F7
	0x77: 0x64, // F8
	0x78: 0x65, // F9
	0x79: 0x6D, // F10
	0x7A: 0x67, // F11
	0x7B: 0x6F, // F12

	0x08: 0x33, // Backspace
	0x09: 0x30, // Tab
	0x0D: 0x24, // Return
	0x10: 0x38, // Shift
	0x11: 0x3B, // Control
	0x12: 0x3A, // Option
	0x14: 0x39, // Caps Lock
	0x1B: 0x35, // Escape
	0x20: 0x31, // Space
	0x5B: 0x37, // Command

	0x25: 0x7B, // Left
	0x26: 0x7E, // Up
	0x27: 0x7C, // Right
	0x28: 0x7D, // Down

	0x21: 0x74, // Page Up
	0x22: 0x79, // Page Down
	0x23: 0x77, // End
	0x24: 0x73, // Home
	0x2D: 0x72, // Insert -> Help
	0x2E: 0x75, // Forward Delete
}

// Modifier flag bits (CGEventFlags) keyed by virtual-key code.
var modifierFlags = map[uint16]uint64{
	0x10: 0x00020000, // kCGEventFlagMaskShift
	0x11: 0x00040000, // kCGEventFlagMaskControl
	0x12: 0x00080000, // kCGEventFlagMaskAlternate
	0x5B: 0x00100000, // kCGEventFlagMaskCommand
}

// CGInjector posts input through CoreGraphics events. Held modifiers are
// tracked so later key events carry their flags.
type CGInjector struct {
	mu    sync.Mutex
	flags uint64
}

// NewInjector creates the macOS injector.
func NewInjector() (Injector, error) {
	if !bool(C.hasAccessibilityPermissions()) {
		log.Println("Input: Accessibility permission not granted; injected events may be dropped.")
	}
	return &CGInjector{}, nil
}

func (i *CGInjector) key(name string, pressed bool) error {
	vk, ok := VirtualKey(name)
	if !ok {
		return fmt.Errorf("unknown key %q", name)
	}
	code, ok := vkToMacKey[vk]
	if !ok {
		return fmt.Errorf("key %q has no macOS key code", name)
	}

	i.mu.Lock()
	if bit, ok := modifierFlags[vk]; ok {
		if pressed {
			i.flags |= bit
		} else {
			i.flags &^= bit
		}
	}
	flags := i.flags
	i.mu.Unlock()

	C.postKey(C.CGKeyCode(code), C.bool(pressed), C.uint64_t(flags))
	return nil
}

// Press pushes a key down.
func (i *CGInjector) Press(key string) error { return i.key(key, true) }

// Release lets a key up.
func (i *CGInjector) Release(key string) error { return i.key(key, false) }

// MoveTo moves the cursor to absolute screen coordinates.
func (i *CGInjector) MoveTo(x, y int) error {
	C.postMouseMove(C.CGFloat(x), C.CGFloat(y))
	return nil
}

// MoveRelative moves the cursor by a delta.
func (i *CGInjector) MoveRelative(dx, dy int) error {
	p := C.currentMousePosition()
	C.postMouseMove(p.x+C.CGFloat(dx), p.y+C.CGFloat(dy))
	return nil
}

// Position returns the cursor position.
func (i *CGInjector) Position() (int, int, error) {
	p := C.currentMousePosition()
	return int(p.x), int(p.y), nil
}

// Click clicks button count times at the current position. Each click
// carries its click state so consecutive clicks register as a double or
// triple click.
func (i *CGInjector) Click(button Button, count int) error {
	var b C.int
	switch button {
	case ButtonLeft, "":
		b = 1
	case ButtonRight:
		b = 2
	case ButtonMiddle:
		b = 3
	default:
		return fmt.Errorf("unknown mouse button %q", button)
	}
	for n := 1; n <= count; n++ {
		C.postMouseButton(b, C.bool(true), C.int64_t(n))
		C.postMouseButton(b, C.bool(false), C.int64_t(n))
	}
	return nil
}

// Scroll turns the wheel by delta lines; positive scrolls up.
func (i *CGInjector) Scroll(delta int) error {
	C.postScroll(C.int32_t(delta))
	return nil
}

var macKeyNames = func() map[uint16]string {
	m := make(map[uint16]string, len(vkToMacKey))
	for vk, code := range vkToMacKey {
		if name := KeyName(uint32(vk)); name != "" {
			m[code] = name
		}
	}
	return m
}()

// MacKeyName returns the canonical name of a macOS key code, or "" when the
// code has no name.
func MacKeyName(code uint16) string {
	return macKeyNames[code]
}
