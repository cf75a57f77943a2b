//go:build darwin

package hotkey

/*
#cgo LDFLAGS: -framework CoreGraphics -framework CoreFoundation -framework ApplicationServices
#include <CoreGraphics/CoreGraphics.h>
#include <CoreFoundation/CoreFoundation.h>
#include <stdint.h>

CGEventRef eventCallback(CGEventTapProxy proxy, CGEventType type, CGEventRef event, void *refcon);

static inline CFMachPortRef createTap(uintptr_t refcon) {
    CGEventMask mask = kCGEventMaskForAllEvents;
    return CGEventTapCreate(
        kCGSessionEventTap,
        kCGHeadInsertEventTap,
        kCGEventTapOptionListenOnly,
        mask,
        eventCallback,
        (void*)refcon
    );
}

static inline CFRunLoopRef attachTap(CFMachPortRef tap) {
    CFRunLoopSourceRef source = CFMachPortCreateRunLoopSource(kCFAllocatorDefault, tap, 0);
    CFRunLoopRef loop = CFRunLoopGetCurrent();
    CFRunLoopAddSource(loop, source, kCFRunLoopCommonModes);
    CGEventTapEnable(tap, true);
    return loop;
}
*/
import "C"
import (
	"errors"
	"log"
	"os"
	"runtime"
	"runtime/cgo"
	"strconv"
	"sync"
	"unsafe"

	"hkmacro/internal/input"
)

var (
	loopMu  sync.Mutex
	tapLoop C.CFRunLoopRef
	selfPID = int64(os.Getpid())
)

//export eventCallback
func eventCallback(proxy C.CGEventTapProxy, eventType C.CGEventType, event C.CGEventRef, refcon unsafe.Pointer) C.CGEventRef {
	h := cgo.Handle(uintptr(refcon))
	m := h.Value().(*Manager)

	// events we posted ourselves during playback
	if int64(C.CGEventGetIntegerValueField(event, C.kCGEventSourceUnixProcessID)) == selfPID {
		return event
	}

	switch eventType {
	case C.kCGEventKeyDown, C.kCGEventKeyUp:
		isDown := eventType == C.kCGEventKeyDown
		keyCode := uint16(C.CGEventGetIntegerValueField(event, C.kCGKeyboardEventKeycode))
		if keyName := input.MacKeyName(keyCode); keyName != "" {
			m.UpdateState(keyName, isDown)
		}

	case C.kCGEventFlagsChanged:
		flags := C.CGEventGetFlags(event)
		keyCode := uint16(C.CGEventGetIntegerValueField(event, C.kCGKeyboardEventKeycode))

		switch keyCode {
		case 55, 54:
			m.UpdateState("CMD", (flags&C.kCGEventFlagMaskCommand) != 0)
		case 56, 60:
			m.UpdateState("SHIFT", (flags&C.kCGEventFlagMaskShift) != 0)
		case 58, 61:
			m.UpdateState("ALT", (flags&C.kCGEventFlagMaskAlternate) != 0)
		case 59, 62:
			m.UpdateState("CTRL", (flags&C.kCGEventFlagMaskControl) != 0)
		}

	case C.kCGEventLeftMouseDown, C.kCGEventLeftMouseUp,
		C.kCGEventRightMouseDown, C.kCGEventRightMouseUp,
		C.kCGEventOtherMouseDown, C.kCGEventOtherMouseUp:

		isDown := eventType == C.kCGEventLeftMouseDown ||
			eventType == C.kCGEventRightMouseDown ||
			eventType == C.kCGEventOtherMouseDown

		btnNumber := int64(C.CGEventGetIntegerValueField(event, C.kCGMouseEventButtonNumber))
		var btnName string
		switch btnNumber {
		case 0:
			btnName = "MOUSE1"
		case 1:
			btnName = "MOUSE3" // Right
		case 2:
			btnName = "MOUSE2" // Middle
		default:
			btnName = "MOUSE" + strconv.FormatInt(btnNumber+1, 10)
		}
		m.UpdateState(btnName, isDown)
	}

	return event
}

func (m *Manager) startPlatform() error {
	handle := cgo.NewHandle(m)
	ready := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		tap := C.createTap(C.uintptr_t(handle))
		if tap == nil {
			handle.Delete()
			ready <- errors.New("failed to create CGEventTap, accessibility permission missing?")
			return
		}
		loopMu.Lock()
		tapLoop = C.attachTap(tap)
		loopMu.Unlock()
		log.Println("Hotkey Engine: macOS CGEventTap started.")
		ready <- nil

		C.CFRunLoopRun()
		handle.Delete()
		log.Println("Hotkey Engine: macOS CGEventTap stopped.")
	}()
	return <-ready
}

func (m *Manager) stopPlatform() {
	loopMu.Lock()
	defer loopMu.Unlock()
	if tapLoop != nil {
		C.CFRunLoopStop(tapLoop)
		tapLoop = nil
	}
}
