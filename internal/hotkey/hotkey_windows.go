//go:build windows

package hotkey

import (
	"fmt"
	"log"
	"runtime"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"hkmacro/internal/input"
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procSetWindowsHookEx    = user32.NewProc("SetWindowsHookExW")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procGetMessage          = user32.NewProc("GetMessageW")
	procTranslateMessage    = user32.NewProc("TranslateMessage")
	procDispatchMessage     = user32.NewProc("DispatchMessageW")
	procPostThreadMessage   = user32.NewProc("PostThreadMessageW")
	kernel32                = windows.NewLazySystemDLL("kernel32.dll")
	procGetModuleHandle     = kernel32.NewProc("GetModuleHandleW")
)

const (
	WH_KEYBOARD_LL = 13
	WH_MOUSE_LL    = 14
	WM_QUIT        = 0x0012
	WM_KEYDOWN     = 0x0100
	WM_KEYUP       = 0x0101
	WM_SYSKEYDOWN  = 0x0104
	WM_SYSKEYUP    = 0x0105

	WM_LBUTTONDOWN = 0x0201
	WM_LBUTTONUP   = 0x0202
	WM_RBUTTONDOWN = 0x0204
	WM_RBUTTONUP   = 0x0205
	WM_MBUTTONDOWN = 0x0207
	WM_MBUTTONUP   = 0x0208
	WM_XBUTTONDOWN = 0x020B
	WM_XBUTTONUP   = 0x020C

	// events synthesised by SendInput, including our own playback
	LLKHF_INJECTED = 0x10
	LLMHF_INJECTED = 0x01
)

type KBDLLHOOKSTRUCT struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type MSLLHOOKSTRUCT struct {
	Point       struct{ X, Y int32 }
	MouseData   uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

var (
	instanceManager *Manager
	keyboardHook    uintptr
	mouseHook       uintptr
	hookThreadID    uint32
)

func (m *Manager) startPlatform() error {
	instanceManager = m
	ready := make(chan error, 1)

	// Hooks must be registered in the same thread that runs the message loop
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		hookThreadID = windows.GetCurrentThreadId()
		hMod, _, _ := procGetModuleHandle.Call(0)

		var err error
		keyboardHook, _, err = procSetWindowsHookEx.Call(
			WH_KEYBOARD_LL,
			syscall.NewCallback(keyboardHookPtr),
			hMod,
			0,
		)
		if keyboardHook == 0 {
			ready <- fmt.Errorf("setting keyboard hook: %w", err)
			return
		}

		mouseHook, _, err = procSetWindowsHookEx.Call(
			WH_MOUSE_LL,
			syscall.NewCallback(mouseHookPtr),
			hMod,
			0,
		)
		if mouseHook == 0 {
			procUnhookWindowsHookEx.Call(keyboardHook)
			ready <- fmt.Errorf("setting mouse hook: %w", err)
			return
		}

		log.Println("Hotkey Engine: Windows Global Hooks started.")
		ready <- nil

		var msg struct {
			Hwnd    syscall.Handle
			Message uint32
			Wparam  uintptr
			Lparam  uintptr
			Time    uint32
			Pt      struct{ X, Y int32 }
		}

		for {
			ret, _, _ := procGetMessage.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
			if int32(ret) <= 0 {
				break
			}
			procTranslateMessage.Call(uintptr(unsafe.Pointer(&msg)))
			procDispatchMessage.Call(uintptr(unsafe.Pointer(&msg)))
		}

		procUnhookWindowsHookEx.Call(keyboardHook)
		procUnhookWindowsHookEx.Call(mouseHook)
		log.Println("Hotkey Engine: Windows Global Hooks stopped.")
	}()

	return <-ready
}

func (m *Manager) stopPlatform() {
	if hookThreadID != 0 {
		procPostThreadMessage.Call(uintptr(hookThreadID), WM_QUIT, 0, 0)
	}
}

func keyboardHookPtr(nCode int, wParam uintptr, lParam uintptr) uintptr {
	if nCode == 0 {
		kbd := (*KBDLLHOOKSTRUCT)(unsafe.Pointer(lParam))
		if kbd.Flags&LLKHF_INJECTED == 0 {
			if keyName := input.KeyName(kbd.VkCode); keyName != "" {
				isDown := wParam == WM_KEYDOWN || wParam == WM_SYSKEYDOWN
				instanceManager.UpdateState(keyName, isDown)
			}
		}
	}
	ret, _, _ := procCallNextHookEx.Call(keyboardHook, uintptr(nCode), wParam, lParam)
	return ret
}

func mouseHookPtr(nCode int, wParam uintptr, lParam uintptr) uintptr {
	if nCode == 0 {
		ms := (*MSLLHOOKSTRUCT)(unsafe.Pointer(lParam))
		var btnName string
		var isDown bool

		switch wParam {
		case WM_LBUTTONDOWN, WM_LBUTTONUP:
			btnName, isDown = "MOUSE1", wParam == WM_LBUTTONDOWN
		case WM_RBUTTONDOWN, WM_RBUTTONUP:
			btnName, isDown = "MOUSE3", wParam == WM_RBUTTONDOWN
		case WM_MBUTTONDOWN, WM_MBUTTONUP:
			btnName, isDown = "MOUSE2", wParam == WM_MBUTTONDOWN
		case WM_XBUTTONDOWN, WM_XBUTTONUP:
			btnName = "MOUSE5"
			if (ms.MouseData >> 16) == 1 {
				btnName = "MOUSE4"
			}
			isDown = wParam == WM_XBUTTONDOWN
		}

		if btnName != "" && ms.Flags&LLMHF_INJECTED == 0 {
			instanceManager.UpdateState(btnName, isDown)
		}
	}
	ret, _, _ := procCallNextHookEx.Call(mouseHook, uintptr(nCode), wParam, lParam)
	return ret
}
