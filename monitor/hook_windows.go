//go:build windows

package monitor

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/windows"

	"keytap/log"
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")

	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procPeekMessageW        = user32.NewProc("PeekMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
)

const (
	whKeyboardLL = 13
	hcAction     = 0
	wmQuit       = 0x0012
	pmNoRemove   = 0x0000
)

type point struct {
	x int32
	y int32
}

// winMsg mirrors the Win32 MSG struct.
type winMsg struct {
	hWnd     uintptr
	message  uint32
	wParam   uintptr
	lParam   uintptr
	time     uint32
	pt       point
	lPrivate uint32
}

// kbdllHookStruct mirrors KBDLLHOOKSTRUCT.
type kbdllHookStruct struct {
	vkCode      uint32
	scanCode    uint32
	flags       uint32
	time        uint32
	dwExtraInfo uintptr
}

// The callback trampoline is process-global, so one hook backend is active at
// a time.
var (
	activeHook   atomic.Pointer[hookBackend]
	hookCallback = windows.NewCallback(lowLevelKeyboardProc)
)

type hookBackend struct {
	table    keyTable
	emit     Emit
	threadID atomic.Uint32
	stop     atomic.Bool
}

func newHookBackend() *hookBackend {
	return &hookBackend{}
}

func (b *hookBackend) Name() string { return "llhook" }

func (b *hookBackend) Open() error {
	if err := user32.Load(); err != nil {
		return fmt.Errorf("user32.dll unavailable: %w: %w", ErrResourceAcquisition, err)
	}
	if !activeHook.CompareAndSwap(nil, b) {
		return fmt.Errorf("keyboard hook already installed: %w", ErrResourceAcquisition)
	}
	b.table = keyTable{}
	b.stop.Store(false)
	b.threadID.Store(0)
	return nil
}

func (b *hookBackend) Run(emit Emit, ready chan<- error) {
	b.emit = emit

	// PeekMessageW creates the thread message queue so PostThreadMessageW
	// can deliver WM_QUIT.
	var qmsg winMsg
	procPeekMessageW.Call(uintptr(unsafe.Pointer(&qmsg)), 0, 0, 0, pmNoRemove)

	hook, _, err := procSetWindowsHookExW.Call(whKeyboardLL, hookCallback, 0, 0)
	if hook == 0 {
		ready <- fmt.Errorf("SetWindowsHookExW: %w: %w", ErrResourceAcquisition, err)
		return
	}
	defer func() {
		if r, _, err := procUnhookWindowsHookEx.Call(hook); r == 0 {
			log.Errorf("UnhookWindowsHookEx: %v", err)
		}
	}()

	b.threadID.Store(windows.GetCurrentThreadId())
	ready <- nil
	if b.stop.Load() {
		return
	}

	for {
		var msg winMsg
		ret, _, err := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
		switch int32(ret) {
		case -1:
			log.Errorf("GetMessageW: %v", err)
			return
		case 0:
			return
		}
	}
}

func (b *hookBackend) Signal() {
	b.stop.Store(true)
	if tid := b.threadID.Load(); tid != 0 {
		procPostThreadMessageW.Call(uintptr(tid), wmQuit, 0, 0)
	}
}

func (b *hookBackend) Close() error {
	activeHook.CompareAndSwap(b, nil)
	return nil
}

func lowLevelKeyboardProc(nCode, wParam, lParam uintptr) uintptr {
	if int32(nCode) == hcAction {
		if b := activeHook.Load(); b != nil && b.emit != nil {
			kb := (*kbdllHookStruct)(unsafe.Pointer(lParam))
			if ev, ok := b.table.translate(wParam, kb.vkCode); ok {
				b.emit(ev)
			}
		}
	}
	r, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
	return r
}
