package inject

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32               = windows.NewLazySystemDLL("user32.dll")
	procSendInput        = user32.NewProc("SendInput")
	procGetSystemMetrics = user32.NewProc("GetSystemMetrics")
)

const (
	inputMouse = 0

	smCxScreen = 0
	smCyScreen = 1

	mouseeventfMove     = 0x0001
	mouseeventfLeftDown = 0x0002
	mouseeventfLeftUp   = 0x0004
	mouseeventfAbsolute = 0x8000
)

type mouseInput struct {
	dx          int32
	dy          int32
	mouseData   uint32
	flags       uint32
	time        uint32
	dwExtraInfo uintptr
}

// input mirrors INPUT with the MOUSEINPUT arm of the union, which is its
// largest member. Natural alignment places mi at offset 8 on 64-bit.
type input struct {
	typ uint32
	mi  mouseInput
}

// MouseClick moves the pointer to screen pixel (x, y) and clicks the left
// button there. The pointer is left at (x, y).
func MouseClick(x, y int) error {
	w, _, _ := procGetSystemMetrics.Call(smCxScreen)
	h, _, _ := procGetSystemMetrics.Call(smCyScreen)
	dx, dy, err := toAbsolute(x, y, int(w), int(h))
	if err != nil {
		return err
	}

	mk := func(flags uint32) input {
		return input{typ: inputMouse, mi: mouseInput{dx: dx, dy: dy, flags: flags | mouseeventfAbsolute}}
	}
	inputs := []input{
		mk(mouseeventfMove),
		mk(mouseeventfLeftDown),
		mk(mouseeventfLeftUp),
	}
	kbMu.Lock()
	defer kbMu.Unlock()
	n, _, callErr := procSendInput.Call(uintptr(len(inputs)), uintptr(unsafe.Pointer(&inputs[0])), unsafe.Sizeof(inputs[0]))
	if int(n) != len(inputs) {
		return fmt.Errorf("SendInput sent %d of %d mouse inputs: %w", n, len(inputs), callErr)
	}
	return nil
}
