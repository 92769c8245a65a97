//go:build linux || windows || darwin

// Package inject synthesizes keystrokes and, on windows, left clicks. It
// shares nothing with the monitor; doctor uses it for a capture round trip and
// selection for the copy shortcut.
package inject

import (
	"sync"

	"github.com/micmonay/keybd_event"
)

const (
	KeyC = keybd_event.VK_C
	KeyZ = keybd_event.VK_Z
)

var (
	kb     keybd_event.KeyBonding
	kbOnce sync.Once
	kbErr  error
	kbMu   sync.Mutex
)

// Init prepares the virtual keyboard. On linux this creates a uinput device,
// which the compositor needs a moment to pick up.
func Init() error {
	kbOnce.Do(func() {
		kb, kbErr = keybd_event.NewKeyBonding()
		if kbErr == nil {
			settle()
		}
	})
	return kbErr
}

// SendKey presses and releases code, optionally holding the platform's
// primary shortcut modifier (Cmd on macOS, Ctrl elsewhere).
func SendKey(code int, useModifier bool) error {
	if err := Init(); err != nil {
		return err
	}
	kbMu.Lock()
	defer kbMu.Unlock()

	kb.Clear()
	kb.SetKeys(code)
	setPrimaryModifier(&kb, useModifier)
	return kb.Launching()
}
