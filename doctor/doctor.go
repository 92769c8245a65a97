package doctor

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"keytap/inject"
	"keytap/keyevent"
	"keytap/monitor"
)

// Timeouts are variables so tests can shorten them.
var (
	pressTimeout  = 10 * time.Second
	synthTimeout  = 3 * time.Second
	releaseWindow = 5 * time.Second
)

type session struct {
	mon    *monitor.Monitor
	events chan keyevent.Event
}

// Run executes interactive diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(opts monitor.Options) int {
	resetTerminal()
	setupInterruptHandler()

	fmt.Println("keytap doctor - interactive capture diagnostics")
	fmt.Println("===============================================")

	s := &session{events: make(chan keyevent.Event, 256)}
	allPass := s.checkBackend(opts)
	if allPass && !s.checkKeyDetection() {
		allPass = false
	}
	if allPass && !s.checkSynthetic() {
		allPass = false
	}
	if s.mon != nil && !s.checkStop() {
		allPass = false
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

func (s *session) handle(ev keyevent.Event) {
	select {
	case s.events <- ev:
	default:
	}
}

func (s *session) checkBackend(opts monitor.Options) bool {
	fmt.Println()
	fmt.Println("[1/4] Capture backend")

	m := monitor.New(opts)
	if err := m.Start(s.handle); err != nil {
		fmt.Printf("  FAIL: %s: %v\n", monitor.StatusOf(err), err)
		printHint(err)
		return false
	}
	s.mon = m
	fmt.Printf("  PASS: %s backend running\n", m.Backend())
	return true
}

func printHint(err error) {
	switch {
	case errors.Is(err, monitor.ErrPermissionDenied):
		switch runtime.GOOS {
		case "darwin":
			fmt.Println("  Grant Input Monitoring to this terminal in System Settings > Privacy & Security")
		case "linux":
			fmt.Println("  Fix with: sudo usermod -aG input $USER, then re-login")
		}
	case errors.Is(err, monitor.ErrDeviceNotFound):
		fmt.Println("  No keyboard found under /dev/input; pass -device to pick one")
	case errors.Is(err, monitor.ErrAlreadyRunning):
		fmt.Println("  Another monitor is active in this process")
	}
}

func (s *session) checkKeyDetection() bool {
	fmt.Println()
	fmt.Println("[2/4] Key detection")
	fmt.Println("Press and release any letter key...")

	down, ok := s.next(keyevent.KeyDown, pressTimeout)
	if !ok {
		fmt.Println("  FAIL: timeout waiting for a key press")
		return false
	}
	fmt.Printf("  PASS: %s\n", down)
	if _, ok := s.nextKey(keyevent.KeyUp, down.KeyCode, releaseWindow); !ok {
		fmt.Println("  FAIL: release not seen")
		return false
	}
	resetTerminal()
	return true
}

func (s *session) checkSynthetic() bool {
	fmt.Println()
	fmt.Println("[3/4] Synthetic keystroke round trip")

	if err := inject.Init(); err != nil {
		fmt.Printf("  SKIP: key injection unavailable: %v\n", err)
		return true
	}
	s.drain()
	if err := inject.SendKey(inject.KeyZ, false); err != nil {
		fmt.Printf("  FAIL: send key: %v\n", err)
		return false
	}

	down, ok := s.next(keyevent.KeyDown, synthTimeout)
	if !ok {
		fmt.Println("  FAIL: injected key press not captured")
		return false
	}
	if down.IsRepeat {
		fmt.Println("  FAIL: injected press reported as repeat")
		return false
	}
	if _, ok := s.nextKey(keyevent.KeyUp, down.KeyCode, synthTimeout); !ok {
		fmt.Printf("  FAIL: no release for key %d\n", down.KeyCode)
		return false
	}
	fmt.Printf("  PASS: down/up captured for key %d\n", down.KeyCode)
	resetTerminal()
	return true
}

func (s *session) checkStop() bool {
	fmt.Println()
	fmt.Println("[4/4] Shutdown")

	if err := s.mon.Stop(); err != nil {
		fmt.Printf("  FAIL: %s: %v\n", monitor.StatusOf(err), err)
		return false
	}
	if s.mon.IsRunning() {
		fmt.Println("  FAIL: monitor still running after Stop")
		return false
	}
	fmt.Println("  PASS: capture thread stopped")
	return true
}

// next waits for a record of kind from any key, skipping modifier changes.
func (s *session) next(kind keyevent.Kind, timeout time.Duration) (keyevent.Event, bool) {
	return s.await(func(ev keyevent.Event) bool { return ev.Kind == kind }, timeout)
}

// nextKey waits for a record of kind for code. Code 0 is a real key on some
// platforms, so it is matched literally.
func (s *session) nextKey(kind keyevent.Kind, code uint16, timeout time.Duration) (keyevent.Event, bool) {
	return s.await(func(ev keyevent.Event) bool { return ev.Kind == kind && ev.KeyCode == code }, timeout)
}

func (s *session) await(match func(keyevent.Event) bool, timeout time.Duration) (keyevent.Event, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-s.events:
			if match(ev) {
				return ev, true
			}
		case <-deadline:
			return keyevent.Event{}, false
		}
	}
}

func (s *session) drain() {
	for {
		select {
		case <-s.events:
		default:
			return
		}
	}
}
