package monitor

import "keytap/keyevent"

// Linux input key codes for the tracked modifiers.
const (
	keyLeftCtrl   = 29
	keyLeftShift  = 42
	keyRightShift = 54
	keyLeftAlt    = 56
	keyCapsLock   = 58
	keyRightCtrl  = 97
	keyRightAlt   = 100
	keyLeftMeta   = 125
	keyRightMeta  = 126

	keyA = 30
	keyZ = 44
)

var modifierKeys = map[uint16]keyevent.Modifiers{
	keyLeftShift:  keyevent.ModShift,
	keyRightShift: keyevent.ModShift,
	keyLeftCtrl:   keyevent.ModControl,
	keyRightCtrl:  keyevent.ModControl,
	keyLeftAlt:    keyevent.ModAlt,
	keyRightAlt:   keyevent.ModAlt,
	keyLeftMeta:   keyevent.ModMeta,
	keyRightMeta:  keyevent.ModMeta,
	keyCapsLock:   keyevent.ModCapsLock,
}

func isModifier(code uint16) bool {
	_, ok := modifierKeys[code]
	return ok
}

// tracker keeps the modifier mask for the raw-device backend. A bit stays set
// while any key mapped to it is held. Capture thread only.
type tracker struct {
	held map[uint16]bool
}

func newTracker() *tracker {
	return &tracker{held: make(map[uint16]bool)}
}

// update records a press or release of code and reports whether code is a
// modifier. Non-modifiers leave the state untouched.
func (t *tracker) update(code uint16, down bool) bool {
	if !isModifier(code) {
		return false
	}
	if down {
		t.held[code] = true
	} else {
		delete(t.held, code)
	}
	return true
}

func (t *tracker) mask() keyevent.Modifiers {
	var m keyevent.Modifiers
	for code := range t.held {
		m |= modifierKeys[code]
	}
	return m
}

// resync replaces the held set with the modifiers isDown reports as pressed.
func (t *tracker) resync(isDown func(code uint16) bool) {
	clear(t.held)
	for code := range modifierKeys {
		if isDown(code) {
			t.held[code] = true
		}
	}
}
