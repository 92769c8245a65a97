package monitor

import (
	"math"

	"keytap/keyevent"
)

// CGEventType values delivered to a session tap.
const (
	cgEventKeyDown              = 10
	cgEventKeyUp                = 11
	cgEventFlagsChanged         = 12
	cgEventTapDisabledByTimeout = 0xFFFFFFFE
	cgEventTapDisabledByUser    = 0xFFFFFFFF
)

// CGEventFlags masks.
const (
	cgFlagAlphaShift = 1 << 16
	cgFlagShift      = 1 << 17
	cgFlagControl    = 1 << 18
	cgFlagAlternate  = 1 << 19
	cgFlagCommand    = 1 << 20
)

func tapModifiers(flags uint64) keyevent.Modifiers {
	var m keyevent.Modifiers
	if flags&cgFlagShift != 0 {
		m |= keyevent.ModShift
	}
	if flags&cgFlagControl != 0 {
		m |= keyevent.ModControl
	}
	if flags&cgFlagAlternate != 0 {
		m |= keyevent.ModAlt
	}
	if flags&cgFlagCommand != 0 {
		m |= keyevent.ModMeta
	}
	if flags&cgFlagAlphaShift != 0 {
		m |= keyevent.ModCapsLock
	}
	return m
}

// tapDisabled reports whether typ is one of the notifications the system
// sends after turning the tap off.
func tapDisabled(typ uint32) bool {
	return typ == cgEventTapDisabledByTimeout || typ == cgEventTapDisabledByUser
}

// translateTap converts one tap callback into an Event Record.
func translateTap(typ uint32, keyCode int64, flags uint64, autorepeat int64) (keyevent.Event, bool) {
	if keyCode < 0 || keyCode > math.MaxUint16 {
		return keyevent.Event{}, false
	}
	ev := keyevent.Event{KeyCode: uint16(keyCode), Modifiers: tapModifiers(flags)}
	switch typ {
	case cgEventKeyDown:
		ev.Kind = keyevent.KeyDown
		ev.IsRepeat = autorepeat != 0
	case cgEventKeyUp:
		ev.Kind = keyevent.KeyUp
	case cgEventFlagsChanged:
		ev.Kind = keyevent.FlagsChanged
	default:
		return keyevent.Event{}, false
	}
	return ev, true
}
