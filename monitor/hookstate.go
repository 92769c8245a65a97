package monitor

import "keytap/keyevent"

// Low-level keyboard hook message identifiers.
const (
	wmKeyDown    = 0x0100
	wmKeyUp      = 0x0101
	wmSysKeyDown = 0x0104
	wmSysKeyUp   = 0x0105
)

// Virtual-key codes that contribute to the modifier mask. The generic and
// sided codes both appear depending on the source of the event.
var vkModifiers = map[uint32]keyevent.Modifiers{
	0x10: keyevent.ModShift, // VK_SHIFT
	0xA0: keyevent.ModShift, // VK_LSHIFT
	0xA1: keyevent.ModShift, // VK_RSHIFT
	0x11: keyevent.ModControl,
	0xA2: keyevent.ModControl,
	0xA3: keyevent.ModControl,
	0x12: keyevent.ModAlt, // VK_MENU
	0xA4: keyevent.ModAlt,
	0xA5: keyevent.ModAlt,
	0x5B: keyevent.ModMeta, // VK_LWIN
	0x5C: keyevent.ModMeta, // VK_RWIN
	0x14: keyevent.ModCapsLock,
}

// keyTable is the per-hook down table. It suppresses the hook's auto-repeat
// downs so a held key yields one KeyDown. Capture thread only.
type keyTable struct {
	down [256]bool
}

func (t *keyTable) translate(msg uintptr, vk uint32) (keyevent.Event, bool) {
	if vk > 0xFF {
		return keyevent.Event{}, false
	}
	var kind keyevent.Kind
	switch msg {
	case wmKeyDown, wmSysKeyDown:
		if t.down[vk] {
			return keyevent.Event{}, false
		}
		t.down[vk] = true
		kind = keyevent.KeyDown
	case wmKeyUp, wmSysKeyUp:
		t.down[vk] = false
		kind = keyevent.KeyUp
	default:
		return keyevent.Event{}, false
	}
	return keyevent.Event{Kind: kind, KeyCode: uint16(vk), Modifiers: t.mask()}, true
}

func (t *keyTable) mask() keyevent.Modifiers {
	var m keyevent.Modifiers
	for vk, bit := range vkModifiers {
		if t.down[vk] {
			m |= bit
		}
	}
	return m
}
