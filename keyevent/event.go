// Package keyevent defines the normalized keyboard record delivered by the
// monitor.
package keyevent

import (
	"fmt"
	"strings"
)

type Kind uint8

const (
	KeyDown Kind = iota + 1
	KeyUp
	// FlagsChanged reports a change of the held modifier set.
	FlagsChanged
)

func (k Kind) String() string {
	switch k {
	case KeyDown:
		return "down"
	case KeyUp:
		return "up"
	case FlagsChanged:
		return "flagsChanged"
	default:
		return "unknown"
	}
}

// Modifiers is a bitmask of held modifier keys. Bit positions are the same on
// every backend.
type Modifiers uint64

const (
	ModShift    Modifiers = 1 << 0
	ModControl  Modifiers = 1 << 2
	ModAlt      Modifiers = 1 << 3
	ModMeta     Modifiers = 1 << 6
	ModCapsLock Modifiers = 1 << 16
)

var modifierNames = []struct {
	bit  Modifiers
	name string
}{
	{ModShift, "shift"},
	{ModControl, "ctrl"},
	{ModAlt, "alt"},
	{ModMeta, "meta"},
	{ModCapsLock, "caps"},
}

func (m Modifiers) Has(bit Modifiers) bool { return m&bit == bit }

// Names lists the held modifiers in a fixed order.
func (m Modifiers) Names() []string {
	var names []string
	for _, mn := range modifierNames {
		if m.Has(mn.bit) {
			names = append(names, mn.name)
		}
	}
	return names
}

func (m Modifiers) String() string {
	names := m.Names()
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "+")
}

// ParseModifiers is the inverse of Modifiers.String. It accepts "none", ""
// or names joined with "+".
func ParseModifiers(s string) (Modifiers, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "none" {
		return 0, nil
	}
	var m Modifiers
	for _, part := range strings.Split(s, "+") {
		found := false
		for _, mn := range modifierNames {
			if strings.EqualFold(part, mn.name) {
				m |= mn.bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown modifier %q", part)
		}
	}
	return m, nil
}

// Event is one captured keyboard record. KeyCode is the platform-native code
// and is not layout-mapped.
type Event struct {
	Kind      Kind
	KeyCode   uint16
	Modifiers Modifiers
	IsRepeat  bool
}

// Valid reports whether e has a known kind and IsRepeat only on KeyDown.
func (e Event) Valid() bool {
	switch e.Kind {
	case KeyDown:
		return true
	case KeyUp, FlagsChanged:
		return !e.IsRepeat
	default:
		return false
	}
}

func (e Event) String() string {
	s := fmt.Sprintf("%s key=%d mods=%s", e.Kind, e.KeyCode, e.Modifiers)
	if e.IsRepeat {
		s += " repeat"
	}
	return s
}
