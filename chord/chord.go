// Package chord recognizes one key combination in a stream of records and
// reports each press as a tap or a hold.
package chord

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"keytap/keyevent"
)

// Caps lock is ignored when matching.
const matchMask = keyevent.ModShift | keyevent.ModControl | keyevent.ModAlt | keyevent.ModMeta

// Combo is a set of held modifiers plus one platform key code.
type Combo struct {
	Mods keyevent.Modifiers
	Code uint16
}

// ParseCombo reads "mod+mod+code", e.g. "ctrl+shift+57". The code is the
// platform-native key code in decimal.
func ParseCombo(s string) (Combo, error) {
	s = strings.TrimSpace(s)
	i := strings.LastIndex(s, "+")
	codePart, modPart := s, ""
	if i >= 0 {
		codePart, modPart = s[i+1:], s[:i]
	}
	code, err := strconv.ParseUint(codePart, 10, 16)
	if err != nil {
		return Combo{}, fmt.Errorf("chord %q: key code must be a number", s)
	}
	mods, err := keyevent.ParseModifiers(modPart)
	if err != nil {
		return Combo{}, fmt.Errorf("chord %q: %w", s, err)
	}
	return Combo{Mods: mods, Code: uint16(code)}, nil
}

func (c Combo) String() string {
	if c.Mods == 0 {
		return strconv.Itoa(int(c.Code))
	}
	return c.Mods.String() + "+" + strconv.Itoa(int(c.Code))
}

func (c Combo) pressedBy(ev keyevent.Event) bool {
	return ev.Kind == keyevent.KeyDown && !ev.IsRepeat && ev.KeyCode == c.Code &&
		ev.Modifiers&matchMask == c.Mods&matchMask
}

type Kind string

const (
	// Tap is a press released before the long-press threshold.
	Tap Kind = "tap"
	// Hold is reported once the threshold passes with the combo still down.
	Hold Kind = "hold"
	// Release ends a Hold.
	Release Kind = "release"
)

type Press struct {
	Kind     Kind
	Duration time.Duration
}

// Detector is fed records from a monitor handler. Holds are decided by a
// timer, so results arrive on a channel.
type Detector struct {
	combo     Combo
	longPress time.Duration
	out       chan Press

	mu       sync.Mutex
	held     bool
	gen      uint64
	since    time.Time
	reported bool
	timer    *time.Timer
}

func New(c Combo, longPress time.Duration) *Detector {
	return &Detector{
		combo:     c,
		longPress: longPress,
		out:       make(chan Press, 16),
	}
}

func (d *Detector) Combo() Combo { return d.combo }

// Presses delivers classified presses. A full channel drops new results.
func (d *Detector) Presses() <-chan Press { return d.out }

// Feed processes one record.
func (d *Detector) Feed(ev keyevent.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case !d.held && d.combo.pressedBy(ev):
		d.held = true
		d.reported = false
		d.since = time.Now()
		d.gen++
		gen := d.gen
		d.timer = time.AfterFunc(d.longPress, func() { d.fireHold(gen) })

	case d.held && ev.Kind == keyevent.KeyUp && ev.KeyCode == d.combo.Code:
		d.held = false
		d.timer.Stop()
		elapsed := time.Since(d.since)
		if d.reported {
			d.emit(Press{Kind: Release, Duration: elapsed})
		} else {
			d.emit(Press{Kind: Tap, Duration: elapsed})
		}
	}
}

func (d *Detector) fireHold(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.held || d.gen != gen {
		return
	}
	d.reported = true
	d.emit(Press{Kind: Hold, Duration: time.Since(d.since)})
}

// Reset forgets a combo that is still down, e.g. after the monitor stops.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.held {
		d.timer.Stop()
		d.held = false
	}
}

func (d *Detector) emit(p Press) {
	select {
	case d.out <- p:
	default:
	}
}
