package monitor

import (
	"encoding/binary"
	"math/bits"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"keytap/keyevent"
)

const (
	evSyn = 0
	evKey = 1

	synReport  = 0
	synDropped = 3

	keyRelease = 0
	keyPress   = 1
	keyRepeat  = 2
)

// input_event is a timeval (two native longs) followed by type, code and
// value.
const inputEventSize = bits.UintSize/4 + 8

type inputEvent struct {
	Type  uint16
	Code  uint16
	Value int32
}

// decodeEvents calls fn for every whole record in buf. A trailing partial
// record is ignored.
func decodeEvents(buf []byte, fn func(inputEvent)) {
	off := bits.UintSize / 4
	for i := 0; i+inputEventSize <= len(buf); i += inputEventSize {
		rec := buf[i : i+inputEventSize]
		fn(inputEvent{
			Type:  binary.NativeEndian.Uint16(rec[off:]),
			Code:  binary.NativeEndian.Uint16(rec[off+2:]),
			Value: int32(binary.NativeEndian.Uint32(rec[off+4:])),
		})
	}
}

// encodeEvent is the inverse of decodeEvents for a single record.
func encodeEvent(ev inputEvent) []byte {
	rec := make([]byte, inputEventSize)
	off := bits.UintSize / 4
	binary.NativeEndian.PutUint16(rec[off:], ev.Type)
	binary.NativeEndian.PutUint16(rec[off+2:], ev.Code)
	binary.NativeEndian.PutUint32(rec[off+4:], uint32(ev.Value))
	return rec
}

// evdevDecoder turns raw input records into Event Records. After a
// SYN_DROPPED it discards everything up to the next SYN_REPORT and then
// flags that the modifier state must be re-read from the device.
type evdevDecoder struct {
	mods      *tracker
	dropping  bool
	resyncDue bool
}

func newEvdevDecoder() *evdevDecoder {
	return &evdevDecoder{mods: newTracker()}
}

func (d *evdevDecoder) feed(ev inputEvent) (keyevent.Event, bool) {
	switch ev.Type {
	case evSyn:
		switch ev.Code {
		case synDropped:
			d.dropping = true
		case synReport:
			if d.dropping {
				d.dropping = false
				d.resyncDue = true
			}
		}
		return keyevent.Event{}, false
	case evKey:
		if d.dropping {
			return keyevent.Event{}, false
		}
		return d.key(ev.Code, ev.Value)
	}
	return keyevent.Event{}, false
}

func (d *evdevDecoder) key(code uint16, value int32) (keyevent.Event, bool) {
	switch value {
	case keyPress:
		if d.mods.update(code, true) {
			return keyevent.Event{Kind: keyevent.FlagsChanged, KeyCode: code, Modifiers: d.mods.mask()}, true
		}
		return keyevent.Event{Kind: keyevent.KeyDown, KeyCode: code, Modifiers: d.mods.mask()}, true
	case keyRelease:
		if d.mods.update(code, false) {
			return keyevent.Event{Kind: keyevent.FlagsChanged, KeyCode: code, Modifiers: d.mods.mask()}, true
		}
		return keyevent.Event{Kind: keyevent.KeyUp, KeyCode: code, Modifiers: d.mods.mask()}, true
	case keyRepeat:
		return keyevent.Event{Kind: keyevent.KeyDown, KeyCode: code, Modifiers: d.mods.mask(), IsRepeat: true}, true
	}
	return keyevent.Event{}, false
}

// discovery locates keyboard device nodes. The roots are fields so tests can
// point them at a temporary tree.
type discovery struct {
	inputDir string // /dev/input
	sysDir   string // /sys/class/input
}

var defaultDiscovery = discovery{
	inputDir: "/dev/input",
	sysDir:   "/sys/class/input",
}

// findKeyboards returns candidate nodes in preference order: stable by-id
// names first, then the remaining event nodes by number.
func (d discovery) findKeyboards() ([]string, error) {
	entries, err := os.ReadDir(d.inputDir)
	if err != nil {
		return nil, err
	}

	var out []string
	seen := make(map[string]bool)

	byID := filepath.Join(d.inputDir, "by-id")
	if ids, err := os.ReadDir(byID); err == nil {
		for _, e := range ids {
			name := e.Name()
			if !strings.Contains(name, "-kbd") && !strings.Contains(name, "keyboard") {
				continue
			}
			link := filepath.Join(byID, name)
			target, err := filepath.EvalSymlinks(link)
			if err != nil || seen[target] {
				continue
			}
			if !d.isKeyboard(filepath.Base(target)) {
				continue
			}
			seen[target] = true
			out = append(out, link)
		}
	}

	var events []string
	for _, e := range entries {
		if _, ok := eventNumber(e.Name()); ok {
			events = append(events, e.Name())
		}
	}
	sort.Slice(events, func(i, j int) bool {
		a, _ := eventNumber(events[i])
		b, _ := eventNumber(events[j])
		return a < b
	})

	for _, name := range events {
		path := filepath.Join(d.inputDir, name)
		if resolved, err := filepath.EvalSymlinks(path); err == nil && seen[resolved] {
			continue
		}
		if d.isKeyboard(name) {
			out = append(out, path)
		}
	}
	return out, nil
}

func eventNumber(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, "event")
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

// isKeyboard reports whether the device advertises both KEY_A and KEY_Z.
func (d discovery) isKeyboard(eventName string) bool {
	data, err := os.ReadFile(filepath.Join(d.sysDir, eventName, "device", "capabilities", "key"))
	if err != nil {
		return false
	}
	words := strings.Fields(string(data))
	return capHasKey(words, keyA) && capHasKey(words, keyZ)
}

// capHasKey tests code in a sysfs capability bitmap: hex words of the
// kernel's long size, most significant word first.
func capHasKey(words []string, code int) bool {
	idx := len(words) - 1 - code/bits.UintSize
	if idx < 0 {
		return false
	}
	w, err := strconv.ParseUint(words[idx], 16, bits.UintSize)
	if err != nil {
		return false
	}
	return w&(1<<(uint(code)%bits.UintSize)) != 0
}

// Keyboards lists the raw keyboard devices the linux backend would try, in
// the order it would try them.
func Keyboards() ([]string, error) {
	return defaultDiscovery.findKeyboards()
}
