package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"keytap/chord"
	"keytap/keyevent"
)

// EventSink abstracts the display layer so the Bubble Tea TUI and plain
// line output receive the same monitor events.
type EventSink interface {
	Status(text string)
	Backend(name, device string)
	Key(ev keyevent.Event)
	Counters(delivered, dropped uint64)
	Chord(p chord.Press)
	Notice(text string)
}

// plainSink writes one line per event. The -test mode and integration tests
// parse this format.
type plainSink struct {
	mu  sync.Mutex
	out io.Writer
}

func newPlainSink(out io.Writer) *plainSink {
	return &plainSink{out: out}
}

func (s *plainSink) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format+"\n", args...)
}

func (s *plainSink) Status(text string) { s.printf("status %s", text) }

func (s *plainSink) Backend(name, device string) {
	if device == "" {
		s.printf("backend %s", name)
		return
	}
	s.printf("backend %s device=%s", name, device)
}

func (s *plainSink) Key(ev keyevent.Event) { s.printf("event %s", ev) }

// Counters is only shown by the TUI.
func (s *plainSink) Counters(delivered, dropped uint64) {}

func (s *plainSink) Chord(p chord.Press) {
	s.printf("chord %s %s", p.Kind, p.Duration.Round(time.Millisecond))
}

func (s *plainSink) Notice(text string) { s.printf("notice %s", text) }
