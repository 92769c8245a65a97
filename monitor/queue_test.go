package monitor

import (
	"testing"
	"time"

	"keytap/keyevent"
)

func TestQueueFlushOnClose(t *testing.T) {
	release := make(chan struct{})
	var got []uint16
	q := newQueue(func(ev keyevent.Event) {
		<-release
		got = append(got, ev.KeyCode)
	})

	for i := 1; i <= 5; i++ {
		q.Push(keyevent.Event{Kind: keyevent.KeyDown, KeyCode: uint16(i)})
	}
	close(release)

	if !q.Close(time.Second) {
		t.Fatal("flush did not complete")
	}
	if len(got) != 5 {
		t.Fatalf("delivered %d records, want 5", len(got))
	}
	for i, code := range got {
		if code != uint16(i+1) {
			t.Errorf("record %d has code %d", i, code)
		}
	}
	if q.delivered.Load() != 5 {
		t.Errorf("delivered counter = %d", q.delivered.Load())
	}
}

func TestQueueDropsAfterClose(t *testing.T) {
	q := newQueue(func(keyevent.Event) {})
	q.Close(time.Second)

	q.Push(keyevent.Event{Kind: keyevent.KeyDown, KeyCode: 1})
	if q.dropped.Load() != 1 {
		t.Errorf("dropped = %d, want 1", q.dropped.Load())
	}
}

func TestQueueAbandonOnTimeout(t *testing.T) {
	block := make(chan struct{})
	calls := make(chan uint16, 10)
	q := newQueue(func(ev keyevent.Event) {
		calls <- ev.KeyCode
		<-block
	})

	q.Push(keyevent.Event{Kind: keyevent.KeyDown, KeyCode: 1})
	q.Push(keyevent.Event{Kind: keyevent.KeyDown, KeyCode: 2})
	q.Push(keyevent.Event{Kind: keyevent.KeyDown, KeyCode: 3})
	<-calls

	if q.Close(20 * time.Millisecond) {
		t.Fatal("Close reported a completed flush while the handler was blocked")
	}
	close(block)

	select {
	case <-q.done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not exit after abandon")
	}
	select {
	case code := <-calls:
		t.Errorf("handler called for %d after abandon", code)
	default:
	}
	if q.dropped.Load() != 2 {
		t.Errorf("dropped = %d, want 2", q.dropped.Load())
	}
}

func TestQueueHandlerPanic(t *testing.T) {
	var got []uint16
	q := newQueue(func(ev keyevent.Event) {
		if ev.KeyCode == 2 {
			panic("boom")
		}
		got = append(got, ev.KeyCode)
	})

	for i := 1; i <= 3; i++ {
		q.Push(keyevent.Event{Kind: keyevent.KeyDown, KeyCode: uint16(i)})
	}
	if !q.Close(time.Second) {
		t.Fatal("flush did not complete")
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("got %v, want [1 3]", got)
	}
	if q.dropped.Load() != 1 {
		t.Errorf("dropped = %d, want 1", q.dropped.Load())
	}
}

func TestQueuePushDoesNotBlock(t *testing.T) {
	block := make(chan struct{})
	q := newQueue(func(keyevent.Event) { <-block })
	defer func() {
		close(block)
		q.Close(time.Second)
	}()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			q.Push(keyevent.Event{Kind: keyevent.KeyDown, KeyCode: uint16(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Push blocked behind a stalled handler")
	}
}
