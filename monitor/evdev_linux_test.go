//go:build linux

package monitor

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"keytap/keyevent"
)

// pipeBackend returns an evdev backend reading the read end of a pipe, and
// the write end.
func pipeBackend(t *testing.T) (*evdevBackend, int) {
	t.Helper()
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		t.Fatal(err)
	}
	b := newEvdevBackend(Options{PollInterval: 10 * time.Millisecond})
	b.fd = p[0]
	b.path = "pipe"
	t.Cleanup(func() { b.Close() })
	return b, p[1]
}

func writeRaw(t *testing.T, fd int, evs ...inputEvent) {
	t.Helper()
	var buf []byte
	for _, ev := range evs {
		buf = append(buf, encodeEvent(ev)...)
	}
	if _, err := unix.Write(fd, buf); err != nil {
		t.Fatal(err)
	}
}

func runBackend(b *evdevBackend) (<-chan keyevent.Event, <-chan struct{}) {
	out := make(chan keyevent.Event, 64)
	done := make(chan struct{})
	ready := make(chan error, 1)
	go func() {
		defer close(done)
		b.Run(func(ev keyevent.Event) { out <- ev }, ready)
	}()
	<-ready
	return out, done
}

func TestEvdevRunDelivers(t *testing.T) {
	b, w := pipeBackend(t)
	defer unix.Close(w)
	out, done := runBackend(b)

	writeRaw(t, w,
		key(keyA, keyPress),
		inputEvent{Type: evSyn, Code: synReport},
		key(keyA, keyRepeat),
		key(keyA, keyRelease),
	)

	var got []keyevent.Event
	for len(got) < 3 {
		select {
		case ev := <-out:
			got = append(got, ev)
		case <-time.After(time.Second):
			t.Fatalf("timed out, got %v", got)
		}
	}
	want := []keyevent.Event{
		{Kind: keyevent.KeyDown, KeyCode: keyA},
		{Kind: keyevent.KeyDown, KeyCode: keyA, IsRepeat: true},
		{Kind: keyevent.KeyUp, KeyCode: keyA},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	b.Signal()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Signal")
	}
}

func TestEvdevRunExitsOnHangup(t *testing.T) {
	b, w := pipeBackend(t)
	_, done := runBackend(b)

	unix.Close(w)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the device went away")
	}
}

func TestEvdevThroughMonitor(t *testing.T) {
	b, w := pipeBackend(t)
	defer unix.Close(w)

	m := New(Options{Backend: &openedEvdev{b}})
	rec := newRecorder()
	if err := m.Start(rec.handle); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Stop() })

	writeRaw(t, w, key(keyLeftMeta, keyPress), key(keyZ, keyPress))
	got := rec.wait(t, 2)
	if got[0].Kind != keyevent.FlagsChanged || !got[1].Modifiers.Has(keyevent.ModMeta) {
		t.Errorf("got %v", got)
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// The read end is closed by now, so the write may fail with EPIPE.
	var buf []byte
	for _, ev := range []inputEvent{key(keyA, keyPress), {Type: evSyn, Code: synReport}, key(keyA, keyRelease)} {
		buf = append(buf, encodeEvent(ev)...)
	}
	unix.Write(w, buf)
	time.Sleep(50 * time.Millisecond)
	if after := rec.snapshot(); len(after) != len(got) {
		t.Errorf("records delivered after Stop: %v", after[len(got):])
	}
}

// openedEvdev skips device discovery for a backend whose fd is already set.
type openedEvdev struct{ *evdevBackend }

func (o *openedEvdev) Open() error { return nil }

func TestEvdevOpenMissingDevice(t *testing.T) {
	b := newEvdevBackend(Options{Device: "/nonexistent/event99"})
	err := b.Open()
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Open = %v, want ErrDeviceNotFound", err)
	}
}

func TestEvdevOpenNoCandidates(t *testing.T) {
	tree := newFakeInputTree(t)
	b := newEvdevBackend(Options{})
	b.disc = tree.disc
	if err := b.Open(); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Open = %v, want ErrDeviceNotFound", err)
	}
}

func TestClassifyOpenErrs(t *testing.T) {
	if err := classifyOpenErrs([]error{unix.EACCES, unix.EPERM}); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("all EACCES: %v", err)
	}
	if err := classifyOpenErrs([]error{unix.EACCES, unix.EBUSY}); !errors.Is(err, ErrResourceAcquisition) {
		t.Errorf("mixed: %v", err)
	}
	if err := classifyOpenErrs([]error{unix.ENOENT}); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("ENOENT: %v", err)
	}
}
