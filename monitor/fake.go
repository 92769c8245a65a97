package monitor

import (
	"sync"
	"sync/atomic"

	"keytap/keyevent"
)

// FakeBackend is an in-process Backend driven by Inject. Records are emitted
// on the capture goroutine, the same as a real backend.
type FakeBackend struct {
	// OpenErr is returned by Open.
	OpenErr error
	// RunErr is reported on ready instead of nil.
	RunErr error
	// Hang makes Run ignore Signal until Release is called.
	Hang bool

	in      chan keyevent.Event
	stop    chan struct{}
	release chan struct{}

	stopOnce    sync.Once
	releaseOnce sync.Once

	opened atomic.Int32
	closed atomic.Int32
	live   atomic.Bool
}

func NewFake() *FakeBackend {
	return &FakeBackend{
		in:      make(chan keyevent.Event),
		stop:    make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (f *FakeBackend) Name() string { return "fake" }

func (f *FakeBackend) Open() error {
	if f.OpenErr != nil {
		return f.OpenErr
	}
	f.opened.Add(1)
	// A restarted fake gets a fresh stop signal.
	f.stop = make(chan struct{})
	f.stopOnce = sync.Once{}
	return nil
}

func (f *FakeBackend) Run(emit Emit, ready chan<- error) {
	if f.RunErr != nil {
		ready <- f.RunErr
		return
	}
	f.live.Store(true)
	defer f.live.Store(false)
	ready <- nil

	if f.Hang {
		<-f.release
	}
	for {
		select {
		case ev := <-f.in:
			emit(ev)
		case <-f.stop:
			return
		}
	}
}

func (f *FakeBackend) Signal() {
	f.stopOnce.Do(func() { close(f.stop) })
}

func (f *FakeBackend) Close() error {
	f.closed.Add(1)
	return nil
}

// Release unblocks a Run started with Hang set.
func (f *FakeBackend) Release() {
	f.releaseOnce.Do(func() { close(f.release) })
}

// Inject hands ev to the capture goroutine. It reports false if capture is
// not running or stops before taking the record.
func (f *FakeBackend) Inject(ev keyevent.Event) bool {
	if !f.live.Load() {
		return false
	}
	select {
	case f.in <- ev:
		return true
	case <-f.stop:
		return false
	}
}

// Live reports whether Run is inside its capture loop.
func (f *FakeBackend) Live() bool { return f.live.Load() }

// Opened and Closed count Open and Close calls that acquired or released
// resources.
func (f *FakeBackend) Opened() int { return int(f.opened.Load()) }
func (f *FakeBackend) Closed() int { return int(f.closed.Load()) }

func (f *FakeBackend) SimKeyDown(code uint16, mods keyevent.Modifiers) bool {
	return f.Inject(keyevent.Event{Kind: keyevent.KeyDown, KeyCode: code, Modifiers: mods})
}

func (f *FakeBackend) SimRepeat(code uint16, mods keyevent.Modifiers) bool {
	return f.Inject(keyevent.Event{Kind: keyevent.KeyDown, KeyCode: code, Modifiers: mods, IsRepeat: true})
}

func (f *FakeBackend) SimKeyUp(code uint16, mods keyevent.Modifiers) bool {
	return f.Inject(keyevent.Event{Kind: keyevent.KeyUp, KeyCode: code, Modifiers: mods})
}

func (f *FakeBackend) SimFlags(code uint16, mods keyevent.Modifiers) bool {
	return f.Inject(keyevent.Event{Kind: keyevent.FlagsChanged, KeyCode: code, Modifiers: mods})
}
