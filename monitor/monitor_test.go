package monitor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"keytap/keyevent"
)

// recorder is a Handler that stores every record it receives.
type recorder struct {
	mu     sync.Mutex
	events []keyevent.Event
	got    chan struct{}
}

func newRecorder() *recorder {
	return &recorder{got: make(chan struct{}, 1024)}
}

func (r *recorder) handle(ev keyevent.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.got <- struct{}{}
}

func (r *recorder) snapshot() []keyevent.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]keyevent.Event(nil), r.events...)
}

func (r *recorder) wait(t *testing.T, n int) []keyevent.Event {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.got:
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for record %d of %d", i+1, n)
		}
	}
	return r.snapshot()
}

func startFake(t *testing.T, opts Options) (*Monitor, *FakeBackend, *recorder) {
	t.Helper()
	fb := NewFake()
	opts.Backend = fb
	m := New(opts)
	rec := newRecorder()
	if err := m.Start(rec.handle); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		fb.Release()
		m.Stop()
	})
	return m, fb, rec
}

func waitLiveQueues(t *testing.T, want int64) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for liveQueues.Load() != want {
		if time.Now().After(deadline) {
			t.Fatalf("live queues = %d, want %d", liveQueues.Load(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartTwice(t *testing.T) {
	m, _, _ := startFake(t, Options{})

	if !m.IsRunning() {
		t.Fatal("expected running after Start")
	}
	if m.Backend() != "fake" {
		t.Errorf("backend = %q", m.Backend())
	}
	err := m.Start(func(keyevent.Event) {})
	if StatusOf(err) != StatusAlreadyRunning {
		t.Fatalf("second Start = %v, want already_running", err)
	}
	if !m.IsRunning() {
		t.Error("second Start changed state")
	}
}

func TestStopTwice(t *testing.T) {
	m, _, _ := startFake(t, Options{})

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if m.IsRunning() || m.State() != StateIdle {
		t.Fatalf("state after Stop = %s", m.State())
	}
	if err := m.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("second Stop = %v, want ErrNotRunning", err)
	}
}

func TestStopWithoutStart(t *testing.T) {
	m := New(Options{Backend: NewFake()})
	if StatusOf(m.Stop()) != StatusNotRunning {
		t.Fatal("Stop on idle monitor should report not_running")
	}
	if m.Done() != nil {
		t.Error("Done should be nil before Start")
	}
}

func TestKeyRoundTrip(t *testing.T) {
	m, fb, rec := startFake(t, Options{})

	if !fb.SimKeyDown(30, 0) {
		t.Fatal("inject down failed")
	}
	got := rec.wait(t, 1)
	want := keyevent.Event{Kind: keyevent.KeyDown, KeyCode: 30}
	if got[0] != want {
		t.Fatalf("got %v, want %v", got[0], want)
	}

	if !fb.SimKeyUp(30, 0) {
		t.Fatal("inject up failed")
	}
	got = rec.wait(t, 1)
	want = keyevent.Event{Kind: keyevent.KeyUp, KeyCode: 30}
	if got[1] != want {
		t.Fatalf("got %v, want %v", got[1], want)
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if fb.SimKeyDown(30, 0) {
		t.Error("inject accepted after Stop")
	}
	time.Sleep(20 * time.Millisecond)
	if n := len(rec.snapshot()); n != 2 {
		t.Errorf("got %d records after Stop, want 2", n)
	}
}

func TestOrderPreserved(t *testing.T) {
	_, fb, rec := startFake(t, Options{})

	const n = 200
	for i := 0; i < n; i++ {
		fb.SimKeyDown(uint16(i), 0)
	}
	got := rec.wait(t, n)
	for i, ev := range got {
		if ev.KeyCode != uint16(i) {
			t.Fatalf("record %d has code %d", i, ev.KeyCode)
		}
	}
}

func TestNoDeliveryAfterStop(t *testing.T) {
	m, fb, rec := startFake(t, Options{})

	for i := 0; i < 50; i++ {
		fb.SimKeyDown(uint16(i), 0)
	}
	if err := m.Stop(); err != nil {
		t.Fatal(err)
	}
	n := len(rec.snapshot())
	if n != 50 {
		t.Errorf("Stop returned with %d of 50 records delivered", n)
	}
	for i := 0; i < 10; i++ {
		if fb.SimKeyDown(uint16(100+i), 0) {
			t.Fatalf("key %d accepted after Stop", 100+i)
		}
	}
	time.Sleep(20 * time.Millisecond)
	got := rec.snapshot()
	if len(got) != n {
		t.Fatalf("%d records delivered after Stop returned", len(got)-n)
	}
	for _, ev := range got {
		if ev.KeyCode >= 100 {
			t.Errorf("post-Stop record %v delivered", ev)
		}
	}
}

func TestStartOpenFailure(t *testing.T) {
	waitLiveQueues(t, 0)
	fb := NewFake()
	fb.OpenErr = ErrPermissionDenied
	m := New(Options{Backend: fb})

	err := m.Start(func(keyevent.Event) {})
	if StatusOf(err) != StatusBackendInitFailed {
		t.Fatalf("Start = %v, want backend_init_failed", err)
	}
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("reason not wrapped: %v", err)
	}
	var se *StartError
	if !errors.As(err, &se) || se.Stage != StageBackend {
		t.Errorf("expected StartError at backend stage, got %v", err)
	}
	if m.State() != StateIdle {
		t.Errorf("state = %s, want idle", m.State())
	}
	if fb.Closed() != 0 {
		t.Error("Close called for a backend that never opened")
	}
	waitLiveQueues(t, 0)
}

func TestStartRunFailure(t *testing.T) {
	waitLiveQueues(t, 0)
	fb := NewFake()
	fb.RunErr = ErrResourceAcquisition
	m := New(Options{Backend: fb})

	err := m.Start(func(keyevent.Event) {})
	if StatusOf(err) != StatusBackendInitFailed {
		t.Fatalf("Start = %v, want backend_init_failed", err)
	}
	if m.IsRunning() {
		t.Error("running after failed start")
	}
	if fb.Opened() != fb.Closed() {
		t.Errorf("opened %d, closed %d", fb.Opened(), fb.Closed())
	}
	waitLiveQueues(t, 0)

	// The guard is released, so a healthy monitor can start.
	m2, _, _ := startFake(t, Options{})
	if !m2.IsRunning() {
		t.Error("second monitor did not start")
	}
}

// silentBackend returns from Run without reporting ready.
type silentBackend struct{ *FakeBackend }

func (s *silentBackend) Run(Emit, chan<- error) {}

func TestStartThreadFailure(t *testing.T) {
	sb := &silentBackend{NewFake()}
	m := New(Options{Backend: sb})

	err := m.Start(func(keyevent.Event) {})
	if StatusOf(err) != StatusThreadCreateFailed {
		t.Fatalf("Start = %v, want thread_create_failed", err)
	}
	if m.State() != StateIdle {
		t.Errorf("state = %s", m.State())
	}
	waitLiveQueues(t, 0)
}

// stuckBackend never reports ready and ignores Signal until unblocked.
type stuckBackend struct {
	*FakeBackend
	unblock chan struct{}
	once    sync.Once
}

func (s *stuckBackend) Run(Emit, chan<- error) { <-s.unblock }

func (s *stuckBackend) free() { s.once.Do(func() { close(s.unblock) }) }

func TestStartRollbackThreadStuck(t *testing.T) {
	sb := &stuckBackend{FakeBackend: NewFake(), unblock: make(chan struct{})}
	t.Cleanup(sb.free)
	m := New(Options{Backend: sb, StartTimeout: 50 * time.Millisecond, JoinTimeout: 50 * time.Millisecond})

	err := m.Start(func(keyevent.Event) {})
	if StatusOf(err) != StatusThreadCreateFailed {
		t.Fatalf("Start = %v, want thread_create_failed", err)
	}
	if !errors.Is(err, ErrThreadJoinTimeout) {
		t.Errorf("join timeout not reported: %v", err)
	}
	if m.IsRunning() {
		t.Error("running after failed start")
	}
	if sb.Closed() != 0 {
		t.Fatal("backend closed while its capture thread is alive")
	}

	// The live thread still owns capture, so no retry may reopen a backend.
	if err := m.Start(func(keyevent.Event) {}); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("retry Start = %v, want ErrAlreadyRunning", err)
	}
	other := NewFake()
	if err := New(Options{Backend: other}).Start(func(keyevent.Event) {}); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("other monitor Start = %v, want ErrAlreadyRunning", err)
	}
	if sb.Opened() != 1 || other.Opened() != 0 {
		t.Errorf("opened %d/%d during stuck rollback, want 1/0", sb.Opened(), other.Opened())
	}

	sb.free()
	deadline := time.Now().Add(time.Second)
	for sb.Closed() != 1 || owner.Load() != nil {
		if time.Now().After(deadline) {
			t.Fatalf("closed %d, owner released %v after thread exit", sb.Closed(), owner.Load() == nil)
		}
		time.Sleep(5 * time.Millisecond)
	}

	m2, _, _ := startFake(t, Options{})
	if !m2.IsRunning() {
		t.Error("monitor did not start after reaper released capture")
	}
}

func TestStartNilHandler(t *testing.T) {
	m := New(Options{Backend: NewFake()})
	err := m.Start(nil)
	if StatusOf(err) != StatusChannelInitFailed {
		t.Fatalf("Start(nil) = %v, want channel_init_failed", err)
	}
	if m.State() != StateIdle {
		t.Errorf("state = %s", m.State())
	}
}

func TestStopJoinTimeout(t *testing.T) {
	fb := NewFake()
	fb.Hang = true
	m := New(Options{Backend: fb, JoinTimeout: 50 * time.Millisecond})
	if err := m.Start(func(keyevent.Event) {}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		fb.Release()
		m.Stop()
	})

	err := m.Stop()
	if !errors.Is(err, ErrThreadJoinTimeout) {
		t.Fatalf("Stop = %v, want ErrThreadJoinTimeout", err)
	}
	if !m.IsRunning() {
		t.Fatal("monitor claimed idle while capture thread alive")
	}

	fb.Release()
	if err := m.Stop(); err != nil {
		t.Fatalf("retry Stop: %v", err)
	}
	if m.IsRunning() {
		t.Error("still running after successful retry")
	}
}

func TestSingleActiveMonitor(t *testing.T) {
	startFake(t, Options{})

	other := New(Options{Backend: NewFake()})
	err := other.Start(func(keyevent.Event) {})
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second monitor Start = %v, want ErrAlreadyRunning", err)
	}
	if other.State() != StateIdle {
		t.Errorf("rejected monitor state = %s", other.State())
	}
}

func TestRestart(t *testing.T) {
	fb := NewFake()
	m := New(Options{Backend: fb})
	for i := 0; i < 3; i++ {
		rec := newRecorder()
		if err := m.Start(rec.handle); err != nil {
			t.Fatalf("cycle %d Start: %v", i, err)
		}
		fb.SimKeyDown(uint16(40+i), 0)
		got := rec.wait(t, 1)
		if got[0].KeyCode != uint16(40+i) {
			t.Errorf("cycle %d got %v", i, got[0])
		}
		if err := m.Stop(); err != nil {
			t.Fatalf("cycle %d Stop: %v", i, err)
		}
	}
	if fb.Opened() != 3 || fb.Closed() != 3 {
		t.Errorf("opened %d closed %d, want 3/3", fb.Opened(), fb.Closed())
	}
}

func TestDoneClosedOnBackendExit(t *testing.T) {
	m, fb, _ := startFake(t, Options{})
	done := m.Done()
	if done == nil {
		t.Fatal("Done is nil while running")
	}
	fb.Signal()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Done not closed after backend exit")
	}
	if err := m.Stop(); err != nil {
		t.Errorf("Stop after backend exit: %v", err)
	}
}

func TestStopFromHandler(t *testing.T) {
	fb := NewFake()
	m := New(Options{Backend: fb, JoinTimeout: 50 * time.Millisecond})
	result := make(chan error, 1)
	if err := m.Start(func(keyevent.Event) { result <- m.Stop() }); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Stop() })

	fb.SimKeyDown(1, 0)
	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("Stop from handler: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop from handler deadlocked")
	}
}

func TestStatusOf(t *testing.T) {
	cases := map[Status]error{
		StatusOk:                 nil,
		StatusAlreadyRunning:     ErrAlreadyRunning,
		StatusNotRunning:         ErrNotRunning,
		StatusChannelInitFailed:  &StartError{Stage: StageChannel, Err: errors.New("x")},
		StatusBackendInitFailed:  &StartError{Stage: StageBackend, Err: ErrDeviceNotFound},
		StatusThreadCreateFailed: &StartError{Stage: StageThread, Err: errors.New("x")},
		StatusThreadJoinTimeout:  ErrThreadJoinTimeout,
		StatusUnknown:            errors.New("other"),
	}
	for want, err := range cases {
		if got := StatusOf(err); got != want {
			t.Errorf("StatusOf(%v) = %s, want %s", err, got, want)
		}
	}
}
