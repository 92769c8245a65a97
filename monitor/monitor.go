// Package monitor captures global keyboard activity on a dedicated OS thread
// and delivers normalized records to one handler.
package monitor

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"keytap/log"
)

type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

const (
	DefaultJoinTimeout  = 5 * time.Second
	DefaultStartTimeout = 5 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

type Options struct {
	// Backend overrides platform selection. Tests pass a FakeBackend.
	Backend Backend
	// Device pins the raw-device backend to one node instead of discovery.
	Device string

	JoinTimeout  time.Duration
	StartTimeout time.Duration
	PollInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = DefaultJoinTimeout
	}
	if o.StartTimeout <= 0 {
		o.StartTimeout = DefaultStartTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}

type handle struct {
	backend Backend
	queue   *queue
	done    chan struct{}
	session string
	started time.Time
}

// owner is the monitor currently holding capture resources in this process.
var owner atomic.Pointer[Monitor]

type Monitor struct {
	opts  Options
	state atomic.Int32

	mu sync.Mutex
	h  *handle
}

func New(opts Options) *Monitor {
	return &Monitor{opts: opts.withDefaults()}
}

func (m *Monitor) State() State { return State(m.state.Load()) }

func (m *Monitor) IsRunning() bool { return m.State() == StateRunning }

// Done is closed when the current capture goroutine exits, whether through
// Stop or because the backend ended on its own. It returns nil when no
// session has been started.
func (m *Monitor) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.h == nil {
		return nil
	}
	return m.h.done
}

// Backend returns the active backend's name, or "" when idle.
func (m *Monitor) Backend() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.h == nil {
		return ""
	}
	return m.h.backend.Name()
}

// Start acquires the delivery channel and backend, spawns the capture thread
// and waits for it to report ready. On failure everything acquired so far is
// released and the monitor is back to Idle. If the capture thread cannot be
// joined the error also matches ErrThreadJoinTimeout, and every Start in the
// process reports ErrAlreadyRunning until that thread exits.
func (m *Monitor) Start(h Handler) error {
	if !m.state.CompareAndSwap(int32(StateIdle), int32(StateStarting)) {
		return ErrAlreadyRunning
	}
	if !owner.CompareAndSwap(nil, m) {
		m.state.Store(int32(StateIdle))
		return ErrAlreadyRunning
	}

	hd, err := m.acquire(h)
	if err != nil {
		// A capture thread that outlived the rollback keeps ownership until
		// its reaper has closed the backend.
		if !errors.Is(err, ErrThreadJoinTimeout) {
			owner.CompareAndSwap(m, nil)
		}
		m.state.Store(int32(StateIdle))
		log.Errorf("monitor start failed: %v", err)
		return err
	}

	m.mu.Lock()
	m.h = hd
	m.mu.Unlock()
	m.state.Store(int32(StateRunning))

	log.SessionStart(hd.backend.Name(), hd.session, deviceOf(hd.backend))
	return nil
}

// Device returns the device node the active backend reads, or "" when idle
// or when the backend is not device based.
func (m *Monitor) Device() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.h == nil {
		return ""
	}
	return deviceOf(m.h.backend)
}

func deviceOf(be Backend) string {
	if dn, ok := be.(deviceNamer); ok {
		return dn.Device()
	}
	return ""
}

func (m *Monitor) acquire(h Handler) (*handle, error) {
	if h == nil {
		return nil, &StartError{Stage: StageChannel, Err: errors.New("nil handler")}
	}
	q := newQueue(h)

	be := m.opts.Backend
	if be == nil {
		var err error
		be, err = newPlatformBackend(m.opts)
		if err != nil {
			q.discard()
			return nil, &StartError{Stage: StageBackend, Err: err}
		}
	}
	if err := be.Open(); err != nil {
		q.discard()
		return nil, &StartError{Stage: StageBackend, Err: err}
	}

	ready := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(done)
		be.Run(q.Push, ready)
	}()

	timer := time.NewTimer(m.opts.StartTimeout)
	defer timer.Stop()

	var startErr *StartError
	select {
	case err := <-ready:
		if err != nil {
			startErr = &StartError{Stage: StageBackend, Err: err}
		}
	case <-done:
		// Run may have sent on ready just before returning.
		select {
		case err := <-ready:
			if err != nil {
				startErr = &StartError{Stage: StageBackend, Err: err}
			} else {
				startErr = &StartError{Stage: StageThread, Err: errors.New("capture loop exited at startup")}
			}
		default:
			startErr = &StartError{Stage: StageThread, Err: errors.New("capture loop exited without reporting ready")}
		}
	case <-timer.C:
		startErr = &StartError{Stage: StageThread, Err: fmt.Errorf("no ready signal within %s", m.opts.StartTimeout)}
	}

	if startErr != nil {
		be.Signal()
		q.discard()
		if !waitDone(done, m.opts.JoinTimeout) {
			log.Errorf("capture thread still alive after failed start (%s), deferring close", be.Name())
			go m.reap(be, done)
			return nil, &StartError{
				Stage: startErr.Stage,
				Err:   fmt.Errorf("%w; %w", startErr.Err, ErrThreadJoinTimeout),
			}
		}
		if err := be.Close(); err != nil {
			log.Warnf("backend close after failed start: %v", err)
		}
		return nil, startErr
	}

	return &handle{
		backend: be,
		queue:   q,
		done:    done,
		session: uuid.NewString(),
		started: time.Now(),
	}, nil
}

// reap finishes a rollback whose capture thread would not exit in time. The
// backend is closed and ownership released only once the thread is gone.
func (m *Monitor) reap(be Backend, done <-chan struct{}) {
	<-done
	if err := be.Close(); err != nil {
		log.Warnf("backend close after late exit: %v", err)
	}
	owner.CompareAndSwap(m, nil)
	log.Infof("capture thread (%s) exited after failed start", be.Name())
}

// Stop signals the capture thread, waits for it to exit, then releases the
// backend and flushes the delivery channel. If the thread does not exit in
// time the monitor stays Running and Stop may be called again.
func (m *Monitor) Stop() error {
	if !m.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return ErrNotRunning
	}

	m.mu.Lock()
	hd := m.h
	m.mu.Unlock()

	hd.backend.Signal()
	if !waitDone(hd.done, m.opts.JoinTimeout) {
		m.state.Store(int32(StateRunning))
		log.Errorf("capture thread (%s) did not exit within %s", hd.backend.Name(), m.opts.JoinTimeout)
		return fmt.Errorf("stop %s: %w", hd.backend.Name(), ErrThreadJoinTimeout)
	}

	if err := hd.backend.Close(); err != nil {
		log.Warnf("backend close: %v", err)
	}
	hd.queue.Close(m.opts.JoinTimeout)

	m.mu.Lock()
	m.h = nil
	m.mu.Unlock()
	owner.CompareAndSwap(m, nil)
	m.state.Store(int32(StateIdle))

	log.SessionEnd(hd.session, hd.queue.delivered.Load(), hd.queue.dropped.Load(), time.Since(hd.started))
	return nil
}

func waitDone(done <-chan struct{}, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// Counters reports records delivered to and dropped by the current session.
func (m *Monitor) Counters() (delivered, dropped uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.h == nil {
		return 0, 0
	}
	return m.h.queue.delivered.Load(), m.h.queue.dropped.Load()
}
