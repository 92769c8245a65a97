package monitor

import "keytap/keyevent"

// Emit hands one record from the capture thread to the delivery channel. It
// never blocks.
type Emit func(keyevent.Event)

// Backend is a platform capture mechanism.
//
// The controller calls Open on its own goroutine, then Run on a dedicated
// goroutine locked to an OS thread. Run must send exactly one value on ready:
// nil once capture is live, or the error that kept it from starting (after
// which it returns). Signal may be called from any goroutine, any number of
// times, including before Run has started its loop. Close is called only after
// Run has returned, or when Run was never started.
type Backend interface {
	Name() string
	Open() error
	Run(emit Emit, ready chan<- error)
	Signal()
	Close() error
}

// deviceNamer is implemented by backends that read a specific device node.
type deviceNamer interface {
	Device() string
}
