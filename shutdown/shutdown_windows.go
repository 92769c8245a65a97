//go:build windows

package shutdown

import "os"

// Signals are the signals that request a graceful stop of capture.
func Signals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
