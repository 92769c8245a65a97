// Package shutdown routes termination signals to a graceful monitor stop.
package shutdown

import (
	"os"
	"os/signal"
)

func Notify(ch chan<- os.Signal) {
	signal.Notify(ch, Signals()...)
}

// Stop undoes Notify for ch.
func Stop(ch chan<- os.Signal) {
	signal.Stop(ch)
}
