//go:build !linux

package main

import (
	"runtime"

	"golang.design/x/hotkey/mainthread"
)

func init() {
	runtime.LockOSThread()
}

// The session tap and the injection helpers want the process main thread on
// macOS, so run is started through mainthread.
func main() {
	mainthread.Init(run)
}
