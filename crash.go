package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"
)

// initCrashLog sends fatal runtime output to crash_log.txt in dir as well as
// stderr.
func initCrashLog(dir string) {
	crashFile, err := openCrashLog(dir)
	if err != nil {
		return
	}
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

func openCrashLog(dir string) (*os.File, error) {
	crashPath := filepath.Join(dir, "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	return crashFile, nil
}
