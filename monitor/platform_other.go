//go:build !linux && !windows && !(darwin && cgo)

package monitor

import (
	"fmt"
	"runtime"
)

func newPlatformBackend(Options) (Backend, error) {
	return nil, fmt.Errorf("no keyboard backend for %s/%s: %w", runtime.GOOS, runtime.GOARCH, ErrResourceAcquisition)
}
