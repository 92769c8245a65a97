//go:build !linux && !windows && !darwin

package inject

import (
	"errors"
	"runtime"
)

const (
	KeyC = 0
	KeyZ = 0
)

var errUnsupported = errors.New("key injection not supported on " + runtime.GOOS)

func Init() error { return errUnsupported }

func SendKey(int, bool) error { return errUnsupported }
