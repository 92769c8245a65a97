// Package window reports and activates the foreground top-level window.
package window

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrUnsupported = errors.New("window introspection not supported on this platform")
	ErrNoWindow    = errors.New("no foreground window")
	ErrInvalid     = errors.New("not a window handle")
)

// Handle is an opaque native window handle.
type Handle uintptr

func (h Handle) String() string { return "0x" + strconv.FormatUint(uint64(h), 16) }

// ParseHandle accepts the form printed by Handle.String, or plain decimal.
func ParseHandle(s string) (Handle, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("%q: %w", s, ErrInvalid)
	}
	return Handle(v), nil
}

type Info struct {
	Handle  Handle
	Title   string
	PID     uint32
	ExePath string
	// Product is the executable's ProductName or FileDescription resource,
	// or its base name when it carries neither.
	Product string
}

func (i Info) String() string {
	return fmt.Sprintf("%s pid=%d product=%q title=%q exe=%s", i.Handle, i.PID, i.Product, i.Title, i.ExePath)
}

// productFromPath is the base name of path without its extension. Both
// separators are accepted.
func productFromPath(path string) string {
	if i := strings.LastIndexAny(path, `\/`); i >= 0 {
		path = path[i+1:]
	}
	if i := strings.LastIndexByte(path, '.'); i > 0 {
		path = path[:i]
	}
	if path == "" {
		return "Unknown"
	}
	return path
}
