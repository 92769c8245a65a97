//go:build !windows

package window

func Foremost() (Info, error) { return Info{}, ErrUnsupported }

func Activate(Handle) error { return ErrUnsupported }
