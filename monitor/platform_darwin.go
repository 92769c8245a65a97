//go:build darwin && cgo

package monitor

func newPlatformBackend(Options) (Backend, error) {
	return newTapBackend(), nil
}
