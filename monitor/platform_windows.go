//go:build windows

package monitor

func newPlatformBackend(Options) (Backend, error) {
	return newHookBackend(), nil
}
