//go:build linux

package monitor

func newPlatformBackend(opts Options) (Backend, error) {
	return newEvdevBackend(opts), nil
}
