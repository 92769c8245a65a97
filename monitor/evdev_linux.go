//go:build linux

package monitor

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"keytap/log"
)

// keyStateBytes covers KEY_MAX (0x2ff).
const keyStateBytes = 96

// EVIOCGKEY(len) from linux/input.h.
const eviocgkey = (2 << 30) | (keyStateBytes << 16) | ('E' << 8) | 0x18

// evdevBackend reads one keyboard device node. Requires read access to
// /dev/input, usually through the 'input' group.
type evdevBackend struct {
	device string
	poll   time.Duration
	disc   discovery

	fd   int
	path string
	stop atomic.Bool
}

func newEvdevBackend(opts Options) *evdevBackend {
	return &evdevBackend{
		device: opts.Device,
		poll:   opts.PollInterval,
		disc:   defaultDiscovery,
		fd:     -1,
	}
}

func (b *evdevBackend) Name() string   { return "evdev" }
func (b *evdevBackend) Device() string { return b.path }

func (b *evdevBackend) Open() error {
	var candidates []string
	if b.device != "" {
		candidates = []string{b.device}
	} else {
		found, err := b.disc.findKeyboards()
		if err != nil {
			return fmt.Errorf("scanning %s: %w", b.disc.inputDir, ErrDeviceNotFound)
		}
		candidates = found
	}
	if len(candidates) == 0 {
		return fmt.Errorf("no device with KEY_A and KEY_Z (is user in 'input' group?): %w", ErrDeviceNotFound)
	}

	var errs []error
	for _, path := range candidates {
		fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		if err != nil {
			log.Warnf("open %s: %v", path, err)
			errs = append(errs, err)
			continue
		}
		b.fd = fd
		b.path = path
		b.stop.Store(false)
		return nil
	}
	return classifyOpenErrs(errs)
}

func classifyOpenErrs(errs []error) error {
	perm, missing := 0, 0
	for _, err := range errs {
		switch {
		case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
			perm++
		case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ENODEV), errors.Is(err, unix.ENXIO):
			missing++
		}
	}
	joined := errors.Join(errs...)
	switch {
	case perm == len(errs):
		return fmt.Errorf("cannot open keyboard device (run: sudo usermod -aG input $USER, then re-login): %w: %w", ErrPermissionDenied, joined)
	case missing == len(errs):
		return fmt.Errorf("%w: %w", ErrDeviceNotFound, joined)
	default:
		return fmt.Errorf("%w: %w", ErrResourceAcquisition, joined)
	}
}

func (b *evdevBackend) Run(emit Emit, ready chan<- error) {
	ready <- nil

	dec := newEvdevDecoder()
	b.resync(dec)

	buf := make([]byte, inputEventSize*64)
	timeout := int(b.poll / time.Millisecond)
	if timeout <= 0 {
		timeout = 1
	}

	for !b.stop.Load() {
		fds := []unix.PollFd{{Fd: int32(b.fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			log.Errorf("evdev poll %s: %v", b.path, err)
			return
		}
		if n == 0 {
			continue
		}
		rev := fds[0].Revents
		if rev&unix.POLLIN == 0 && rev&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			log.BackendEvent(b.Name(), "device_lost")
			return
		}

		n, err = unix.Read(b.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			log.Errorf("evdev read %s: %v", b.path, err)
			log.BackendEvent(b.Name(), "device_lost")
			return
		}
		if n == 0 {
			log.BackendEvent(b.Name(), "eof")
			return
		}

		decodeEvents(buf[:n], func(raw inputEvent) {
			if ev, ok := dec.feed(raw); ok {
				emit(ev)
			}
		})
		if dec.resyncDue {
			dec.resyncDue = false
			log.BackendEvent(b.Name(), "resync")
			b.resync(dec)
		}
	}
}

// resync reloads the held modifiers from the kernel key state. Nodes that
// are not evdev devices keep the current state.
func (b *evdevBackend) resync(dec *evdevDecoder) {
	var state [keyStateBytes]byte
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(b.fd), eviocgkey, uintptr(unsafe.Pointer(&state[0])))
	if errno != 0 {
		return
	}
	dec.mods.resync(func(code uint16) bool {
		return state[code/8]&(1<<(code%8)) != 0
	})
}

func (b *evdevBackend) Signal() {
	b.stop.Store(true)
}

func (b *evdevBackend) Close() error {
	if b.fd < 0 {
		return nil
	}
	err := unix.Close(b.fd)
	b.fd = -1
	return err
}
