package monitor

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning and ErrNotRunning are idempotency signals, not failures.
	ErrAlreadyRunning = errors.New("monitor already running")
	ErrNotRunning     = errors.New("monitor not running")

	ErrPermissionDenied    = errors.New("permission denied")
	ErrDeviceNotFound      = errors.New("no keyboard device found")
	ErrResourceAcquisition = errors.New("resource acquisition failed")

	// ErrThreadJoinTimeout means the capture thread may still be alive.
	ErrThreadJoinTimeout = errors.New("capture thread did not exit in time")

	ErrChannelInit  = errors.New("channel init failed")
	ErrBackendInit  = errors.New("backend init failed")
	ErrThreadCreate = errors.New("capture thread start failed")
)

// Stage identifies the Start step that failed.
type Stage int

const (
	StageChannel Stage = iota + 1
	StageBackend
	StageThread
)

func (s Stage) String() string {
	switch s {
	case StageChannel:
		return "channel"
	case StageBackend:
		return "backend"
	case StageThread:
		return "thread"
	default:
		return "unknown"
	}
}

// StartError is returned by Start after every acquired resource has been
// released, or handed to a reaper when the capture thread would not exit.
// errors.Is matches both the stage sentinel and the wrapped reason.
type StartError struct {
	Stage Stage
	Err   error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start %s: %v", e.Stage, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

func (e *StartError) Is(target error) bool {
	switch target {
	case ErrChannelInit:
		return e.Stage == StageChannel
	case ErrBackendInit:
		return e.Stage == StageBackend
	case ErrThreadCreate:
		return e.Stage == StageThread
	}
	return false
}

// Status is the coarse result code of a lifecycle call.
type Status int

const (
	StatusOk Status = iota
	StatusAlreadyRunning
	StatusNotRunning
	StatusChannelInitFailed
	StatusBackendInitFailed
	StatusThreadCreateFailed
	StatusThreadJoinTimeout
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusOk:
		return "ok"
	case StatusAlreadyRunning:
		return "already_running"
	case StatusNotRunning:
		return "not_running"
	case StatusChannelInitFailed:
		return "channel_init_failed"
	case StatusBackendInitFailed:
		return "backend_init_failed"
	case StatusThreadCreateFailed:
		return "thread_create_failed"
	case StatusThreadJoinTimeout:
		return "thread_join_timeout"
	default:
		return "unknown"
	}
}

// StatusOf maps an error returned by Start or Stop to its Status.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOk
	case errors.Is(err, ErrAlreadyRunning):
		return StatusAlreadyRunning
	case errors.Is(err, ErrNotRunning):
		return StatusNotRunning
	case errors.Is(err, ErrChannelInit):
		return StatusChannelInitFailed
	case errors.Is(err, ErrBackendInit):
		return StatusBackendInitFailed
	case errors.Is(err, ErrThreadCreate):
		return StatusThreadCreateFailed
	case errors.Is(err, ErrThreadJoinTimeout):
		return StatusThreadJoinTimeout
	default:
		return StatusUnknown
	}
}
