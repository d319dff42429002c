package nbslot

import (
	"context"
	"errors"
	"fmt"
)

// Standard errors.
var (
	ErrRuntimeUnavailable = errors.New("container runtime unavailable")
	ErrVolume             = errors.New("volume operation failed")
	ErrCloneFailed        = errors.New("volume clone failed")
	ErrContainerStart     = errors.New("container start failed")
	ErrTokenTimeout       = errors.New("timed out waiting for access token")
	ErrInvalidRequest     = errors.New("invalid launch request")
	ErrSlotClosed         = errors.New("slot is closed")
)

// ErrorKind is a coarse classification of launch failures, stable enough
// for callers to map onto user-facing guidance.
type ErrorKind string

const (
	KindRuntimeUnavailable ErrorKind = "runtime_unavailable"
	KindVolume             ErrorKind = "volume"
	KindCloneFailed        ErrorKind = "clone_failed"
	KindContainer          ErrorKind = "container"
	KindTokenTimeout       ErrorKind = "token_timeout"
	KindInvalidRequest     ErrorKind = "invalid_request"
	KindInternal           ErrorKind = "internal"
)

// Kind classifies err. Runtime reachability wins over the step that hit it,
// so a daemon outage during volume creation reports runtime_unavailable.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, ErrRuntimeUnavailable):
		return KindRuntimeUnavailable
	case errors.Is(err, ErrTokenTimeout):
		return KindTokenTimeout
	case errors.Is(err, ErrCloneFailed):
		return KindCloneFailed
	case errors.Is(err, ErrVolume):
		return KindVolume
	case errors.Is(err, ErrContainerStart), errors.Is(err, ErrSlotClosed):
		return KindContainer
	default:
		return KindInternal
	}
}

// LaunchError reports which step of a launch failed.
type LaunchError struct {
	LaunchID string
	Step     string
	Err      error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s (%s): %v", shortID(e.LaunchID), e.Step, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// CloneError is returned when the copy helper fails to populate a volume.
type CloneError struct {
	Source      string
	Destination string
	ExitCode    int
	// Output is the helper's combined output, kept for diagnostics.
	Output string
	Err    error
}

func (e *CloneError) Error() string {
	msg := fmt.Sprintf("clone %s -> %s", e.Source, e.Destination)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s: helper exited with code %d", msg, e.ExitCode)
}

func (e *CloneError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrCloneFailed, e.Err}
	}
	return []error{ErrCloneFailed}
}

// TokenError is returned when no access token was observed in a container's
// output. It always matches ErrTokenTimeout.
type TokenError struct {
	ContainerID string
	Reason      string
	Cause       error
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("container %s: %s: %s", shortID(e.ContainerID), ErrTokenTimeout, e.Reason)
}

func (e *TokenError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrTokenTimeout, e.Cause}
	}
	return []error{ErrTokenTimeout}
}

// tokenReason describes why a wait ended without a token.
func tokenReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline exceeded"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "log stream ended"
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
