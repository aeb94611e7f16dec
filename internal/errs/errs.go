package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Доменные сентинель-ошибки для маппинга в HTTP коды в handlers.
var (
	ErrCameraNotFound     = errors.New("camera not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrMissingCredentials = errors.New("camera credentials missing")
	ErrConnect            = errors.New("camera connect failed")
	ErrProcessExit        = errors.New("transcoder exited")
	ErrInvalidCameraID    = errors.New("invalid camera id")
)

// ConnectError reports that no candidate URL produced a first frame.
type ConnectError struct {
	CameraID int
	Tried    []string
	Last     error
}

func (e *ConnectError) Error() string {
	msg := fmt.Sprintf("camera %d: no stream after %d candidate(s)", e.CameraID, len(e.Tried))
	if e.Last != nil {
		msg += ": " + e.Last.Error()
	}
	return msg
}

func (e *ConnectError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrConnect}
	}
	return []error{ErrConnect, e.Last}
}

// ProcessExitError is returned when a transcoder exits on its own.
type ProcessExitError struct {
	CameraID int
	Err      error
	Stderr   string
}

func (e *ProcessExitError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "camera %d: transcoder exited", e.CameraID)
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	if e.Stderr != "" {
		b.WriteString(" (" + e.Stderr + ")")
	}
	return b.String()
}

func (e *ProcessExitError) Unwrap() error { return ErrProcessExit }
