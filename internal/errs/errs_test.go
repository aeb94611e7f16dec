package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectErrorMatchesSentinelAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := error(&ConnectError{CameraID: 7, Tried: []string{"a", "b"}, Last: cause})

	assert.ErrorIs(t, err, ErrConnect)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "2 candidate(s)")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestProcessExitErrorMatchesSentinel(t *testing.T) {
	err := error(&ProcessExitError{CameraID: 3, Stderr: "404 Not Found"})

	assert.ErrorIs(t, err, ErrProcessExit)
	assert.False(t, errors.Is(err, ErrConnect))
	assert.Contains(t, err.Error(), "404 Not Found")
}
