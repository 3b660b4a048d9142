package pagi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorUnwrapExposesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := newError(KindTransport, "write failed", cause)
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestErrorStringIncludesKindAndMessage(t *testing.T) {
	err := newError(KindAdmission, "over capacity", nil)
	assert.Contains(t, err.Error(), "admission")
	assert.Contains(t, err.Error(), "over capacity")
}

func TestErrorKindStringUnknown(t *testing.T) {
	assert.Equal(t, "unknown", ErrorKind(255).String())
}

func TestSentinelErrorsAreDistinguishable(t *testing.T) {
	assert.False(t, errors.Is(ErrNotFound, ErrMethodNotAllowed))
	assert.True(t, errors.Is(ErrNotFound, ErrNotFound))
}
