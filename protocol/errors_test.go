package protocol

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsBothErrors(t *testing.T) {
	cause := errors.New("read: connection reset")
	err := Wrap(ErrTransportFailure, cause)

	assert.ErrorIs(t, err, ErrTransportFailure)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrAuthFailure)
	assert.Equal(t, "transport failure: read: connection reset", err.Error())
}
