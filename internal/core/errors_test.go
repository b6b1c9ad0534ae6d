package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorf(t *testing.T) {
	err := Errorf(NotFound, "service %s not found", "nginx")
	assert.Equal(t, "service nginx not found", err.Error())
	assert.Equal(t, NotFound, KindOf(err))
	assert.True(t, Is(err, NotFound))
	assert.False(t, Is(err, Busy))
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := errors.New("exit status 1")
	err := Wrap(InternalError, cause, "start nginx")
	assert.Equal(t, "start nginx: exit status 1", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestKindOf_ThroughFmtWrapping(t *testing.T) {
	err := fmt.Errorf("install php: %w", Errorf(Busy, "operation in progress"))
	assert.Equal(t, Busy, KindOf(err))
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, InternalError, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}
