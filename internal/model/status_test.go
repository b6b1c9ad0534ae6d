package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusConstants(t *testing.T) {
	assert.Equal(t, "pending", StatusPending)
	assert.Equal(t, "running", StatusRunning)
	assert.Equal(t, "succeeded", StatusSucceeded)
	assert.Equal(t, "failed", StatusFailed)
}

func TestOutcomeConstants(t *testing.T) {
	assert.Equal(t, "success", OutcomeSuccess)
	assert.Equal(t, "failed", OutcomeFailed)
	assert.Equal(t, "pending", OutcomePending)
}

func TestOperationDone(t *testing.T) {
	for state, done := range map[string]bool{
		StatusPending:   false,
		StatusRunning:   false,
		StatusSucceeded: true,
		StatusFailed:    true,
		StatusCancelled: true,
	} {
		op := Operation{State: state}
		assert.Equal(t, done, op.Done(), state)
	}
}
