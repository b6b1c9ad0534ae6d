package model

// Operation state constants.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Run and activity outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomePending = "pending"
)
