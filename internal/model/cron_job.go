package model

import "time"

const (
	JobTypeCommand = "command"
	JobTypeScript  = "script"
	JobTypeURL     = "url"
)

const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
)

type CronJob struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Schedule   string     `json:"schedule"`
	Command    string     `json:"command"`
	Type       string     `json:"type"`
	Enabled    bool       `json:"enabled"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	LastStatus string     `json:"last_status,omitempty"`
	NextRun    *time.Time `json:"next_run,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// CronRun is one execution of a job, kept in the job's history.
type CronRun struct {
	ID         string    `json:"id"`
	JobID      string    `json:"job_id"`
	Trigger    string    `json:"trigger"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	ExitCode   int       `json:"exit_code"`
	Status     string    `json:"status"`
	Output     string    `json:"output"`
	TimedOut   bool      `json:"timed_out,omitempty"`
}
