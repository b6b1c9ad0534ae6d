package model

import "time"

const (
	ActivityConfig   = "config"
	ActivityDeploy   = "deploy"
	ActivitySSL      = "ssl"
	ActivityCron     = "cron"
	ActivitySecurity = "security"
	ActivityInstall  = "install"
)

// Activity is one entry of the audit feed shown on the dashboard.
type Activity struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Status      string            `json:"status"`
	Actor       string            `json:"actor,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
