// Package store persists the records that outlive a restart: certificates,
// cron jobs with their run history, firewall rules and the activity feed.
// Service and container state is not stored; it is re-read from the host.
package store

import (
	"context"

	"github.com/edvin/panel/internal/model"
)

type CertificateStore interface {
	ListCertificates(ctx context.Context) ([]model.Certificate, error)
	GetCertificate(ctx context.Context, id string) (model.Certificate, error)
	CreateCertificate(ctx context.Context, c model.Certificate) error
	UpdateCertificate(ctx context.Context, c model.Certificate) error
	DeleteCertificate(ctx context.Context, id string) error
}

type CronStore interface {
	ListJobs(ctx context.Context) ([]model.CronJob, error)
	GetJob(ctx context.Context, id string) (model.CronJob, error)
	CreateJob(ctx context.Context, j model.CronJob) error
	UpdateJob(ctx context.Context, j model.CronJob) error
	DeleteJob(ctx context.Context, id string) error
	// RecordRun appends run to the job history and drops all but the keep
	// most recent runs.
	RecordRun(ctx context.Context, run model.CronRun, keep int) error
	// Runs returns the job history, newest first.
	Runs(ctx context.Context, jobID string) ([]model.CronRun, error)
}

type FirewallStore interface {
	// ListRules returns the rules in evaluation order.
	ListRules(ctx context.Context) ([]model.FirewallRule, error)
	// InsertRule stores r at r.Position and moves the rules at or after that
	// position down by one, in a single write. A position outside 1..n+1
	// appends.
	InsertRule(ctx context.Context, r model.FirewallRule) error
	// DeleteRule removes a rule and closes the gap it leaves, in a single
	// write.
	DeleteRule(ctx context.Context, id string) error
}

type ActivityStore interface {
	AppendActivity(ctx context.Context, a model.Activity) error
	// ListActivity returns at most limit entries, newest first.
	ListActivity(ctx context.Context, limit int) ([]model.Activity, error)
}

// Store is the full persistence surface.
type Store interface {
	CertificateStore
	CronStore
	FirewallStore
	ActivityStore
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Postgres)(nil)
)
