// Package activity records the audit feed shown on the dashboard. Every
// state transition made through the control plane appends one entry.
package activity

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/panel/internal/model"
	"github.com/edvin/panel/internal/platform"
	"github.com/edvin/panel/internal/store"
)

const (
	DefaultLimit = 20
	MaxLimit     = 500
)

type actorKey struct{}

// WithActor attaches the acting user to ctx.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the acting user stored in ctx, or "system".
func ActorFrom(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
		return a
	}
	return "system"
}

// Recorder is what components use to append to the feed.
type Recorder interface {
	Record(ctx context.Context, a model.Activity)
}

// Feed appends activities to a store.
type Feed struct {
	store  store.ActivityStore
	logger zerolog.Logger
	now    func() time.Time
}

func NewFeed(s store.ActivityStore, logger zerolog.Logger) *Feed {
	return &Feed{
		store:  s,
		logger: logger.With().Str("component", "activity").Logger(),
		now:    time.Now,
	}
}

// Record appends a. ID, timestamp and actor are filled in when empty. A
// failed write is logged and never fails the caller's transition.
func (f *Feed) Record(ctx context.Context, a model.Activity) {
	if a.ID == "" {
		a.ID = platform.NewID()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = f.now()
	}
	if a.Actor == "" {
		a.Actor = ActorFrom(ctx)
	}
	if a.Status == "" {
		a.Status = model.OutcomeSuccess
	}

	if err := f.store.AppendActivity(context.WithoutCancel(ctx), a); err != nil {
		f.logger.Error().Err(err).Str("type", a.Type).Str("title", a.Title).Msg("failed to record activity")
	}
}

// List returns the newest entries first. limit is clamped to 1..MaxLimit
// and defaults to DefaultLimit.
func (f *Feed) List(ctx context.Context, limit int) ([]model.Activity, error) {
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return f.store.ListActivity(ctx, limit)
}

// Outcome maps an error to an activity status.
func Outcome(err error) string {
	if err != nil {
		return model.OutcomeFailed
	}
	return model.OutcomeSuccess
}
