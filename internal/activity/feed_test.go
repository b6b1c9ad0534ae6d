package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/panel/internal/model"
	"github.com/edvin/panel/internal/store"
)

type failingStore struct{ store.ActivityStore }

func (failingStore) AppendActivity(context.Context, model.Activity) error {
	return errors.New("disk full")
}

func TestRecord_FillsDefaults(t *testing.T) {
	mem := store.NewMemory()
	f := NewFeed(mem, zerolog.Nop())
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return now }

	ctx := WithActor(context.Background(), "alice")
	f.Record(ctx, model.Activity{Type: model.ActivityConfig, Title: "Started nginx"})

	acts, err := f.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.NotEmpty(t, acts[0].ID)
	assert.Equal(t, now, acts[0].Timestamp)
	assert.Equal(t, "alice", acts[0].Actor)
	assert.Equal(t, model.OutcomeSuccess, acts[0].Status)
}

func TestRecord_StoreFailureIsSwallowed(t *testing.T) {
	f := NewFeed(failingStore{}, zerolog.Nop())
	assert.NotPanics(t, func() {
		f.Record(context.Background(), model.Activity{Title: "x"})
	})
}

func TestActorFrom_Default(t *testing.T) {
	assert.Equal(t, "system", ActorFrom(context.Background()))
	assert.Equal(t, "system", ActorFrom(WithActor(context.Background(), "")))
}

func TestList_ClampsLimit(t *testing.T) {
	mem := store.NewMemory()
	f := NewFeed(mem, zerolog.Nop())
	for i := 0; i < 30; i++ {
		f.Record(context.Background(), model.Activity{Title: "t"})
	}

	acts, err := f.List(context.Background(), -1)
	require.NoError(t, err)
	assert.Len(t, acts, DefaultLimit)

	acts, err = f.List(context.Background(), 10000)
	require.NoError(t, err)
	assert.Len(t, acts, 30)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, model.OutcomeSuccess, Outcome(nil))
	assert.Equal(t, model.OutcomeFailed, Outcome(errors.New("x")))
}
