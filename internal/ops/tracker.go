package ops

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/edvin/panel/internal/core"
	"github.com/edvin/panel/internal/metrics"
	"github.com/edvin/panel/internal/model"
	"github.com/edvin/panel/internal/platform"
)

// DefaultRetention is how long finished operations stay pollable.
const DefaultRetention = time.Hour

// Job is a unit of long-running work.
type Job struct {
	Kind   string
	Target string
	Actor  string

	// Run does the work. progress may be called with values in 0..100;
	// values lower than the last reported one are ignored.
	Run func(ctx context.Context, progress func(int)) (any, error)

	// Done, if set, is called exactly once after Run returns (or after the
	// job is cancelled before it started) with the final snapshot.
	Done func(op model.Operation)
}

type entry struct {
	op     model.Operation
	cancel context.CancelFunc
	done   chan struct{}
}

// Tracker runs jobs on a bounded pool and keeps their status for polling.
type Tracker struct {
	logger    zerolog.Logger
	sem       *semaphore.Weighted
	root      context.Context
	stop      context.CancelFunc
	retention time.Duration
	now       func() time.Time

	mu  sync.Mutex
	ops map[string]*entry
	wg  sync.WaitGroup
}

// NewTracker creates a tracker that runs at most workers jobs at once.
func NewTracker(logger zerolog.Logger, workers int) *Tracker {
	if workers <= 0 {
		workers = 4
	}
	root, stop := context.WithCancel(context.Background())
	return &Tracker{
		logger:    logger.With().Str("component", "ops").Logger(),
		sem:       semaphore.NewWeighted(int64(workers)),
		root:      root,
		stop:      stop,
		retention: DefaultRetention,
		now:       time.Now,
		ops:       make(map[string]*entry),
	}
}

// Submit accepts a job and returns its pending snapshot. The job starts as
// soon as a worker slot is free.
func (t *Tracker) Submit(job Job) model.Operation {
	ctx, cancel := context.WithCancel(t.root)
	now := t.now()
	e := &entry{
		op: model.Operation{
			ID:        platform.NewID(),
			Kind:      job.Kind,
			Target:    job.Target,
			State:     model.StatusPending,
			Actor:     job.Actor,
			CreatedAt: now,
			UpdatedAt: now,
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	t.mu.Lock()
	t.pruneLocked(now)
	t.ops[e.op.ID] = e
	snapshot := e.op
	t.mu.Unlock()

	metrics.OperationsInFlight.Inc()
	t.wg.Add(1)
	go t.run(ctx, e, job)

	return snapshot
}

func (t *Tracker) run(ctx context.Context, e *entry, job Job) {
	defer t.wg.Done()
	defer close(e.done)
	defer e.cancel()
	defer metrics.OperationsInFlight.Dec()

	var (
		result any
		err    error
		start  = t.now()
	)

	if err = t.sem.Acquire(ctx, 1); err == nil {
		if t.transition(e, model.StatusRunning) {
			result, err = job.Run(ctx, func(p int) { t.progress(e, p) })
		} else {
			err = context.Canceled
		}
		t.sem.Release(1)
	}

	final := t.finish(e, result, err)
	metrics.OperationsTotal.WithLabelValues(final.Kind, final.State).Inc()
	metrics.OperationDuration.WithLabelValues(final.Kind).Observe(t.now().Sub(start).Seconds())

	log := t.logger.Info()
	if final.State != model.StatusSucceeded {
		log = t.logger.Warn().Str("error", final.Error)
	}
	log.Str("operation_id", final.ID).
		Str("kind", final.Kind).
		Str("target", final.Target).
		Str("state", final.State).
		Msg("operation finished")

	if job.Done != nil {
		job.Done(final)
	}
}

func (t *Tracker) transition(e *entry, state string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e.op.Done() {
		return false
	}
	e.op.State = state
	e.op.UpdatedAt = t.now()
	return true
}

func (t *Tracker) progress(e *entry, p int) {
	p = min(max(p, 0), 100)

	t.mu.Lock()
	defer t.mu.Unlock()
	if e.op.Done() || p <= e.op.Progress {
		return
	}
	e.op.Progress = p
	e.op.UpdatedAt = t.now()
}

func (t *Tracker) finish(e *entry, result any, err error) model.Operation {
	t.mu.Lock()
	defer t.mu.Unlock()

	e.op.UpdatedAt = t.now()
	switch {
	case e.op.State == model.StatusCancelled:
		// Aborted by Cancel; keep that outcome even if Run ignored ctx.
	case err != nil && errors.Is(err, context.Canceled) && t.root.Err() != nil:
		e.op.State = model.StatusCancelled
		e.op.Error = "shutting down"
	case err != nil:
		e.op.State = model.StatusFailed
		e.op.Error = err.Error()
	default:
		e.op.State = model.StatusSucceeded
		e.op.Progress = 100
		e.op.Result = result
	}
	return e.op
}

// Completed records an operation that finished without running any work,
// such as an install of a version that is already present.
func (t *Tracker) Completed(kind, target, actor string, result any) model.Operation {
	now := t.now()
	done := make(chan struct{})
	close(done)
	e := &entry{
		op: model.Operation{
			ID:        platform.NewID(),
			Kind:      kind,
			Target:    target,
			State:     model.StatusSucceeded,
			Progress:  100,
			Result:    result,
			Actor:     actor,
			CreatedAt: now,
			UpdatedAt: now,
		},
		cancel: func() {},
		done:   done,
	}

	t.mu.Lock()
	t.ops[e.op.ID] = e
	t.mu.Unlock()

	metrics.OperationsTotal.WithLabelValues(kind, model.StatusSucceeded).Inc()
	return e.op
}

// Get returns the current snapshot of an operation.
func (t *Tracker) Get(id string) (model.Operation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.ops[id]
	if !ok {
		return model.Operation{}, core.Errorf(core.NotFound, "operation %s not found", id)
	}
	return e.op, nil
}

// List returns all tracked operations, newest first. An empty kind matches
// every operation.
func (t *Tracker) List(kind string) []model.Operation {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]model.Operation, 0, len(t.ops))
	for _, e := range t.ops {
		if kind == "" || e.op.Kind == kind {
			out = append(out, e.op)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Cancel aborts an operation. The operation is reported as cancelled at
// once; its Done callback still runs only after the work has returned.
func (t *Tracker) Cancel(id string) (model.Operation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.ops[id]
	if !ok {
		return model.Operation{}, core.Errorf(core.NotFound, "operation %s not found", id)
	}
	if e.op.Done() {
		return e.op, core.Errorf(core.Conflict, "operation %s already %s", id, e.op.State)
	}

	e.op.State = model.StatusCancelled
	e.op.Error = "aborted"
	e.op.UpdatedAt = t.now()
	e.cancel()

	t.logger.Info().Str("operation_id", id).Str("kind", e.op.Kind).Msg("operation aborted")
	return e.op, nil
}

// Wait blocks until the operation's work has returned or ctx is done.
func (t *Tracker) Wait(ctx context.Context, id string) (model.Operation, error) {
	t.mu.Lock()
	e, ok := t.ops[id]
	t.mu.Unlock()
	if !ok {
		return model.Operation{}, core.Errorf(core.NotFound, "operation %s not found", id)
	}

	select {
	case <-e.done:
		return t.Get(id)
	case <-ctx.Done():
		return model.Operation{}, ctx.Err()
	}
}

// Shutdown cancels every outstanding job and waits for them to return.
func (t *Tracker) Shutdown(ctx context.Context) error {
	t.stop()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Tracker) pruneLocked(now time.Time) {
	for id, e := range t.ops {
		if e.op.Done() && now.Sub(e.op.UpdatedAt) > t.retention {
			select {
			case <-e.done:
				delete(t.ops, id)
			default:
			}
		}
	}
}
