// Package cron stores scheduled jobs, runs them on demand and dispatches
// them when due.
package cron

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/edvin/panel/internal/activity"
	"github.com/edvin/panel/internal/core"
	"github.com/edvin/panel/internal/metrics"
	"github.com/edvin/panel/internal/model"
	"github.com/edvin/panel/internal/platform"
	"github.com/edvin/panel/internal/store"
)

const (
	DefaultRunTimeout = 300 * time.Second
	DefaultWorkers    = 4
	HistorySize       = 20
)

// Spec is the user-editable part of a job.
type Spec struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Command  string `json:"command"`
	Type     string `json:"type"`
	Enabled  bool   `json:"enabled"`
}

// Engine owns cron jobs. Runs of the same job never overlap, whether
// triggered by hand or by the dispatcher.
type Engine struct {
	store   store.CronStore
	exec    Executor
	feed    activity.Recorder
	logger  zerolog.Logger
	timeout time.Duration
	now     func() time.Time

	locks sync.Map
	sem   *semaphore.Weighted
	wg    sync.WaitGroup
}

func New(st store.CronStore, exec Executor, feed activity.Recorder, logger zerolog.Logger, workers int) *Engine {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Engine{
		store:   st,
		exec:    exec,
		feed:    feed,
		logger:  logger.With().Str("component", "cron").Logger(),
		timeout: DefaultRunTimeout,
		now:     time.Now,
		sem:     semaphore.NewWeighted(int64(workers)),
	}
}

func (e *Engine) jobLock(id string) *sync.Mutex {
	mu, _ := e.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func validate(s *Spec) error {
	s.Name = strings.TrimSpace(s.Name)
	s.Schedule = strings.Join(strings.Fields(s.Schedule), " ")
	s.Command = strings.TrimSpace(s.Command)
	if s.Type == "" {
		s.Type = model.JobTypeCommand
	}

	if s.Name == "" {
		return core.Errorf(core.InvalidInput, "name is required")
	}
	if s.Command == "" {
		return core.Errorf(core.InvalidInput, "command is required")
	}
	switch s.Type {
	case model.JobTypeCommand, model.JobTypeScript:
	case model.JobTypeURL:
		u, err := url.Parse(s.Command)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return core.Errorf(core.InvalidInput, "url jobs need an http or https URL")
		}
	default:
		return core.Errorf(core.InvalidInput, "unknown job type %q", s.Type)
	}
	return ValidateSchedule(s.Schedule)
}

func (e *Engine) Create(ctx context.Context, s Spec) (model.CronJob, error) {
	if err := validate(&s); err != nil {
		return model.CronJob{}, err
	}
	now := e.now()
	next, err := NextRun(s.Schedule, now)
	if err != nil {
		return model.CronJob{}, err
	}

	job := model.CronJob{
		ID:        platform.NewID(),
		Name:      s.Name,
		Schedule:  s.Schedule,
		Command:   s.Command,
		Type:      s.Type,
		Enabled:   s.Enabled,
		NextRun:   &next,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateJob(ctx, job); err != nil {
		return model.CronJob{}, err
	}
	e.record(ctx, "Created cron job "+job.Name, job, nil)
	return job, nil
}

// Update replaces the job's spec and recomputes its next run. Run state is
// kept.
func (e *Engine) Update(ctx context.Context, id string, s Spec) (model.CronJob, error) {
	if err := validate(&s); err != nil {
		return model.CronJob{}, err
	}
	mu := e.jobLock(id)
	mu.Lock()
	defer mu.Unlock()

	job, err := e.store.GetJob(ctx, id)
	if err != nil {
		return job, err
	}
	now := e.now()
	next, err := NextRun(s.Schedule, now)
	if err != nil {
		return job, err
	}
	job.Name = s.Name
	job.Schedule = s.Schedule
	job.Command = s.Command
	job.Type = s.Type
	job.Enabled = s.Enabled
	job.NextRun = &next
	job.UpdatedAt = now
	if err := e.store.UpdateJob(ctx, job); err != nil {
		return job, err
	}
	e.record(ctx, "Updated cron job "+job.Name, job, nil)
	return job, nil
}

// SetEnabled toggles scheduled execution. Enabling recomputes the next run
// so a job disabled for a while does not fire for missed minutes.
func (e *Engine) SetEnabled(ctx context.Context, id string, enabled bool) (model.CronJob, error) {
	mu := e.jobLock(id)
	mu.Lock()
	defer mu.Unlock()

	job, err := e.store.GetJob(ctx, id)
	if err != nil {
		return job, err
	}
	now := e.now()
	if enabled && !job.Enabled {
		next, err := NextRun(job.Schedule, now)
		if err != nil {
			return job, err
		}
		job.NextRun = &next
	}
	job.Enabled = enabled
	job.UpdatedAt = now
	if err := e.store.UpdateJob(ctx, job); err != nil {
		return job, err
	}
	return job, nil
}

func (e *Engine) Delete(ctx context.Context, id string) error {
	mu := e.jobLock(id)
	mu.Lock()
	defer mu.Unlock()

	job, err := e.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if err := e.store.DeleteJob(ctx, id); err != nil {
		return err
	}
	e.locks.Delete(id)
	e.record(ctx, "Deleted cron job "+job.Name, job, nil)
	return nil
}

func (e *Engine) Get(ctx context.Context, id string) (model.CronJob, error) {
	return e.store.GetJob(ctx, id)
}

func (e *Engine) List(ctx context.Context) ([]model.CronJob, error) {
	return e.store.ListJobs(ctx)
}

// History returns the job's recent runs, newest first.
func (e *Engine) History(ctx context.Context, id string) ([]model.CronRun, error) {
	if _, err := e.store.GetJob(ctx, id); err != nil {
		return nil, err
	}
	return e.store.Runs(ctx, id)
}

// Run executes the job now and waits for it, regardless of whether it is
// enabled. The schedule is not touched. A scheduled run in progress for the
// same job is waited for first.
func (e *Engine) Run(ctx context.Context, id string) (model.CronRun, error) {
	if _, err := e.store.GetJob(ctx, id); err != nil {
		return model.CronRun{}, err
	}
	mu := e.jobLock(id)
	mu.Lock()
	defer mu.Unlock()
	// The run outlives a caller that stops waiting for it.
	return e.runLocked(context.WithoutCancel(ctx), id, model.TriggerManual)
}

// runLocked executes a job while its lock is held. Cancelling ctx stops the
// job.
func (e *Engine) runLocked(ctx context.Context, id, trigger string) (model.CronRun, error) {
	job, err := e.store.GetJob(ctx, id)
	if err != nil {
		return model.CronRun{}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	started := e.now()
	output, code, execErr := e.exec.Execute(runCtx, job)
	finished := e.now()

	run := model.CronRun{
		ID:         platform.NewID(),
		JobID:      job.ID,
		Trigger:    trigger,
		StartedAt:  started,
		FinishedAt: finished,
		ExitCode:   code,
		Status:     model.OutcomeSuccess,
		Output:     output,
	}
	if execErr != nil {
		run.Status = model.OutcomeFailed
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			run.TimedOut = true
			run.Output = strings.TrimSpace(output + "\ntimeout observing outcome after " + e.timeout.String())
		} else if output == "" {
			run.Output = execErr.Error()
		}
	}

	metrics.CronRunsTotal.WithLabelValues(trigger, run.Status).Inc()
	metrics.CronRunDuration.Observe(finished.Sub(started).Seconds())

	bg := context.WithoutCancel(ctx)
	if err := e.store.RecordRun(bg, run, HistorySize); err != nil {
		e.logger.Error().Err(err).Str("job", job.ID).Msg("record run")
	}

	// Re-read so edits made while the job ran are kept.
	latest, err := e.store.GetJob(bg, id)
	if err == nil {
		latest.LastRun = &started
		latest.LastStatus = run.Status
		if trigger == model.TriggerSchedule {
			if next, nerr := NextRun(latest.Schedule, finished); nerr == nil {
				latest.NextRun = &next
			}
		}
		if err := e.store.UpdateJob(bg, latest); err != nil {
			e.logger.Error().Err(err).Str("job", job.ID).Msg("update job after run")
		}
	}

	log := e.logger.Info()
	if execErr != nil {
		log = e.logger.Warn().Err(execErr)
	}
	log.Str("job", job.ID).Str("name", job.Name).Str("trigger", trigger).
		Int("exit_code", code).Dur("duration", finished.Sub(started)).Msg("cron job finished")

	e.record(ctx, "Ran cron job "+job.Name, job, execErr)
	return run, nil
}

// Dispatch starts every enabled job whose next run is at or before now. A
// job still running from an earlier trigger is skipped for this minute.
// It returns the ids started; the runs continue in the background.
func (e *Engine) Dispatch(ctx context.Context, now time.Time) []string {
	jobs, err := e.store.ListJobs(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("list jobs")
		return nil
	}

	var started []string
	for _, job := range jobs {
		if !job.Enabled {
			continue
		}
		if job.NextRun == nil {
			e.schedule(ctx, job, now)
			continue
		}
		if job.NextRun.After(now) {
			continue
		}

		mu := e.jobLock(job.ID)
		if !mu.TryLock() {
			metrics.CronSkippedTotal.Inc()
			e.logger.Warn().Str("job", job.ID).Msg("previous run still in progress, skipping")
			continue
		}

		started = append(started, job.ID)
		e.wg.Add(1)
		go func(id string) {
			defer e.wg.Done()
			defer mu.Unlock()
			if err := e.sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer e.sem.Release(1)
			if _, err := e.runLocked(ctx, id, model.TriggerSchedule); err != nil && !core.Is(err, core.NotFound) {
				e.logger.Error().Err(err).Str("job", id).Msg("scheduled run")
			}
		}(job.ID)
	}
	return started
}

// schedule fills in a missing next run.
func (e *Engine) schedule(ctx context.Context, job model.CronJob, now time.Time) {
	next, err := NextRun(job.Schedule, now)
	if err != nil {
		e.logger.Error().Err(err).Str("job", job.ID).Msg("invalid stored schedule")
		return
	}
	job.NextRun = &next
	if err := e.store.UpdateJob(ctx, job); err != nil {
		e.logger.Error().Err(err).Str("job", job.ID).Msg("store next run")
	}
}

// Wait blocks until every dispatched run has returned.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// RunLoop dispatches due jobs at the start of every minute until ctx ends.
func (e *Engine) RunLoop(ctx context.Context) {
	e.logger.Info().Msg("cron dispatcher started")
	defer e.Wait()

	for {
		now := e.now()
		next := now.Truncate(time.Minute).Add(time.Minute)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			e.logger.Info().Msg("cron dispatcher stopped")
			return
		case <-timer.C:
			e.Dispatch(ctx, next)
		}
	}
}

func (e *Engine) record(ctx context.Context, title string, job model.CronJob, err error) {
	a := model.Activity{
		Type:     model.ActivityCron,
		Title:    title,
		Status:   activity.Outcome(err),
		Metadata: map[string]string{"job": job.ID, "schedule": job.Schedule},
	}
	if err != nil {
		a.Description = err.Error()
	}
	e.feed.Record(ctx, a)
}
