package cron

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/panel/internal/activity"
	"github.com/edvin/panel/internal/core"
	"github.com/edvin/panel/internal/hostexec"
	"github.com/edvin/panel/internal/model"
	"github.com/edvin/panel/internal/store"
)

// execFunc adapts a function to Executor.
type execFunc func(ctx context.Context, job model.CronJob) (string, int, error)

func (f execFunc) Execute(ctx context.Context, job model.CronJob) (string, int, error) {
	return f(ctx, job)
}

func okExec(context.Context, model.CronJob) (string, int, error) { return "done", 0, nil }

func newEngine(t *testing.T, exec Executor) (*Engine, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	feed := activity.NewFeed(st, zerolog.Nop())
	e := New(st, exec, feed, zerolog.Nop(), 2)
	t.Cleanup(e.Wait)
	return e, st
}

func TestCreate_InvalidScheduleNotPersisted(t *testing.T) {
	e, st := newEngine(t, execFunc(okExec))

	_, err := e.Create(context.Background(), Spec{Name: "bad", Schedule: "61 * * * *", Command: "true"})
	assert.Equal(t, core.InvalidSchedule, core.KindOf(err))

	jobs, _ := st.ListJobs(context.Background())
	assert.Empty(t, jobs)
}

func TestCreate_Validation(t *testing.T) {
	e, _ := newEngine(t, execFunc(okExec))
	ctx := context.Background()

	_, err := e.Create(ctx, Spec{Schedule: "* * * * *", Command: "true"})
	assert.Equal(t, core.InvalidInput, core.KindOf(err))
	_, err = e.Create(ctx, Spec{Name: "x", Schedule: "* * * * *"})
	assert.Equal(t, core.InvalidInput, core.KindOf(err))
	_, err = e.Create(ctx, Spec{Name: "x", Schedule: "* * * * *", Command: "true", Type: "lambda"})
	assert.Equal(t, core.InvalidInput, core.KindOf(err))
	_, err = e.Create(ctx, Spec{Name: "x", Schedule: "* * * * *", Command: "ftp://host/x", Type: model.JobTypeURL})
	assert.Equal(t, core.InvalidInput, core.KindOf(err))
}

func TestCreate_ComputesNextRun(t *testing.T) {
	e, _ := newEngine(t, execFunc(okExec))
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	job, err := e.Create(context.Background(), Spec{Name: "backup", Schedule: "0  3 * * *", Command: "backup.sh", Enabled: true})
	require.NoError(t, err)
	assert.Equal(t, "0 3 * * *", job.Schedule)
	assert.Equal(t, model.JobTypeCommand, job.Type)
	require.NotNil(t, job.NextRun)
	assert.Equal(t, time.Date(2026, 6, 2, 3, 0, 0, 0, time.UTC), *job.NextRun)
}

func TestUpdate_RecomputesNextRun(t *testing.T) {
	e, _ := newEngine(t, execFunc(okExec))
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }
	ctx := context.Background()

	job, err := e.Create(ctx, Spec{Name: "j", Schedule: "0 3 * * *", Command: "true"})
	require.NoError(t, err)

	_, err = e.Update(ctx, job.ID, Spec{Name: "j", Schedule: "bad", Command: "true"})
	assert.Equal(t, core.InvalidSchedule, core.KindOf(err))
	stored, _ := e.Get(ctx, job.ID)
	assert.Equal(t, "0 3 * * *", stored.Schedule, "unchanged on invalid update")

	updated, err := e.Update(ctx, job.ID, Spec{Name: "j2", Schedule: "30 * * * *", Command: "true"})
	require.NoError(t, err)
	assert.Equal(t, "j2", updated.Name)
	assert.Equal(t, time.Date(2026, 6, 1, 10, 30, 0, 0, time.UTC), *updated.NextRun)

	_, err = e.Update(ctx, "missing", Spec{Name: "j", Schedule: "* * * * *", Command: "true"})
	assert.Equal(t, core.NotFound, core.KindOf(err))
}

func TestRun_ManualIgnoresEnabledAndSchedule(t *testing.T) {
	e, _ := newEngine(t, execFunc(okExec))
	ctx := context.Background()
	job, err := e.Create(ctx, Spec{Name: "j", Schedule: "0 3 * * *", Command: "true", Enabled: false})
	require.NoError(t, err)

	run, err := e.Run(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSuccess, run.Status)
	assert.Equal(t, model.TriggerManual, run.Trigger)
	assert.Equal(t, "done", run.Output)

	after, _ := e.Get(ctx, job.ID)
	assert.Equal(t, model.OutcomeSuccess, after.LastStatus)
	require.NotNil(t, after.LastRun)
	assert.Equal(t, *job.NextRun, *after.NextRun, "manual run does not reschedule")
}

func TestRun_FailureRecordsExitCode(t *testing.T) {
	e, _ := newEngine(t, execFunc(func(context.Context, model.CronJob) (string, int, error) {
		return "disk full", 2, errors.New("exit status 2")
	}))
	ctx := context.Background()
	job, err := e.Create(ctx, Spec{Name: "j", Schedule: "* * * * *", Command: "false"})
	require.NoError(t, err)

	run, err := e.Run(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeFailed, run.Status)
	assert.Equal(t, 2, run.ExitCode)
	assert.Equal(t, "disk full", run.Output)

	after, _ := e.Get(ctx, job.ID)
	assert.Equal(t, model.OutcomeFailed, after.LastStatus)
}

func TestRun_Timeout(t *testing.T) {
	e, _ := newEngine(t, execFunc(func(ctx context.Context, _ model.CronJob) (string, int, error) {
		<-ctx.Done()
		return "", -1, ctx.Err()
	}))
	e.timeout = 20 * time.Millisecond
	job, err := e.Create(context.Background(), Spec{Name: "slow", Schedule: "* * * * *", Command: "sleep 999"})
	require.NoError(t, err)

	run, err := e.Run(context.Background(), job.ID)
	require.NoError(t, err)
	assert.True(t, run.TimedOut)
	assert.Equal(t, model.OutcomeFailed, run.Status)
	assert.Contains(t, run.Output, "timeout observing outcome")
}

func TestRun_NotFound(t *testing.T) {
	e, _ := newEngine(t, execFunc(okExec))
	_, err := e.Run(context.Background(), "missing")
	assert.Equal(t, core.NotFound, core.KindOf(err))
}

func TestHistory_KeepsNewest(t *testing.T) {
	var n int32
	e, _ := newEngine(t, execFunc(func(context.Context, model.CronJob) (string, int, error) {
		return fmt.Sprintf("run %d", atomic.AddInt32(&n, 1)), 0, nil
	}))
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	var tick int64
	e.now = func() time.Time { return base.Add(time.Duration(atomic.AddInt64(&tick, 1)) * time.Second) }

	ctx := context.Background()
	job, err := e.Create(ctx, Spec{Name: "j", Schedule: "* * * * *", Command: "true"})
	require.NoError(t, err)
	for i := 0; i < HistorySize+5; i++ {
		_, err := e.Run(ctx, job.ID)
		require.NoError(t, err)
	}

	runs, err := e.History(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, runs, HistorySize)
	assert.Equal(t, fmt.Sprintf("run %d", HistorySize+5), runs[0].Output)
	assert.Equal(t, "run 6", runs[HistorySize-1].Output)

	_, err = e.History(ctx, "missing")
	assert.Equal(t, core.NotFound, core.KindOf(err))
}

func TestDispatch_RunsDueEnabledJobs(t *testing.T) {
	var mu sync.Mutex
	var ran []string
	e, _ := newEngine(t, execFunc(func(_ context.Context, job model.CronJob) (string, int, error) {
		mu.Lock()
		ran = append(ran, job.Name)
		mu.Unlock()
		return "", 0, nil
	}))
	created := time.Date(2026, 6, 1, 10, 0, 20, 0, time.UTC)
	clock := created
	var clockMu sync.Mutex
	e.now = func() time.Time { clockMu.Lock(); defer clockMu.Unlock(); return clock }
	ctx := context.Background()

	due, err := e.Create(ctx, Spec{Name: "every-minute", Schedule: "* * * * *", Command: "true", Enabled: true})
	require.NoError(t, err)
	_, err = e.Create(ctx, Spec{Name: "disabled", Schedule: "* * * * *", Command: "true", Enabled: false})
	require.NoError(t, err)
	_, err = e.Create(ctx, Spec{Name: "nightly", Schedule: "0 3 * * *", Command: "true", Enabled: true})
	require.NoError(t, err)

	tick := time.Date(2026, 6, 1, 10, 1, 0, 0, time.UTC)
	clockMu.Lock()
	clock = tick.Add(2 * time.Second)
	clockMu.Unlock()

	started := e.Dispatch(ctx, tick)
	e.Wait()
	assert.Equal(t, []string{due.ID}, started)
	assert.Equal(t, []string{"every-minute"}, ran)

	after, _ := e.Get(ctx, due.ID)
	assert.Equal(t, time.Date(2026, 6, 1, 10, 2, 0, 0, time.UTC), *after.NextRun, "recomputed after completion")
	assert.Equal(t, model.OutcomeSuccess, after.LastStatus)
}

func TestDispatch_FailedRunStillReschedules(t *testing.T) {
	e, _ := newEngine(t, execFunc(func(context.Context, model.CronJob) (string, int, error) {
		return "boom", 1, errors.New("exit status 1")
	}))
	e.now = func() time.Time { return time.Date(2026, 6, 1, 10, 0, 20, 0, time.UTC) }
	ctx := context.Background()
	job, err := e.Create(ctx, Spec{Name: "j", Schedule: "* * * * *", Command: "false", Enabled: true})
	require.NoError(t, err)

	e.now = func() time.Time { return time.Date(2026, 6, 1, 10, 1, 3, 0, time.UTC) }
	e.Dispatch(ctx, time.Date(2026, 6, 1, 10, 1, 0, 0, time.UTC))
	e.Wait()

	after, _ := e.Get(ctx, job.ID)
	assert.Equal(t, model.OutcomeFailed, after.LastStatus)
	assert.Equal(t, time.Date(2026, 6, 1, 10, 2, 0, 0, time.UTC), *after.NextRun)
}

func TestDispatch_SkipsJobAlreadyRunning(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	e, _ := newEngine(t, execFunc(func(context.Context, model.CronJob) (string, int, error) {
		entered <- struct{}{}
		<-release
		return "", 0, nil
	}))
	ctx := context.Background()
	job, err := e.Create(ctx, Spec{Name: "long", Schedule: "* * * * *", Command: "true", Enabled: true})
	require.NoError(t, err)

	manualDone := make(chan struct{})
	go func() {
		_, _ = e.Run(ctx, job.ID)
		close(manualDone)
	}()
	<-entered

	started := e.Dispatch(ctx, job.NextRun.Add(time.Minute))
	assert.Empty(t, started, "manual run holds the job")

	close(release)
	<-manualDone
}

func TestDelete(t *testing.T) {
	e, _ := newEngine(t, execFunc(okExec))
	ctx := context.Background()
	job, err := e.Create(ctx, Spec{Name: "j", Schedule: "* * * * *", Command: "true"})
	require.NoError(t, err)

	require.NoError(t, e.Delete(ctx, job.ID))
	assert.Equal(t, core.NotFound, core.KindOf(e.Delete(ctx, job.ID)))
}

func TestSetEnabled(t *testing.T) {
	e, _ := newEngine(t, execFunc(okExec))
	ctx := context.Background()
	job, err := e.Create(ctx, Spec{Name: "j", Schedule: "* * * * *", Command: "true"})
	require.NoError(t, err)

	on, err := e.SetEnabled(ctx, job.ID, true)
	require.NoError(t, err)
	assert.True(t, on.Enabled)
	require.NotNil(t, on.NextRun)
}

func TestHostExecutor_Shell(t *testing.T) {
	run := &hostexec.FakeRunner{Handler: func(name string, args ...string) ([]byte, error) {
		if strings.Contains(args[len(args)-1], "fail") {
			return []byte("nope"), hostexec.ExitStatus(3)
		}
		return []byte("ok"), nil
	}}
	ex := NewHostExecutor(run, nil)
	ctx := context.Background()

	out, code, err := ex.Execute(ctx, model.CronJob{Type: model.JobTypeCommand, Command: "echo ok"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 0, code)

	_, code, err = ex.Execute(ctx, model.CronJob{Type: model.JobTypeScript, Command: "fail"})
	assert.Error(t, err)
	assert.Equal(t, 3, code)

	assert.Equal(t, []string{"/bin/sh -c echo ok", "/bin/bash -e -c fail"}, run.Calls())
}

func TestHostExecutor_URL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("pong"))
	}))
	defer srv.Close()
	ex := NewHostExecutor(&hostexec.FakeRunner{}, srv.Client())

	out, code, err := ex.Execute(context.Background(), model.CronJob{Type: model.JobTypeURL, Command: srv.URL + "/ping"})
	require.NoError(t, err)
	assert.Equal(t, "pong", out)
	assert.Equal(t, 0, code)

	_, code, err = ex.Execute(context.Background(), model.CronJob{Type: model.JobTypeURL, Command: srv.URL + "/broken"})
	assert.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", MaxOutput+10)
	got := truncate(long)
	assert.True(t, strings.HasSuffix(got, "[output truncated]"))
	assert.Len(t, got, MaxOutput+len("\n[output truncated]"))
}

func TestTruncate_KeepsValidUTF8(t *testing.T) {
	got := truncate("a" + strings.Repeat("é", MaxOutput))
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), MaxOutput+len("\n[output truncated]"))

	assert.Equal(t, "ab", truncate("a\x00b"))
	assert.Equal(t, "a�b", truncate("a\xffb"))
}
