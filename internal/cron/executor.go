package cron

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/edvin/panel/internal/hostexec"
	"github.com/edvin/panel/internal/model"
)

// MaxOutput is how much of a run's output is kept.
const MaxOutput = 64 * 1024

// Executor runs one job and reports its combined output and exit code. A
// non-nil error means the job could not be run or did not exit cleanly.
type Executor interface {
	Execute(ctx context.Context, job model.CronJob) (output string, exitCode int, err error)
}

// HostExecutor runs command and script jobs through the host shell and
// fetches url jobs over HTTP.
type HostExecutor struct {
	run    hostexec.Runner
	client *http.Client
}

func NewHostExecutor(run hostexec.Runner, client *http.Client) *HostExecutor {
	if client == nil {
		client = &http.Client{}
	}
	return &HostExecutor{run: run, client: client}
}

func (e *HostExecutor) Execute(ctx context.Context, job model.CronJob) (string, int, error) {
	switch job.Type {
	case model.JobTypeURL:
		return e.fetch(ctx, job.Command)
	case model.JobTypeScript:
		out, err := e.run.Run(ctx, "/bin/bash", "-e", "-c", job.Command)
		return truncate(string(out)), hostexec.ExitCode(err), err
	default:
		out, err := e.run.Run(ctx, "/bin/sh", "-c", job.Command)
		return truncate(string(out)), hostexec.ExitCode(err), err
	}
}

// fetch requests url and treats any non-2xx status as a failure whose exit
// code is the HTTP status.
func (e *HostExecutor) fetch(ctx context.Context, url string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", -1, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "panel-cron/1")

	resp, err := e.client.Do(req)
	if err != nil {
		return err.Error(), -1, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxOutput+1))
	if err != nil && !errors.Is(err, io.EOF) {
		return truncate(string(body)), -1, fmt.Errorf("read body: %w", err)
	}
	out := truncate(string(body))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, resp.StatusCode, fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return out, 0, nil
}

// truncate keeps at most MaxOutput bytes of s as valid UTF-8 without NUL
// bytes, which the run history column cannot store.
func truncate(s string) string {
	cut := len(s) > MaxOutput
	if cut {
		end := MaxOutput
		for end > 0 && !utf8.RuneStart(s[end]) {
			end--
		}
		s = s[:end]
	}
	s = strings.ToValidUTF8(s, "\uFFFD")
	s = strings.ReplaceAll(s, "\x00", "")
	if cut {
		s += "\n[output truncated]"
	}
	return s
}
