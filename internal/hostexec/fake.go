package hostexec

import (
	"context"
	"strconv"
	"strings"
	"sync"
)

// FakeRunner records commands instead of running them. Handler, when set,
// decides the output and error of each call. It is used by tests of the
// packages that drive host commands.
type FakeRunner struct {
	Handler func(name string, args ...string) ([]byte, error)

	mu    sync.Mutex
	calls []string
}

func (f *FakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, strings.TrimSpace(name+" "+strings.Join(args, " ")))
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Handler == nil {
		return nil, nil
	}
	out, err := f.Handler(name, args...)
	if err != nil {
		return out, &CommandError{Name: name, Args: args, Output: strings.TrimSpace(string(out)), Err: err}
	}
	return out, nil
}

// Calls returns every command line run so far.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// ExitStatus is an error carrying a process exit code, as *exec.ExitError
// does.
type ExitStatus int

func (e ExitStatus) Error() string { return "exit status " + strconv.Itoa(int(e)) }
func (e ExitStatus) ExitCode() int { return int(e) }
