package hostexec

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Runner executes host commands. Implementations return the combined
// stdout/stderr output even when the command fails.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// WaitDelay bounds how long Run waits for output pipes to close after the
// process group has been killed.
const WaitDelay = 5 * time.Second

// ExecRunner runs commands with os/exec. Each command runs in its own
// process group and the whole group is killed when ctx ends, so a shell
// whose children keep the output pipe open cannot outlive the deadline.
type ExecRunner struct {
	logger zerolog.Logger
}

// NewExecRunner creates a new ExecRunner.
func NewExecRunner(logger zerolog.Logger) *ExecRunner {
	return &ExecRunner{logger: logger.With().Str("component", "hostexec").Logger()}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.logger.Debug().Str("cmd", name).Strs("args", args).Msg("running command")

	cmd := exec.CommandContext(ctx, name, args...)
	setProcessGroup(cmd)
	cmd.WaitDelay = WaitDelay
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, &CommandError{Name: name, Args: args, Output: strings.TrimSpace(string(output)), Err: err}
	}
	return output, nil
}

// CommandError is returned when a command exits unsuccessfully.
type CommandError struct {
	Name   string
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s %s: %v", e.Name, strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Name, strings.Join(e.Args, " "), e.Output, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExitCode extracts the process exit code from err. It returns 0 for a nil
// error and -1 when the process never produced an exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	// *exec.ExitError and test doubles both expose ExitCode.
	var code interface{ ExitCode() int }
	if errors.As(err, &code) {
		return code.ExitCode()
	}
	return -1
}

// Output returns the command output carried by err, or err's message when
// the error did not come from a command.
func Output(err error) string {
	var ce *CommandError
	if errors.As(err, &ce) && ce.Output != "" {
		return ce.Output
	}
	return err.Error()
}
