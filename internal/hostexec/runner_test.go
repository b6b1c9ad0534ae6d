package hostexec

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner_Success(t *testing.T) {
	r := NewExecRunner(zerolog.Nop())
	out, err := r.Run(context.Background(), "sh", "-c", "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))
}

func TestExecRunner_FailureCarriesOutputAndExitCode(t *testing.T) {
	r := NewExecRunner(zerolog.Nop())
	_, err := r.Run(context.Background(), "sh", "-c", "echo broken >&2; exit 3")
	require.Error(t, err)

	var ce *CommandError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "broken", ce.Output)
	assert.Equal(t, 3, ExitCode(err))
	assert.Equal(t, "broken", Output(err))
	assert.Contains(t, err.Error(), "sh -c")
}

func TestExecRunner_TimeoutKillsProcessGroup(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	r := NewExecRunner(zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	// The trailing command keeps sh from exec-ing sleep, so sleep is a child
	// that holds the output pipe open.
	_, err := r.Run(ctx, "/bin/sh", "-c", "sleep 30; echo done")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Less(t, elapsed, 5*time.Second, "run must end soon after the deadline")
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, -1, ExitCode(errors.New("no such file")))
	assert.Equal(t, 7, ExitCode(&CommandError{Name: "x", Err: ExitStatus(7)}))
}

func TestOutput_FallsBackToMessage(t *testing.T) {
	assert.Equal(t, "boom", Output(errors.New("boom")))
}

func TestFakeRunner_RecordsAndWraps(t *testing.T) {
	f := &FakeRunner{Handler: func(name string, args ...string) ([]byte, error) {
		if args[0] == "bad" {
			return []byte("nope\n"), ExitStatus(2)
		}
		return []byte("ok"), nil
	}}

	out, err := f.Run(context.Background(), "tool", "good")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(out))

	_, err = f.Run(context.Background(), "tool", "bad", "x")
	require.Error(t, err)
	assert.Equal(t, 2, ExitCode(err))
	assert.Equal(t, "nope", Output(err))

	assert.Equal(t, []string{"tool good", "tool bad x"}, f.Calls())
}
