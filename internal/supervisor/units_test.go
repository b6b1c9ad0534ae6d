package supervisor

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/panel/internal/hostexec"
)

func TestSystemd_Commands(t *testing.T) {
	run := &hostexec.FakeRunner{}
	sd := NewSystemd(run, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, sd.Start(ctx, "nginx"))
	require.NoError(t, sd.Stop(ctx, "nginx"))
	require.NoError(t, sd.Restart(ctx, "php8.2-fpm"))
	_, err := sd.Logs(ctx, "nginx", 50)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"systemctl start nginx",
		"systemctl stop nginx",
		"systemctl restart php8.2-fpm",
		"journalctl -u nginx -n 50 --no-pager -o short-iso",
	}, run.Calls())
}

func TestSystemd_IsActive(t *testing.T) {
	codes := map[string]error{
		"up":      nil,
		"down":    hostexec.ExitStatus(3),
		"unknown": hostexec.ExitStatus(4),
		"broken":  errors.New("dbus unavailable"),
	}
	run := &hostexec.FakeRunner{Handler: func(name string, args ...string) ([]byte, error) {
		return nil, codes[args[len(args)-1]]
	}}
	sd := NewSystemd(run, zerolog.Nop())
	ctx := context.Background()

	active, err := sd.IsActive(ctx, "up")
	require.NoError(t, err)
	assert.True(t, active)

	active, err = sd.IsActive(ctx, "down")
	require.NoError(t, err)
	assert.False(t, active)

	active, err = sd.IsActive(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, active)

	_, err = sd.IsActive(ctx, "broken")
	assert.Error(t, err)
}
