package installer

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/panel/internal/hostexec"
)

func TestApt_InstallAndRemove(t *testing.T) {
	run := &hostexec.FakeRunner{}
	apt := NewApt(run, zerolog.Nop())

	require.NoError(t, apt.Install(context.Background(), []string{"redis-server"}))
	require.NoError(t, apt.Remove(context.Background(), []string{"php8.2-fpm", "php8.2-cli"}))

	assert.Equal(t, []string{
		"env DEBIAN_FRONTEND=noninteractive apt-get install -y --no-install-recommends redis-server",
		"env DEBIAN_FRONTEND=noninteractive apt-get remove -y php8.2-fpm php8.2-cli",
	}, run.Calls())
}

func TestApt_Installed(t *testing.T) {
	run := &hostexec.FakeRunner{Handler: func(name string, args ...string) ([]byte, error) {
		switch args[len(args)-1] {
		case "nginx":
			return []byte("install ok installed|1.24.0-2ubuntu7"), nil
		case "apache2":
			return []byte("deinstall ok config-files|2.4.58-1"), nil
		case "missing":
			return []byte("dpkg-query: no packages found matching missing"), hostexec.ExitStatus(1)
		default:
			return []byte("dpkg: database locked"), hostexec.ExitStatus(2)
		}
	}}
	apt := NewApt(run, zerolog.Nop())
	ctx := context.Background()

	v, ok, err := apt.Installed(ctx, "nginx")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1.24.0-2ubuntu7", v)

	_, ok, err = apt.Installed(ctx, "apache2")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = apt.Installed(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = apt.Installed(ctx, "locked")
	assert.Error(t, err)
}
