package installer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/panel/internal/core"
	"github.com/edvin/panel/internal/hostexec"
	"github.com/edvin/panel/internal/model"
)

func (f *fixture) installPHP(t *testing.T, version string) {
	t.Helper()
	op, err := f.in.Install(context.Background(), "php", version)
	require.NoError(t, err)
	f.wait(t, op.ID)
}

func (f *fixture) addModIni(t *testing.T, version, ext string) {
	t.Helper()
	dir := filepath.Join(f.extDir, version)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ext+".ini"), []byte("extension="+ext+".so\n"), 0o644))
}

func extByName(list []model.Extension, name string) model.Extension {
	for _, e := range list {
		if e.Name == name {
			return e
		}
	}
	return model.Extension{}
}

func TestExtensions_ListsInstalledAndEnabled(t *testing.T) {
	f := newFixture(t)
	f.installPHP(t, "8.2")
	f.addModIni(t, "8.2", "gd")
	f.addModIni(t, "8.2", "intl")
	f.ext.loaded["8.2"] = []string{"core", "gd", "pdo"}

	list, err := f.in.Extensions(context.Background(), "php", "")
	require.NoError(t, err)
	assert.Equal(t, model.Extension{Name: "gd", Installed: true, Enabled: true}, extByName(list, "gd"))
	assert.Equal(t, model.Extension{Name: "intl", Installed: true}, extByName(list, "intl"))
	assert.Equal(t, model.Extension{Name: "zip"}, extByName(list, "zip"))
}

func TestExtensions_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.in.Extensions(context.Background(), "php", "8.2")
	assert.Equal(t, core.NotInstalled, core.KindOf(err))

	_, err = f.in.Extensions(context.Background(), "redis", "")
	assert.Equal(t, core.InvalidInput, core.KindOf(err))

	f.installPHP(t, "8.2")
	_, err = f.in.InstallExtension(context.Background(), "php", "8.2", "cobol")
	assert.Equal(t, core.InvalidInput, core.KindOf(err))
}

func TestInstallExtension_InstallsPackageAndRestartsRunning(t *testing.T) {
	f := newFixture(t)
	f.installPHP(t, "8.2")
	f.installPHP(t, "8.3")
	_, err := f.reg.Update("php", func(s *model.ManagedService) error {
		s.SetRunning("8.3", true)
		return nil
	})
	require.NoError(t, err)

	op, err := f.in.InstallExtension(context.Background(), "php", "8.3", "Redis")
	require.NoError(t, err)
	assert.Equal(t, model.OpExtension, op.Kind)
	done := f.wait(t, op.ID)
	require.Equal(t, model.StatusSucceeded, done.State, done.Error)

	assert.Equal(t, []string{"php8.3-redis"}, f.pm.installs[len(f.pm.installs)-1])
	assert.Equal(t, []string{"php@8.3"}, f.stopper.restarted)

	op, err = f.in.InstallExtension(context.Background(), "php", "8.2", "zip")
	require.NoError(t, err)
	f.wait(t, op.ID)
	assert.Equal(t, []string{"php@8.3"}, f.stopper.restarted, "8.2 is not running")
}

func TestInstallExtension_FailureRecordsLastError(t *testing.T) {
	f := newFixture(t)
	f.installPHP(t, "8.2")
	f.pm.failWith = hostexec.ExitStatus(100)

	op, err := f.in.InstallExtension(context.Background(), "php", "", "imagick")
	require.NoError(t, err)
	done := f.wait(t, op.ID)
	assert.Equal(t, model.StatusFailed, done.State)

	svc, _ := f.reg.Get("php")
	assert.NotEmpty(t, svc.LastError)
}

func TestSetExtension(t *testing.T) {
	f := newFixture(t)
	f.installPHP(t, "8.2")
	ctx := context.Background()

	_, err := f.in.SetExtension(ctx, "php", "8.2", "gd", true)
	assert.Equal(t, core.NotInstalled, core.KindOf(err))

	f.addModIni(t, "8.2", "gd")
	_, err = f.reg.Update("php", func(s *model.ManagedService) error {
		s.SetRunning("8.2", true)
		return nil
	})
	require.NoError(t, err)

	ext, err := f.in.SetExtension(ctx, "php", "8.2", "gd", false)
	require.NoError(t, err)
	assert.Equal(t, model.Extension{Name: "gd", Installed: true}, ext)
	assert.Equal(t, []string{"8.2 gd false"}, f.ext.toggles)
	assert.Equal(t, []string{"php@8.2"}, f.stopper.restarted)
}

func TestPHPExtensions_Commands(t *testing.T) {
	run := &hostexec.FakeRunner{Handler: func(name string, args ...string) ([]byte, error) {
		if name == "php8.2" {
			return []byte("[PHP Modules]\nCore\ngd\nPDO\n\n[Zend Modules]\nZend OPcache\n"), nil
		}
		return nil, nil
	}}
	p := NewPHPExtensions(run, zerolog.Nop())
	ctx := context.Background()

	mods, err := p.Loaded(ctx, "8.2")
	require.NoError(t, err)
	assert.Equal(t, []string{"core", "gd", "pdo", "zend opcache"}, mods)

	require.NoError(t, p.SetEnabled(ctx, "8.2", "gd", false))
	require.NoError(t, p.SetEnabled(ctx, "8.2", "gd", true))
	assert.Equal(t, []string{"php8.2 -m", "phpdismod -v 8.2 gd", "phpenmod -v 8.2 gd"}, run.Calls())
}
