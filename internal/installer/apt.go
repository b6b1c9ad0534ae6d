package installer

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edvin/panel/internal/hostexec"
)

// PackageManager installs and removes OS packages.
type PackageManager interface {
	Install(ctx context.Context, pkgs []string) error
	Remove(ctx context.Context, pkgs []string) error
	// Installed returns the installed version of pkg. ok is false when the
	// package is not installed.
	Installed(ctx context.Context, pkg string) (version string, ok bool, err error)
}

// Apt drives apt-get and dpkg-query.
type Apt struct {
	run    hostexec.Runner
	logger zerolog.Logger
}

func NewApt(run hostexec.Runner, logger zerolog.Logger) *Apt {
	return &Apt{run: run, logger: logger.With().Str("pkg_mgr", "apt").Logger()}
}

func (a *Apt) Install(ctx context.Context, pkgs []string) error {
	args := append([]string{"DEBIAN_FRONTEND=noninteractive", "apt-get", "install", "-y", "--no-install-recommends"}, pkgs...)
	_, err := a.run.Run(ctx, "env", args...)
	return err
}

func (a *Apt) Remove(ctx context.Context, pkgs []string) error {
	args := append([]string{"DEBIAN_FRONTEND=noninteractive", "apt-get", "remove", "-y"}, pkgs...)
	_, err := a.run.Run(ctx, "env", args...)
	return err
}

func (a *Apt) Installed(ctx context.Context, pkg string) (string, bool, error) {
	out, err := a.run.Run(ctx, "dpkg-query", "-W", "-f=${Status}|${Version}", pkg)
	if err != nil {
		// dpkg-query exits 1 for packages it has never seen.
		if hostexec.ExitCode(err) == 1 {
			return "", false, nil
		}
		return "", false, err
	}

	status, version, _ := strings.Cut(strings.TrimSpace(string(out)), "|")
	if !strings.HasSuffix(status, " installed") {
		return "", false, nil
	}
	return version, true, nil
}
