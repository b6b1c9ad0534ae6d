package supervisor

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/edvin/panel/internal/hostexec"
)

// UnitManager abstracts the init system so the supervisor works the same
// against systemd and test doubles.
type UnitManager interface {
	Start(ctx context.Context, unit string) error
	Stop(ctx context.Context, unit string) error
	Restart(ctx context.Context, unit string) error
	// IsActive reports whether the unit is running. A unit that is known to
	// be inactive returns false with a nil error.
	IsActive(ctx context.Context, unit string) (bool, error)
	// Logs returns the last lines of the unit's journal.
	Logs(ctx context.Context, unit string, lines int) (string, error)
}

// Systemd implements UnitManager with systemctl and journalctl.
type Systemd struct {
	run    hostexec.Runner
	logger zerolog.Logger
}

func NewSystemd(run hostexec.Runner, logger zerolog.Logger) *Systemd {
	return &Systemd{run: run, logger: logger.With().Str("svc_mgr", "systemd").Logger()}
}

func (s *Systemd) Start(ctx context.Context, unit string) error {
	_, err := s.run.Run(ctx, "systemctl", "start", unit)
	return err
}

func (s *Systemd) Stop(ctx context.Context, unit string) error {
	_, err := s.run.Run(ctx, "systemctl", "stop", unit)
	return err
}

func (s *Systemd) Restart(ctx context.Context, unit string) error {
	_, err := s.run.Run(ctx, "systemctl", "restart", unit)
	return err
}

// IsActive runs systemctl is-active, which exits 3 for inactive units and
// 4 for units systemd does not know.
func (s *Systemd) IsActive(ctx context.Context, unit string) (bool, error) {
	_, err := s.run.Run(ctx, "systemctl", "is-active", "--quiet", unit)
	if err == nil {
		return true, nil
	}
	switch hostexec.ExitCode(err) {
	case 3, 4:
		return false, nil
	}
	return false, err
}

func (s *Systemd) Logs(ctx context.Context, unit string, lines int) (string, error) {
	out, err := s.run.Run(ctx, "journalctl", "-u", unit, "-n", strconv.Itoa(lines), "--no-pager", "-o", "short-iso")
	if err != nil {
		return "", err
	}
	return string(out), nil
}
