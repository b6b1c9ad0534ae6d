package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/panel/internal/activity"
	"github.com/edvin/panel/internal/core"
	"github.com/edvin/panel/internal/hostexec"
	"github.com/edvin/panel/internal/metrics"
	"github.com/edvin/panel/internal/model"
	"github.com/edvin/panel/internal/registry"
)

const (
	DefaultLogLines = 100
	MaxLogLines     = 5000
)

type action string

const (
	actionStart   action = "start"
	actionStop    action = "stop"
	actionRestart action = "restart"
)

// StateChange is published whenever a service version is observed to start
// or stop, either through an explicit action or by the reconciler.
type StateChange struct {
	ServiceID string    `json:"service_id"`
	Version   string    `json:"version"`
	Running   bool      `json:"running"`
	Source    string    `json:"source"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Supervisor drives service units and keeps the registry's view of them
// current.
type Supervisor struct {
	reg      *registry.Registry
	units    UnitManager
	feed     activity.Recorder
	logger   zerolog.Logger
	interval time.Duration
	now      func() time.Time

	// Per-unit mutex so actions and checks on the same unit never overlap.
	locks sync.Map

	subMu   sync.Mutex
	subs    map[int]chan StateChange
	nextSub int
}

func New(reg *registry.Registry, units UnitManager, feed activity.Recorder, logger zerolog.Logger, interval time.Duration) *Supervisor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Supervisor{
		reg:      reg,
		units:    units,
		feed:     feed,
		logger:   logger.With().Str("component", "supervisor").Logger(),
		interval: interval,
		now:      time.Now,
		subs:     make(map[int]chan StateChange),
	}
}

// LockUnit acquires the per-unit mutex. Returns an unlock function.
func (s *Supervisor) LockUnit(unit string) func() {
	mu, _ := s.locks.LoadOrStore(unit, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	return mu.(*sync.Mutex).Unlock
}

// Start starts one version of a service. An empty version means the default.
func (s *Supervisor) Start(ctx context.Context, id, version string) (model.ManagedService, error) {
	return s.act(ctx, actionStart, id, version)
}

// Stop stops one version of a service.
func (s *Supervisor) Stop(ctx context.Context, id, version string) (model.ManagedService, error) {
	return s.act(ctx, actionStop, id, version)
}

// Restart restarts one version of a service. Other versions are untouched.
func (s *Supervisor) Restart(ctx context.Context, id, version string) (model.ManagedService, error) {
	return s.act(ctx, actionRestart, id, version)
}

// Status returns the registry's view without probing the host.
func (s *Supervisor) Status(id string) (model.ManagedService, error) {
	return s.reg.Get(id)
}

// Logs returns the last lines of the service's journal. lines defaults to
// DefaultLogLines and is capped at MaxLogLines.
func (s *Supervisor) Logs(ctx context.Context, id, version string, lines int) (string, error) {
	svc, unit, _, err := s.resolve(id, version)
	if err != nil {
		return "", err
	}
	switch {
	case lines <= 0:
		lines = DefaultLogLines
	case lines > MaxLogLines:
		lines = MaxLogLines
	}

	out, err := s.units.Logs(ctx, unit, lines)
	if err != nil {
		return "", core.Wrap(core.InternalError, err, "read logs of %s", svc.ID)
	}
	return out, nil
}

// resolve checks the preconditions shared by every unit action and returns
// the unit of the requested version.
func (s *Supervisor) resolve(id, version string) (model.ManagedService, string, string, error) {
	svc, err := s.reg.Get(id)
	if err != nil {
		return svc, "", "", err
	}
	if !svc.Installed {
		return svc, "", "", core.Errorf(core.NotInstalled, "service %s is not installed", id)
	}
	if version == "" {
		version = svc.InstalledVersion
	}
	if !svc.HasInstalledVersion(version) {
		return svc, "", "", core.Errorf(core.NotInstalled, "version %s of %s is not installed", version, id)
	}
	unit := svc.UnitFor(version)
	if unit == "" {
		return svc, "", "", core.Errorf(core.InvalidInput, "service %s has no manageable unit", id)
	}
	return svc, unit, version, nil
}

func (s *Supervisor) act(ctx context.Context, act action, id, version string) (model.ManagedService, error) {
	svc, unit, version, err := s.resolve(id, version)
	if err != nil {
		return svc, err
	}

	unlock := s.LockUnit(unit)
	defer unlock()

	s.logger.Info().Str("service", id).Str("version", version).Str("unit", unit).Msgf("%s requested", act)

	switch act {
	case actionStart:
		err = s.units.Start(ctx, unit)
	case actionStop:
		err = s.units.Stop(ctx, unit)
	case actionRestart:
		err = s.units.Restart(ctx, unit)
	}

	now := s.now()
	running := act != actionStop && err == nil
	var lastError string
	if err != nil {
		lastError = hostexec.Output(err)
	}

	updated, uerr := s.reg.Update(id, func(m *model.ManagedService) error {
		if !m.HasInstalledVersion(version) {
			return core.Errorf(core.NotInstalled, "version %s of %s was uninstalled", version, id)
		}
		m.SetRunning(version, running)
		m.LastError = lastError
		if err == nil && act != actionStop {
			m.PendingRestart = false
		}
		m.StatusChangedAt = &now
		return nil
	})
	if uerr != nil {
		return updated, uerr
	}

	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.ServiceActionsTotal.WithLabelValues(string(act), result).Inc()

	s.publish(StateChange{
		ServiceID: id,
		Version:   version,
		Running:   running,
		Source:    string(act),
		Error:     lastError,
		Timestamp: now,
	})

	title := fmt.Sprintf("%s %s %s", verb(act, err), updated.Name, version)
	s.feed.Record(ctx, model.Activity{
		Type:        model.ActivityConfig,
		Title:       title,
		Description: lastError,
		Status:      activity.Outcome(err),
		Metadata:    map[string]string{"service": id, "version": version, "action": string(act)},
	})

	if err != nil {
		s.logger.Error().Err(err).Str("service", id).Str("version", version).Msgf("%s failed", act)
		return updated, core.Wrap(core.InternalError, err, "%s %s", act, unit)
	}
	return updated, nil
}

func verb(act action, err error) string {
	if err != nil {
		return fmt.Sprintf("Failed to %s", act)
	}
	switch act {
	case actionStart:
		return "Started"
	case actionStop:
		return "Stopped"
	default:
		return "Restarted"
	}
}
