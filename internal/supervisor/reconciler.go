package supervisor

import (
	"context"
	"time"

	"github.com/edvin/panel/internal/metrics"
	"github.com/edvin/panel/internal/model"
)

// Subscribe registers for state change events. Events are dropped for a
// subscriber whose buffer is full. The returned func unsubscribes and
// closes the channel.
func (s *Supervisor) Subscribe(buffer int) (<-chan StateChange, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan StateChange, buffer)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Supervisor) publish(ev StateChange) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Reconcile checks every installed version with a unit and corrects the
// registry when the host disagrees. It returns the changes it made.
func (s *Supervisor) Reconcile(ctx context.Context) ([]StateChange, error) {
	start := s.now()
	var changes []StateChange

	for _, svc := range s.reg.List("") {
		if err := ctx.Err(); err != nil {
			metrics.ReconcileTotal.WithLabelValues("failure").Inc()
			return changes, err
		}

		if !svc.Installed {
			if svc.Running || len(svc.RunningVersions) > 0 {
				changes = append(changes, s.correctUninstalled(svc)...)
			}
			continue
		}

		for _, version := range svc.InstalledVersions {
			unit := svc.UnitFor(version)
			if unit == "" {
				continue
			}
			if ch, ok := s.observe(ctx, svc.ID, version, unit); ok {
				changes = append(changes, ch)
			}
		}
	}

	metrics.ReconcileDuration.Observe(s.now().Sub(start).Seconds())
	metrics.ReconcileTotal.WithLabelValues("success").Inc()
	return changes, nil
}

func (s *Supervisor) observe(ctx context.Context, id, version, unit string) (StateChange, bool) {
	unlock := s.LockUnit(unit)
	defer unlock()

	active, err := s.units.IsActive(ctx, unit)
	if err != nil {
		s.logger.Warn().Err(err).Str("service", id).Str("unit", unit).Msg("unit check failed")
		return StateChange{}, false
	}

	var change StateChange
	drifted := false
	now := s.now()
	_, err = s.reg.Update(id, func(m *model.ManagedService) error {
		if !m.HasInstalledVersion(version) || m.IsRunning(version) == active {
			return nil
		}
		drifted = true
		m.SetRunning(version, active)
		m.StatusChangedAt = &now
		return nil
	})
	if err != nil || !drifted {
		return StateChange{}, false
	}

	change = StateChange{ServiceID: id, Version: version, Running: active, Source: "reconciler", Timestamp: now}
	metrics.DriftDetected.WithLabelValues(id).Inc()
	s.logger.Info().Str("service", id).Str("version", version).Bool("running", active).Msg("drift corrected")
	s.publish(change)
	return change, true
}

func (s *Supervisor) correctUninstalled(svc model.ManagedService) []StateChange {
	now := s.now()
	var stopped []string
	_, err := s.reg.Update(svc.ID, func(m *model.ManagedService) error {
		if m.Installed {
			return nil
		}
		stopped = m.RunningVersions
		m.RunningVersions = nil
		m.Running = false
		m.StatusChangedAt = &now
		return nil
	})
	if err != nil {
		return nil
	}

	if len(stopped) == 0 {
		stopped = []string{""}
	}
	changes := make([]StateChange, 0, len(stopped))
	for _, v := range stopped {
		ch := StateChange{ServiceID: svc.ID, Version: v, Running: false, Source: "reconciler", Timestamp: now}
		metrics.DriftDetected.WithLabelValues(svc.ID).Inc()
		s.publish(ch)
		changes = append(changes, ch)
	}
	return changes
}

// RunLoop reconciles every interval until ctx is done.
func (s *Supervisor) RunLoop(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("starting reconciliation loop")

	if _, err := s.Reconcile(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Msg("initial reconciliation failed")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("reconciliation loop stopped")
			return
		case <-ticker.C:
			if _, err := s.Reconcile(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("periodic reconciliation failed")
			}
		}
	}
}
