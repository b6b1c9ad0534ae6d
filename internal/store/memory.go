package store

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/edvin/panel/internal/core"
	"github.com/edvin/panel/internal/model"
)

// maxMemoryActivities bounds the in-memory feed.
const maxMemoryActivities = 1000

// Memory keeps everything in process memory. It is used when no database is
// configured and in tests.
type Memory struct {
	mu         sync.RWMutex
	certs      map[string]model.Certificate
	jobs       map[string]model.CronJob
	runs       map[string][]model.CronRun
	rules      []model.FirewallRule
	activities []model.Activity
}

func NewMemory() *Memory {
	return &Memory{
		certs: make(map[string]model.Certificate),
		jobs:  make(map[string]model.CronJob),
		runs:  make(map[string][]model.CronRun),
	}
}

func (m *Memory) ListCertificates(_ context.Context) ([]model.Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Certificate, 0, len(m.certs))
	for _, c := range m.certs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out, nil
}

func (m *Memory) GetCertificate(_ context.Context, id string) (model.Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.certs[id]
	if !ok {
		return model.Certificate{}, core.Errorf(core.NotFound, "certificate %s not found", id)
	}
	return c, nil
}

func (m *Memory) CreateCertificate(_ context.Context, c model.Certificate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.certs {
		if existing.Domain == c.Domain {
			return core.Errorf(core.AlreadyExists, "certificate for %s already exists", c.Domain)
		}
	}
	m.certs[c.ID] = c
	return nil
}

func (m *Memory) UpdateCertificate(_ context.Context, c model.Certificate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.certs[c.ID]; !ok {
		return core.Errorf(core.NotFound, "certificate %s not found", c.ID)
	}
	m.certs[c.ID] = c
	return nil
}

func (m *Memory) DeleteCertificate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.certs[id]; !ok {
		return core.Errorf(core.NotFound, "certificate %s not found", id)
	}
	delete(m.certs, id)
	return nil
}

func (m *Memory) ListJobs(_ context.Context) ([]model.CronJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.CronJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) GetJob(_ context.Context, id string) (model.CronJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[id]
	if !ok {
		return model.CronJob{}, core.Errorf(core.NotFound, "cron job %s not found", id)
	}
	return j, nil
}

func (m *Memory) CreateJob(_ context.Context, j model.CronJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[j.ID]; ok {
		return core.Errorf(core.AlreadyExists, "cron job %s already exists", j.ID)
	}
	m.jobs[j.ID] = j
	return nil
}

func (m *Memory) UpdateJob(_ context.Context, j model.CronJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[j.ID]; !ok {
		return core.Errorf(core.NotFound, "cron job %s not found", j.ID)
	}
	m.jobs[j.ID] = j
	return nil
}

func (m *Memory) DeleteJob(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[id]; !ok {
		return core.Errorf(core.NotFound, "cron job %s not found", id)
	}
	delete(m.jobs, id)
	delete(m.runs, id)
	return nil
}

func (m *Memory) RecordRun(_ context.Context, run model.CronRun, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[run.JobID]; !ok {
		return core.Errorf(core.NotFound, "cron job %s not found", run.JobID)
	}
	runs := append([]model.CronRun{run}, m.runs[run.JobID]...)
	if keep > 0 && len(runs) > keep {
		runs = runs[:keep]
	}
	m.runs[run.JobID] = runs
	return nil
}

func (m *Memory) Runs(_ context.Context, jobID string) ([]model.CronRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.jobs[jobID]; !ok {
		return nil, core.Errorf(core.NotFound, "cron job %s not found", jobID)
	}
	return slices.Clone(m.runs[jobID]), nil
}

func (m *Memory) ListRules(_ context.Context) ([]model.FirewallRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := slices.Clone(m.rules)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *Memory) InsertRule(_ context.Context, r model.FirewallRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.Position < 1 || r.Position > len(m.rules)+1 {
		r.Position = len(m.rules) + 1
	}
	for i := range m.rules {
		if m.rules[i].Position >= r.Position {
			m.rules[i].Position++
		}
	}
	m.rules = append(m.rules, r)
	return nil
}

func (m *Memory) DeleteRule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := slices.IndexFunc(m.rules, func(r model.FirewallRule) bool { return r.ID == id })
	if i < 0 {
		return core.Errorf(core.NotFound, "firewall rule %s not found", id)
	}
	pos := m.rules[i].Position
	m.rules = slices.Delete(m.rules, i, i+1)
	for i := range m.rules {
		if m.rules[i].Position > pos {
			m.rules[i].Position--
		}
	}
	return nil
}

func (m *Memory) AppendActivity(_ context.Context, a model.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a.Metadata = maps.Clone(a.Metadata)
	m.activities = append(m.activities, a)
	if len(m.activities) > maxMemoryActivities {
		m.activities = slices.Clone(m.activities[len(m.activities)-maxMemoryActivities:])
	}
	return nil
}

func (m *Memory) ListActivity(_ context.Context, limit int) ([]model.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.activities)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]model.Activity, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.activities[i])
	}
	return out, nil
}
