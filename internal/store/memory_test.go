package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/panel/internal/core"
	"github.com/edvin/panel/internal/model"
)

func TestMemory_CertificateDomainUnique(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.CreateCertificate(ctx, model.Certificate{ID: "1", Domain: "a.example"}))
	err := m.CreateCertificate(ctx, model.Certificate{ID: "2", Domain: "a.example"})
	assert.Equal(t, core.AlreadyExists, core.KindOf(err))

	require.NoError(t, m.DeleteCertificate(ctx, "1"))
	require.NoError(t, m.CreateCertificate(ctx, model.Certificate{ID: "2", Domain: "a.example"}))

	_, err = m.GetCertificate(ctx, "1")
	assert.Equal(t, core.NotFound, core.KindOf(err))
	assert.Equal(t, core.NotFound, core.KindOf(m.UpdateCertificate(ctx, model.Certificate{ID: "1"})))
}

func TestMemory_RunsKeepNewest(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateJob(ctx, model.CronJob{ID: "j"}))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		run := model.CronRun{ID: fmt.Sprint(i), JobID: "j", StartedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, m.RecordRun(ctx, run, 20))
	}

	runs, err := m.Runs(ctx, "j")
	require.NoError(t, err)
	require.Len(t, runs, 20)
	assert.Equal(t, "24", runs[0].ID)
	assert.Equal(t, "5", runs[19].ID)

	require.NoError(t, m.DeleteJob(ctx, "j"))
	_, err = m.Runs(ctx, "j")
	assert.Equal(t, core.NotFound, core.KindOf(err))
}

func TestMemory_RulesInsertAndDeleteKeepDenseOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, m.InsertRule(ctx, model.FirewallRule{ID: id}))
	}
	require.NoError(t, m.InsertRule(ctx, model.FirewallRule{ID: "x", Position: 2}))

	rules, err := m.ListRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "x", "b", "c"}, ruleIDs(rules))
	assert.Equal(t, []int{1, 2, 3, 4}, rulePositions(rules))

	require.NoError(t, m.DeleteRule(ctx, "b"))
	rules, err = m.ListRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "x", "c"}, ruleIDs(rules))
	assert.Equal(t, []int{1, 2, 3}, rulePositions(rules))

	assert.Equal(t, core.NotFound, core.KindOf(m.DeleteRule(ctx, "b")))
}

func ruleIDs(rules []model.FirewallRule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.ID
	}
	return out
}

func rulePositions(rules []model.FirewallRule) []int {
	out := make([]int, len(rules))
	for i, r := range rules {
		out[i] = r.Position
	}
	return out
}

func TestMemory_ActivityNewestFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, m.AppendActivity(ctx, model.Activity{ID: fmt.Sprint(i)}))
	}

	acts, err := m.ListActivity(ctx, 3)
	require.NoError(t, err)
	require.Len(t, acts, 3)
	assert.Equal(t, "4", acts[0].ID)

	all, _ := m.ListActivity(ctx, 0)
	assert.Len(t, all, 5)
}

func TestMemory_ActivityBounded(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for i := 0; i < maxMemoryActivities+10; i++ {
		require.NoError(t, m.AppendActivity(ctx, model.Activity{ID: fmt.Sprint(i)}))
	}
	all, _ := m.ListActivity(ctx, 0)
	assert.Len(t, all, maxMemoryActivities)
}
