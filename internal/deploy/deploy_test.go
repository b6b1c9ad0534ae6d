package deploy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/panel/internal/activity"
	"github.com/edvin/panel/internal/catalog"
	"github.com/edvin/panel/internal/core"
	"github.com/edvin/panel/internal/engine"
	"github.com/edvin/panel/internal/model"
	"github.com/edvin/panel/internal/ops"
	"github.com/edvin/panel/internal/registry"
	"github.com/edvin/panel/internal/store"
)

const gib = 1024 * 1024 * 1024

type fixture struct {
	fake    *engine.Fake
	reg     *registry.Registry
	tracker *ops.Tracker
	dep     *Deployer
}

func newFixture(t *testing.T, available uint64) *fixture {
	t.Helper()
	reg, err := registry.New(catalog.Default())
	require.NoError(t, err)
	fake := engine.NewFake()
	tracker := ops.NewTracker(zerolog.Nop(), 2)
	t.Cleanup(func() { _ = tracker.Shutdown(context.Background()) })
	feed := activity.NewFeed(store.NewMemory(), zerolog.Nop())
	memory := func(context.Context) (uint64, error) { return available, nil }
	return &fixture{
		fake:    fake,
		reg:     reg,
		tracker: tracker,
		dep:     New(NewTemplates(catalog.Default().Templates), fake, reg, tracker, feed, memory, zerolog.Nop()),
	}
}

func (f *fixture) wait(t *testing.T, op model.Operation) model.Operation {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done, err := f.tracker.Wait(ctx, op.ID)
	require.NoError(t, err)
	return done
}

func TestDeploy_DefaultsNameAndOverridesEnv(t *testing.T) {
	f := newFixture(t, 8*gib)

	op, err := f.dep.Deploy(context.Background(), Request{
		TemplateID: "mysql",
		Env:        map[string]string{"MYSQL_ROOT_PASSWORD": "s3cret", "TZ": "UTC"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.OpDeploy, op.Kind)

	done := f.wait(t, op)
	require.Equal(t, model.StatusSucceeded, done.State, done.Error)

	dep, ok := f.reg.Deployment("mysql")
	require.True(t, ok)
	assert.Equal(t, "mysql", dep.TemplateID)
	assert.Equal(t, "s3cret", dep.Env["MYSQL_ROOT_PASSWORD"], "override wins")
	assert.Equal(t, "app", dep.Env["MYSQL_DATABASE"], "template default kept")
	assert.Equal(t, "UTC", dep.Env["TZ"])

	c, err := f.fake.Inspect(context.Background(), "mysql")
	require.NoError(t, err)
	assert.Equal(t, model.ContainerRunning, c.State)
	assert.Equal(t, "mysql", c.Labels[LabelTemplate])
	assert.Equal(t, []string{"list containers", "pull mysql:8.0", "create mysql", "start " + c.ID}, f.fake.Calls())
}

func TestDeploy_WordPressAsBlog1(t *testing.T) {
	f := newFixture(t, 8*gib)

	op, err := f.dep.Deploy(context.Background(), Request{
		TemplateID: "wordpress",
		Name:       "blog1",
		Env:        map[string]string{"WORDPRESS_DB_HOST": "db1"},
	})
	require.NoError(t, err)
	done := f.wait(t, op)
	require.Equal(t, model.StatusSucceeded, done.State, done.Error)

	dep, ok := f.reg.Deployment("blog1")
	require.True(t, ok)
	assert.Equal(t, "wordpress", dep.TemplateID)
	assert.Equal(t, "db1", dep.Env["WORDPRESS_DB_HOST"])
	assert.Equal(t, "wordpress", dep.Env["WORDPRESS_DB_NAME"], "template default kept")

	c, err := f.fake.Inspect(context.Background(), "blog1")
	require.NoError(t, err)
	assert.Equal(t, "blog1", c.Name)
	assert.Equal(t, model.ContainerRunning, c.State)
	assert.Equal(t, "wordpress", c.Labels[LabelTemplate])
	assert.Contains(t, c.Env, "WORDPRESS_DB_HOST=db1")

	_, err = f.dep.Deploy(context.Background(), Request{TemplateID: "wordpress", Name: "blog1"})
	assert.Equal(t, core.AlreadyExists, core.KindOf(err))
}

func TestDeploy_PinsRequiredServiceVersion(t *testing.T) {
	f := newFixture(t, 8*gib)
	_, err := f.reg.Update("mysql", func(s *model.ManagedService) error {
		s.InstalledVersions = []string{"8.0"}
		s.InstalledVersion = "8.0"
		s.Installed = true
		return nil
	})
	require.NoError(t, err)

	op, err := f.dep.Deploy(context.Background(), Request{TemplateID: "phpmyadmin", Name: "pma"})
	require.NoError(t, err)
	done := f.wait(t, op)
	require.Equal(t, model.StatusSucceeded, done.State, done.Error)

	dep, ok := f.reg.Deployment("pma")
	require.True(t, ok)
	assert.Equal(t, []model.ServiceRef{{Service: "mysql", Version: "8.0"}}, dep.Requires)
	assert.Equal(t, []string{"container pma"}, f.reg.References("mysql", "8.0"))
}

func TestDeploy_UnknownTemplate(t *testing.T) {
	f := newFixture(t, 8*gib)
	_, err := f.dep.Deploy(context.Background(), Request{TemplateID: "cobol-cms"})
	assert.Equal(t, core.NotFound, core.KindOf(err))
}

func TestDeploy_InvalidName(t *testing.T) {
	f := newFixture(t, 8*gib)
	_, err := f.dep.Deploy(context.Background(), Request{TemplateID: "redis", Name: "bad name!"})
	assert.Equal(t, core.InvalidInput, core.KindOf(err))
}

func TestDeploy_InsufficientMemory(t *testing.T) {
	f := newFixture(t, 256*1024*1024)

	_, err := f.dep.Deploy(context.Background(), Request{TemplateID: "mysql"})
	assert.Equal(t, core.InsufficientResources, core.KindOf(err))
	assert.Empty(t, f.fake.Calls(), "nothing pulled")

	_, ok := f.reg.Deployment("mysql")
	assert.False(t, ok)
}

func TestDeploy_NameCollisionWithLiveContainer(t *testing.T) {
	f := newFixture(t, 8*gib)
	f.fake.AddContainer("redis", "redis:7", model.ContainerExited)

	_, err := f.dep.Deploy(context.Background(), Request{TemplateID: "redis"})
	assert.Equal(t, core.AlreadyExists, core.KindOf(err))

	_, err = f.dep.Deploy(context.Background(), Request{TemplateID: "redis", Name: "redis-2"})
	assert.NoError(t, err)
}

func TestDeploy_NameCollisionInFlight(t *testing.T) {
	f := newFixture(t, 8*gib)
	release, err := f.reg.ReserveName("grafana")
	require.NoError(t, err)
	defer release()

	_, err = f.dep.Deploy(context.Background(), Request{TemplateID: "grafana"})
	assert.Equal(t, core.AlreadyExists, core.KindOf(err))
}

func TestDeploy_StartFailureRollsBack(t *testing.T) {
	f := newFixture(t, 8*gib)
	f.fake.Fail["start"] = errors.New("port is already allocated")

	op, err := f.dep.Deploy(context.Background(), Request{TemplateID: "nginx"})
	require.NoError(t, err)
	done := f.wait(t, op)
	assert.Equal(t, model.StatusFailed, done.State)
	assert.Contains(t, done.Error, "port is already allocated")

	list, _ := f.fake.ListContainers(context.Background())
	assert.Empty(t, list, "created container removed")
	imgs, _ := f.fake.ListImages(context.Background())
	assert.Len(t, imgs, 1, "image layers kept")

	_, ok := f.reg.Deployment("nginx")
	assert.False(t, ok)

	// The name is free again.
	delete(f.fake.Fail, "start")
	op, err = f.dep.Deploy(context.Background(), Request{TemplateID: "nginx"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSucceeded, f.wait(t, op).State)
}

func TestDeploy_PullFailureLeavesNothing(t *testing.T) {
	f := newFixture(t, 8*gib)
	f.fake.Fail["pull"] = errors.New("manifest unknown")

	op, err := f.dep.Deploy(context.Background(), Request{TemplateID: "adminer"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, f.wait(t, op).State)
	assert.NotContains(t, f.fake.Calls(), "create adminer")
}

func TestMergeEnv(t *testing.T) {
	defaults := map[string]string{"A": "1", "B": "2"}
	env := MergeEnv(defaults, map[string]string{"B": "x", "C": "3"})
	assert.Equal(t, map[string]string{"A": "1", "B": "x", "C": "3"}, env)
	assert.Equal(t, "2", defaults["B"], "defaults not mutated")

	assert.Equal(t, map[string]string{"K": "v"}, MergeEnv(nil, map[string]string{"K": "v"}))
}

func TestTemplates_Filtering(t *testing.T) {
	tpls := NewTemplates(catalog.Default().Templates)

	dbs := tpls.List("database", "")
	require.NotEmpty(t, dbs)
	for _, tpl := range dbs {
		assert.Equal(t, "Database", tpl.Category)
	}

	found := tpls.List("", "S3")
	require.Len(t, found, 1)
	assert.Equal(t, "minio", found[0].ID)

	assert.Empty(t, tpls.List("Database", "grafana"))
	assert.Len(t, tpls.List("", ""), len(catalog.Default().Templates))

	cats := tpls.Categories()
	total := 0
	for i, c := range cats {
		if i > 0 {
			assert.Less(t, cats[i-1].Name, c.Name)
		}
		total += c.Count
	}
	assert.Equal(t, len(catalog.Default().Templates), total)
}
