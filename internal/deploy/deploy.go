// Package deploy turns application templates into running containers.
package deploy

import (
	"context"
	"fmt"
	"maps"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/edvin/panel/internal/activity"
	"github.com/edvin/panel/internal/catalog"
	"github.com/edvin/panel/internal/core"
	"github.com/edvin/panel/internal/engine"
	"github.com/edvin/panel/internal/model"
	"github.com/edvin/panel/internal/ops"
	"github.com/edvin/panel/internal/registry"
)

// LabelTemplate records which template a container came from.
const LabelTemplate = "panel.template"

var nameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{0,62}$`)

// MemoryProbe reports the host memory available to new containers, in bytes.
type MemoryProbe func(ctx context.Context) (uint64, error)

// HostMemory reads available memory from the kernel.
func HostMemory(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("read host memory: %w", err)
	}
	return vm.Available, nil
}

// Request is a deployment ask. Name defaults to the template id.
type Request struct {
	TemplateID string
	Name       string
	Env        map[string]string
}

// Deployer validates deployment requests and runs them as operations.
type Deployer struct {
	templates *Templates
	backend   engine.Backend
	reg       *registry.Registry
	ops       *ops.Tracker
	feed      activity.Recorder
	memory    MemoryProbe
	logger    zerolog.Logger
	now       func() time.Time
}

func New(templates *Templates, backend engine.Backend, reg *registry.Registry, tracker *ops.Tracker, feed activity.Recorder, memory MemoryProbe, logger zerolog.Logger) *Deployer {
	if memory == nil {
		memory = HostMemory
	}
	return &Deployer{
		templates: templates,
		backend:   backend,
		reg:       reg,
		ops:       tracker,
		feed:      feed,
		memory:    memory,
		logger:    logger.With().Str("component", "deploy").Logger(),
		now:       time.Now,
	}
}

func (d *Deployer) Templates() *Templates {
	return d.templates
}

// plan is a validated deployment ready to run.
type plan struct {
	tpl   model.AppTemplate
	name  string
	env   map[string]string
	ports []model.PortMapping
}

// Deploy validates the request synchronously and, if it passes, starts the
// pull/create/start sequence as an operation. The returned operation's
// result is the model.Deployment on success.
func (d *Deployer) Deploy(ctx context.Context, req Request) (model.Operation, error) {
	p, err := d.plan(req)
	if err != nil {
		return model.Operation{}, err
	}

	if p.tpl.MinMemory > 0 {
		avail, err := d.memory(ctx)
		if err != nil {
			return model.Operation{}, core.Wrap(core.InternalError, err, "check memory for %s", p.tpl.ID)
		}
		need := uint64(p.tpl.MinMemory) * 1024 * 1024
		if avail < need {
			return model.Operation{}, core.Errorf(core.InsufficientResources,
				"template %s needs %d MB, %d MB available", p.tpl.ID, p.tpl.MinMemory, avail/(1024*1024))
		}
	}

	release, err := d.reg.ReserveName(p.name)
	if err != nil {
		return model.Operation{}, err
	}
	if err := d.checkLiveName(ctx, p.name); err != nil {
		release()
		return model.Operation{}, err
	}

	actor := activity.ActorFrom(ctx)
	op := d.ops.Submit(ops.Job{
		Kind:   model.OpDeploy,
		Target: p.name,
		Actor:  actor,
		Run: func(ctx context.Context, progress func(int)) (any, error) {
			return d.run(activity.WithActor(ctx, actor), p, progress)
		},
		Done: func(model.Operation) { release() },
	})
	return op, nil
}

func (d *Deployer) plan(req Request) (plan, error) {
	tpl, err := d.templates.Get(req.TemplateID)
	if err != nil {
		return plan{}, err
	}

	name := req.Name
	if name == "" {
		name = tpl.ID
	}
	if !nameRe.MatchString(name) {
		return plan{}, core.Errorf(core.InvalidInput, "invalid container name %q", name)
	}

	env := MergeEnv(tpl.Environment, req.Env)

	ports := make([]model.PortMapping, 0, len(tpl.Ports))
	for _, s := range tpl.Ports {
		pm, err := catalog.ParsePort(s)
		if err != nil {
			return plan{}, core.Wrap(core.InvalidInput, err, "template %s", tpl.ID)
		}
		ports = append(ports, pm)
	}
	return plan{tpl: tpl, name: name, env: env, ports: ports}, nil
}

// MergeEnv overlays overrides on the template defaults key by key.
func MergeEnv(defaults, overrides map[string]string) map[string]string {
	env := maps.Clone(defaults)
	if env == nil {
		env = make(map[string]string, len(overrides))
	}
	maps.Copy(env, overrides)
	return env
}

func (d *Deployer) checkLiveName(ctx context.Context, name string) error {
	list, err := d.backend.ListContainers(ctx)
	if err != nil {
		return core.Wrap(core.Unavailable, err, "list containers")
	}
	for _, c := range list {
		if c.Name == name {
			return core.Errorf(core.AlreadyExists, "container %s already exists", name)
		}
	}
	return nil
}

func (d *Deployer) run(ctx context.Context, p plan, progress func(int)) (result any, err error) {
	log := d.logger.With().Str("template", p.tpl.ID).Str("container", p.name).Logger()
	defer func() {
		title := fmt.Sprintf("Deployed %s from %s", p.name, p.tpl.Name)
		var desc string
		if err != nil {
			title = fmt.Sprintf("Failed to deploy %s from %s", p.name, p.tpl.Name)
			desc = err.Error()
		}
		d.feed.Record(ctx, model.Activity{
			Type:        model.ActivityDeploy,
			Title:       title,
			Description: desc,
			Status:      activity.Outcome(err),
			Metadata:    map[string]string{"template": p.tpl.ID, "container": p.name, "image": p.tpl.Image},
		})
	}()

	log.Info().Str("image", p.tpl.Image).Msg("pulling image")
	progress(5)
	if err := d.backend.PullImage(ctx, p.tpl.Image); err != nil {
		return nil, fmt.Errorf("pull %s: %w", p.tpl.Image, err)
	}
	progress(50)

	id, err := d.backend.Create(ctx, model.ContainerSpec{
		Name:    p.name,
		Image:   p.tpl.Image,
		Env:     p.env,
		Ports:   p.ports,
		Volumes: p.tpl.Volumes,
		Labels:  map[string]string{engine.LabelManaged: "true", LabelTemplate: p.tpl.ID},
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", p.name, err)
	}
	progress(75)

	if err := d.backend.Start(ctx, id); err != nil {
		d.rollback(id, log)
		return nil, fmt.Errorf("start %s: %w", p.name, err)
	}
	// A cancelled operation must not leave a container behind either.
	if ctx.Err() != nil {
		d.rollback(id, log)
		return nil, ctx.Err()
	}

	dep := model.Deployment{
		ContainerID: id,
		Name:        p.name,
		TemplateID:  p.tpl.ID,
		Image:       p.tpl.Image,
		Env:         p.env,
		CreatedAt:   d.now(),
	}
	dep = d.reg.RecordDeployment(dep, p.tpl.Requires...)
	progress(100)
	log.Info().Str("container_id", id).Msg("deployed")
	return dep, nil
}

// rollback removes a container created by a failed deployment. Pulled image
// layers are kept.
func (d *Deployer) rollback(id string, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), engine.DefaultActionTimeout)
	defer cancel()
	if err := d.backend.Remove(ctx, id, true); err != nil {
		log.Error().Err(err).Str("container_id", id).Msg("rollback: remove container failed")
	}
}
