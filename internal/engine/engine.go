package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/panel/internal/activity"
	"github.com/edvin/panel/internal/core"
	"github.com/edvin/panel/internal/metrics"
	"github.com/edvin/panel/internal/model"
	"github.com/edvin/panel/internal/registry"
)

const (
	DefaultActionTimeout = 30 * time.Second
	DefaultLogTail       = 100
	MaxLogTail           = 10000
)

var (
	volumeNameRe  = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{0,127}$`)
	networkNameRe = volumeNameRe
)

// Networks the engine creates itself; they cannot be removed.
var builtinNetworks = map[string]bool{"bridge": true, "host": true, "none": true}

// Engine is the container surface exposed to the API. Lifecycle actions on
// one container are serialised and bounded by a timeout; a timed out action
// reports Timeout rather than a guessed state.
type Engine struct {
	backend Backend
	reg     *registry.Registry
	feed    activity.Recorder
	logger  zerolog.Logger
	timeout time.Duration

	locks sync.Map
}

func New(backend Backend, reg *registry.Registry, feed activity.Recorder, logger zerolog.Logger) *Engine {
	return &Engine{
		backend: backend,
		reg:     reg,
		feed:    feed,
		logger:  logger.With().Str("component", "engine").Logger(),
		timeout: DefaultActionTimeout,
	}
}

// Backend returns the raw engine API for components that create containers.
func (e *Engine) Backend() Backend {
	return e.backend
}

func (e *Engine) lockContainer(id string) func() {
	mu, _ := e.locks.LoadOrStore(id, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	return mu.(*sync.Mutex).Unlock
}

func (e *Engine) Ping(ctx context.Context) error {
	return e.backend.Ping(ctx)
}

// ListContainers returns every container, running or not, sorted by name.
func (e *Engine) ListContainers(ctx context.Context) ([]model.Container, error) {
	list, err := e.backend.ListContainers(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (e *Engine) ListImages(ctx context.Context) ([]model.Image, error) {
	return e.backend.ListImages(ctx)
}

func (e *Engine) ListVolumes(ctx context.Context) ([]model.Volume, error) {
	list, err := e.backend.ListVolumes(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (e *Engine) Inspect(ctx context.Context, id string) (model.Container, error) {
	return e.backend.Inspect(ctx, id)
}

func (e *Engine) Start(ctx context.Context, id string) (model.Container, error) {
	return e.act(ctx, "start", id, e.backend.Start)
}

func (e *Engine) Stop(ctx context.Context, id string) (model.Container, error) {
	return e.act(ctx, "stop", id, e.backend.Stop)
}

func (e *Engine) Restart(ctx context.Context, id string) (model.Container, error) {
	return e.act(ctx, "restart", id, e.backend.Restart)
}

// act runs a lifecycle action and reports the state observed afterwards.
func (e *Engine) act(ctx context.Context, act, id string, fn func(context.Context, string) error) (model.Container, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	c, err := e.backend.Inspect(ctx, id)
	if err != nil {
		return c, e.timedOut(ctx, err, act, id)
	}

	unlock := e.lockContainer(c.ID)
	defer unlock()

	err = fn(ctx, c.ID)
	if err == nil {
		var observed model.Container
		observed, err = e.backend.Inspect(ctx, c.ID)
		if err == nil {
			c = observed
		}
	}
	err = e.timedOut(ctx, err, act, id)
	e.record(ctx, act, c.Name, err)
	if err != nil {
		e.logger.Error().Err(err).Str("container", id).Msgf("%s failed", act)
	}
	return c, err
}

func (e *Engine) timedOut(ctx context.Context, err error, act, id string) error {
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return core.Wrap(core.Timeout, err, "%s %s: timeout observing outcome", act, id)
	}
	return err
}

// Remove deletes a container. A running container is only removed when force
// is set. Any deployment record for it is dropped.
func (e *Engine) Remove(ctx context.Context, id string, force bool) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	c, err := e.backend.Inspect(ctx, id)
	if err != nil {
		return e.timedOut(ctx, err, "remove", id)
	}

	unlock := e.lockContainer(c.ID)
	defer unlock()

	if !force && model.ContainerActive(c.State) {
		return core.Errorf(core.ContainerRunning, "container %s is %s; stop it or use force", c.Name, c.State)
	}

	err = e.timedOut(ctx, e.backend.Remove(ctx, c.ID, force), "remove", id)
	if err == nil {
		e.reg.ForgetContainer(c.ID)
		e.reg.ForgetContainer(c.Name)
		e.locks.Delete(c.ID)
	}
	e.record(ctx, "remove", c.Name, err)
	return err
}

// Logs returns the last tail lines of the container's output. tail defaults
// to DefaultLogTail and is capped at MaxLogTail.
func (e *Engine) Logs(ctx context.Context, id string, tail int) (string, error) {
	switch {
	case tail <= 0:
		tail = DefaultLogTail
	case tail > MaxLogTail:
		tail = MaxLogTail
	}
	return e.backend.Logs(ctx, id, tail)
}

// Stats samples the container's resource use once.
func (e *Engine) Stats(ctx context.Context, id string) (model.ContainerStats, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	st, err := e.backend.Stats(ctx, id)
	return st, e.timedOut(ctx, err, "stats", id)
}

func (e *Engine) RemoveImage(ctx context.Context, id string, force bool) error {
	err := e.backend.RemoveImage(ctx, id, force)
	e.record(ctx, "remove image", id, err)
	return err
}

func (e *Engine) CreateVolume(ctx context.Context, name string) (model.Volume, error) {
	if !volumeNameRe.MatchString(name) {
		return model.Volume{}, core.Errorf(core.InvalidInput, "invalid volume name %q", name)
	}
	v, err := e.backend.CreateVolume(ctx, name)
	e.record(ctx, "create volume", name, err)
	return v, err
}

func (e *Engine) RemoveVolume(ctx context.Context, name string, force bool) error {
	err := e.backend.RemoveVolume(ctx, name, force)
	e.record(ctx, "remove volume", name, err)
	return err
}

func (e *Engine) ListNetworks(ctx context.Context) ([]model.Network, error) {
	list, err := e.backend.ListNetworks(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

// CreateNetwork creates a network with the given driver (bridge when empty).
func (e *Engine) CreateNetwork(ctx context.Context, name, driver string, internal bool) (model.Network, error) {
	if !networkNameRe.MatchString(name) {
		return model.Network{}, core.Errorf(core.InvalidInput, "invalid network name %q", name)
	}
	if builtinNetworks[name] {
		return model.Network{}, core.Errorf(core.AlreadyExists, "network %s is predefined", name)
	}
	if driver == "" {
		driver = "bridge"
	}
	n, err := e.backend.CreateNetwork(ctx, name, driver, internal)
	e.record(ctx, "create network", name, err)
	return n, err
}

func (e *Engine) RemoveNetwork(ctx context.Context, id string) error {
	if builtinNetworks[id] {
		return core.Errorf(core.InvalidInput, "network %s is predefined and cannot be removed", id)
	}
	err := e.backend.RemoveNetwork(ctx, id)
	e.record(ctx, "remove network", id, err)
	return err
}

// ConnectNetwork attaches a container to a network. It is serialised with
// the container's lifecycle actions.
func (e *Engine) ConnectNetwork(ctx context.Context, network, id string) (model.Container, error) {
	return e.act(ctx, "connect network", id, func(ctx context.Context, cid string) error {
		return e.backend.ConnectNetwork(ctx, network, cid)
	})
}

func (e *Engine) DisconnectNetwork(ctx context.Context, network, id string, force bool) (model.Container, error) {
	return e.act(ctx, "disconnect network", id, func(ctx context.Context, cid string) error {
		return e.backend.DisconnectNetwork(ctx, network, cid, force)
	})
}

func (e *Engine) record(ctx context.Context, act, target string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.ContainerActionsTotal.WithLabelValues(act, result).Inc()

	title := fmt.Sprintf("Container %s: %s", act, target)
	var desc string
	if err != nil {
		desc = err.Error()
	}
	e.feed.Record(ctx, model.Activity{
		Type:        model.ActivityDeploy,
		Title:       title,
		Description: desc,
		Status:      activity.Outcome(err),
		Metadata:    map[string]string{"target": target, "action": act},
	})
}
