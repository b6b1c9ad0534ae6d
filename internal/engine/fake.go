package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/edvin/panel/internal/core"
	"github.com/edvin/panel/internal/model"
)

// Fake is an in-memory Backend for tests. Fail maps an operation name
// ("pull", "create", "start", "stop", "restart", "remove", ...) to the error
// it returns. When Hang is set, lifecycle actions block until their context
// ends.
type Fake struct {
	mu         sync.Mutex
	containers map[string]*model.Container
	images     map[string]model.Image
	volumes    map[string]model.Volume
	logs       map[string]string
	stats      map[string]model.ContainerStats
	networks   map[string]*model.Network
	calls      []string
	nextID     int

	Fail map[string]error
	Hang bool
}

func NewFake() *Fake {
	return &Fake{
		containers: map[string]*model.Container{},
		images:     map[string]model.Image{},
		volumes:    map[string]model.Volume{},
		logs:       map[string]string{},
		stats:      map[string]model.ContainerStats{},
		networks:   map[string]*model.Network{},
		Fail:       map[string]error{},
	}
}

// AddContainer seeds a container and returns its id.
func (f *Fake) AddContainer(name, image, state string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("c%04d", f.nextID)
	f.containers[id] = &model.Container{ID: id, Name: name, Image: image, State: state, Created: time.Now()}
	return id
}

func (f *Fake) AddImage(id string, tags ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[id] = model.Image{ID: id, Tags: tags}
}

func (f *Fake) SetLogs(id, logs string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs[id] = logs
}

func (f *Fake) SetStats(id string, st model.ContainerStats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats[id] = st
}

// Calls returns "op target" for every call that reached the fake.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *Fake) enter(op, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op+" "+target)
	return f.Fail[op]
}

func (f *Fake) find(idOrName string) *model.Container {
	if c, ok := f.containers[idOrName]; ok {
		return c
	}
	for _, c := range f.containers {
		if c.Name == idOrName {
			return c
		}
	}
	return nil
}

func (f *Fake) Ping(ctx context.Context) error { return f.enter("ping", "") }

func (f *Fake) ListContainers(ctx context.Context) ([]model.Container, error) {
	if err := f.enter("list", "containers"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Container, 0, len(f.containers))
	for _, c := range f.containers {
		out = append(out, *c)
	}
	return out, nil
}

func (f *Fake) ListImages(ctx context.Context) ([]model.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Image, 0, len(f.images))
	for _, img := range f.images {
		out = append(out, img)
	}
	return out, nil
}

func (f *Fake) ListVolumes(ctx context.Context) ([]model.Volume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Volume, 0, len(f.volumes))
	for _, v := range f.volumes {
		out = append(out, v)
	}
	return out, nil
}

func (f *Fake) Inspect(ctx context.Context, id string) (model.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.find(id)
	if c == nil {
		return model.Container{}, core.Errorf(core.NotFound, "no such container: %s", id)
	}
	return *c, nil
}

func (f *Fake) lifecycle(ctx context.Context, op, id, state string) error {
	if err := f.enter(op, id); err != nil {
		return err
	}
	if f.Hang {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.find(id)
	if c == nil {
		return core.Errorf(core.NotFound, "no such container: %s", id)
	}
	c.State = state
	return nil
}

func (f *Fake) Start(ctx context.Context, id string) error {
	return f.lifecycle(ctx, "start", id, model.ContainerRunning)
}

func (f *Fake) Stop(ctx context.Context, id string) error {
	return f.lifecycle(ctx, "stop", id, model.ContainerExited)
}

func (f *Fake) Restart(ctx context.Context, id string) error {
	return f.lifecycle(ctx, "restart", id, model.ContainerRunning)
}

func (f *Fake) Remove(ctx context.Context, id string, force bool) error {
	if err := f.enter("remove", id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.find(id)
	if c == nil {
		return core.Errorf(core.NotFound, "no such container: %s", id)
	}
	delete(f.containers, c.ID)
	return nil
}

// Logs returns the last tail lines of the seeded log text.
func (f *Fake) Logs(ctx context.Context, id string, tail int) (string, error) {
	if err := f.enter("logs", id); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := strings.Split(strings.TrimSuffix(f.logs[id], "\n"), "\n")
	if len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	return strings.Join(lines, "\n"), nil
}

func (f *Fake) PullImage(ctx context.Context, ref string) error {
	if err := f.enter("pull", ref); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[ref] = model.Image{ID: ref, Tags: []string{ref}}
	return nil
}

func (f *Fake) Create(ctx context.Context, spec model.ContainerSpec) (string, error) {
	if err := f.enter("create", spec.Name); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.find(spec.Name) != nil {
		return "", core.Errorf(core.Conflict, "container name %s in use", spec.Name)
	}
	f.nextID++
	id := fmt.Sprintf("c%04d", f.nextID)
	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}
	f.containers[id] = &model.Container{
		ID:      id,
		Name:    spec.Name,
		Image:   spec.Image,
		State:   model.ContainerCreated,
		Ports:   spec.Ports,
		Volumes: spec.Volumes,
		Labels:  spec.Labels,
		Env:     env,
		Created: time.Now(),
	}
	return id, nil
}

func (f *Fake) RemoveImage(ctx context.Context, id string, force bool) error {
	if err := f.enter("remove image", id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.images[id]; !ok {
		return core.Errorf(core.NotFound, "no such image: %s", id)
	}
	delete(f.images, id)
	return nil
}

func (f *Fake) CreateVolume(ctx context.Context, name string) (model.Volume, error) {
	if err := f.enter("create volume", name); err != nil {
		return model.Volume{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v := model.Volume{Name: name, Driver: "local", Mountpoint: "/var/lib/docker/volumes/" + name + "/_data"}
	f.volumes[name] = v
	return v, nil
}

func (f *Fake) RemoveVolume(ctx context.Context, name string, force bool) error {
	if err := f.enter("remove volume", name); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.volumes[name]; !ok {
		return core.Errorf(core.NotFound, "no such volume: %s", name)
	}
	delete(f.volumes, name)
	return nil
}

func (f *Fake) Stats(ctx context.Context, id string) (model.ContainerStats, error) {
	if err := f.enter("stats", id); err != nil {
		return model.ContainerStats{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.find(id)
	if c == nil {
		return model.ContainerStats{}, core.Errorf(core.NotFound, "no such container: %s", id)
	}
	return f.stats[c.ID], nil
}

func (f *Fake) findNetwork(idOrName string) *model.Network {
	if n, ok := f.networks[idOrName]; ok {
		return n
	}
	for _, n := range f.networks {
		if n.Name == idOrName {
			return n
		}
	}
	return nil
}

func (f *Fake) ListNetworks(ctx context.Context) ([]model.Network, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Network, 0, len(f.networks))
	for _, n := range f.networks {
		cp := *n
		cp.Containers = append([]string{}, n.Containers...)
		out = append(out, cp)
	}
	return out, nil
}

func (f *Fake) CreateNetwork(ctx context.Context, name, driver string, internal bool) (model.Network, error) {
	if err := f.enter("create network", name); err != nil {
		return model.Network{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findNetwork(name) != nil {
		return model.Network{}, core.Errorf(core.Conflict, "network with name %s already exists", name)
	}
	f.nextID++
	n := &model.Network{
		ID:         fmt.Sprintf("n%04d", f.nextID),
		Name:       name,
		Driver:     driver,
		Scope:      "local",
		Internal:   internal,
		Containers: []string{},
		Created:    time.Now(),
	}
	f.networks[n.ID] = n
	return *n, nil
}

func (f *Fake) RemoveNetwork(ctx context.Context, id string) error {
	if err := f.enter("remove network", id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.findNetwork(id)
	if n == nil {
		return core.Errorf(core.NotFound, "network %s not found", id)
	}
	if len(n.Containers) > 0 {
		return core.Errorf(core.Conflict, "network %s has active endpoints", n.Name)
	}
	delete(f.networks, n.ID)
	return nil
}

func (f *Fake) ConnectNetwork(ctx context.Context, network, containerID string) error {
	if err := f.enter("connect", network+" "+containerID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.findNetwork(network)
	c := f.find(containerID)
	if n == nil || c == nil {
		return core.Errorf(core.NotFound, "network %s or container %s not found", network, containerID)
	}
	if slices.Contains(n.Containers, c.Name) {
		return core.Errorf(core.Conflict, "container %s is already attached to network %s", c.Name, n.Name)
	}
	n.Containers = append(n.Containers, c.Name)
	c.Networks = append(c.Networks, n.Name)
	return nil
}

func (f *Fake) DisconnectNetwork(ctx context.Context, network, containerID string, force bool) error {
	if err := f.enter("disconnect", network+" "+containerID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.findNetwork(network)
	c := f.find(containerID)
	if n == nil || c == nil {
		return core.Errorf(core.NotFound, "network %s or container %s not found", network, containerID)
	}
	if !slices.Contains(n.Containers, c.Name) {
		return core.Errorf(core.NotFound, "container %s is not attached to network %s", c.Name, n.Name)
	}
	n.Containers = slices.DeleteFunc(n.Containers, func(s string) bool { return s == c.Name })
	c.Networks = slices.DeleteFunc(c.Networks, func(s string) bool { return s == n.Name })
	return nil
}

var _ Backend = (*Fake)(nil)
