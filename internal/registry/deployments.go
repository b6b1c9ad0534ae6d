package registry

import (
	"maps"
	"slices"
	"sort"

	"github.com/edvin/panel/internal/core"
	"github.com/edvin/panel/internal/model"
)

// ReserveName claims a container name for an in-flight deployment. The
// returned release func must be called once the deployment is recorded or
// abandoned.
func (r *Registry) ReserveName(name string) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.reserved[name] {
		return nil, core.Errorf(core.AlreadyExists, "container name %s is being deployed", name)
	}
	if _, ok := r.deployments[name]; ok {
		return nil, core.Errorf(core.AlreadyExists, "container %s already exists", name)
	}
	r.reserved[name] = true

	var once bool
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if !once {
			delete(r.reserved, name)
			once = true
		}
	}, nil
}

// RecordDeployment stores a deployed container and pins it to the current
// default version of every installed service in requires. A pinned version
// cannot be uninstalled while it is the default. Versions being removed are
// not pinned.
func (r *Registry) RecordDeployment(d model.Deployment, requires ...string) model.Deployment {
	r.mu.Lock()
	defer r.mu.Unlock()

	d.Env = maps.Clone(d.Env)
	d.Requires = nil
	for _, id := range requires {
		e, ok := r.services[id]
		if !ok || !e.svc.Installed || r.removing[removalKey(id, e.svc.InstalledVersion)] {
			continue
		}
		d.Requires = append(d.Requires, model.ServiceRef{Service: id, Version: e.svc.InstalledVersion})
	}
	r.deployments[d.Name] = d
	return cloneDeployment(d)
}

func cloneDeployment(d model.Deployment) model.Deployment {
	d.Env = maps.Clone(d.Env)
	d.Requires = slices.Clone(d.Requires)
	return d
}

// ForgetContainer drops the deployment record matching a container id or name.
func (r *Registry) ForgetContainer(idOrName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, d := range r.deployments {
		if name == idOrName || d.ContainerID == idOrName {
			delete(r.deployments, name)
		}
	}
}

// Deployment returns the record for the named container.
func (r *Registry) Deployment(name string) (model.Deployment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.deployments[name]
	if ok {
		d = cloneDeployment(d)
	}
	return d, ok
}

// Deployments returns all deployment records sorted by name.
func (r *Registry) Deployments() []model.Deployment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Deployment, 0, len(r.deployments))
	for _, d := range r.deployments {
		out = append(out, cloneDeployment(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
