package registry

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/edvin/panel/internal/catalog"
	"github.com/edvin/panel/internal/configfile"
	"github.com/edvin/panel/internal/core"
	"github.com/edvin/panel/internal/model"
)

type entry struct {
	svc     model.ManagedService
	def     catalog.ServiceDef
	options []model.ConfigOption
	values  map[string]string
}

// Registry is the single source of truth for ManagedService state and for
// the containers deployed from templates. Every accessor returns copies, and
// every write goes through one lock so readers always observe the latest
// completed write.
type Registry struct {
	mu          sync.RWMutex
	order       []string
	services    map[string]*entry
	deployments map[string]model.Deployment
	reserved    map[string]bool
	removing    map[string]bool
	files       configfile.Files
}

// New bootstraps a registry from the catalog. All services start
// uninstalled and stopped.
func New(cat *catalog.Catalog) (*Registry, error) {
	r := &Registry{
		services:    make(map[string]*entry, len(cat.Services)),
		deployments: make(map[string]model.Deployment),
		reserved:    make(map[string]bool),
		removing:    make(map[string]bool),
	}

	for _, def := range cat.Services {
		if _, dup := r.services[def.ID]; dup {
			return nil, fmt.Errorf("duplicate service %s", def.ID)
		}
		e := &entry{
			def:    def,
			values: make(map[string]string),
			svc: model.ManagedService{
				ID:                def.ID,
				Name:              def.Name,
				Type:              def.Type,
				Description:       def.Description,
				AvailableVersions: slices.Clone(def.Versions),
				InstalledVersions: []string{},
				MultiVersion:      def.MultiVersion,
				Port:              def.Port,
				ConfigPath:        def.ConfigPath,
				Unit:              def.Unit,
			},
		}
		for _, od := range def.Options {
			opt, err := model.NewOption(od)
			if err != nil {
				return nil, fmt.Errorf("service %s: %w", def.ID, err)
			}
			e.options = append(e.options, opt)
		}
		r.services[def.ID] = e
		r.order = append(r.order, def.ID)
	}

	return r, nil
}

// UseConfigFiles backs the options of services with a config path by their
// config file: current values are read from it and SetConfig rewrites it.
// Options that select another service's version stay in the registry.
func (r *Registry) UseConfigFiles(f configfile.Files) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = f
}

// List returns all services, optionally filtered by type, in catalog order.
func (r *Registry) List(typ model.ServiceType) []model.ManagedService {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.ManagedService, 0, len(r.order))
	for _, id := range r.order {
		e := r.services[id]
		if typ != "" && e.svc.Type != typ {
			continue
		}
		out = append(out, e.svc.Clone())
	}
	return out
}

// Get returns the service with the given id.
func (r *Registry) Get(id string) (model.ManagedService, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.services[id]
	if !ok {
		return model.ManagedService{}, core.Errorf(core.NotFound, "service %s not found", id)
	}
	return e.svc.Clone(), nil
}

// Definition returns the catalog entry the service was bootstrapped from.
func (r *Registry) Definition(id string) (catalog.ServiceDef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.services[id]
	if !ok {
		return catalog.ServiceDef{}, core.Errorf(core.NotFound, "service %s not found", id)
	}
	return e.def, nil
}

// Update applies fn to a copy of the service and stores the result if fn
// succeeds and the result keeps the registry invariants. Nothing is written
// when fn returns an error.
func (r *Registry) Update(id string, fn func(*model.ManagedService) error) (model.ManagedService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.services[id]
	if !ok {
		return model.ManagedService{}, core.Errorf(core.NotFound, "service %s not found", id)
	}

	next := e.svc.Clone()
	if err := fn(&next); err != nil {
		return e.svc.Clone(), err
	}
	if err := next.CheckInvariants(); err != nil {
		return e.svc.Clone(), core.Wrap(core.InternalError, err, "rejected registry write")
	}

	e.svc = next
	return next.Clone(), nil
}

// ConfigOptions describes the config set of a service with current values.
func (r *Registry) ConfigOptions(id string) ([]model.OptionView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.services[id]
	if !ok {
		return nil, core.Errorf(core.NotFound, "service %s not found", id)
	}
	current, err := r.currentLocked(e)
	if err != nil {
		return nil, err
	}

	views := make([]model.OptionView, 0, len(e.options))
	for _, opt := range e.options {
		key := opt.Base().Key
		var cur *string
		if v, ok := current[key]; ok {
			cur = &v
		}
		view := model.DescribeOption(r.resolveLocked(opt), cur)
		views = append(views, view)
	}
	return views, nil
}

// SetConfig validates every value against its option before applying any of
// them. File-backed values are written to the config file before the
// registry changes; a failed write changes nothing but the service's last
// error. Changing an option that requires a restart marks the service as
// pending restart.
func (r *Registry) SetConfig(id string, values map[string]string) (model.ManagedService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.services[id]
	if !ok {
		return model.ManagedService{}, core.Errorf(core.NotFound, "service %s not found", id)
	}
	if !e.svc.Installed {
		return model.ManagedService{}, core.Errorf(core.NotInstalled, "service %s is not installed", id)
	}
	if len(values) == 0 {
		return model.ManagedService{}, core.Errorf(core.InvalidInput, "no config values given")
	}

	byKey := make(map[string]model.ConfigOption, len(e.options))
	for _, opt := range e.options {
		byKey[opt.Base().Key] = r.resolveLocked(opt)
	}

	normalized := make(map[string]string, len(values))
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		opt, ok := byKey[k]
		if !ok {
			return model.ManagedService{}, core.Errorf(core.InvalidInput, "unknown config option %s for service %s", k, id)
		}
		v, err := opt.Normalize(values[k])
		if err != nil {
			return model.ManagedService{}, core.Wrap(core.InvalidInput, err, "invalid config value")
		}
		if ref := opt.Base().References; ref != "" && r.removing[removalKey(ref, v)] {
			return model.ManagedService{}, core.Errorf(core.Conflict, "%s %s is being removed", ref, v)
		}
		normalized[k] = v
	}

	current, err := r.currentLocked(e)
	if err != nil {
		return model.ManagedService{}, err
	}

	if r.fileBacked(e) {
		toFile := make(map[string]string, len(normalized))
		for k, v := range normalized {
			if byKey[k].Base().References == "" {
				toFile[k] = v
			}
		}
		if len(toFile) > 0 {
			path := e.svc.ConfigPathFor(e.svc.InstalledVersion)
			if err := r.files.Write(path, e.def.ConfigFormat, toFile); err != nil {
				e.svc.LastError = fmt.Sprintf("write config %s: %v", path, err)
				return e.svc.Clone(), core.Wrap(core.InternalError, err, "write config of %s", id)
			}
		}
	}

	for k, v := range normalized {
		prev, had := current[k]
		e.values[k] = v
		if had && prev == v {
			continue
		}
		if !had && v == byKey[k].DefaultValue() {
			continue
		}
		if byKey[k].Base().RestartRequired {
			e.svc.PendingRestart = true
		}
	}
	return e.svc.Clone(), nil
}

// ConfigValue returns the current value of key, falling back to the default.
func (r *Registry) ConfigValue(id, key string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.services[id]
	if !ok {
		return "", core.Errorf(core.NotFound, "service %s not found", id)
	}
	current, err := r.currentLocked(e)
	if err != nil {
		return "", err
	}
	if v, ok := current[key]; ok {
		return v, nil
	}
	for _, opt := range e.options {
		if opt.Base().Key == key {
			return opt.DefaultValue(), nil
		}
	}
	return "", core.Errorf(core.NotFound, "config option %s not found for service %s", key, id)
}

// References lists the dependents of the given version of serviceID: the
// services whose config selects it and the deployed containers pinned to it.
func (r *Registry) References(serviceID, version string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.referencesLocked(serviceID, version)
}

// BeginRemoval checks that version of id may be removed and refuses new
// references to it until the returned release func is called. The default
// version cannot be removed while it has dependents.
func (r *Registry) BeginRemoval(id, version string) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.services[id]
	if !ok {
		return nil, core.Errorf(core.NotFound, "service %s not found", id)
	}
	if !e.svc.HasInstalledVersion(version) {
		return nil, core.Errorf(core.NotInstalled, "version %s of %s is not installed", version, id)
	}
	if version == e.svc.InstalledVersion {
		if refs := r.referencesLocked(id, version); len(refs) > 0 {
			return nil, core.Errorf(core.InUse,
				"%s %s is the default version and is used by %s", id, version, strings.Join(refs, ", "))
		}
	}

	key := removalKey(id, version)
	if r.removing[key] {
		return nil, core.Errorf(core.Busy, "%s %s is already being removed", id, version)
	}
	r.removing[key] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.removing, key)
			r.mu.Unlock()
		})
	}, nil
}

func (r *Registry) referencesLocked(serviceID, version string) []string {
	var refs []string
	for _, id := range r.order {
		if id == serviceID {
			continue
		}
		e := r.services[id]
		for _, opt := range e.options {
			b := opt.Base()
			if b.References != serviceID {
				continue
			}
			if v, ok := e.values[b.Key]; ok && v == version {
				refs = append(refs, id)
				break
			}
		}
	}

	names := slices.Sorted(maps.Keys(r.deployments))
	for _, name := range names {
		for _, ref := range r.deployments[name].Requires {
			if ref.Service == serviceID && ref.Version == version {
				refs = append(refs, "container "+name)
				break
			}
		}
	}
	return refs
}

// currentLocked returns the current option values of e. File-backed values
// come from the config file of the default version.
func (r *Registry) currentLocked(e *entry) (map[string]string, error) {
	current := maps.Clone(e.values)
	if !r.fileBacked(e) {
		return current, nil
	}

	path := e.svc.ConfigPathFor(e.svc.InstalledVersion)
	fromFile, err := r.files.Read(path, e.def.ConfigFormat)
	if err != nil {
		return nil, core.Wrap(core.Unavailable, err, "read config of %s", e.svc.ID)
	}
	for _, opt := range e.options {
		b := opt.Base()
		if b.References != "" {
			continue
		}
		if v, ok := fromFile[b.Key]; ok {
			current[b.Key] = v
		}
	}
	return current, nil
}

func (r *Registry) fileBacked(e *entry) bool {
	return r.files != nil && e.def.ConfigPath != "" && e.svc.Installed
}

func removalKey(id, version string) string {
	return id + "@" + version
}

// resolveLocked fills in the choices of a select option that references
// another service: its installed versions.
func (r *Registry) resolveLocked(opt model.ConfigOption) model.ConfigOption {
	sel, ok := opt.(model.SelectOption)
	if !ok || sel.References == "" || len(sel.Options) > 0 {
		return opt
	}
	if ref, ok := r.services[sel.References]; ok {
		sel.Options = slices.Clone(ref.svc.InstalledVersions)
	}
	return sel
}
