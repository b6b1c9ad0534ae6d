package installer

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/edvin/panel/internal/activity"
	"github.com/edvin/panel/internal/core"
	"github.com/edvin/panel/internal/hostexec"
	"github.com/edvin/panel/internal/model"
	"github.com/edvin/panel/internal/ops"
	"github.com/edvin/panel/internal/registry"
)

// Controller stops a running service version before it is removed and
// restarts one after its extensions change.
type Controller interface {
	Stop(ctx context.Context, id, version string) (model.ManagedService, error)
	Restart(ctx context.Context, id, version string) (model.ManagedService, error)
}

// Installer installs and removes service versions as tracked operations.
// At most one install or uninstall runs per service at a time.
type Installer struct {
	reg     *registry.Registry
	pm      PackageManager
	ops     *ops.Tracker
	ctl     Controller
	ext     ExtensionTool
	feed    activity.Recorder
	logger  zerolog.Logger

	mu   sync.Mutex
	busy map[string]bool
}

func New(reg *registry.Registry, pm PackageManager, ext ExtensionTool, tracker *ops.Tracker, ctl Controller, feed activity.Recorder, logger zerolog.Logger) *Installer {
	return &Installer{
		reg:     reg,
		pm:      pm,
		ext:     ext,
		ops:     tracker,
		ctl:     ctl,
		feed:    feed,
		logger:  logger.With().Str("component", "installer").Logger(),
		busy:    make(map[string]bool),
	}
}

// claim marks id busy. The returned release func must be called when the
// operation is finished.
func (in *Installer) claim(id string) (func(), error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.busy[id] {
		return nil, core.Errorf(core.Busy, "another install or uninstall of %s is in progress", id)
	}
	in.busy[id] = true
	return func() {
		in.mu.Lock()
		delete(in.busy, id)
		in.mu.Unlock()
	}, nil
}

// Install accepts an install of version (the newest available when empty).
// Installing a version that is already installed succeeds immediately
// without touching the package manager.
func (in *Installer) Install(ctx context.Context, id, version string) (model.Operation, error) {
	svc, err := in.reg.Get(id)
	if err != nil {
		return model.Operation{}, err
	}
	if version == "" && len(svc.AvailableVersions) > 0 {
		version = svc.AvailableVersions[0]
	}
	if !svc.HasVersion(version) {
		return model.Operation{}, core.Errorf(core.InvalidInput,
			"version %s of %s is not available (available: %s)", version, id, strings.Join(svc.AvailableVersions, ", "))
	}

	release, err := in.claim(id)
	if err != nil {
		return model.Operation{}, err
	}

	actor := activity.ActorFrom(ctx)
	target := id + "@" + version

	// Re-read under the claim so a just-finished install is seen.
	svc, err = in.reg.Get(id)
	if err != nil {
		release()
		return model.Operation{}, err
	}
	if svc.HasInstalledVersion(version) {
		release()
		return in.ops.Completed(model.OpInstall, target, actor, svc), nil
	}

	op := in.ops.Submit(ops.Job{
		Kind:   model.OpInstall,
		Target: target,
		Actor:  actor,
		Run: func(ctx context.Context, progress func(int)) (any, error) {
			return in.runInstall(activity.WithActor(ctx, actor), id, version, progress)
		},
		Done: func(model.Operation) { release() },
	})
	return op, nil
}

func (in *Installer) runInstall(ctx context.Context, id, version string, progress func(int)) (any, error) {
	def, err := in.reg.Definition(id)
	if err != nil {
		return nil, err
	}
	pkgs := def.PackagesFor(version)
	progress(10)

	in.logger.Info().Str("service", id).Str("version", version).Strs("packages", pkgs).Msg("installing")
	err = in.pm.Install(ctx, pkgs)
	if ctx.Err() != nil {
		// Aborted: the registry keeps its prior state.
		return nil, ctx.Err()
	}
	if err != nil {
		in.fail(ctx, id, version, "Install", err)
		return nil, fmt.Errorf("install %s %s: %s", id, version, hostexec.Output(err))
	}
	progress(80)

	svc, err := in.reg.Update(id, func(s *model.ManagedService) error {
		if s.MultiVersion {
			if !s.HasInstalledVersion(version) {
				s.InstalledVersions = append(s.InstalledVersions, version)
				sortByAvailability(s.InstalledVersions, s.AvailableVersions)
			}
			if s.InstalledVersion == "" {
				s.InstalledVersion = version
			}
		} else {
			s.InstalledVersions = []string{version}
			s.InstalledVersion = version
			s.RunningVersions = slices.DeleteFunc(s.RunningVersions, func(v string) bool { return v != version })
			s.Running = len(s.RunningVersions) > 0
		}
		s.Installed = true
		s.LastError = ""
		return nil
	})
	if err != nil {
		return nil, err
	}

	in.feed.Record(ctx, model.Activity{
		Type:     model.ActivityInstall,
		Title:    fmt.Sprintf("Installed %s %s", svc.Name, version),
		Status:   model.OutcomeSuccess,
		Metadata: map[string]string{"service": id, "version": version},
	})
	return svc, nil
}

// Uninstall accepts removal of an installed version (the default when
// empty). The default version cannot be removed while a dependent
// references it: another service's config or a deployed container pinned to
// it. The check and the claim happen together so no reference can be added
// while the removal runs.
func (in *Installer) Uninstall(ctx context.Context, id, version string) (model.Operation, error) {
	release, err := in.claim(id)
	if err != nil {
		return model.Operation{}, err
	}

	svc, err := in.reg.Get(id)
	if err != nil {
		release()
		return model.Operation{}, err
	}
	if !svc.Installed {
		release()
		return model.Operation{}, core.Errorf(core.NotInstalled, "service %s is not installed", id)
	}
	if version == "" {
		version = svc.InstalledVersion
	}
	endRemoval, err := in.reg.BeginRemoval(id, version)
	if err != nil {
		release()
		return model.Operation{}, err
	}

	actor := activity.ActorFrom(ctx)
	op := in.ops.Submit(ops.Job{
		Kind:   model.OpUninstall,
		Target: id + "@" + version,
		Actor:  actor,
		Run: func(ctx context.Context, progress func(int)) (any, error) {
			return in.runUninstall(activity.WithActor(ctx, actor), id, version, progress)
		},
		Done: func(model.Operation) {
			endRemoval()
			release()
		},
	})
	return op, nil
}

func (in *Installer) runUninstall(ctx context.Context, id, version string, progress func(int)) (any, error) {
	svc, err := in.reg.Get(id)
	if err != nil {
		return nil, err
	}
	def, err := in.reg.Definition(id)
	if err != nil {
		return nil, err
	}

	if svc.IsRunning(version) && in.ctl != nil {
		if _, err := in.ctl.Stop(ctx, id, version); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("stop %s %s before removal: %w", id, version, err)
		}
	}
	progress(20)

	pkgs := def.PackagesFor(version)
	in.logger.Info().Str("service", id).Str("version", version).Strs("packages", pkgs).Msg("removing")
	err = in.pm.Remove(ctx, pkgs)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		in.fail(ctx, id, version, "Uninstall", err)
		return nil, fmt.Errorf("remove %s %s: %s", id, version, hostexec.Output(err))
	}
	progress(80)

	svc, err = in.reg.Update(id, func(s *model.ManagedService) error {
		s.InstalledVersions = slices.DeleteFunc(s.InstalledVersions, func(v string) bool { return v == version })
		s.SetRunning(version, false)
		if s.InstalledVersion == version {
			s.InstalledVersion = ""
			if len(s.InstalledVersions) > 0 {
				s.InstalledVersion = s.InstalledVersions[0]
			}
		}
		s.Installed = len(s.InstalledVersions) > 0
		if !s.Installed {
			s.PendingRestart = false
		}
		s.LastError = ""
		return nil
	})
	if err != nil {
		return nil, err
	}

	in.feed.Record(ctx, model.Activity{
		Type:     model.ActivityInstall,
		Title:    fmt.Sprintf("Uninstalled %s %s", svc.Name, version),
		Status:   model.OutcomeSuccess,
		Metadata: map[string]string{"service": id, "version": version},
	})
	return svc, nil
}

func (in *Installer) fail(ctx context.Context, id, version, verb string, err error) {
	msg := hostexec.Output(err)
	svc, uerr := in.reg.Update(id, func(s *model.ManagedService) error {
		s.LastError = msg
		return nil
	})
	if uerr != nil {
		in.logger.Error().Err(uerr).Str("service", id).Msg("failed to record install error")
	}
	in.logger.Error().Err(err).Str("service", id).Str("version", version).Msgf("%s failed", strings.ToLower(verb))
	in.feed.Record(ctx, model.Activity{
		Type:        model.ActivityInstall,
		Title:       fmt.Sprintf("%s of %s %s failed", verb, svc.Name, version),
		Description: msg,
		Status:      model.OutcomeFailed,
		Metadata:    map[string]string{"service": id, "version": version},
	})
}

// SetDefault makes an installed version the default.
func (in *Installer) SetDefault(ctx context.Context, id, version string) (model.ManagedService, error) {
	in.mu.Lock()
	busy := in.busy[id]
	in.mu.Unlock()
	if busy {
		return model.ManagedService{}, core.Errorf(core.Busy, "an install or uninstall of %s is in progress", id)
	}

	svc, err := in.reg.Update(id, func(s *model.ManagedService) error {
		if !s.HasInstalledVersion(version) {
			return core.Errorf(core.NotInstalled, "version %s of %s is not installed", version, id)
		}
		s.InstalledVersion = version
		return nil
	})
	if err != nil {
		return svc, err
	}

	in.feed.Record(ctx, model.Activity{
		Type:     model.ActivityConfig,
		Title:    fmt.Sprintf("Default %s version set to %s", svc.Name, version),
		Status:   model.OutcomeSuccess,
		Metadata: map[string]string{"service": id, "version": version},
	})
	return svc, nil
}

// Abort cancels an in-flight install, uninstall or extension install.
func (in *Installer) Abort(id string) (model.Operation, error) {
	op, err := in.ops.Get(id)
	if err != nil {
		return op, err
	}
	if op.Kind != model.OpInstall && op.Kind != model.OpUninstall && op.Kind != model.OpExtension {
		return op, core.Errorf(core.InvalidInput, "operation %s is a %s operation and cannot be aborted", id, op.Kind)
	}
	return in.ops.Cancel(id)
}

// Detect asks the package manager and marks the versions already present
// on the host as installed. It runs once at startup.
func (in *Installer) Detect(ctx context.Context) error {
	for _, svc := range in.reg.List("") {
		def, err := in.reg.Definition(svc.ID)
		if err != nil {
			return err
		}

		var found []string
		if svc.MultiVersion {
			for _, v := range svc.AvailableVersions {
				_, ok, err := in.pm.Installed(ctx, def.PackagesFor(v)[0])
				if err != nil {
					return fmt.Errorf("detect %s %s: %w", svc.ID, v, err)
				}
				if ok {
					found = append(found, v)
				}
			}
		} else {
			pkgVersion, ok, err := in.pm.Installed(ctx, def.PackagesFor(svc.AvailableVersions[0])[0])
			if err != nil {
				return fmt.Errorf("detect %s: %w", svc.ID, err)
			}
			if ok {
				if v := matchVersion(pkgVersion, svc.AvailableVersions); v != "" {
					found = append(found, v)
				} else {
					in.logger.Warn().Str("service", svc.ID).Str("package_version", pkgVersion).
						Msg("installed package version matches no catalog version")
				}
			}
		}

		if len(found) == 0 {
			continue
		}
		if _, err := in.reg.Update(svc.ID, func(s *model.ManagedService) error {
			s.InstalledVersions = found
			s.InstalledVersion = found[0]
			s.Installed = true
			return nil
		}); err != nil {
			return err
		}
		in.logger.Info().Str("service", svc.ID).Strs("versions", found).Msg("detected installed service")
	}
	return nil
}

// matchVersion maps a package version such as "8.0.36-0ubuntu0.22.04.1" to
// the catalog version it belongs to.
func matchVersion(pkgVersion string, available []string) string {
	if _, rest, ok := strings.Cut(pkgVersion, ":"); ok {
		pkgVersion = rest
	}
	for _, v := range available {
		if pkgVersion == v || strings.HasPrefix(pkgVersion, v+".") || strings.HasPrefix(pkgVersion, v+"-") {
			return v
		}
	}
	return ""
}

// sortByAvailability orders versions the way they appear in available.
func sortByAvailability(versions, available []string) {
	slices.SortFunc(versions, func(a, b string) int {
		return slices.Index(available, a) - slices.Index(available, b)
	})
}
