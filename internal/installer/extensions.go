package installer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edvin/panel/internal/activity"
	"github.com/edvin/panel/internal/catalog"
	"github.com/edvin/panel/internal/core"
	"github.com/edvin/panel/internal/hostexec"
	"github.com/edvin/panel/internal/model"
	"github.com/edvin/panel/internal/ops"
)

// ExtensionTool inspects and toggles the modules of a runtime version.
type ExtensionTool interface {
	// Loaded returns the lower-cased names of the modules version loads.
	Loaded(ctx context.Context, version string) ([]string, error)
	SetEnabled(ctx context.Context, version, ext string, enabled bool) error
}

// PHPExtensions drives php -m, phpenmod and phpdismod.
type PHPExtensions struct {
	run    hostexec.Runner
	logger zerolog.Logger
}

func NewPHPExtensions(run hostexec.Runner, logger zerolog.Logger) *PHPExtensions {
	return &PHPExtensions{run: run, logger: logger.With().Str("tool", "php-ext").Logger()}
}

func (p *PHPExtensions) Loaded(ctx context.Context, version string) ([]string, error) {
	out, err := p.run.Run(ctx, "php"+version, "-m")
	if err != nil {
		return nil, err
	}
	var mods []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "[") {
			continue
		}
		mods = append(mods, strings.ToLower(line))
	}
	return mods, nil
}

func (p *PHPExtensions) SetEnabled(ctx context.Context, version, ext string, enabled bool) error {
	cmd := "phpdismod"
	if enabled {
		cmd = "phpenmod"
	}
	p.logger.Debug().Str("version", version).Str("extension", ext).Bool("enabled", enabled).Msg(cmd)
	_, err := p.run.Run(ctx, cmd, "-v", version, ext)
	return err
}

// extensionTarget resolves the service definition and version an extension
// call addresses. An empty version means the default.
func (in *Installer) extensionTarget(id, version string) (catalog.ServiceDef, model.ManagedService, string, error) {
	svc, err := in.reg.Get(id)
	if err != nil {
		return catalog.ServiceDef{}, svc, "", err
	}
	def, err := in.reg.Definition(id)
	if err != nil {
		return def, svc, "", err
	}
	if len(def.Extensions) == 0 || in.ext == nil {
		return def, svc, "", core.Errorf(core.InvalidInput, "service %s has no extensions", id)
	}
	if version == "" {
		version = svc.InstalledVersion
	}
	if !svc.HasInstalledVersion(version) {
		return def, svc, "", core.Errorf(core.NotInstalled, "version %s of %s is not installed", version, id)
	}
	return def, svc, version, nil
}

func (in *Installer) knownExtension(def catalog.ServiceDef, ext string) (string, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if !slices.Contains(def.Extensions, ext) {
		return "", core.Errorf(core.InvalidInput, "unknown extension %q for %s (known: %s)",
			ext, def.ID, strings.Join(def.Extensions, ", "))
	}
	return ext, nil
}

// extensionInstalled reports whether the module's ini file is present, or
// without an extension directory, whether its package is.
func (in *Installer) extensionInstalled(ctx context.Context, def catalog.ServiceDef, version, ext string) (bool, error) {
	if def.ExtensionDir == "" {
		_, ok, err := in.pm.Installed(ctx, def.ExtensionPackageFor(version, ext))
		return ok, err
	}
	_, err := os.Stat(filepath.Join(def.ExtensionDirFor(version), ext+".ini"))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Extensions lists the known extensions of an installed version.
func (in *Installer) Extensions(ctx context.Context, id, version string) ([]model.Extension, error) {
	def, _, version, err := in.extensionTarget(id, version)
	if err != nil {
		return nil, err
	}
	loaded, err := in.ext.Loaded(ctx, version)
	if err != nil {
		return nil, core.Wrap(core.Unavailable, err, "list loaded modules of %s %s", id, version)
	}

	out := make([]model.Extension, 0, len(def.Extensions))
	for _, name := range def.Extensions {
		installed, err := in.extensionInstalled(ctx, def, version, name)
		if err != nil {
			return nil, core.Wrap(core.InternalError, err, "check extension %s", name)
		}
		out = append(out, model.Extension{
			Name:      name,
			Installed: installed,
			Enabled:   slices.Contains(loaded, name),
		})
	}
	return out, nil
}

// InstallExtension accepts installation of an extension package. A running
// version is restarted so it loads the module. Shares the per-service
// single-flight with Install and Uninstall.
func (in *Installer) InstallExtension(ctx context.Context, id, version, ext string) (model.Operation, error) {
	def, _, version, err := in.extensionTarget(id, version)
	if err != nil {
		return model.Operation{}, err
	}
	if ext, err = in.knownExtension(def, ext); err != nil {
		return model.Operation{}, err
	}

	release, err := in.claim(id)
	if err != nil {
		return model.Operation{}, err
	}

	actor := activity.ActorFrom(ctx)
	op := in.ops.Submit(ops.Job{
		Kind:   model.OpExtension,
		Target: id + "@" + version + "/" + ext,
		Actor:  actor,
		Run: func(ctx context.Context, progress func(int)) (any, error) {
			return in.runInstallExtension(activity.WithActor(ctx, actor), def, version, ext, progress)
		},
		Done: func(model.Operation) { release() },
	})
	return op, nil
}

func (in *Installer) runInstallExtension(ctx context.Context, def catalog.ServiceDef, version, ext string, progress func(int)) (any, error) {
	pkg := def.ExtensionPackageFor(version, ext)
	progress(10)
	in.logger.Info().Str("service", def.ID).Str("version", version).Str("package", pkg).Msg("installing extension")
	err := in.pm.Install(ctx, []string{pkg})
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		in.fail(ctx, def.ID, version, "Extension install", err)
		return nil, fmt.Errorf("install %s: %s", pkg, hostexec.Output(err))
	}
	progress(70)

	if err := in.reload(ctx, def.ID, version); err != nil {
		return nil, err
	}
	progress(100)

	in.feed.Record(ctx, model.Activity{
		Type:     model.ActivityInstall,
		Title:    fmt.Sprintf("Installed %s extension %s for %s", def.Name, ext, version),
		Status:   model.OutcomeSuccess,
		Metadata: map[string]string{"service": def.ID, "version": version, "extension": ext},
	})
	return model.Extension{Name: ext, Installed: true, Enabled: true}, nil
}

// SetExtension enables or disables an installed extension and restarts the
// version if it runs.
func (in *Installer) SetExtension(ctx context.Context, id, version, ext string, enabled bool) (model.Extension, error) {
	def, _, version, err := in.extensionTarget(id, version)
	if err != nil {
		return model.Extension{}, err
	}
	if ext, err = in.knownExtension(def, ext); err != nil {
		return model.Extension{}, err
	}
	installed, err := in.extensionInstalled(ctx, def, version, ext)
	if err != nil {
		return model.Extension{}, core.Wrap(core.InternalError, err, "check extension %s", ext)
	}
	if !installed {
		return model.Extension{}, core.Errorf(core.NotInstalled, "extension %s is not installed for %s %s", ext, id, version)
	}

	if err := in.ext.SetEnabled(ctx, version, ext, enabled); err != nil {
		return model.Extension{}, core.Errorf(core.InternalError, "toggle %s: %s", ext, hostexec.Output(err))
	}
	if err := in.reload(ctx, id, version); err != nil {
		return model.Extension{}, err
	}

	verb := "Disabled"
	if enabled {
		verb = "Enabled"
	}
	in.feed.Record(ctx, model.Activity{
		Type:     model.ActivityConfig,
		Title:    fmt.Sprintf("%s %s extension %s for %s", verb, def.Name, ext, version),
		Status:   model.OutcomeSuccess,
		Metadata: map[string]string{"service": id, "version": version, "extension": ext},
	})
	return model.Extension{Name: ext, Installed: true, Enabled: enabled}, nil
}

// reload restarts version when it is running.
func (in *Installer) reload(ctx context.Context, id, version string) error {
	svc, err := in.reg.Get(id)
	if err != nil {
		return err
	}
	if !svc.IsRunning(version) || in.ctl == nil {
		return nil
	}
	if _, err := in.ctl.Restart(ctx, id, version); err != nil {
		return fmt.Errorf("restart %s %s: %w", id, version, err)
	}
	return nil
}
