package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/edvin/panel/internal/configfile"
	"github.com/edvin/panel/internal/model"
)

// ServiceDef is the catalog entry a ManagedService is bootstrapped from.
// Unit, ConfigPath, Packages, ExtensionPackage and ExtensionDir may contain a
// "{version}" placeholder; ExtensionPackage also takes "{ext}".
type ServiceDef struct {
	ID           string            `yaml:"id"`
	Name         string            `yaml:"name"`
	Type         model.ServiceType `yaml:"type"`
	Description  string            `yaml:"description"`
	Versions     []string          `yaml:"versions"`
	MultiVersion bool              `yaml:"multi_version"`
	Unit         string            `yaml:"unit"`
	Port         int               `yaml:"port"`
	ConfigPath   string            `yaml:"config_path"`
	ConfigFormat configfile.Format `yaml:"config_format"`
	Packages     []string          `yaml:"packages"`
	Options      []model.OptionDef `yaml:"options"`

	Extensions       []string `yaml:"extensions"`
	ExtensionPackage string   `yaml:"extension_package"`
	ExtensionDir     string   `yaml:"extension_dir"`
}

// PackagesFor renders the package list for version.
func (d *ServiceDef) PackagesFor(version string) []string {
	pkgs := d.Packages
	if len(pkgs) == 0 {
		pkgs = []string{d.ID}
	}
	out := make([]string, len(pkgs))
	for i, p := range pkgs {
		out[i] = strings.ReplaceAll(p, "{version}", version)
	}
	return out
}

// ExtensionPackageFor renders the package providing ext for version.
func (d *ServiceDef) ExtensionPackageFor(version, ext string) string {
	r := strings.NewReplacer("{version}", version, "{ext}", ext)
	return r.Replace(d.ExtensionPackage)
}

// ExtensionDirFor renders the directory holding per-extension ini files.
func (d *ServiceDef) ExtensionDirFor(version string) string {
	return strings.ReplaceAll(d.ExtensionDir, "{version}", version)
}

// Catalog holds the service and template definitions the control plane
// starts from.
type Catalog struct {
	Services  []ServiceDef        `yaml:"services"`
	Templates []model.AppTemplate `yaml:"templates"`
}

// Load reads a catalog file and merges it over the built-in defaults.
// Entries whose id matches a default replace it; new ids are appended.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var file Catalog
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	cat := Default()
	cat.merge(&file)
	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("validate catalog %s: %w", path, err)
	}
	return cat, nil
}

func (c *Catalog) merge(o *Catalog) {
	for _, s := range o.Services {
		replaced := false
		for i := range c.Services {
			if c.Services[i].ID == s.ID {
				c.Services[i] = s
				replaced = true
				break
			}
		}
		if !replaced {
			c.Services = append(c.Services, s)
		}
	}
	for _, t := range o.Templates {
		replaced := false
		for i := range c.Templates {
			if c.Templates[i].ID == t.ID {
				c.Templates[i] = t
				replaced = true
				break
			}
		}
		if !replaced {
			c.Templates = append(c.Templates, t)
		}
	}
}

// Validate checks ids are unique and every entry is well formed.
func (c *Catalog) Validate() error {
	seen := make(map[string]bool)
	for _, s := range c.Services {
		if s.ID == "" {
			return fmt.Errorf("service without id")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate service %s", s.ID)
		}
		seen[s.ID] = true
		if !model.ValidServiceType(s.Type) {
			return fmt.Errorf("service %s: unknown type %q", s.ID, s.Type)
		}
		if len(s.Versions) == 0 {
			return fmt.Errorf("service %s: no versions", s.ID)
		}
		if !s.ConfigFormat.Valid() {
			return fmt.Errorf("service %s: unknown config format %q", s.ID, s.ConfigFormat)
		}
		if len(s.Extensions) > 0 && s.ExtensionPackage == "" {
			return fmt.Errorf("service %s: extensions need an extension package", s.ID)
		}
		for _, def := range s.Options {
			if _, err := model.NewOption(def); err != nil {
				return fmt.Errorf("service %s: %w", s.ID, err)
			}
		}
	}

	seen = make(map[string]bool)
	for _, t := range c.Templates {
		if t.ID == "" || t.Image == "" {
			return fmt.Errorf("template %q: id and image are required", t.ID)
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate template %s", t.ID)
		}
		seen[t.ID] = true
		for _, p := range t.Ports {
			if _, err := ParsePort(p); err != nil {
				return fmt.Errorf("template %s: %w", t.ID, err)
			}
		}
	}
	return nil
}

// Service returns the definition for id.
func (c *Catalog) Service(id string) (ServiceDef, bool) {
	for _, s := range c.Services {
		if s.ID == id {
			return s, true
		}
	}
	return ServiceDef{}, false
}
