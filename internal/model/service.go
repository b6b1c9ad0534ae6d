package model

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

type ServiceType string

const (
	ServiceTypeRuntime   ServiceType = "runtime"
	ServiceTypeWebServer ServiceType = "webserver"
	ServiceTypeDatabase  ServiceType = "database"
	ServiceTypeCache     ServiceType = "cache"
	ServiceTypeQueue     ServiceType = "queue"
	ServiceTypeTool      ServiceType = "tool"
)

// ValidServiceType reports whether t is one of the known service types.
func ValidServiceType(t ServiceType) bool {
	switch t {
	case ServiceTypeRuntime, ServiceTypeWebServer, ServiceTypeDatabase,
		ServiceTypeCache, ServiceTypeQueue, ServiceTypeTool:
		return true
	}
	return false
}

// ManagedService is a host-level capability tracked by the service registry.
// For multi-version services InstalledVersion is the default version and
// RunningVersions tracks each version's unit separately.
type ManagedService struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	Type              ServiceType `json:"type"`
	Description       string      `json:"description,omitempty"`
	AvailableVersions []string    `json:"available_versions"`
	InstalledVersions []string    `json:"installed_versions"`
	InstalledVersion  string      `json:"installed_version,omitempty"`
	Installed         bool        `json:"installed"`
	Running           bool        `json:"running"`
	RunningVersions   []string    `json:"running_versions,omitempty"`
	MultiVersion      bool        `json:"multi_version"`
	Port              int         `json:"port,omitempty"`
	ConfigPath        string      `json:"config_path,omitempty"`
	Unit              string      `json:"unit,omitempty"`
	LastError         string      `json:"last_error,omitempty"`
	PendingRestart    bool        `json:"pending_restart"`
	StatusChangedAt   *time.Time  `json:"status_changed_at,omitempty"`
}

// HasVersion reports whether v is in the available version set.
func (s *ManagedService) HasVersion(v string) bool {
	return slices.Contains(s.AvailableVersions, v)
}

// HasInstalledVersion reports whether v is installed.
func (s *ManagedService) HasInstalledVersion(v string) bool {
	return slices.Contains(s.InstalledVersions, v)
}

// UnitFor renders the systemd unit for the given version. Returns "" for
// services without a manageable unit.
func (s *ManagedService) UnitFor(version string) string {
	if s.Unit == "" {
		return ""
	}
	return strings.ReplaceAll(s.Unit, "{version}", version)
}

// ConfigPathFor renders the config path for the given version.
func (s *ManagedService) ConfigPathFor(version string) string {
	return strings.ReplaceAll(s.ConfigPath, "{version}", version)
}

// SetRunning records whether the unit of version is running. Running is
// true while any version runs.
func (s *ManagedService) SetRunning(version string, running bool) {
	s.RunningVersions = slices.DeleteFunc(s.RunningVersions, func(v string) bool { return v == version })
	if running {
		s.RunningVersions = append(s.RunningVersions, version)
		slices.Sort(s.RunningVersions)
	}
	s.Running = len(s.RunningVersions) > 0
}

// IsRunning reports whether the unit of version is running.
func (s *ManagedService) IsRunning(version string) bool {
	return slices.Contains(s.RunningVersions, version)
}

// Clone returns a deep copy so callers never share slices with the registry.
func (s ManagedService) Clone() ManagedService {
	s.AvailableVersions = slices.Clone(s.AvailableVersions)
	s.InstalledVersions = slices.Clone(s.InstalledVersions)
	s.RunningVersions = slices.Clone(s.RunningVersions)
	if s.StatusChangedAt != nil {
		t := *s.StatusChangedAt
		s.StatusChangedAt = &t
	}
	return s
}

// CheckInvariants verifies the state rules every registry write must keep.
func (s *ManagedService) CheckInvariants() error {
	if s.Running && !s.Installed {
		return fmt.Errorf("service %s: running without being installed", s.ID)
	}
	if s.Installed != (len(s.InstalledVersions) > 0) {
		return fmt.Errorf("service %s: installed flag disagrees with installed versions", s.ID)
	}
	if s.InstalledVersion != "" && !s.HasVersion(s.InstalledVersion) {
		return fmt.Errorf("service %s: installed version %s is not available", s.ID, s.InstalledVersion)
	}
	if s.InstalledVersion != "" && !s.HasInstalledVersion(s.InstalledVersion) {
		return fmt.Errorf("service %s: default version %s is not installed", s.ID, s.InstalledVersion)
	}
	seen := make(map[string]bool, len(s.InstalledVersions))
	for _, v := range s.InstalledVersions {
		if seen[v] {
			return fmt.Errorf("service %s: version %s installed twice", s.ID, v)
		}
		seen[v] = true
		if !s.HasVersion(v) {
			return fmt.Errorf("service %s: installed version %s is not available", s.ID, v)
		}
	}
	for _, v := range s.RunningVersions {
		if !seen[v] {
			return fmt.Errorf("service %s: version %s running without being installed", s.ID, v)
		}
	}
	return nil
}

// Extension is a loadable module of a runtime version. Installed means its
// package is present; Enabled means the runtime loads it.
type Extension struct {
	Name      string `json:"name"`
	Installed bool   `json:"installed"`
	Enabled   bool   `json:"enabled"`
}
