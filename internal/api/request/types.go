package request

// ServiceVersion selects a version for install, uninstall and lifecycle
// actions. Empty means the service default.
type ServiceVersion struct {
	Version string `json:"version" validate:"omitempty,max=32"`
}

type SetDefaultVersion struct {
	Version string `json:"version" validate:"required,max=32"`
}

type UpdateConfig struct {
	Values map[string]string `json:"values" validate:"required,min=1"`
}

type CreateVolume struct {
	Name string `json:"name" validate:"required,max=255"`
}

type CreateNetwork struct {
	Name     string `json:"name" validate:"required,max=255"`
	Driver   string `json:"driver" validate:"omitempty,oneof=bridge overlay macvlan ipvlan"`
	Internal bool   `json:"internal"`
}

type NetworkContainer struct {
	Container string `json:"container" validate:"required,max=255"`
	Force     bool   `json:"force"`
}

type InstallExtension struct {
	Name string `json:"name" validate:"required,max=64"`
}

type ToggleExtension struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type DeployTemplate struct {
	Name string            `json:"name" validate:"omitempty,max=63"`
	Env  map[string]string `json:"env"`
}

type IssueCertificate struct {
	Domain    string `json:"domain" validate:"required,max=253"`
	Email     string `json:"email" validate:"omitempty,email"`
	AutoRenew *bool  `json:"auto_renew"`
}

type SelfSignedCertificate struct {
	Domain string `json:"domain" validate:"required,max=253"`
}

type UploadCertificate struct {
	Domain  string `json:"domain" validate:"required,max=253"`
	CertPEM string `json:"cert_pem" validate:"required"`
	KeyPEM  string `json:"key_pem" validate:"required"`
}

type CronJob struct {
	Name     string `json:"name" validate:"required,max=255"`
	Schedule string `json:"schedule" validate:"max=255"`
	Command  string `json:"command" validate:"required,max=4096"`
	Type     string `json:"type" validate:"omitempty,oneof=command script url"`
	Enabled  *bool  `json:"enabled"`
}

type CreateFirewallRule struct {
	Port        int    `json:"port" validate:"min=0,max=65535"`
	Protocol    string `json:"protocol" validate:"omitempty,oneof=tcp udp both"`
	Source      string `json:"source" validate:"omitempty,max=64"`
	Action      string `json:"action" validate:"required,oneof=allow deny"`
	Description string `json:"description" validate:"max=255"`
	Enabled     *bool  `json:"enabled"`
	Position    int    `json:"position" validate:"min=0"`
}

type EvaluateFirewall struct {
	Port     int    `json:"port" validate:"required,min=1,max=65535"`
	Protocol string `json:"protocol" validate:"required,oneof=tcp udp"`
	Source   string `json:"source" validate:"required,ip"`
}
