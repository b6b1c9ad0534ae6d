package panelctl

// ApplyConfig is the desired host state read by Apply.
type ApplyConfig struct {
	APIURL        string        `yaml:"api_url"`
	APIToken      string        `yaml:"api_token"`
	Services      []ServiceDef  `yaml:"services"`
	Apps          []AppDef      `yaml:"apps"`
	Certificates  []CertDef     `yaml:"certificates"`
	CronJobs      []CronJobDef  `yaml:"cron_jobs"`
	FirewallRules []FirewallDef `yaml:"firewall_rules"`
}

type ServiceDef struct {
	ID      string `yaml:"id"`
	Version string `yaml:"version"`
	Default bool   `yaml:"default"`
	Start   bool   `yaml:"start"`
	// Config values are written after install.
	Config map[string]string `yaml:"config"`
}

type AppDef struct {
	Template string            `yaml:"template"`
	Name     string            `yaml:"name"`
	Env      map[string]string `yaml:"env"`
}

type CertDef struct {
	Domain string `yaml:"domain"`
	// Type is letsencrypt (default) or self_signed.
	Type  string `yaml:"type"`
	Email string `yaml:"email"`
}

type CronJobDef struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"`
	Command  string `yaml:"command"`
	Type     string `yaml:"type"`
	Disabled bool   `yaml:"disabled"`
}

type FirewallDef struct {
	Port        int    `yaml:"port"`
	Protocol    string `yaml:"protocol"`
	Source      string `yaml:"source"`
	Action      string `yaml:"action"`
	Description string `yaml:"description"`
}
