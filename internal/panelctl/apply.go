package panelctl

import (
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/edvin/panel/internal/core"
	"github.com/edvin/panel/internal/firewall"
	"github.com/edvin/panel/internal/model"
)

// TokenEnv is read when the apply file carries no api_token.
const TokenEnv = "PANEL_API_TOKEN"

// LoadApplyConfig reads and parses an apply file.
func LoadApplyConfig(path string) (*ApplyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg ApplyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "http://localhost:8090"
	}
	if cfg.APIToken == "" {
		cfg.APIToken = os.Getenv(TokenEnv)
	}
	return &cfg, nil
}

// Apply brings the host in line with the file at configPath. Resources that
// already exist are left alone, so running it twice is safe.
func Apply(configPath string, timeout time.Duration, out io.Writer) error {
	cfg, err := LoadApplyConfig(configPath)
	if err != nil {
		return err
	}
	return NewClient(cfg.APIURL, cfg.APIToken).Apply(cfg, timeout, out)
}

func (c *Client) Apply(cfg *ApplyConfig, timeout time.Duration, out io.Writer) error {
	for _, s := range cfg.Services {
		if err := c.applyService(s, timeout, out); err != nil {
			return fmt.Errorf("service %q: %w", s.ID, err)
		}
	}
	for _, a := range cfg.Apps {
		if err := c.applyApp(a, timeout, out); err != nil {
			return fmt.Errorf("app %q: %w", a.Template, err)
		}
	}
	if err := c.applyCertificates(cfg.Certificates, timeout, out); err != nil {
		return err
	}
	if err := c.applyCronJobs(cfg.CronJobs, out); err != nil {
		return err
	}
	return c.applyFirewall(cfg.FirewallRules, out)
}

func (c *Client) applyService(s ServiceDef, timeout time.Duration, out io.Writer) error {
	var svc model.ManagedService
	if err := c.Get("/services/"+s.ID, &svc); err != nil {
		return err
	}

	version := s.Version
	if version == "" || !slices.Contains(svc.InstalledVersions, version) {
		if version == "" && svc.Installed {
			fmt.Fprintf(out, "Service %q: installed (%s, skipping)\n", s.ID, svc.InstalledVersion)
		} else {
			fmt.Fprintf(out, "Installing %q %s...\n", s.ID, version)
			var op model.Operation
			if err := c.Post("/services/"+s.ID+"/install", map[string]string{"version": version}, &op); err != nil {
				return err
			}
			if _, err := c.AwaitOperation(op.ID, timeout); err != nil {
				return err
			}
			fmt.Fprintf(out, "  Service %q installed\n", s.ID)
		}
	} else {
		fmt.Fprintf(out, "Service %q %s: installed (skipping)\n", s.ID, version)
	}

	if s.Default && version != "" {
		if err := c.Put("/services/"+s.ID+"/default", map[string]string{"version": version}, nil); err != nil {
			return err
		}
	}
	if len(s.Config) > 0 {
		if err := c.Put("/services/"+s.ID+"/config", map[string]any{"values": s.Config}, nil); err != nil {
			return err
		}
		fmt.Fprintf(out, "  Service %q: %d config values written\n", s.ID, len(s.Config))
	}
	if s.Start {
		if err := c.Post("/services/"+s.ID+"/start", map[string]string{"version": version}, nil); err != nil {
			return err
		}
		fmt.Fprintf(out, "  Service %q started\n", s.ID)
	}
	return nil
}

func (c *Client) applyApp(a AppDef, timeout time.Duration, out io.Writer) error {
	var op model.Operation
	err := c.Post("/templates/"+a.Template+"/deploy", map[string]any{"name": a.Name, "env": a.Env}, &op)
	if IsKind(err, core.AlreadyExists) {
		fmt.Fprintf(out, "App %q: deployed (skipping)\n", a.Template)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Deploying %q...\n", a.Template)
	if _, err := c.AwaitOperation(op.ID, timeout); err != nil {
		return err
	}
	fmt.Fprintf(out, "  App %q deployed\n", a.Template)
	return nil
}

func (c *Client) applyCertificates(defs []CertDef, timeout time.Duration, out io.Writer) error {
	if len(defs) == 0 {
		return nil
	}
	var existing []model.Certificate
	if err := c.Get("/ssl", &existing); err != nil {
		return err
	}
	for _, d := range defs {
		if slices.ContainsFunc(existing, func(e model.Certificate) bool { return e.Domain == d.Domain }) {
			fmt.Fprintf(out, "Certificate %q: exists (skipping)\n", d.Domain)
			continue
		}
		switch d.Type {
		case "self_signed", model.ProviderSelfSigned:
			if err := c.Post("/ssl/self-signed", map[string]string{"domain": d.Domain}, nil); err != nil {
				return fmt.Errorf("certificate %q: %w", d.Domain, err)
			}
		case "", "letsencrypt":
			fmt.Fprintf(out, "Requesting certificate for %q...\n", d.Domain)
			var op model.Operation
			if err := c.Post("/ssl", map[string]string{"domain": d.Domain, "email": d.Email}, &op); err != nil {
				return fmt.Errorf("certificate %q: %w", d.Domain, err)
			}
			if _, err := c.AwaitOperation(op.ID, timeout); err != nil {
				return fmt.Errorf("certificate %q: %w", d.Domain, err)
			}
		default:
			return fmt.Errorf("certificate %q: unknown type %q", d.Domain, d.Type)
		}
		fmt.Fprintf(out, "  Certificate %q created\n", d.Domain)
	}
	return nil
}

func (c *Client) applyCronJobs(defs []CronJobDef, out io.Writer) error {
	if len(defs) == 0 {
		return nil
	}
	var existing []model.CronJob
	if err := c.Get("/cron", &existing); err != nil {
		return err
	}
	for _, d := range defs {
		if slices.ContainsFunc(existing, func(j model.CronJob) bool { return j.Name == d.Name }) {
			fmt.Fprintf(out, "Cron job %q: exists (skipping)\n", d.Name)
			continue
		}
		enabled := !d.Disabled
		body := map[string]any{
			"name":     d.Name,
			"schedule": d.Schedule,
			"command":  d.Command,
			"type":     d.Type,
			"enabled":  enabled,
		}
		var job model.CronJob
		if err := c.Post("/cron", body, &job); err != nil {
			return fmt.Errorf("cron job %q: %w", d.Name, err)
		}
		fmt.Fprintf(out, "  Cron job %q: %s created\n", d.Name, job.ID)
	}
	return nil
}

func (c *Client) applyFirewall(defs []FirewallDef, out io.Writer) error {
	if len(defs) == 0 {
		return nil
	}
	var existing []model.FirewallRule
	if err := c.Get("/firewall", &existing); err != nil {
		return err
	}
	for _, d := range defs {
		if slices.ContainsFunc(existing, func(r model.FirewallRule) bool { return sameRule(r, d) }) {
			fmt.Fprintf(out, "Firewall rule %s %d/%s from %s: exists (skipping)\n", d.Action, d.Port, d.Protocol, sourceOrAny(d.Source))
			continue
		}
		body := map[string]any{
			"port":        d.Port,
			"protocol":    d.Protocol,
			"source":      d.Source,
			"action":      d.Action,
			"description": d.Description,
		}
		var rule model.FirewallRule
		if err := c.Post("/firewall", body, &rule); err != nil {
			return fmt.Errorf("firewall rule port %d: %w", d.Port, err)
		}
		fmt.Fprintf(out, "  Firewall rule %s: position %d\n", rule.ID, rule.Position)
	}
	return nil
}

func sameRule(r model.FirewallRule, d FirewallDef) bool {
	proto := d.Protocol
	if proto == "" {
		proto = model.ProtocolTCP
	}
	src, err := firewall.NormalizeSource(d.Source)
	if err != nil {
		return false
	}
	return r.Port == d.Port && r.Protocol == proto && r.Source == src && r.Action == d.Action
}

func sourceOrAny(s string) string {
	if s == "" {
		return firewall.SourceAny
	}
	return s
}
