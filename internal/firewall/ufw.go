package firewall

import (
	"context"
	"strconv"

	"github.com/edvin/panel/internal/core"
	"github.com/edvin/panel/internal/hostexec"
	"github.com/edvin/panel/internal/model"
)

// RenderUFW turns the ordered rule list into ufw invocations. ufw evaluates
// its rules in insertion order, so the list is replayed after a reset.
func RenderUFW(rules []model.FirewallRule) [][]string {
	cmds := [][]string{
		{"--force", "reset"},
		{"default", "deny", "incoming"},
		{"default", "allow", "outgoing"},
	}
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		args := []string{r.Action}
		if r.Protocol != model.ProtocolBoth {
			args = append(args, "proto", r.Protocol)
		}
		src := r.Source
		if src == "" {
			src = SourceAny
		}
		args = append(args, "from", src, "to", "any")
		if r.Port != 0 {
			args = append(args, "port", strconv.Itoa(r.Port))
		}
		if r.Description != "" {
			args = append(args, "comment", r.Description)
		}
		cmds = append(cmds, args)
	}
	return append(cmds, []string{"--force", "enable"})
}

// Apply pushes the current rule list to ufw.
func (m *Manager) Apply(ctx context.Context) error {
	if m.run == nil {
		return core.Errorf(core.Unavailable, "firewall apply is disabled")
	}
	rules, err := m.store.ListRules(ctx)
	if err != nil {
		return err
	}
	for _, args := range RenderUFW(rules) {
		if _, err := m.run.Run(ctx, "ufw", args...); err != nil {
			return core.Wrap(core.InternalError, err, "ufw: %s", hostexec.Output(err))
		}
	}
	m.logger.Info().Int("rules", len(rules)).Msg("firewall applied")
	return nil
}

// sync applies the rules after a change when ufw management is on. A
// failure is logged; the stored rules stay authoritative.
func (m *Manager) sync(ctx context.Context) {
	if m.run == nil {
		return
	}
	if err := m.Apply(ctx); err != nil {
		m.logger.Error().Err(err).Msg("apply firewall")
	}
}
