// Package firewall keeps the ordered inbound rule list and evaluates it
// first-match-wins.
package firewall

import (
	"context"
	"fmt"
	"net/netip"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/panel/internal/activity"
	"github.com/edvin/panel/internal/core"
	"github.com/edvin/panel/internal/hostexec"
	"github.com/edvin/panel/internal/model"
	"github.com/edvin/panel/internal/platform"
	"github.com/edvin/panel/internal/store"
)

// SourceAny matches every address.
const SourceAny = "any"

// RuleSpec describes a rule to create. Position is 1-based; 0 appends.
type RuleSpec struct {
	Port        int    `json:"port"`
	Protocol    string `json:"protocol"`
	Source      string `json:"source"`
	Action      string `json:"action"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
	Position    int    `json:"position"`
}

// Decision is the outcome of evaluating a packet against the rules.
type Decision struct {
	Action string `json:"action"`
	RuleID string `json:"rule_id,omitempty"`
	// Default is set when no rule matched and the default policy applied.
	Default bool `json:"default"`
}

// Manager owns the rule list. Mutations are serialised so positions stay
// dense and in order.
type Manager struct {
	store  store.FirewallStore
	feed   activity.Recorder
	run    hostexec.Runner
	logger zerolog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// New creates a Manager. When run is non-nil every change is pushed to ufw.
func New(st store.FirewallStore, feed activity.Recorder, run hostexec.Runner, logger zerolog.Logger) *Manager {
	return &Manager{
		store:  st,
		feed:   feed,
		run:    run,
		logger: logger.With().Str("component", "firewall").Logger(),
		now:    time.Now,
	}
}

func (m *Manager) List(ctx context.Context) ([]model.FirewallRule, error) {
	return m.store.ListRules(ctx)
}

// NormalizeSource returns the canonical form of an address, CIDR or "any".
func NormalizeSource(src string) (string, error) {
	src = strings.TrimSpace(src)
	if src == "" || strings.EqualFold(src, SourceAny) {
		return SourceAny, nil
	}
	if strings.Contains(src, "/") {
		p, err := netip.ParsePrefix(src)
		if err != nil {
			return "", core.Errorf(core.InvalidInput, "invalid source %q", src)
		}
		return p.Masked().String(), nil
	}
	a, err := netip.ParseAddr(src)
	if err != nil {
		return "", core.Errorf(core.InvalidInput, "invalid source %q", src)
	}
	return a.String(), nil
}

func normalize(s *RuleSpec) error {
	if s.Port < 0 || s.Port > 65535 {
		return core.Errorf(core.InvalidInput, "port %d out of range", s.Port)
	}
	s.Protocol = strings.ToLower(s.Protocol)
	if s.Protocol == "" {
		s.Protocol = model.ProtocolTCP
	}
	switch s.Protocol {
	case model.ProtocolTCP, model.ProtocolUDP, model.ProtocolBoth:
	default:
		return core.Errorf(core.InvalidInput, "unknown protocol %q", s.Protocol)
	}
	s.Action = strings.ToLower(s.Action)
	if s.Action != model.ActionAllow && s.Action != model.ActionDeny {
		return core.Errorf(core.InvalidInput, "action must be allow or deny")
	}
	src, err := NormalizeSource(s.Source)
	if err != nil {
		return err
	}
	s.Source = src
	if s.Position < 0 {
		return core.Errorf(core.InvalidInput, "position must not be negative")
	}
	return nil
}

// Create adds a rule at the end of the list, or at Position shifting later
// rules down. Two enabled rules may not share port, protocol and source.
func (m *Manager) Create(ctx context.Context, s RuleSpec) (model.FirewallRule, error) {
	if err := normalize(&s); err != nil {
		return model.FirewallRule{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rules, err := m.store.ListRules(ctx)
	if err != nil {
		return model.FirewallRule{}, err
	}
	if s.Enabled {
		for _, r := range rules {
			if r.Enabled && r.Port == s.Port && r.Protocol == s.Protocol && r.Source == s.Source {
				return model.FirewallRule{}, core.Errorf(core.Conflict,
					"rule %s already covers port %d/%s from %s", r.ID, s.Port, s.Protocol, s.Source)
			}
		}
	}

	pos := len(rules) + 1
	if s.Position > 0 && s.Position <= len(rules) {
		pos = s.Position
	}
	rule := model.FirewallRule{
		ID:          platform.NewID(),
		Position:    pos,
		Port:        s.Port,
		Protocol:    s.Protocol,
		Source:      s.Source,
		Action:      s.Action,
		Description: s.Description,
		Enabled:     s.Enabled,
		CreatedAt:   m.now(),
	}
	if err := m.store.InsertRule(ctx, rule); err != nil {
		return model.FirewallRule{}, err
	}

	m.record(ctx, fmt.Sprintf("Added firewall rule: %s %s", rule.Action, describe(rule)), rule)
	m.sync(ctx)
	return rule, nil
}

// Delete removes a rule and closes the gap it leaves; the remaining rules
// keep their relative order.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rules, err := m.store.ListRules(ctx)
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(rules, func(r model.FirewallRule) bool { return r.ID == id })
	if idx < 0 {
		return core.Errorf(core.NotFound, "firewall rule %s not found", id)
	}
	if err := m.store.DeleteRule(ctx, id); err != nil {
		return err
	}

	m.record(ctx, "Removed firewall rule: "+describe(rules[idx]), rules[idx])
	m.sync(ctx)
	return nil
}

// Evaluate finds the first enabled rule matching an inbound packet. With no
// match the default inbound policy, deny, applies.
func (m *Manager) Evaluate(ctx context.Context, port int, protocol, source string) (Decision, error) {
	protocol = strings.ToLower(protocol)
	if protocol != model.ProtocolTCP && protocol != model.ProtocolUDP {
		return Decision{}, core.Errorf(core.InvalidInput, "protocol must be tcp or udp")
	}
	if port < 1 || port > 65535 {
		return Decision{}, core.Errorf(core.InvalidInput, "port %d out of range", port)
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(source))
	if err != nil {
		return Decision{}, core.Errorf(core.InvalidInput, "invalid address %q", source)
	}

	rules, err := m.store.ListRules(ctx)
	if err != nil {
		return Decision{}, err
	}
	for _, r := range rules {
		if r.Enabled && Matches(r, port, protocol, addr) {
			return Decision{Action: r.Action, RuleID: r.ID}, nil
		}
	}
	return Decision{Action: model.ActionDeny, Default: true}, nil
}

// Matches reports whether r applies to a packet.
func Matches(r model.FirewallRule, port int, protocol string, addr netip.Addr) bool {
	if r.Port != 0 && r.Port != port {
		return false
	}
	if r.Protocol != model.ProtocolBoth && r.Protocol != protocol {
		return false
	}
	switch {
	case r.Source == SourceAny || r.Source == "":
		return true
	case strings.Contains(r.Source, "/"):
		p, err := netip.ParsePrefix(r.Source)
		return err == nil && p.Contains(addr.Unmap())
	default:
		a, err := netip.ParseAddr(r.Source)
		return err == nil && a == addr.Unmap()
	}
}

func describe(r model.FirewallRule) string {
	port := "any port"
	if r.Port != 0 {
		port = "port " + strconv.Itoa(r.Port)
	}
	return fmt.Sprintf("%s/%s from %s", port, r.Protocol, r.Source)
}

func (m *Manager) record(ctx context.Context, title string, r model.FirewallRule) {
	m.feed.Record(ctx, model.Activity{
		Type:        model.ActivitySecurity,
		Title:       title,
		Description: r.Description,
		Metadata:    map[string]string{"rule": r.ID, "action": r.Action},
	})
}
