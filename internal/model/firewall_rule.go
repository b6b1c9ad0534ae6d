package model

import "time"

const (
	ProtocolTCP  = "tcp"
	ProtocolUDP  = "udp"
	ProtocolBoth = "both"
)

const (
	ActionAllow = "allow"
	ActionDeny  = "deny"
)

// FirewallRule is evaluated first-match-wins in Position order. Port 0
// matches every port.
type FirewallRule struct {
	ID          string    `json:"id"`
	Position    int       `json:"position"`
	Port        int       `json:"port"`
	Protocol    string    `json:"protocol"`
	Source      string    `json:"source"`
	Action      string    `json:"action"`
	Description string    `json:"description,omitempty"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
}
