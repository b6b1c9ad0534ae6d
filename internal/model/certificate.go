package model

import "time"

const (
	ProviderLetsEncrypt = "letsencrypt"
	ProviderSelfSigned  = "self-signed"
	ProviderCustom      = "custom"
)

// Certificate status values. The status is derived from ExpiresAt on
// every read and never persisted.
const (
	CertValid    = "valid"
	CertExpiring = "expiring"
	CertExpired  = "expired"
)

type Certificate struct {
	ID        string    `json:"id"`
	Domain    string    `json:"domain"`
	Provider  string    `json:"provider"`
	Issuer    string    `json:"issuer,omitempty"`
	Email     string    `json:"email,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	AutoRenew bool      `json:"auto_renew"`
	Status    string    `json:"status"`
	DaysLeft  int       `json:"days_left"`
	CertPEM   string    `json:"-"`
	KeyPEM    string    `json:"-"`
	ChainPEM  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExpiryReport groups certificates by status. Expiring and Expired are
// soonest first.
type ExpiryReport struct {
	Total    int           `json:"total"`
	Valid    int           `json:"valid"`
	Expiring []Certificate `json:"expiring"`
	Expired  []Certificate `json:"expired"`
}
