package certs

import (
	"time"

	"github.com/edvin/panel/internal/model"
)

// RenewWindow is how close to expiry a certificate must be before it is
// reported as expiring and may be renewed without force.
const RenewWindow = 30 * 24 * time.Hour

// Status classifies a certificate by its expiry. It is recomputed on every
// read and never stored.
func Status(expiresAt, now time.Time) string {
	switch {
	case now.After(expiresAt):
		return model.CertExpired
	case expiresAt.Sub(now) < RenewWindow:
		return model.CertExpiring
	default:
		return model.CertValid
	}
}

// DaysLeft is the number of whole days until expiry, negative once expired.
func DaysLeft(expiresAt, now time.Time) int {
	d := expiresAt.Sub(now)
	days := int(d / (24 * time.Hour))
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}
	return days
}

func decorate(c model.Certificate, now time.Time) model.Certificate {
	c.Status = Status(c.ExpiresAt, now)
	c.DaysLeft = DaysLeft(c.ExpiresAt, now)
	return c
}
