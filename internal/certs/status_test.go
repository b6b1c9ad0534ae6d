package certs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/edvin/panel/internal/model"
)

func TestStatus_Boundaries(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	cases := []struct {
		name      string
		expiresAt time.Time
		want      string
	}{
		{"far future", now.Add(90 * day), model.CertValid},
		{"exactly thirty days", now.Add(30 * day), model.CertValid},
		{"just inside window", now.Add(30*day - time.Second), model.CertExpiring},
		{"one day left", now.Add(day), model.CertExpiring},
		{"exactly at expiry", now, model.CertExpiring},
		{"one second past", now.Add(-time.Second), model.CertExpired},
		{"long expired", now.Add(-400 * day), model.CertExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Status(tc.expiresAt, now))
		})
	}
}

func TestDaysLeft(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 30, DaysLeft(now.Add(30*24*time.Hour+time.Hour), now))
	assert.Equal(t, 0, DaysLeft(now.Add(time.Hour), now))
	assert.Equal(t, -1, DaysLeft(now.Add(-time.Hour), now))
	assert.Equal(t, -2, DaysLeft(now.Add(-48*time.Hour), now))
}
