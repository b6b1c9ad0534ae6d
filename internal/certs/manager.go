// Package certs issues, renews and tracks TLS certificates.
package certs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/moby/sys/atomicwriter"
	"github.com/rs/zerolog"

	"github.com/edvin/panel/internal/activity"
	"github.com/edvin/panel/internal/core"
	"github.com/edvin/panel/internal/metrics"
	"github.com/edvin/panel/internal/model"
	"github.com/edvin/panel/internal/ops"
	"github.com/edvin/panel/internal/platform"
	"github.com/edvin/panel/internal/store"
)

var domainRe = regexp.MustCompile(`^(\*\.)?([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z][a-z0-9-]{0,62}$`)

// Options configures a Manager.
type Options struct {
	// CertDir, when set, receives <domain>/cert.pem, chain.pem, fullchain.pem
	// and privkey.pem for every stored certificate.
	CertDir string
	// DefaultEmail is the ACME contact used when a request has none.
	DefaultEmail string
}

// Manager owns the certificate records.
type Manager struct {
	store  store.CertificateStore
	issuer Issuer
	ops    *ops.Tracker
	feed   activity.Recorder
	logger zerolog.Logger
	opts   Options
	now    func() time.Time
	random io.Reader

	mu      sync.Mutex
	pending map[string]bool
	renewMu sync.Map
}

func NewManager(st store.CertificateStore, issuer Issuer, tracker *ops.Tracker, feed activity.Recorder, logger zerolog.Logger, opts Options) *Manager {
	return &Manager{
		store:   st,
		issuer:  issuer,
		ops:     tracker,
		feed:    feed,
		logger:  logger.With().Str("component", "certs").Logger(),
		opts:    opts,
		now:     time.Now,
		pending: make(map[string]bool),
	}
}

// NormalizeDomain lowercases domain and checks it is a valid host name.
func NormalizeDomain(domain string) (string, error) {
	d := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
	if len(d) > 253 || !domainRe.MatchString(d) {
		return "", core.Errorf(core.InvalidInput, "invalid domain %q", domain)
	}
	return d, nil
}

func (m *Manager) List(ctx context.Context) ([]model.Certificate, error) {
	list, err := m.store.ListCertificates(ctx)
	if err != nil {
		return nil, err
	}
	now := m.now()
	for i := range list {
		list[i] = decorate(list[i], now)
	}
	return list, nil
}

func (m *Manager) Get(ctx context.Context, id string) (model.Certificate, error) {
	c, err := m.store.GetCertificate(ctx, id)
	if err != nil {
		return c, err
	}
	return decorate(c, m.now()), nil
}

// CheckExpiry classifies every stored certificate and refreshes the
// per-status gauge.
func (m *Manager) CheckExpiry(ctx context.Context) (model.ExpiryReport, error) {
	list, err := m.List(ctx)
	if err != nil {
		return model.ExpiryReport{}, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].ExpiresAt.Before(list[j].ExpiresAt) })

	report := model.ExpiryReport{
		Total:    len(list),
		Expiring: []model.Certificate{},
		Expired:  []model.Certificate{},
	}
	for _, c := range list {
		switch c.Status {
		case model.CertExpired:
			report.Expired = append(report.Expired, c)
		case model.CertExpiring:
			report.Expiring = append(report.Expiring, c)
		default:
			report.Valid++
		}
	}

	metrics.CertificatesByStatus.WithLabelValues(model.CertValid).Set(float64(report.Valid))
	metrics.CertificatesByStatus.WithLabelValues(model.CertExpiring).Set(float64(len(report.Expiring)))
	metrics.CertificatesByStatus.WithLabelValues(model.CertExpired).Set(float64(len(report.Expired)))
	return report, nil
}

// claim reserves domain for a new certificate. It fails when a certificate
// for the domain exists or is being issued.
func (m *Manager) claim(ctx context.Context, domain string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending[domain] {
		return nil, core.Errorf(core.AlreadyExists, "certificate for %s is being issued", domain)
	}
	list, err := m.store.ListCertificates(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range list {
		if c.Domain == domain {
			return nil, core.Errorf(core.AlreadyExists, "certificate for %s already exists", domain)
		}
	}
	m.pending[domain] = true
	return func() {
		m.mu.Lock()
		delete(m.pending, domain)
		m.mu.Unlock()
	}, nil
}

// IssueLetsEncrypt validates the request and orders the certificate in the
// background. The operation result is the stored certificate.
func (m *Manager) IssueLetsEncrypt(ctx context.Context, domain, email string, autoRenew bool) (model.Operation, error) {
	domain, err := NormalizeDomain(domain)
	if err != nil {
		return model.Operation{}, err
	}
	if strings.HasPrefix(domain, "*.") {
		return model.Operation{}, core.Errorf(core.InvalidInput, "wildcard domains need DNS validation, which is not supported")
	}
	if email == "" {
		email = m.opts.DefaultEmail
	}
	if email == "" || !strings.Contains(email, "@") {
		return model.Operation{}, core.Errorf(core.InvalidInput, "a contact email is required")
	}
	if m.issuer == nil {
		return model.Operation{}, core.Errorf(core.Unavailable, "ACME issuance is not configured")
	}

	release, err := m.claim(ctx, domain)
	if err != nil {
		return model.Operation{}, err
	}

	actor := activity.ActorFrom(ctx)
	return m.ops.Submit(ops.Job{
		Kind:   model.OpCertificate,
		Target: domain,
		Actor:  actor,
		Run: func(ctx context.Context, progress func(int)) (any, error) {
			ctx = activity.WithActor(ctx, actor)
			progress(10)
			issued, err := m.issuer.Issue(ctx, domain, email)
			metrics.CertificatesIssuedTotal.WithLabelValues(model.ProviderLetsEncrypt, result(err)).Inc()
			if err != nil {
				m.recordIssue(ctx, domain, model.ProviderLetsEncrypt, err)
				return nil, err
			}
			progress(90)
			return m.create(ctx, domain, model.ProviderLetsEncrypt, email, autoRenew, issued)
		},
		Done: func(model.Operation) { release() },
	}), nil
}

// IssueSelfSigned generates and stores a self-signed certificate.
func (m *Manager) IssueSelfSigned(ctx context.Context, domain string) (model.Certificate, error) {
	domain, err := NormalizeDomain(domain)
	if err != nil {
		return model.Certificate{}, err
	}
	release, err := m.claim(ctx, domain)
	if err != nil {
		return model.Certificate{}, err
	}
	defer release()

	issued, err := SelfSign(domain, m.now(), m.random)
	metrics.CertificatesIssuedTotal.WithLabelValues(model.ProviderSelfSigned, result(err)).Inc()
	if err != nil {
		m.recordIssue(ctx, domain, model.ProviderSelfSigned, err)
		return model.Certificate{}, err
	}
	return m.create(ctx, domain, model.ProviderSelfSigned, "", false, issued)
}

// UploadCustom stores a certificate obtained elsewhere.
func (m *Manager) UploadCustom(ctx context.Context, domain, certPEM, keyPEM string) (model.Certificate, error) {
	domain, err := NormalizeDomain(domain)
	if err != nil {
		return model.Certificate{}, err
	}
	issued, err := ParseCustom(domain, certPEM, keyPEM, m.now())
	if err != nil {
		return model.Certificate{}, err
	}
	release, err := m.claim(ctx, domain)
	if err != nil {
		return model.Certificate{}, err
	}
	defer release()

	metrics.CertificatesIssuedTotal.WithLabelValues(model.ProviderCustom, "success").Inc()
	return m.create(ctx, domain, model.ProviderCustom, "", false, issued)
}

func (m *Manager) create(ctx context.Context, domain, provider, email string, autoRenew bool, issued Issued) (model.Certificate, error) {
	now := m.now()
	c := model.Certificate{
		ID:        platform.NewID(),
		Domain:    domain,
		Provider:  provider,
		Issuer:    issued.Issuer,
		Email:     email,
		IssuedAt:  issued.IssuedAt,
		ExpiresAt: issued.ExpiresAt,
		AutoRenew: autoRenew,
		CertPEM:   issued.CertPEM,
		KeyPEM:    issued.KeyPEM,
		ChainPEM:  issued.ChainPEM,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.CreateCertificate(ctx, c); err != nil {
		return model.Certificate{}, fmt.Errorf("store certificate for %s: %w", domain, err)
	}
	m.writeFiles(c)
	m.recordIssue(ctx, domain, provider, nil)
	m.logger.Info().Str("domain", domain).Str("provider", provider).Time("expires_at", c.ExpiresAt).Msg("certificate stored")
	return decorate(c, now), nil
}

// Renew replaces a Let's Encrypt certificate in place. Without force it is
// refused while more than RenewWindow remains before expiry.
func (m *Manager) Renew(ctx context.Context, id string, force bool) (model.Certificate, error) {
	mu, _ := m.renewMu.LoadOrStore(id, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	defer mu.(*sync.Mutex).Unlock()

	c, err := m.store.GetCertificate(ctx, id)
	if err != nil {
		return c, err
	}
	if c.Provider != model.ProviderLetsEncrypt {
		return c, core.Errorf(core.InvalidInput, "only %s certificates can be renewed, %s is %s", model.ProviderLetsEncrypt, c.Domain, c.Provider)
	}
	now := m.now()
	if remaining := c.ExpiresAt.Sub(now); !force && remaining > RenewWindow {
		return decorate(c, now), core.Errorf(core.TooEarly, "certificate for %s is valid for %d more days", c.Domain, DaysLeft(c.ExpiresAt, now))
	}
	if m.issuer == nil {
		return c, core.Errorf(core.Unavailable, "ACME issuance is not configured")
	}

	email := c.Email
	if email == "" {
		email = m.opts.DefaultEmail
	}
	issued, err := m.issuer.Issue(ctx, c.Domain, email)
	metrics.CertificatesIssuedTotal.WithLabelValues("renew", result(err)).Inc()
	m.feed.Record(ctx, model.Activity{
		Type:        model.ActivitySSL,
		Title:       renewTitle(c.Domain, err),
		Description: errText(err),
		Status:      activity.Outcome(err),
		Metadata:    map[string]string{"domain": c.Domain, "certificate_id": c.ID},
	})
	if err != nil {
		return decorate(c, now), err
	}

	c.Issuer = issued.Issuer
	c.IssuedAt = issued.IssuedAt
	c.ExpiresAt = issued.ExpiresAt
	c.CertPEM = issued.CertPEM
	c.KeyPEM = issued.KeyPEM
	c.ChainPEM = issued.ChainPEM
	c.UpdatedAt = m.now()
	if err := m.store.UpdateCertificate(ctx, c); err != nil {
		return c, fmt.Errorf("store renewed certificate for %s: %w", c.Domain, err)
	}
	m.writeFiles(c)
	m.logger.Info().Str("domain", c.Domain).Time("expires_at", c.ExpiresAt).Msg("certificate renewed")
	return decorate(c, m.now()), nil
}

// Delete removes the record and its files. The certificate is not revoked.
func (m *Manager) Delete(ctx context.Context, id string) error {
	c, err := m.store.GetCertificate(ctx, id)
	if err != nil {
		return err
	}
	if err := m.store.DeleteCertificate(ctx, id); err != nil {
		return err
	}
	m.renewMu.Delete(id)
	if m.opts.CertDir != "" {
		if err := os.RemoveAll(filepath.Join(m.opts.CertDir, c.Domain)); err != nil {
			m.logger.Warn().Err(err).Str("domain", c.Domain).Msg("remove certificate files")
		}
	}
	m.feed.Record(ctx, model.Activity{
		Type:     model.ActivitySSL,
		Title:    "Deleted certificate for " + c.Domain,
		Metadata: map[string]string{"domain": c.Domain, "certificate_id": c.ID},
	})
	return nil
}

// RenewDue renews every auto-renewing Let's Encrypt certificate inside the
// renewal window. It returns the number renewed and the last error seen.
func (m *Manager) RenewDue(ctx context.Context) (int, error) {
	list, err := m.store.ListCertificates(ctx)
	if err != nil {
		return 0, err
	}
	var renewed int
	var lastErr error
	for _, c := range list {
		if !c.AutoRenew || c.Provider != model.ProviderLetsEncrypt {
			continue
		}
		if _, err := m.Renew(ctx, c.ID, false); err != nil {
			if core.Is(err, core.TooEarly) {
				continue
			}
			m.logger.Error().Err(err).Str("domain", c.Domain).Msg("auto-renew failed")
			lastErr = err
			continue
		}
		renewed++
	}
	return renewed, lastErr
}

// RunRenewLoop checks for due certificates every interval until ctx ends.
func (m *Manager) RunRenewLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info().Dur("interval", interval).Msg("certificate renewal loop started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := m.RenewDue(ctx); n > 0 || err != nil {
				m.logger.Info().Int("renewed", n).AnErr("last_error", err).Msg("renewal pass finished")
			}
			if report, err := m.CheckExpiry(ctx); err != nil {
				m.logger.Warn().Err(err).Msg("expiry check failed")
			} else if len(report.Expired) > 0 {
				m.logger.Warn().Int("expired", len(report.Expired)).Msg("expired certificates in store")
			}
		}
	}
}

func (m *Manager) writeFiles(c model.Certificate) {
	if m.opts.CertDir == "" {
		return
	}
	dir := filepath.Join(m.opts.CertDir, c.Domain)
	files := []struct {
		name string
		data string
		mode os.FileMode
	}{
		{"cert.pem", c.CertPEM, 0o644},
		{"chain.pem", c.ChainPEM, 0o644},
		{"fullchain.pem", c.CertPEM + c.ChainPEM, 0o644},
		{"privkey.pem", c.KeyPEM, 0o600},
	}
	err := os.MkdirAll(dir, 0o755)
	for _, f := range files {
		if err != nil {
			break
		}
		err = atomicwriter.WriteFile(filepath.Join(dir, f.name), []byte(f.data), f.mode)
	}
	if err != nil {
		m.logger.Error().Err(err).Str("domain", c.Domain).Msg("write certificate files")
	}
}

func (m *Manager) recordIssue(ctx context.Context, domain, provider string, err error) {
	title := fmt.Sprintf("Issued %s certificate for %s", provider, domain)
	if err != nil {
		title = fmt.Sprintf("Failed to issue %s certificate for %s", provider, domain)
	}
	m.feed.Record(ctx, model.Activity{
		Type:        model.ActivitySSL,
		Title:       title,
		Description: errText(err),
		Status:      activity.Outcome(err),
		Metadata:    map[string]string{"domain": domain, "provider": provider},
	})
}

func renewTitle(domain string, err error) string {
	if err != nil {
		return "Failed to renew certificate for " + domain
	}
	return "Renewed certificate for " + domain
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func result(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return string(core.KindOf(err))
	}
}
