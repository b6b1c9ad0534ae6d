package certs

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/acme"

	"github.com/edvin/panel/internal/activity"
	"github.com/edvin/panel/internal/core"
	"github.com/edvin/panel/internal/model"
	"github.com/edvin/panel/internal/ops"
	"github.com/edvin/panel/internal/store"
)

const day = 24 * time.Hour

// fakeIssuer hands out 90-day certificates dated at the manager's clock.
type fakeIssuer struct {
	mu    sync.Mutex
	now   func() time.Time
	err   error
	calls []string
}

func (f *fakeIssuer) Issue(_ context.Context, domain, email string) (Issued, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, domain+" "+email)
	if f.err != nil {
		return Issued{}, f.err
	}
	now := f.now()
	return Issued{
		CertPEM:   "CERT " + domain,
		KeyPEM:    "KEY " + domain,
		ChainPEM:  "CHAIN",
		Issuer:    "R11",
		IssuedAt:  now,
		ExpiresAt: now.Add(90 * day),
	}, nil
}

type fixture struct {
	clock   time.Time
	issuer  *fakeIssuer
	tracker *ops.Tracker
	feed    *activity.Feed
	mgr     *Manager
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{clock: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
	f.issuer = &fakeIssuer{now: func() time.Time { return f.clock }}
	f.tracker = ops.NewTracker(zerolog.Nop(), 2)
	t.Cleanup(func() { _ = f.tracker.Shutdown(context.Background()) })
	f.feed = activity.NewFeed(store.NewMemory(), zerolog.Nop())
	f.mgr = NewManager(store.NewMemory(), f.issuer, f.tracker, f.feed, zerolog.Nop(), opts)
	f.mgr.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) issueLE(t *testing.T, domain string) model.Certificate {
	t.Helper()
	op, err := f.mgr.IssueLetsEncrypt(context.Background(), domain, "ops@example.com", true)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done, err := f.tracker.Wait(ctx, op.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusSucceeded, done.State, done.Error)
	return done.Result.(model.Certificate)
}

func TestIssueLetsEncrypt(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.issueLE(t, "Shop.Example.com")

	assert.Equal(t, "shop.example.com", c.Domain)
	assert.Equal(t, model.ProviderLetsEncrypt, c.Provider)
	assert.Equal(t, model.CertValid, c.Status)
	assert.Equal(t, 90, c.DaysLeft)
	assert.True(t, c.AutoRenew)

	_, err := f.mgr.IssueLetsEncrypt(context.Background(), "shop.example.com", "", false)
	assert.Equal(t, core.InvalidInput, core.KindOf(err), "no email and no default")

	_, err = f.mgr.IssueLetsEncrypt(context.Background(), "shop.example.com", "ops@example.com", false)
	assert.Equal(t, core.AlreadyExists, core.KindOf(err))
}

func TestIssueLetsEncrypt_RateLimited(t *testing.T) {
	f := newFixture(t, Options{DefaultEmail: "ops@example.com"})
	f.issuer.err = classify(&acme.Error{StatusCode: http.StatusTooManyRequests, ProblemType: problemRateLimited}, "authorize order")

	op, err := f.mgr.IssueLetsEncrypt(context.Background(), "a.example.com", "", false)
	require.NoError(t, err)
	done, err := f.tracker.Wait(context.Background(), op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, done.State)

	list, _ := f.mgr.List(context.Background())
	assert.Empty(t, list)

	// The domain is free again once the failed operation finishes.
	f.issuer.err = nil
	f.issueLE(t, "a.example.com")
}

func TestIssueLetsEncrypt_InvalidDomain(t *testing.T) {
	f := newFixture(t, Options{DefaultEmail: "ops@example.com"})
	for _, d := range []string{"", "no spaces.com", "-bad.example.com", "localhost", "*.example.com"} {
		_, err := f.mgr.IssueLetsEncrypt(context.Background(), d, "", false)
		assert.Equal(t, core.InvalidInput, core.KindOf(err), d)
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, core.RateLimited, core.KindOf(classify(&acme.Error{ProblemType: problemRateLimited, StatusCode: 403}, "x")))
	assert.Equal(t, core.RateLimited, core.KindOf(classify(&acme.Error{StatusCode: 429}, "x")))
	assert.Equal(t, core.ValidationFailed, core.KindOf(classify(&acme.Error{ProblemType: "urn:ietf:params:acme:error:rejectedIdentifier", StatusCode: 400}, "x")))
	assert.Equal(t, core.ValidationFailed, core.KindOf(classify(&acme.OrderError{Status: acme.StatusInvalid}, "x")))
	assert.Equal(t, core.Unavailable, core.KindOf(classify(errors.New("dial tcp: connection refused"), "x")))
	assert.ErrorIs(t, classify(context.Canceled, "x"), context.Canceled)
}

func TestRenew_TooEarlyThenDue(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.issueLE(t, "shop.example.com")
	issuedExpiry := c.ExpiresAt

	f.clock = f.clock.Add(5 * day)
	_, err := f.mgr.Renew(context.Background(), c.ID, false)
	assert.Equal(t, core.TooEarly, core.KindOf(err))

	f.clock = f.clock.Add(60 * day) // 65 days after issuance
	renewed, err := f.mgr.Renew(context.Background(), c.ID, false)
	require.NoError(t, err)
	assert.Equal(t, c.ID, renewed.ID, "renewal keeps the id")
	assert.Equal(t, f.clock.Add(90*day), renewed.ExpiresAt)
	assert.True(t, renewed.ExpiresAt.After(issuedExpiry))
	assert.Equal(t, f.clock, renewed.IssuedAt)

	list, _ := f.mgr.List(context.Background())
	assert.Len(t, list, 1)
}

func TestRenew_Force(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.issueLE(t, "shop.example.com")
	f.clock = f.clock.Add(day)

	renewed, err := f.mgr.Renew(context.Background(), c.ID, true)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Add(90*day), renewed.ExpiresAt)
}

func TestRenew_OnlyLetsEncrypt(t *testing.T) {
	f := newFixture(t, Options{})
	c, err := f.mgr.IssueSelfSigned(context.Background(), "internal.example.com")
	require.NoError(t, err)

	_, err = f.mgr.Renew(context.Background(), c.ID, true)
	assert.Equal(t, core.InvalidInput, core.KindOf(err))

	_, err = f.mgr.Renew(context.Background(), "missing", true)
	assert.Equal(t, core.NotFound, core.KindOf(err))
}

func TestIssueSelfSigned_DomainUnique(t *testing.T) {
	f := newFixture(t, Options{})
	c, err := f.mgr.IssueSelfSigned(context.Background(), "internal.example.com")
	require.NoError(t, err)
	assert.Equal(t, model.ProviderSelfSigned, c.Provider)
	assert.Equal(t, model.CertValid, c.Status)

	_, err = f.mgr.IssueSelfSigned(context.Background(), "internal.example.com")
	assert.Equal(t, core.AlreadyExists, core.KindOf(err))

	require.NoError(t, f.mgr.Delete(context.Background(), c.ID))
	_, err = f.mgr.IssueSelfSigned(context.Background(), "internal.example.com")
	assert.NoError(t, err, "domain reusable after delete")
}

func TestUploadCustom(t *testing.T) {
	f := newFixture(t, Options{})
	pair, err := SelfSign("custom.example.com", f.clock, nil)
	require.NoError(t, err)

	c, err := f.mgr.UploadCustom(context.Background(), "custom.example.com", pair.CertPEM, pair.KeyPEM)
	require.NoError(t, err)
	assert.Equal(t, model.ProviderCustom, c.Provider)
	assert.Equal(t, pair.ExpiresAt, c.ExpiresAt)
}

func TestStatusDerivedOnRead(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.issueLE(t, "shop.example.com")

	f.clock = f.clock.Add(70 * day)
	got, err := f.mgr.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CertExpiring, got.Status)

	f.clock = f.clock.Add(30 * day)
	got, err = f.mgr.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CertExpired, got.Status)
}

func TestRenewDue(t *testing.T) {
	f := newFixture(t, Options{})
	due := f.issueLE(t, "due.example.com")
	f.clock = f.clock.Add(40 * day)
	fresh := f.issueLE(t, "fresh.example.com")
	_, err := f.mgr.IssueSelfSigned(context.Background(), "self.example.com")
	require.NoError(t, err)

	f.clock = f.clock.Add(25 * day)
	n, err := f.mgr.RenewDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := f.mgr.Get(context.Background(), due.ID)
	assert.Equal(t, f.clock.Add(90*day), got.ExpiresAt)
	got, _ = f.mgr.Get(context.Background(), fresh.ID)
	assert.Equal(t, fresh.ExpiresAt, got.ExpiresAt)
}

func TestCertDirFiles(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t, Options{CertDir: dir})
	c := f.issueLE(t, "files.example.com")

	key, err := os.ReadFile(filepath.Join(dir, "files.example.com", "privkey.pem"))
	require.NoError(t, err)
	assert.Equal(t, "KEY files.example.com", string(key))
	full, err := os.ReadFile(filepath.Join(dir, "files.example.com", "fullchain.pem"))
	require.NoError(t, err)
	assert.Equal(t, "CERT files.example.comCHAIN", string(full))

	require.NoError(t, f.mgr.Delete(context.Background(), c.ID))
	_, err = os.Stat(filepath.Join(dir, "files.example.com"))
	assert.True(t, os.IsNotExist(err))
}

func TestCheckExpiry(t *testing.T) {
	f := newFixture(t, Options{})
	start := f.clock
	a := f.issueLE(t, "a.example.com")
	f.clock = start.Add(10 * day)
	c := f.issueLE(t, "c.example.com")
	f.clock = start.Add(65 * day)
	f.issueLE(t, "b.example.com")

	f.clock = start.Add(95 * day)
	report, err := f.mgr.CheckExpiry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Valid)
	require.Len(t, report.Expired, 1)
	assert.Equal(t, a.ID, report.Expired[0].ID)
	assert.Equal(t, -5, report.Expired[0].DaysLeft)
	require.Len(t, report.Expiring, 1)
	assert.Equal(t, c.ID, report.Expiring[0].ID)
	assert.Equal(t, 5, report.Expiring[0].DaysLeft)
}

func TestCheckExpiry_Empty(t *testing.T) {
	f := newFixture(t, Options{})
	report, err := f.mgr.CheckExpiry(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Total)
	assert.NotNil(t, report.Expiring)
	assert.NotNil(t, report.Expired)
}
