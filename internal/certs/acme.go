package certs

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/acme"

	"github.com/edvin/panel/internal/core"
)

const problemRateLimited = "urn:ietf:params:acme:error:rateLimited"

// Issuer obtains a certificate for a domain from a certificate authority.
type Issuer interface {
	Issue(ctx context.Context, domain, email string) (Issued, error)
}

// ACMEIssuer orders certificates over ACME with HTTP-01 validation. The
// challenge response is written below Webroot, which the web server is
// expected to serve at /.well-known/acme-challenge/.
type ACMEIssuer struct {
	directoryURL string
	webroot      string
	logger       zerolog.Logger

	mu         sync.Mutex
	client     *acme.Client
	registered map[string]bool
}

func NewACMEIssuer(directoryURL, webroot string, logger zerolog.Logger) *ACMEIssuer {
	return &ACMEIssuer{
		directoryURL: directoryURL,
		webroot:      webroot,
		logger:       logger.With().Str("component", "acme").Logger(),
		registered:   make(map[string]bool),
	}
}

// account returns a client whose account is registered for email. The
// account key lives for the life of the process.
func (a *ACMEIssuer) account(ctx context.Context, email string) (*acme.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client == nil {
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, core.Wrap(core.CryptoError, err, "generate account key")
		}
		a.client = &acme.Client{Key: key, DirectoryURL: a.directoryURL}
	}
	if !a.registered[email] {
		acct := &acme.Account{Contact: []string{"mailto:" + email}}
		if _, err := a.client.Register(ctx, acct, acme.AcceptTOS); err != nil && !errors.Is(err, acme.ErrAccountAlreadyExists) {
			return nil, classify(err, "register ACME account")
		}
		a.registered[email] = true
	}
	return a.client, nil
}

func (a *ACMEIssuer) Issue(ctx context.Context, domain, email string) (Issued, error) {
	client, err := a.account(ctx, email)
	if err != nil {
		return Issued{}, err
	}

	order, err := client.AuthorizeOrder(ctx, acme.DomainIDs(domain))
	if err != nil {
		return Issued{}, classify(err, "authorize order")
	}

	for _, authzURL := range order.AuthzURLs {
		if err := a.authorize(ctx, client, authzURL); err != nil {
			return Issued{}, err
		}
	}

	order, err = client.WaitOrder(ctx, order.URI)
	if err != nil {
		return Issued{}, classify(err, "wait order")
	}

	certKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return Issued{}, core.Wrap(core.CryptoError, err, "generate cert key")
	}
	csr, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		DNSNames: []string{domain},
	}, certKey)
	if err != nil {
		return Issued{}, core.Wrap(core.CryptoError, err, "create CSR")
	}

	certDER, _, err := client.CreateOrderCert(ctx, order.FinalizeURL, csr, true)
	if err != nil {
		return Issued{}, classify(err, "finalize order")
	}
	if len(certDER) == 0 {
		return Issued{}, core.Errorf(core.ValidationFailed, "CA returned no certificate for %s", domain)
	}

	var certPEM, chainPEM []byte
	for i, der := range certDER {
		block := &pem.Block{Type: "CERTIFICATE", Bytes: der}
		if i == 0 {
			certPEM = pem.EncodeToMemory(block)
		} else {
			chainPEM = append(chainPEM, pem.EncodeToMemory(block)...)
		}
	}

	keyDER, err := x509.MarshalECPrivateKey(certKey)
	if err != nil {
		return Issued{}, core.Wrap(core.CryptoError, err, "marshal cert key")
	}

	leaf, err := x509.ParseCertificate(certDER[0])
	if err != nil {
		return Issued{}, fmt.Errorf("parse issued cert: %w", err)
	}

	a.logger.Info().Str("domain", domain).Time("expires_at", leaf.NotAfter).Msg("certificate issued")
	return Issued{
		CertPEM:   string(certPEM),
		KeyPEM:    string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})),
		ChainPEM:  string(chainPEM),
		Issuer:    leaf.Issuer.CommonName,
		IssuedAt:  leaf.NotBefore,
		ExpiresAt: leaf.NotAfter,
	}, nil
}

// authorize completes the HTTP-01 challenge of one authorization.
func (a *ACMEIssuer) authorize(ctx context.Context, client *acme.Client, authzURL string) error {
	authz, err := client.GetAuthorization(ctx, authzURL)
	if err != nil {
		return classify(err, "get authorization")
	}
	if authz.Status == acme.StatusValid {
		return nil
	}

	var challenge *acme.Challenge
	for _, c := range authz.Challenges {
		if c.Type == "http-01" {
			challenge = c
			break
		}
	}
	if challenge == nil {
		return core.Errorf(core.ValidationFailed, "no http-01 challenge offered for %s", authz.Identifier.Value)
	}

	keyAuth, err := client.HTTP01ChallengeResponse(challenge.Token)
	if err != nil {
		return core.Wrap(core.CryptoError, err, "compute key authorization")
	}

	path := filepath.Join(a.webroot, filepath.FromSlash(client.HTTP01ChallengePath(challenge.Token)))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create challenge dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(keyAuth), 0o644); err != nil {
		return fmt.Errorf("write challenge: %w", err)
	}
	defer os.Remove(path)

	if _, err := client.Accept(ctx, challenge); err != nil {
		return classify(err, "accept challenge")
	}
	if _, err := client.WaitAuthorization(ctx, authz.URI); err != nil {
		return classify(err, "wait authorization")
	}
	return nil
}

// classify maps CA responses onto error kinds. Quota problems are
// RateLimited and other rejections are ValidationFailed.
func classify(err error, op string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var ae *acme.Error
	if errors.As(err, &ae) {
		if ae.ProblemType == problemRateLimited || ae.StatusCode == http.StatusTooManyRequests {
			return core.Wrap(core.RateLimited, err, "%s", op)
		}
		return core.Wrap(core.ValidationFailed, err, "%s", op)
	}
	var authzErr *acme.AuthorizationError
	var orderErr *acme.OrderError
	if errors.As(err, &authzErr) || errors.As(err, &orderErr) {
		return core.Wrap(core.ValidationFailed, err, "%s", op)
	}
	return core.Wrap(core.Unavailable, err, "%s: CA unreachable", op)
}
