package certs

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/panel/internal/core"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestSelfSign(t *testing.T) {
	now := time.Date(2026, 1, 10, 8, 30, 0, 0, time.UTC)
	issued, err := SelfSign("panel.example.com", now, nil)
	require.NoError(t, err)

	block, _ := pem.Decode([]byte(issued.CertPEM))
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)

	assert.Equal(t, []string{"panel.example.com"}, cert.DNSNames)
	assert.Equal(t, now, issued.IssuedAt)
	assert.Equal(t, now.Add(SelfSignedValidity), issued.ExpiresAt)
	assert.NoError(t, cert.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature), "self-signed")
	assert.Contains(t, issued.KeyPEM, "EC PRIVATE KEY")
}

func TestSelfSign_KeyFailure(t *testing.T) {
	_, err := SelfSign("panel.example.com", time.Now(), failingReader{})
	assert.Equal(t, core.CryptoError, core.KindOf(err))
}

func TestParseCustom(t *testing.T) {
	now := time.Now()
	a, err := SelfSign("shop.example.com", now, nil)
	require.NoError(t, err)
	b, err := SelfSign("blog.example.com", now, nil)
	require.NoError(t, err)

	got, err := ParseCustom("shop.example.com", a.CertPEM, a.KeyPEM, now)
	require.NoError(t, err)
	assert.Equal(t, a.ExpiresAt, got.ExpiresAt)
	assert.Equal(t, "shop.example.com", got.Issuer)

	_, err = ParseCustom("shop.example.com", a.CertPEM, b.KeyPEM, now)
	assert.Equal(t, core.InvalidInput, core.KindOf(err), "mismatched key")

	_, err = ParseCustom("blog.example.com", a.CertPEM, a.KeyPEM, now)
	assert.Equal(t, core.InvalidInput, core.KindOf(err), "wrong domain")

	_, err = ParseCustom("shop.example.com", a.CertPEM, a.KeyPEM, now.Add(2*SelfSignedValidity))
	assert.Equal(t, core.InvalidInput, core.KindOf(err), "expired")

	_, err = ParseCustom("shop.example.com", "garbage", "garbage", now)
	assert.Equal(t, core.InvalidInput, core.KindOf(err))
}
