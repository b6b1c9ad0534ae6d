package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"time"

	"github.com/edvin/panel/internal/core"
)

// SelfSignedValidity is the lifetime of generated certificates.
const SelfSignedValidity = 365 * 24 * time.Hour

// SelfSign generates an ECDSA P-256 key and a certificate for domain signed
// by that key. random is normally crypto/rand.Reader.
func SelfSign(domain string, now time.Time, random io.Reader) (Issued, error) {
	if random == nil {
		random = rand.Reader
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), random)
	if err != nil {
		return Issued{}, core.Wrap(core.CryptoError, err, "generate key")
	}

	serial, err := rand.Int(random, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return Issued{}, core.Wrap(core.CryptoError, err, "generate serial")
	}

	notBefore := now.UTC().Truncate(time.Second)
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: domain},
		Issuer:                pkix.Name{CommonName: domain},
		DNSNames:              []string{domain},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(SelfSignedValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(random, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return Issued{}, core.Wrap(core.CryptoError, err, "sign certificate")
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return Issued{}, core.Wrap(core.CryptoError, err, "marshal key")
	}

	return Issued{
		CertPEM:   string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})),
		KeyPEM:    string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})),
		Issuer:    domain,
		IssuedAt:  tmpl.NotBefore,
		ExpiresAt: tmpl.NotAfter,
	}, nil
}
