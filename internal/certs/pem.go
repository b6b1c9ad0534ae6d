package certs

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"
	"time"

	"github.com/edvin/panel/internal/core"
)

// Issued is a freshly obtained certificate with its key.
type Issued struct {
	CertPEM   string
	KeyPEM    string
	ChainPEM  string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ParseCustom validates an uploaded certificate and key: they must form a
// pair, the certificate must cover domain and it must not have expired.
// Any chain certificates following the leaf are kept as the chain.
func ParseCustom(domain, certPEM, keyPEM string, now time.Time) (Issued, error) {
	pair, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
	if err != nil {
		return Issued{}, core.Wrap(core.InvalidInput, err, "certificate and key do not match")
	}

	keyBlock, _ := pem.Decode([]byte(keyPEM))
	if keyBlock == nil {
		return Issued{}, core.Errorf(core.InvalidInput, "failed to decode private key PEM")
	}
	if _, err := parsePrivateKey(keyBlock.Bytes); err != nil {
		return Issued{}, core.Wrap(core.InvalidInput, err, "private key")
	}

	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return Issued{}, core.Wrap(core.InvalidInput, err, "failed to parse certificate")
	}
	if now.After(leaf.NotAfter) {
		return Issued{}, core.Errorf(core.InvalidInput, "certificate has expired at %s", leaf.NotAfter.Format(time.RFC3339))
	}
	if err := leaf.VerifyHostname(domain); err != nil {
		return Issued{}, core.Wrap(core.InvalidInput, err, "certificate does not cover %s", domain)
	}

	var chain strings.Builder
	for _, der := range pair.Certificate[1:] {
		chain.Write(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
	}

	return Issued{
		CertPEM:   string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: pair.Certificate[0]})),
		KeyPEM:    keyPEM,
		ChainPEM:  chain.String(),
		Issuer:    leaf.Issuer.CommonName,
		IssuedAt:  leaf.NotBefore,
		ExpiresAt: leaf.NotAfter,
	}, nil
}

// parsePrivateKey tries to parse a private key in PKCS8, PKCS1, or EC formats.
func parsePrivateKey(der []byte) (any, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		switch key.(type) {
		case *rsa.PrivateKey, *ecdsa.PrivateKey, ed25519.PrivateKey:
			return key, nil
		default:
			return nil, fmt.Errorf("unsupported private key type in PKCS8")
		}
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("failed to parse private key")
}
