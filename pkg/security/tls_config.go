package security

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

var ErrCertificateNotPinned = errors.New("certificate not pinned")

// ClientTLSConfig configures outbound TLS to a backend such as the signing
// service. All fields are optional.
type ClientTLSConfig struct {
	CAFile      string   // trust only this CA instead of the system pool
	CertFile    string   // client certificate for mTLS
	KeyFile     string
	PinnedCerts []string // hex SHA256 fingerprints, any chain certificate may match
}

// Enabled reports whether anything differs from the default transport
func (c ClientTLSConfig) Enabled() bool {
	return c.CAFile != "" || c.CertFile != "" || len(c.PinnedCerts) > 0
}

// BuildTLSConfig creates the client tls.Config
func (c ClientTLSConfig) BuildTLSConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP384,
			tls.CurveP256,
		},
	}

	if c.CertFile != "" || c.KeyFile != "" {
		if c.CertFile == "" || c.KeyFile == "" {
			return nil, fmt.Errorf("client certificate requires both cert and key files")
		}
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if c.CAFile != "" {
		caCert, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = pool
	}

	if len(c.PinnedCerts) > 0 {
		tlsConfig.VerifyPeerCertificate = PinVerifier(c.PinnedCerts)
	}

	return tlsConfig, nil
}

// NewClientTransport returns an http.Transport using the configured TLS
func (c ClientTLSConfig) NewClientTransport() (*http.Transport, error) {
	tlsConfig, err := c.BuildTLSConfig()
	if err != nil {
		return nil, err
	}
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     tlsConfig,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}, nil
}

// PinVerifier accepts a verified chain only when one of its certificates has a
// pinned fingerprint. It runs after normal chain verification.
func PinVerifier(fingerprints []string) func([][]byte, [][]*x509.Certificate) error {
	pinned := make(map[string]bool, len(fingerprints))
	for _, fp := range fingerprints {
		pinned[normalizeFingerprint(fp)] = true
	}
	return func(_ [][]byte, verifiedChains [][]*x509.Certificate) error {
		for _, chain := range verifiedChains {
			for _, cert := range chain {
				if pinned[CertificateFingerprint(cert)] {
					return nil
				}
			}
		}
		return ErrCertificateNotPinned
	}
}

// CertificateFingerprint returns SHA256 fingerprint of a certificate
func CertificateFingerprint(cert *x509.Certificate) string {
	hash := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(hash[:])
}

// normalizeFingerprint accepts the colon separated form openssl prints
func normalizeFingerprint(fp string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(fp), ":", ""))
}
