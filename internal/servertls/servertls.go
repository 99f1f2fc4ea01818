// Package servertls builds the TLS configuration for the HTTP API.
package servertls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"
)

// TLS modes accepted by Build.
const (
	ModeOff        = "off"
	ModeFile       = "file"
	ModeSelfSigned = "self-signed"
)

// selfSignedValidity is how long a generated certificate stays valid.
const selfSignedValidity = 90 * 24 * time.Hour

// defaultHosts are the SANs used when no hosts are configured.
var defaultHosts = []string{"localhost", "127.0.0.1"}

// Build returns the TLS configuration for mode. It returns nil, nil for
// ModeOff or an empty mode, meaning the API is served in plain HTTP.
func Build(mode, certFile, keyFile string, hosts []string) (*tls.Config, error) {
	var cert tls.Certificate

	switch mode {
	case ModeOff, "":
		return nil, nil

	case ModeFile:
		if certFile == "" || keyFile == "" {
			return nil, fmt.Errorf("tls mode %q requires a certificate and key file", mode)
		}
		if _, err := os.Stat(certFile); err != nil {
			return nil, fmt.Errorf("certificate file not found: %w", err)
		}
		if _, err := os.Stat(keyFile); err != nil {
			return nil, fmt.Errorf("key file not found: %w", err)
		}
		loaded, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
		}
		cert = loaded

	case ModeSelfSigned:
		generated, err := SelfSigned(hosts)
		if err != nil {
			return nil, fmt.Errorf("failed to generate self-signed cert: %w", err)
		}
		cert = *generated

	default:
		return nil, fmt.Errorf("unknown tls mode %q", mode)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// SelfSigned generates an in-memory ECDSA P-256 certificate for hosts.
// Entries that parse as IP addresses become IP SANs; the rest become DNS
// SANs. The first host is used as the common name. Nothing is written to
// disk.
func SelfSigned(hosts []string) (*tls.Certificate, error) {
	if len(hosts) == 0 {
		hosts = defaultHosts
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECDSA key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               pkix.Name{CommonName: hosts[0], Organization: []string{"mailcode"}},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(selfSignedValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	cert, err := tls.X509KeyPair(
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER}),
		pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create X509 key pair: %w", err)
	}

	return &cert, nil
}
