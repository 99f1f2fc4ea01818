package servertls

import (
	"crypto/ecdsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func parseLeaf(t *testing.T, cert *tls.Certificate) *x509.Certificate {
	t.Helper()

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}
	return leaf
}

func TestSelfSigned_DefaultHosts(t *testing.T) {
	t.Parallel()

	cert, err := SelfSigned(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	leaf := parseLeaf(t, cert)

	if leaf.Subject.CommonName != "localhost" {
		t.Errorf("CN: got %q, want %q", leaf.Subject.CommonName, "localhost")
	}
	if !slices.Contains(leaf.DNSNames, "localhost") {
		t.Errorf("DNS SANs: %v does not contain localhost", leaf.DNSNames)
	}
	if len(leaf.IPAddresses) != 1 || leaf.IPAddresses[0].String() != "127.0.0.1" {
		t.Errorf("IP SANs: got %v, want [127.0.0.1]", leaf.IPAddresses)
	}
	if _, ok := leaf.PublicKey.(*ecdsa.PublicKey); !ok {
		t.Error("public key is not ECDSA")
	}
	if got := leaf.NotAfter.Sub(leaf.NotBefore); got < selfSignedValidity || got > selfSignedValidity+time.Hour {
		t.Errorf("validity: got %v, want about %v", got, selfSignedValidity)
	}
}

func TestSelfSigned_CustomHosts(t *testing.T) {
	t.Parallel()

	cert, err := SelfSigned([]string{"mailcode.internal", "10.0.0.5", "::1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	leaf := parseLeaf(t, cert)

	if leaf.Subject.CommonName != "mailcode.internal" {
		t.Errorf("CN: got %q, want %q", leaf.Subject.CommonName, "mailcode.internal")
	}
	if len(leaf.DNSNames) != 1 {
		t.Errorf("DNS SANs: got %v, want [mailcode.internal]", leaf.DNSNames)
	}
	if len(leaf.IPAddresses) != 2 {
		t.Errorf("IP SANs: got %v, want 2 entries", leaf.IPAddresses)
	}
}

func TestBuild_Off(t *testing.T) {
	t.Parallel()

	for _, mode := range []string{"", ModeOff} {
		cfg, err := Build(mode, "", "", nil)
		if err != nil {
			t.Errorf("Build(%q): unexpected error: %v", mode, err)
		}
		if cfg != nil {
			t.Errorf("Build(%q): got config, want nil", mode)
		}
	}
}

func TestBuild_SelfSigned(t *testing.T) {
	t.Parallel()

	cfg, err := Build(ModeSelfSigned, "", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Errorf("Certificates: got %d, want 1", len(cfg.Certificates))
	}
	if cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion: got %d, want TLS 1.2 (%d)", cfg.MinVersion, tls.VersionTLS12)
	}
}

func TestBuild_FromFiles(t *testing.T) {
	t.Parallel()

	cert, err := SelfSigned(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")

	keyDER, err := x509.MarshalECPrivateKey(cert.PrivateKey.(*ecdsa.PrivateKey))
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate[0]}), 0o600); err != nil {
		t.Fatalf("failed to write cert: %v", err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}

	cfg, err := Build(ModeFile, certFile, keyFile, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Errorf("Certificates: got %d, want 1", len(cfg.Certificates))
	}
}

func TestBuild_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mode     string
		certFile string
		keyFile  string
	}{
		{name: "file mode without paths", mode: ModeFile},
		{name: "missing files", mode: ModeFile, certFile: "/nonexistent/cert.pem", keyFile: "/nonexistent/key.pem"},
		{name: "unknown mode", mode: "mutual"},
	}

	for _, tt := range tests {
		if _, err := Build(tt.mode, tt.certFile, tt.keyFile, nil); err == nil {
			t.Errorf("%s: expected error, got nil", tt.name)
		}
	}
}
