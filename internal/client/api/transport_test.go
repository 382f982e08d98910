package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// generateCACert produces a self-signed CA certificate and key in PEM form.
func generateCACert(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test CA"},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return certPEM, keyPEM
}

func TestNewHTTPClient_Plain(t *testing.T) {
	c, err := NewHTTPClient(TLSOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Timeout != 0 {
		t.Errorf("Timeout = %v; want 0 (timeouts are per request)", c.Timeout)
	}
}

func TestNewHTTPClient_MissingCA(t *testing.T) {
	_, err := NewHTTPClient(TLSOptions{CAFile: "nonexistent.pem"})
	if err == nil || !strings.Contains(err.Error(), "failed to read CA cert") {
		t.Errorf("expected read CA error, got %v", err)
	}
}

func TestNewHTTPClient_InvalidCA(t *testing.T) {
	caPath := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(caPath, []byte("invalid pem"), 0600); err != nil {
		t.Fatalf("failed to write CA file: %v", err)
	}
	_, err := NewHTTPClient(TLSOptions{CAFile: caPath})
	if err == nil || !strings.Contains(err.Error(), "failed to parse CA cert") {
		t.Errorf("expected parse CA error, got %v", err)
	}
}

func TestNewHTTPClient_WithClientCert(t *testing.T) {
	certPEM, keyPEM := generateCACert(t)
	tmp := t.TempDir()
	certPath := filepath.Join(tmp, "client.crt")
	keyPath := filepath.Join(tmp, "client.key")
	caPath := filepath.Join(tmp, "ca.pem")
	for path, data := range map[string][]byte{certPath: certPEM, keyPath: keyPEM, caPath: certPEM} {
		if err := os.WriteFile(path, data, 0600); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}

	c, err := NewHTTPClient(TLSOptions{CAFile: caPath, CertFile: certPath, KeyFile: keyPath})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	tcfg := c.Transport.(*http.Transport).TLSClientConfig
	if len(tcfg.Certificates) != 1 {
		t.Errorf("expected 1 client certificate, got %d", len(tcfg.Certificates))
	}
	found := false
	for _, subj := range tcfg.RootCAs.Subjects() {
		if bytes.Contains(subj, []byte("Test CA")) {
			found = true
			break
		}
	}
	if !found {
		t.Error("CA certificate not found in RootCAs")
	}
}

func TestFileToken(t *testing.T) {
	ft := FileToken{Path: filepath.Join(t.TempDir(), "session", "token")}
	ctx := context.Background()

	tok, err := ft.Token(ctx)
	if err != nil || tok != "" {
		t.Fatalf("Token() on missing file = %q, %v", tok, err)
	}
	if err := ft.Save("abc\n"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(ft.Path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v; want 0600", info.Mode().Perm())
	}
	if tok, _ := ft.Token(ctx); tok != "abc" {
		t.Errorf("Token() = %q; want abc", tok)
	}
	if err := ft.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := ft.Clear(); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
}
