package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/atinyakov/FinKeeper/internal/client/api"
)

func TestGenerateCA(t *testing.T) {
	caCert, _, err := generateCA()
	if err != nil {
		t.Fatalf("generateCA: %v", err)
	}

	if !caCert.IsCA || !caCert.BasicConstraintsValid {
		t.Error("CA certificate should have IsCA and BasicConstraintsValid")
	}
	wantKU := x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature
	if caCert.KeyUsage&wantKU != wantKU {
		t.Errorf("CA KeyUsage = %v; want bits %v", caCert.KeyUsage, wantKU)
	}
	if dur := caCert.NotAfter.Sub(caCert.NotBefore); dur < 9*365*24*time.Hour {
		t.Errorf("CA validity too short: %v", dur)
	}
}

func TestGenerateCert_SplitsSANs(t *testing.T) {
	caCert, caKey, err := generateCA()
	if err != nil {
		t.Fatalf("generateCA: %v", err)
	}
	cert, _, err := generateCert("localhost", []string{"localhost", " 127.0.0.1", ""}, x509.ExtKeyUsageServerAuth, caCert, caKey)
	if err != nil {
		t.Fatalf("generateCert: %v", err)
	}

	if cert.Subject.CommonName != "localhost" {
		t.Errorf("CommonName = %q; want localhost", cert.Subject.CommonName)
	}
	if !reflect.DeepEqual(cert.DNSNames, []string{"localhost"}) {
		t.Errorf("DNSNames = %v; want [localhost]", cert.DNSNames)
	}
	if len(cert.IPAddresses) != 1 || cert.IPAddresses[0].String() != "127.0.0.1" {
		t.Errorf("IPAddresses = %v; want [127.0.0.1]", cert.IPAddresses)
	}
	if !reflect.DeepEqual(cert.ExtKeyUsage, []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}) {
		t.Errorf("ExtKeyUsage = %v; want ServerAuth", cert.ExtKeyUsage)
	}
	if err := cert.CheckSignatureFrom(caCert); err != nil {
		t.Errorf("certificate not signed by CA: %v", err)
	}
}

func TestRun_ServesHTTPSToClient(t *testing.T) {
	dir := t.TempDir()
	if err := run(options{dir: dir, hosts: []string{"localhost", "127.0.0.1"}, client: "ann"}); err != nil {
		t.Fatalf("run: %v", err)
	}

	for _, name := range []string{"ca", "server", "client"} {
		info, err := os.Stat(filepath.Join(dir, name+".key"))
		if err != nil {
			t.Fatalf("stat %s.key: %v", name, err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("%s.key mode = %v; want 0600", name, perm)
		}
	}

	cert, err := tls.LoadX509KeyPair(filepath.Join(dir, "server.crt"), filepath.Join(dir, "server.key"))
	if err != nil {
		t.Fatalf("load server pair: %v", err)
	}
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	srv.TLS = &tls.Config{Certificates: []tls.Certificate{cert}}
	srv.StartTLS()
	defer srv.Close()

	ctx := context.Background()

	hc, err := api.NewHTTPClient(api.TLSOptions{
		CAFile:   filepath.Join(dir, "ca.crt"),
		CertFile: filepath.Join(dir, "client.crt"),
		KeyFile:  filepath.Join(dir, "client.key"),
	})
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	if err := api.New(srv.URL, hc, nil, api.Options{}).Health(ctx); err != nil {
		t.Errorf("Health with dev CA: %v", err)
	}

	plain, err := api.NewHTTPClient(api.TLSOptions{})
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	if err := api.New(srv.URL, plain, nil, api.Options{}).Health(ctx); err == nil {
		t.Error("Health without the dev CA should fail verification")
	}
}
