// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

package mkcerts

import (
	"crypto/tls"
	"crypto/x509"
	"path/filepath"
	"testing"
)

func TestCreateCert(t *testing.T) {
	dir := t.TempDir()
	cert, key := filepath.Join(dir, "tls.crt"), filepath.Join(dir, "tls.key")

	if err := CreateCert("Ergo", "irc.proxy", cert, key); err != nil {
		t.Fatal(err)
	}
	pair, err := tls.LoadX509KeyPair(cert, key)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		t.Fatal(err)
	}
	if err := parsed.VerifyHostname("irc.proxy"); err != nil {
		t.Error(err)
	}
	if err := parsed.VerifyHostname("127.0.0.1"); err != nil {
		t.Error(err)
	}

	// existing files are never overwritten
	if err := CreateCert("Ergo", "irc.proxy", cert, key); err == nil {
		t.Errorf("expected an error when the certificate already exists")
	}
}
