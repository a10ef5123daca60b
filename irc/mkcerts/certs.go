// Copyright (c) 2016 Daniel Oaks <daniel@danieloaks.net>
// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

// Package mkcerts generates self-signed certificates for the downstream
// TLS listener.
package mkcerts

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"
)

const validFor = 365 * 24 * time.Hour

// CreateCertBytes creates a self-signed ECDSA certificate for host (plus
// localhost and the loopback addresses), returning the PEM cert and key.
func CreateCertBytes(orgName string, host string) (certBytes []byte, keyBytes []byte, err error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key: %w", err)
	}

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	validFrom := time.Now()
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{orgName},
			CommonName:   host,
		},
		NotBefore: validFrom,
		NotAfter:  validFrom.Add(validFor),

		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
		DNSNames:              []string{"localhost"},
	}
	if host != "" && host != "localhost" {
		template.DNSNames = append(template.DNSNames, host)
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	certBytes = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes})

	b, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to marshal ECDSA private key: %w", err)
	}
	keyBytes = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: b})
	return certBytes, keyBytes, nil
}

// CreateCert writes a new certificate and key to the given files, refusing
// to overwrite either.
func CreateCert(orgName string, host string, certFilename string, keyFilename string) error {
	certBytes, keyBytes, err := CreateCertBytes(orgName, host)
	if err != nil {
		return err
	}

	if err := writeNew(certFilename, certBytes, 0644); err != nil {
		return err
	}
	if err := writeNew(keyFilename, keyBytes, 0600); err != nil {
		os.Remove(certFilename)
		return err
	}
	return nil
}

func writeNew(filename string, data []byte, perm os.FileMode) error {
	out, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("failed to open %s for writing: %w", filename, err)
	}
	defer out.Close()
	if _, err = out.Write(data); err != nil {
		return fmt.Errorf("failed to write out %s: %w", filename, err)
	}
	return nil
}
