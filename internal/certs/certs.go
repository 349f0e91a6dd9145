// Package certs manages the self-signed TLS material used when no
// commercial certificate is configured. Clients pin the certificate by its
// SHA256 fingerprint, which is also published over Bonjour.
package certs

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	organization  = "RemotePrompt Self-Signed"
	validity      = 10 * 365 * 24 * time.Hour
	backupKeep    = 5
	defaultBits   = 4096
	backupPattern = ".bak-"
)

// Params describes the certificate to generate.
type Params struct {
	CertFile string
	KeyFile  string
	Hostname string
	IPs      []string
	// Bits overrides the RSA key size; zero means 4096.
	Bits int
}

// Details is the inspectable summary of an on-disk certificate.
type Details struct {
	Subject     string    `json:"subject"`
	Issuer      string    `json:"issuer"`
	NotBefore   time.Time `json:"not_before"`
	NotAfter    time.Time `json:"not_after"`
	DNSNames    []string  `json:"dns_names"`
	IPAddresses []string  `json:"ip_addresses"`
	Fingerprint string    `json:"fingerprint"`
}

// Generate writes a fresh self-signed certificate and key, creating parent
// directories as needed. The key file is written with 0600.
func Generate(p Params) error {
	bits := p.Bits
	if bits == 0 {
		bits = defaultBits
	}
	hostname := p.Hostname
	if hostname == "" {
		hostname = "localhost"
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return fmt.Errorf("generate rsa key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("generate serial: %w", err)
	}

	dnsNames := []string{hostname}
	if hostname != "localhost" {
		dnsNames = append(dnsNames, "localhost")
	}
	var ips []net.IP
	for _, raw := range p.IPs {
		if ip := net.ParseIP(raw); ip != nil {
			ips = append(ips, ip)
		}
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   hostname,
			Organization: []string{organization},
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              dnsNames,
		IPAddresses:           ips,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(p.CertFile), 0o755); err != nil {
		return fmt.Errorf("create cert dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.KeyFile), 0o755); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(p.CertFile, certPEM, 0o644); err != nil {
		return fmt.Errorf("write certificate: %w", err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(p.KeyFile, keyPEM, 0o600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}

	log.Printf("certs: generated self-signed certificate for %s at %s", hostname, p.CertFile)
	return nil
}

// Ensure generates the certificate only when either file is missing. It
// reports whether new material was written.
func Ensure(p Params) (bool, error) {
	_, certErr := os.Stat(p.CertFile)
	_, keyErr := os.Stat(p.KeyFile)
	if certErr == nil && keyErr == nil {
		return false, nil
	}
	if err := Generate(p); err != nil {
		return false, err
	}
	return true, nil
}

// Rotate backs up the current certificate and key with a timestamp suffix,
// prunes old backups down to five, and generates fresh material.
func Rotate(p Params) error {
	stamp := time.Now().Format("20060102-150405")
	for _, path := range []string{p.CertFile, p.KeyFile} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		backup := path + backupPattern + stamp
		if err := os.Rename(path, backup); err != nil {
			return fmt.Errorf("back up %s: %w", path, err)
		}
		if err := pruneBackups(path); err != nil {
			return err
		}
	}
	return Generate(p)
}

func pruneBackups(path string) error {
	matches, err := filepath.Glob(path + backupPattern + "*")
	if err != nil {
		return fmt.Errorf("list backups: %w", err)
	}
	if len(matches) <= backupKeep {
		return nil
	}
	// The timestamp suffix sorts lexicographically in time order.
	sort.Strings(matches)
	for _, stale := range matches[:len(matches)-backupKeep] {
		if err := os.Remove(stale); err != nil {
			return fmt.Errorf("prune backup %s: %w", stale, err)
		}
	}
	return nil
}

// Fingerprint returns the certificate's SHA256 digest in the colon-separated
// form clients pin against, e.g. "SHA256:AB:CD:...".
func Fingerprint(certFile string) (string, error) {
	cert, err := readCertificate(certFile)
	if err != nil {
		return "", err
	}
	return fingerprint(cert.Raw), nil
}

// Info parses the on-disk certificate into a Details summary.
func Info(certFile string) (Details, error) {
	cert, err := readCertificate(certFile)
	if err != nil {
		return Details{}, err
	}
	ips := make([]string, 0, len(cert.IPAddresses))
	for _, ip := range cert.IPAddresses {
		ips = append(ips, ip.String())
	}
	return Details{
		Subject:     cert.Subject.String(),
		Issuer:      cert.Issuer.String(),
		NotBefore:   cert.NotBefore,
		NotAfter:    cert.NotAfter,
		DNSNames:    cert.DNSNames,
		IPAddresses: ips,
		Fingerprint: fingerprint(cert.Raw),
	}, nil
}

func readCertificate(certFile string) (*x509.Certificate, error) {
	pemBytes, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("read certificate: %w", err)
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("no certificate block in %s", certFile)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	return cert, nil
}

func fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return "SHA256:" + strings.Join(parts, ":")
}
