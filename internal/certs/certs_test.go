package certs

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testParams(t *testing.T) Params {
	t.Helper()
	dir := t.TempDir()
	return Params{
		CertFile: filepath.Join(dir, "server.crt"),
		KeyFile:  filepath.Join(dir, "server.key"),
		Hostname: "myhost.local",
		IPs:      []string{"192.168.1.10", "not-an-ip"},
		Bits:     1024,
	}
}

func TestGenerateProducesLoadableKeypair(t *testing.T) {
	p := testParams(t)
	if err := Generate(p); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	if _, err := tls.LoadX509KeyPair(p.CertFile, p.KeyFile); err != nil {
		t.Fatalf("generated material does not load as keypair: %v", err)
	}

	info, err := os.Stat(p.KeyFile)
	if err != nil {
		t.Fatalf("stat key: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected key mode 0600, got %o", perm)
	}
}

func TestGenerateSubjectAndSANs(t *testing.T) {
	p := testParams(t)
	if err := Generate(p); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	details, err := Info(p.CertFile)
	if err != nil {
		t.Fatalf("Info returned error: %v", err)
	}
	if !strings.Contains(details.Subject, "CN=myhost.local") {
		t.Fatalf("unexpected subject %q", details.Subject)
	}
	if !strings.Contains(details.Subject, organization) {
		t.Fatalf("expected organization in subject, got %q", details.Subject)
	}

	wantDNS := map[string]bool{"myhost.local": true, "localhost": true}
	for _, name := range details.DNSNames {
		delete(wantDNS, name)
	}
	if len(wantDNS) != 0 {
		t.Fatalf("missing SAN names %v in %v", wantDNS, details.DNSNames)
	}

	if len(details.IPAddresses) != 1 || details.IPAddresses[0] != "192.168.1.10" {
		t.Fatalf("unexpected SAN IPs %v", details.IPAddresses)
	}

	if details.NotAfter.Sub(details.NotBefore) < 9*365*24*time.Hour {
		t.Fatalf("expected roughly ten year validity, got %v", details.NotAfter.Sub(details.NotBefore))
	}
}

func TestFingerprintFormat(t *testing.T) {
	p := testParams(t)
	if err := Generate(p); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	fp, err := Fingerprint(p.CertFile)
	if err != nil {
		t.Fatalf("Fingerprint returned error: %v", err)
	}
	if !strings.HasPrefix(fp, "SHA256:") {
		t.Fatalf("expected SHA256: prefix, got %q", fp)
	}
	hexPart := strings.TrimPrefix(fp, "SHA256:")
	segments := strings.Split(hexPart, ":")
	if len(segments) != 32 {
		t.Fatalf("expected 32 hex pairs, got %d in %q", len(segments), fp)
	}
	for _, seg := range segments {
		if len(seg) != 2 || strings.ToUpper(seg) != seg {
			t.Fatalf("expected uppercase hex pairs, got %q", seg)
		}
	}
}

func TestEnsureSkipsExistingMaterial(t *testing.T) {
	p := testParams(t)

	created, err := Ensure(p)
	if err != nil {
		t.Fatalf("Ensure returned error: %v", err)
	}
	if !created {
		t.Fatalf("expected first Ensure to create material")
	}
	before, err := Fingerprint(p.CertFile)
	if err != nil {
		t.Fatalf("Fingerprint returned error: %v", err)
	}

	created, err = Ensure(p)
	if err != nil {
		t.Fatalf("Ensure returned error: %v", err)
	}
	if created {
		t.Fatalf("expected second Ensure to keep existing material")
	}
	after, err := Fingerprint(p.CertFile)
	if err != nil {
		t.Fatalf("Fingerprint returned error: %v", err)
	}
	if before != after {
		t.Fatalf("Ensure replaced existing certificate")
	}
}

func TestRotateReplacesCertAndKeepsBackups(t *testing.T) {
	p := testParams(t)
	if err := Generate(p); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	before, err := Fingerprint(p.CertFile)
	if err != nil {
		t.Fatalf("Fingerprint returned error: %v", err)
	}

	if err := Rotate(p); err != nil {
		t.Fatalf("Rotate returned error: %v", err)
	}

	after, err := Fingerprint(p.CertFile)
	if err != nil {
		t.Fatalf("Fingerprint returned error: %v", err)
	}
	if before == after {
		t.Fatalf("expected rotation to change the certificate")
	}

	backups, err := filepath.Glob(p.CertFile + backupPattern + "*")
	if err != nil {
		t.Fatalf("glob backups: %v", err)
	}
	if len(backups) != 1 {
		t.Fatalf("expected one cert backup, got %v", backups)
	}
}

func TestRotatePrunesOldBackups(t *testing.T) {
	p := testParams(t)
	if err := Generate(p); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	// Seed more than the retention limit of stale backups.
	for _, stamp := range []string{"20240101-000000", "20240102-000000", "20240103-000000", "20240104-000000", "20240105-000000", "20240106-000000"} {
		for _, path := range []string{p.CertFile, p.KeyFile} {
			if err := os.WriteFile(path+backupPattern+stamp, []byte("old"), 0o600); err != nil {
				t.Fatalf("seed backup: %v", err)
			}
		}
	}

	if err := Rotate(p); err != nil {
		t.Fatalf("Rotate returned error: %v", err)
	}

	backups, err := filepath.Glob(p.CertFile + backupPattern + "*")
	if err != nil {
		t.Fatalf("glob backups: %v", err)
	}
	if len(backups) != backupKeep {
		t.Fatalf("expected %d backups after pruning, got %d: %v", backupKeep, len(backups), backups)
	}
	for _, b := range backups {
		if strings.HasSuffix(b, "20240101-000000") || strings.HasSuffix(b, "20240102-000000") {
			t.Fatalf("expected oldest backups pruned, found %s", b)
		}
	}
}
