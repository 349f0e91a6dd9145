package discovery

import (
	"strings"
	"testing"
)

func TestInstanceNameIncludesHostname(t *testing.T) {
	p := NewPublisher(Options{ServiceName: "RemotePrompt Server", Hostname: "studio", Port: 8443})
	if got := p.instance(); got != "RemotePrompt Server on studio" {
		t.Fatalf("unexpected instance name %q", got)
	}
}

func TestTXTRecordsWithFingerprint(t *testing.T) {
	p := NewPublisher(Options{
		Hostname:    "studio",
		Port:        8443,
		SSLMode:     "self_signed",
		Fingerprint: "SHA256:AA:BB",
	})

	records := p.txtRecords()
	want := []string{"version=1.0", "ssl_mode=self_signed", "path=/", "fingerprint=SHA256:AA:BB"}
	if len(records) != len(want) {
		t.Fatalf("expected %d records, got %v", len(want), records)
	}
	for i, rec := range want {
		if records[i] != rec {
			t.Fatalf("record %d: expected %q, got %q", i, rec, records[i])
		}
	}
}

func TestTXTRecordsOmitEmptyFingerprint(t *testing.T) {
	p := NewPublisher(Options{Hostname: "studio", Port: 8443, SSLMode: "commercial"})
	for _, rec := range p.txtRecords() {
		if strings.HasPrefix(rec, "fingerprint=") {
			t.Fatalf("unexpected fingerprint record: %v", p.txtRecords())
		}
	}
}

func TestUpdateFingerprintBeforeStart(t *testing.T) {
	p := NewPublisher(Options{Hostname: "studio", Port: 8443, SSLMode: "auto"})
	p.UpdateFingerprint("SHA256:CC:DD")

	found := false
	for _, rec := range p.txtRecords() {
		if rec == "fingerprint=SHA256:CC:DD" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected stored fingerprint in txt records, got %v", p.txtRecords())
	}
}

func TestShutdownWithoutStart(t *testing.T) {
	p := NewPublisher(Options{Hostname: "studio", Port: 8443})
	p.Shutdown()
}
