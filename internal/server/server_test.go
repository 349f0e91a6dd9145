package server

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"remoteprompt-server/internal/certs"
	"remoteprompt-server/internal/config"
)

func TestNewHTTPServer(t *testing.T) {
	cfg := config.Config{Port: 4321}
	srv := NewHTTPServer(cfg, http.NewServeMux())
	if srv.Addr != ":4321" {
		t.Fatalf("expected :4321, got %q", srv.Addr)
	}
	if srv.ReadHeaderTimeout != 5*time.Second {
		t.Fatalf("unexpected ReadHeaderTimeout")
	}
}

func TestResolveTLSModes(t *testing.T) {
	dir := t.TempDir()
	commercial := filepath.Join(dir, "fullchain.pem")
	selfSigned := filepath.Join(dir, "server.crt")

	base := config.Config{
		CertFile:           selfSigned,
		KeyFile:            filepath.Join(dir, "server.key"),
		CommercialCertFile: commercial,
		CommercialKeyFile:  filepath.Join(dir, "privkey.pem"),
	}

	cfg := base
	cfg.SSLMode = config.SSLModeCommercial
	files, err := ResolveTLS(cfg)
	if err != nil {
		t.Fatalf("commercial: %v", err)
	}
	if files.CertFile != commercial || files.Mode != config.SSLModeCommercial {
		t.Fatalf("unexpected commercial resolution: %+v", files)
	}

	cfg = base
	cfg.SSLMode = config.SSLModeSelfSigned
	files, err = ResolveTLS(cfg)
	if err != nil {
		t.Fatalf("self_signed: %v", err)
	}
	if files.CertFile != selfSigned || files.Mode != config.SSLModeSelfSigned {
		t.Fatalf("unexpected self_signed resolution: %+v", files)
	}

	// auto with no commercial cert and fallback disabled is an error
	cfg = base
	cfg.SSLMode = config.SSLModeAuto
	if _, err = ResolveTLS(cfg); err == nil {
		t.Fatal("expected error for auto without fallback")
	}

	// fallback enabled resolves to self-signed with a warning
	cfg.SSLAutoFallback = true
	files, err = ResolveTLS(cfg)
	if err != nil {
		t.Fatalf("auto fallback: %v", err)
	}
	if files.CertFile != selfSigned || files.Mode != config.SSLModeSelfSigned || !files.FallbackWarning {
		t.Fatalf("unexpected fallback resolution: %+v", files)
	}

	// auto prefers commercial once the file exists
	if err := os.WriteFile(commercial, []byte("pem"), 0o644); err != nil {
		t.Fatalf("seed commercial cert: %v", err)
	}
	files, err = ResolveTLS(cfg)
	if err != nil {
		t.Fatalf("auto commercial: %v", err)
	}
	if files.CertFile != commercial || files.Mode != config.SSLModeCommercial || files.FallbackWarning {
		t.Fatalf("unexpected auto resolution: %+v", files)
	}
}

func TestCertLoaderReload(t *testing.T) {
	dir := t.TempDir()
	params := certs.Params{
		CertFile: filepath.Join(dir, "server.crt"),
		KeyFile:  filepath.Join(dir, "server.key"),
		Hostname: "localhost",
		Bits:     1024,
	}
	if err := certs.Generate(params); err != nil {
		t.Fatalf("generate: %v", err)
	}

	loader := newCertLoader(params.CertFile, params.KeyFile)
	first, err := loader.GetCertificate(nil)
	if err != nil {
		t.Fatalf("GetCertificate: %v", err)
	}

	// cached while the file is untouched
	again, err := loader.GetCertificate(nil)
	if err != nil {
		t.Fatalf("GetCertificate (cached): %v", err)
	}
	if again != first {
		t.Fatal("expected cached certificate")
	}

	// regenerate and force a newer mtime so the loader picks it up
	if err := certs.Rotate(params); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(params.CertFile, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	reloaded, err := loader.GetCertificate(nil)
	if err != nil {
		t.Fatalf("GetCertificate (reloaded): %v", err)
	}
	if reloaded == first {
		t.Fatal("expected reloaded certificate")
	}
}
