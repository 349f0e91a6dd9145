package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"remoteprompt-server/internal/config"
)

// TLSFiles is the certificate pair selected for the listener after ssl_mode
// resolution. Mode feeds the bonjour TXT records; FallbackWarning surfaces
// in /health.
type TLSFiles struct {
	CertFile        string
	KeyFile         string
	Mode            string
	FallbackWarning bool
}

// ResolveTLS picks the certificate pair for the configured ssl_mode. auto
// prefers the commercial pair when its certificate file exists and falls
// back to self-signed only when fallback is enabled.
func ResolveTLS(cfg config.Config) (TLSFiles, error) {
	switch cfg.SSLMode {
	case config.SSLModeCommercial:
		return TLSFiles{CertFile: cfg.CommercialCertFile, KeyFile: cfg.CommercialKeyFile, Mode: config.SSLModeCommercial}, nil
	case config.SSLModeSelfSigned:
		return TLSFiles{CertFile: cfg.CertFile, KeyFile: cfg.KeyFile, Mode: config.SSLModeSelfSigned}, nil
	}

	if _, err := os.Stat(cfg.CommercialCertFile); err == nil {
		log.Printf("server: ssl mode auto, using commercial certificate")
		return TLSFiles{CertFile: cfg.CommercialCertFile, KeyFile: cfg.CommercialKeyFile, Mode: config.SSLModeCommercial}, nil
	}
	if !cfg.SSLAutoFallback {
		return TLSFiles{}, errors.New("commercial certificate not found; set SSL_AUTO_FALLBACK_ENABLED=true or SSL_MODE=self_signed to use a self-signed certificate")
	}
	log.Printf("server: commercial certificate not found, falling back to self-signed; existing clients may need to re-verify")
	return TLSFiles{CertFile: cfg.CertFile, KeyFile: cfg.KeyFile, Mode: config.SSLModeSelfSigned, FallbackWarning: true}, nil
}

// certLoader rereads the key pair when the certificate file changes, so a
// rotation takes effect on the next handshake without restarting the
// listener.
type certLoader struct {
	certFile string
	keyFile  string

	mu      sync.Mutex
	cert    *tls.Certificate
	modTime time.Time
}

func newCertLoader(certFile, keyFile string) *certLoader {
	return &certLoader{certFile: certFile, keyFile: keyFile}
}

func (l *certLoader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	info, err := os.Stat(l.certFile)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cert != nil && !info.ModTime().After(l.modTime) {
		return l.cert, nil
	}

	cert, err := tls.LoadX509KeyPair(l.certFile, l.keyFile)
	if err != nil {
		if l.cert != nil {
			log.Printf("server: certificate reload failed, keeping previous: %v", err)
			return l.cert, nil
		}
		return nil, err
	}
	l.cert = &cert
	l.modTime = info.ModTime()
	return l.cert, nil
}

func NewHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Run serves HTTPS until ctx is cancelled, then drains in-flight requests.
func Run(ctx context.Context, cfg config.Config, files TLSFiles, handler http.Handler) error {
	srv := NewHTTPServer(cfg, handler)
	loader := newCertLoader(files.CertFile, files.KeyFile)
	srv.TLSConfig = &tls.Config{
		GetCertificate: loader.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}

	errCh := make(chan error, 1)
	go func() {
		// Certificate selection happens per handshake via GetCertificate.
		errCh <- srv.ListenAndServeTLS("", "")
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
