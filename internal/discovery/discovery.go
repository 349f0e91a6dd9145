// Package discovery announces the server over mDNS/DNS-SD so clients on the
// local network can find it without manual configuration. The TXT record
// carries the SSL mode and certificate fingerprint so clients can pin the
// self-signed certificate before the first TLS handshake.
package discovery

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/grandcat/zeroconf"
)

const (
	serviceType = "_remoteprompt._tcp"
	domain      = "local."
	txtVersion  = "1.0"
)

// Publisher registers one service instance and keeps its TXT record in sync
// with certificate rotations.
type Publisher struct {
	serviceName string
	hostname    string
	port        int
	sslMode     string

	mu          sync.Mutex
	fingerprint string
	server      *zeroconf.Server
}

// Options configures a Publisher. Hostname falls back to os.Hostname.
type Options struct {
	ServiceName string
	Hostname    string
	Port        int
	SSLMode     string
	Fingerprint string
}

func NewPublisher(opts Options) *Publisher {
	hostname := opts.Hostname
	if hostname == "" {
		if h, err := os.Hostname(); err == nil {
			hostname = h
		} else {
			hostname = "localhost"
		}
	}
	name := opts.ServiceName
	if name == "" {
		name = "RemotePrompt Server"
	}
	return &Publisher{
		serviceName: name,
		hostname:    hostname,
		port:        opts.Port,
		sslMode:     opts.SSLMode,
		fingerprint: opts.Fingerprint,
	}
}

func (p *Publisher) instance() string {
	return fmt.Sprintf("%s on %s", p.serviceName, p.hostname)
}

func (p *Publisher) txtRecords() []string {
	records := []string{
		"version=" + txtVersion,
		"ssl_mode=" + p.sslMode,
		"path=/",
	}
	if p.fingerprint != "" {
		records = append(records, "fingerprint="+p.fingerprint)
	}
	return records
}

// Start registers the service. Discovery is best effort: a registration
// failure is logged and reported as false without affecting the server.
func (p *Publisher) Start() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.server != nil {
		log.Printf("discovery: service already registered")
		return true
	}

	server, err := zeroconf.Register(p.instance(), serviceType, domain, p.port, p.txtRecords(), nil)
	if err != nil {
		log.Printf("discovery: register service: %v", err)
		return false
	}
	p.server = server
	log.Printf("discovery: registered %q (%s) on port %d", p.instance(), serviceType, p.port)
	return true
}

// UpdateFingerprint replaces the fingerprint TXT entry and re-announces the
// service. Called after certificate rotation.
func (p *Publisher) UpdateFingerprint(fingerprint string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fingerprint = fingerprint
	if p.server == nil {
		return
	}
	p.server.SetText(p.txtRecords())
	log.Printf("discovery: fingerprint updated in service announcement")
}

// Shutdown unregisters the service. Safe to call when never started.
func (p *Publisher) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.server == nil {
		return
	}
	p.server.Shutdown()
	p.server = nil
	log.Printf("discovery: service unregistered")
}
