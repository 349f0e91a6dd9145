package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"remoteprompt-server/internal/certs"
	"remoteprompt-server/internal/discovery"
	"remoteprompt-server/internal/stream"
)

type CertHandler struct {
	Params      certs.Params
	Broadcaster *stream.Broadcaster
	Discovery   *discovery.Publisher
}

// Info reports the active TLS certificate.
func (h *CertHandler) Info(c *gin.Context) {
	details, err := certs.Info(h.Params.CertFile)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Certificate not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"certificate": details})
}

// Rotate replaces the self-signed certificate, updates the published TXT
// records, and announces the new fingerprint to connected clients.
func (h *CertHandler) Rotate(c *gin.Context) {
	if err := certs.Rotate(h.Params); err != nil {
		log.Printf("cert: rotation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Certificate rotation failed"})
		return
	}
	fp, err := certs.Fingerprint(h.Params.CertFile)
	if err != nil {
		log.Printf("cert: fingerprint after rotation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Certificate rotation failed"})
		return
	}

	if h.Discovery != nil {
		h.Discovery.UpdateFingerprint(fp)
	}
	recipients := h.Broadcaster.BroadcastEvent("cert_rotated", map[string]any{"fingerprint": fp}, 0)

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"fingerprint": fp,
		"recipients":  recipients,
	})
}
