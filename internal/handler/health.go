package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	Version string
	// CertFallback is set when ssl_mode auto fell back to the self-signed
	// certificate, so clients know they may need to re-verify.
	CertFallback bool
}

func (h *HealthHandler) Check(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":                       "ok",
		"version":                      h.Version,
		"certificate_fallback_warning": h.CertFallback,
	})
}
