package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"remoteprompt-server/internal/auth"
)

const deviceIDContextKey = "deviceID"

// DeviceIDFromContext returns the client identity stamped by RequireAPIKey.
// Handlers that scope data per device require it and reject requests
// without one.
func DeviceIDFromContext(c *gin.Context) (string, bool) {
	value, ok := c.Get(deviceIDContextKey)
	if !ok {
		return "", false
	}
	deviceID, ok := value.(string)
	return deviceID, ok && deviceID != ""
}

// RequireAPIKey authenticates every request against the configured static
// key and records the caller's device id from the X-Device-ID header.
func RequireAPIKey(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !auth.Verify(auth.FromRequest(c.Request), expected) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			c.Abort()
			return
		}

		if deviceID := c.GetHeader("X-Device-ID"); deviceID != "" {
			c.Set(deviceIDContextKey, deviceID)
		}
		c.Next()
	}
}
