package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"remoteprompt-server/internal/store"
)

type DeviceHandler struct {
	Store *store.Store
}

type registerDeviceBody struct {
	DeviceID    string `json:"device_id"`
	DeviceToken string `json:"device_token"`
}

// Register upserts a device and its push token. Clients call it on every
// launch, so the route sits behind the registration rate limiter.
func (h *DeviceHandler) Register(c *gin.Context) {
	var body registerDeviceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if body.DeviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Device id is required"})
		return
	}

	device, err := h.Store.UpsertDevice(c.Request.Context(), body.DeviceID, body.DeviceToken)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"device": gin.H{
		"device_id":    device.DeviceID,
		"device_token": device.DeviceToken,
		"created_at":   device.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":   device.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}})
}
