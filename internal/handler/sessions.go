package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"remoteprompt-server/internal/middleware"
	"remoteprompt-server/internal/runner"
)

type SessionHandler struct {
	Registry *runner.Registry
}

// Get reports whether a stored backend session exists for the
// (device, room, runner, thread) key, so clients can show a resume
// indicator before submitting.
func (h *SessionHandler) Get(c *gin.Context) {
	strategy, err := h.Registry.Get(c.Param("runner"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	deviceID := c.Query("device_id")
	if deviceID == "" {
		deviceID, _ = middleware.DeviceIDFromContext(c)
	}
	if deviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Device id is required"})
		return
	}
	roomID := c.Query("room_id")
	if roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Room id is required"})
		return
	}

	sessionID, exists, err := strategy.SessionID(c.Request.Context(), deviceID, roomID, c.Query("thread_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	resp := gin.H{"exists": exists, "session_id": nil}
	if exists {
		resp["session_id"] = sessionID
	}
	c.JSON(http.StatusOK, resp)
}
