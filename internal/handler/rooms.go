package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"remoteprompt-server/internal/files"
	"remoteprompt-server/internal/middleware"
	"remoteprompt-server/internal/model"
	"remoteprompt-server/internal/runner"
	"remoteprompt-server/internal/store"
)

type RoomHandler struct {
	Store        *store.Store
	AllowedRoots []string
}

// requireDevice returns the caller identity stamped by the auth middleware,
// or rejects the request. Every device-scoped handler starts here.
func requireDevice(c *gin.Context) (string, bool) {
	deviceID, ok := middleware.DeviceIDFromContext(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-Device-ID header is required"})
		return "", false
	}
	return deviceID, true
}

// roomForDevice loads a room and verifies ownership: unknown rooms are 404,
// rooms owned by another device are 403.
func roomForDevice(c *gin.Context, st *store.Store, roomID, deviceID string) (model.Room, bool) {
	room, err := st.Room(c.Request.Context(), roomID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return model.Room{}, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return model.Room{}, false
	}
	if room.DeviceID != deviceID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Room not owned by device"})
		return model.Room{}, false
	}
	return room, true
}

type roomBody struct {
	Name          *string         `json:"name"`
	WorkspacePath *string         `json:"workspace_path"`
	Settings      json.RawMessage `json:"settings"`
}

// validateRoomInput checks the mutable room fields, returning the settings
// document in its canonical stored form.
func (h *RoomHandler) validateRoomInput(c *gin.Context, body roomBody) (settings *string, ok bool) {
	if body.WorkspacePath != nil && *body.WorkspacePath != "" {
		if _, err := files.ValidateWorkspacePath(*body.WorkspacePath, h.AllowedRoots); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Workspace path is not allowed"})
			return nil, false
		}
	}
	if body.Settings != nil {
		parsed, err := runner.ParseSettings(string(body.Settings))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return nil, false
		}
		stored := ""
		if parsed != nil {
			encoded, err := json.Marshal(parsed)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
				return nil, false
			}
			stored = string(encoded)
		}
		settings = &stored
	}
	return settings, true
}

func (h *RoomHandler) Create(c *gin.Context) {
	deviceID, ok := requireDevice(c)
	if !ok {
		return
	}

	var body roomBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if body.Name == nil || *body.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Room name is required"})
		return
	}
	settings, ok := h.validateRoomInput(c, body)
	if !ok {
		return
	}

	params := store.CreateRoomParams{DeviceID: deviceID, Name: *body.Name}
	if body.WorkspacePath != nil {
		params.WorkspacePath = *body.WorkspacePath
	}
	if settings != nil {
		params.Settings = *settings
	}

	room, err := h.Store.CreateRoom(c.Request.Context(), params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"room": roomJSON(room)})
}

func (h *RoomHandler) List(c *gin.Context) {
	deviceID, ok := requireDevice(c)
	if !ok {
		return
	}

	rooms, err := h.Store.RoomsByDevice(c.Request.Context(), deviceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	resp := make([]gin.H, 0, len(rooms))
	for _, room := range rooms {
		resp = append(resp, roomJSON(room))
	}
	c.JSON(http.StatusOK, gin.H{"rooms": resp})
}

func (h *RoomHandler) Get(c *gin.Context) {
	deviceID, ok := requireDevice(c)
	if !ok {
		return
	}
	room, ok := roomForDevice(c, h.Store, c.Param("id"), deviceID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": roomJSON(room)})
}

func (h *RoomHandler) Update(c *gin.Context) {
	deviceID, ok := requireDevice(c)
	if !ok {
		return
	}
	room, ok := roomForDevice(c, h.Store, c.Param("id"), deviceID)
	if !ok {
		return
	}

	var body roomBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if body.Name != nil && *body.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Room name is required"})
		return
	}
	settings, ok := h.validateRoomInput(c, body)
	if !ok {
		return
	}

	updated, err := h.Store.UpdateRoom(c.Request.Context(), room.ID, store.UpdateRoomParams{
		Name:          body.Name,
		WorkspacePath: body.WorkspacePath,
		Settings:      settings,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": roomJSON(updated)})
}

func (h *RoomHandler) Delete(c *gin.Context) {
	deviceID, ok := requireDevice(c)
	if !ok {
		return
	}
	room, ok := roomForDevice(c, h.Store, c.Param("id"), deviceID)
	if !ok {
		return
	}

	if err := h.Store.DeleteRoom(c.Request.Context(), room.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func roomJSON(room model.Room) gin.H {
	var settings any
	if room.Settings != "" {
		var decoded json.RawMessage
		if err := json.Unmarshal([]byte(room.Settings), &decoded); err == nil {
			settings = decoded
		}
	}
	return gin.H{
		"id":             room.ID,
		"device_id":      room.DeviceID,
		"name":           room.Name,
		"workspace_path": room.WorkspacePath,
		"settings":       settings,
		"created_at":     room.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":     room.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
