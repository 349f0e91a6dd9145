package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"remoteprompt-server/internal/model"
	"remoteprompt-server/internal/store"
)

type ThreadHandler struct {
	Store *store.Store
}

type threadBody struct {
	Name string `json:"name"`
}

func (h *ThreadHandler) Create(c *gin.Context) {
	deviceID, ok := requireDevice(c)
	if !ok {
		return
	}
	room, ok := roomForDevice(c, h.Store, c.Param("id"), deviceID)
	if !ok {
		return
	}

	var body threadBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if body.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Thread name is required"})
		return
	}

	thread, err := h.Store.CreateThread(c.Request.Context(), room.ID, body.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"thread": threadJSON(thread)})
}

func (h *ThreadHandler) List(c *gin.Context) {
	deviceID, ok := requireDevice(c)
	if !ok {
		return
	}
	room, ok := roomForDevice(c, h.Store, c.Param("id"), deviceID)
	if !ok {
		return
	}

	threads, err := h.Store.ThreadsByRoom(c.Request.Context(), room.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	resp := make([]gin.H, 0, len(threads))
	for _, thread := range threads {
		resp = append(resp, threadJSON(thread))
	}
	c.JSON(http.StatusOK, gin.H{"threads": resp})
}

// threadForDevice loads a thread and verifies the caller owns its room.
func (h *ThreadHandler) threadForDevice(c *gin.Context, threadID, deviceID string) (model.Thread, bool) {
	thread, err := h.Store.Thread(c.Request.Context(), threadID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Thread not found"})
		return model.Thread{}, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return model.Thread{}, false
	}
	if _, ok := roomForDevice(c, h.Store, thread.RoomID, deviceID); !ok {
		return model.Thread{}, false
	}
	return thread, true
}

func (h *ThreadHandler) Rename(c *gin.Context) {
	deviceID, ok := requireDevice(c)
	if !ok {
		return
	}
	thread, ok := h.threadForDevice(c, c.Param("id"), deviceID)
	if !ok {
		return
	}

	var body threadBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if body.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Thread name is required"})
		return
	}

	updated, err := h.Store.RenameThread(c.Request.Context(), thread.ID, body.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"thread": threadJSON(updated)})
}

// MarkRead clears the thread's unread state and returns the caller's
// refreshed badge count so the client can sync its app icon immediately.
func (h *ThreadHandler) MarkRead(c *gin.Context) {
	deviceID, ok := requireDevice(c)
	if !ok {
		return
	}
	thread, ok := h.threadForDevice(c, c.Param("id"), deviceID)
	if !ok {
		return
	}

	if err := h.Store.MarkThreadRead(c.Request.Context(), thread.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	badge, err := h.Store.UnreadThreadCount(c.Request.Context(), deviceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "badge": badge})
}

func (h *ThreadHandler) Delete(c *gin.Context) {
	deviceID, ok := requireDevice(c)
	if !ok {
		return
	}
	thread, ok := h.threadForDevice(c, c.Param("id"), deviceID)
	if !ok {
		return
	}

	if err := h.Store.DeleteThread(c.Request.Context(), thread.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func threadJSON(thread model.Thread) gin.H {
	runners := thread.UnreadRunners
	if runners == nil {
		runners = []string{}
	}
	return gin.H{
		"id":             thread.ID,
		"room_id":        thread.RoomID,
		"name":           thread.Name,
		"has_unread":     thread.HasUnread,
		"unread_runners": runners,
		"created_at":     thread.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":     thread.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
