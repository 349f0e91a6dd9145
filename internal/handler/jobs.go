package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"remoteprompt-server/internal/files"
	"remoteprompt-server/internal/jobs"
	"remoteprompt-server/internal/model"
	"remoteprompt-server/internal/runner"
	"remoteprompt-server/internal/store"
)

type JobHandler struct {
	Store        *store.Store
	Orchestrator *jobs.Orchestrator
	AllowedRoots []string
}

type submitJobBody struct {
	Runner      string `json:"runner"`
	Input       string `json:"input"`
	RoomID      string `json:"room_id"`
	ThreadID    string `json:"thread_id"`
	NotifyToken string `json:"notify_token"`
}

// Submit validates the request against the caller's room and hands the job
// to the orchestrator. Unknown runner names are accepted here; they fail
// during execution so the failure is recorded on the job like any other.
func (h *JobHandler) Submit(c *gin.Context) {
	deviceID, ok := requireDevice(c)
	if !ok {
		return
	}

	var body submitJobBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if body.Runner == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Runner is required"})
		return
	}
	if body.Input == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Input is required"})
		return
	}
	if body.RoomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Room id is required"})
		return
	}

	room, ok := roomForDevice(c, h.Store, body.RoomID, deviceID)
	if !ok {
		return
	}

	if body.ThreadID != "" {
		thread, err := h.Store.Thread(c.Request.Context(), body.ThreadID)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Thread not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
			return
		}
		if thread.RoomID != room.ID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Thread does not belong to the room"})
			return
		}
	}

	workspacePath := ""
	if room.WorkspacePath != "" {
		resolved, err := files.ValidateWorkspacePath(room.WorkspacePath, h.AllowedRoots)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Workspace path is not allowed"})
			return
		}
		workspacePath = resolved
	}

	settings, err := runner.ParseSettings(room.Settings)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	notifyToken := body.NotifyToken
	if notifyToken == "" {
		if device, err := h.Store.Device(c.Request.Context(), deviceID); err == nil {
			notifyToken = device.DeviceToken
		}
	}

	job, err := h.Orchestrator.Submit(c.Request.Context(), jobs.SubmitRequest{
		Runner:        body.Runner,
		Input:         body.Input,
		DeviceID:      deviceID,
		RoomID:        room.ID,
		ThreadID:      body.ThreadID,
		WorkspacePath: workspacePath,
		NotifyToken:   notifyToken,
		Settings:      settings,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"job": jobJSON(job)})
}

func (h *JobHandler) List(c *gin.Context) {
	filter := store.JobFilter{DeviceID: c.Query("device_id")}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		filter.Limit = limit
	}
	if raw := c.Query("status"); raw != "" {
		status := model.JobStatus(raw)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
			return
		}
		filter.Status = status
	}

	list, err := h.Store.Jobs(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	resp := make([]gin.H, 0, len(list))
	for _, job := range list {
		resp = append(resp, jobJSON(job))
	}
	c.JSON(http.StatusOK, gin.H{"jobs": resp})
}

func (h *JobHandler) Get(c *gin.Context) {
	job, err := h.Store.Job(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": jobJSON(job)})
}

// jobJSON renders the client-visible job snapshot. The notify token is
// deliberately not echoed back.
func jobJSON(job model.Job) gin.H {
	return gin.H{
		"id":          job.ID,
		"runner":      job.Runner,
		"input":       job.Input,
		"device_id":   job.DeviceID,
		"room_id":     job.RoomID,
		"thread_id":   emptyNull(job.ThreadID),
		"status":      string(job.Status),
		"exit_code":   job.ExitCode,
		"stdout":      job.Stdout,
		"stderr":      job.Stderr,
		"created_at":  job.CreatedAt.UTC().Format(time.RFC3339Nano),
		"started_at":  timeJSON(job.StartedAt),
		"finished_at": timeJSON(job.FinishedAt),
	}
}

func timeJSON(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func emptyNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}
