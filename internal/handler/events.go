package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"remoteprompt-server/internal/metrics"
	"remoteprompt-server/internal/sse"
	"remoteprompt-server/internal/stream"
)

type EventHandler struct {
	Broadcaster *stream.Broadcaster
	Metrics     *metrics.Collector
}

// StreamJob serves one job's status stream over SSE. Subscribing does not
// require the job to exist: a stream for an unknown or finished job simply
// heartbeats until the client gives up, which keeps submit/subscribe
// ordering forgiving.
func (h *EventHandler) StreamJob(c *gin.Context) {
	w, ok := sse.NewWriter(c.Writer)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming unsupported"})
		return
	}

	jobID := c.Param("id")
	sub := h.Broadcaster.Subscribe(jobID)
	defer sub.Cancel()
	h.Metrics.SubscriptionOpened()
	defer h.Metrics.SubscriptionClosed()

	ctx := c.Request.Context()
	for {
		ev, ok := sub.Next(ctx)
		if !ok {
			return
		}
		var err error
		switch {
		case ev.Heartbeat:
			err = w.WriteHeartbeat()
		case ev.Name != "":
			// Global events ride job streams wrapped in a named envelope.
			err = w.WriteData(gin.H{"event": ev.Name, "data": ev.Payload})
		default:
			err = w.WriteData(ev.Payload)
		}
		if err != nil {
			return
		}
	}
}

// StreamGlobal serves the global event stream with named SSE events.
func (h *EventHandler) StreamGlobal(c *gin.Context) {
	w, ok := sse.NewWriter(c.Writer)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming unsupported"})
		return
	}

	sub := h.Broadcaster.SubscribeGlobal()
	defer sub.Cancel()
	h.Metrics.SubscriptionOpened()
	defer h.Metrics.SubscriptionClosed()

	ctx := c.Request.Context()
	for {
		ev, ok := sub.Next(ctx)
		if !ok {
			return
		}
		var err error
		if ev.Heartbeat {
			err = w.WriteHeartbeat()
		} else {
			err = w.WriteEvent(ev.Name, ev.Payload)
		}
		if err != nil {
			return
		}
	}
}

type publishEventBody struct {
	Name             string         `json:"name"`
	Payload          map[string]any `json:"payload"`
	RateLimitSeconds int            `json:"rate_limit_seconds"`
}

// Publish broadcasts a named event to every live stream and reports how
// many subscribers received it. Zero recipients also means the event was
// rate limited.
func (h *EventHandler) Publish(c *gin.Context) {
	var body publishEventBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if body.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Event name is required"})
		return
	}

	recipients := h.Broadcaster.BroadcastEvent(body.Name, body.Payload, time.Duration(body.RateLimitSeconds)*time.Second)
	h.Metrics.RecordBroadcast()
	c.JSON(http.StatusOK, gin.H{"recipients": recipients})
}
