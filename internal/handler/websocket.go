package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"remoteprompt-server/internal/metrics"
	"remoteprompt-server/internal/stream"
)

type WebSocketHandler struct {
	Broadcaster *stream.Broadcaster
	Metrics     *metrics.Collector
}

type clientMessage struct {
	Type string `json:"type"`
}

type serverMessage struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Body  any    `json:"body,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	pongWait  = 60 * time.Second
	writeWait = 10 * time.Second
)

// wsWriter serializes data-frame writes; the pump goroutine and the reader's
// pong replies share the connection.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// Serve streams one job's updates (?job_id=) or the global event feed over
// a WebSocket. Stream heartbeats are translated into protocol pings; job
// payloads arrive as {"type":"update"} frames.
func (h *WebSocketHandler) Serve(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	var sub *stream.Subscription
	if jobID := c.Query("job_id"); jobID != "" {
		sub = h.Broadcaster.Subscribe(jobID)
	} else {
		sub = h.Broadcaster.SubscribeGlobal()
	}
	defer sub.Cancel()
	h.Metrics.SubscriptionOpened()
	defer h.Metrics.SubscriptionClosed()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	writer := &wsWriter{conn: ws}

	go func() {
		defer cancel()
		defer ws.Close()
		for {
			ev, ok := sub.Next(ctx)
			if !ok {
				deadline := time.Now().Add(writeWait)
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
				return
			}
			if ev.Heartbeat {
				deadline := time.Now().Add(writeWait)
				if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
				continue
			}
			if err := writer.WriteJSON(serverMessage{Type: "update", Event: ev.Name, Body: ev.Payload}); err != nil {
				return
			}
		}
	}()

	ws.SetReadLimit(1024 * 1024)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		ws.SetReadDeadline(time.Now().Add(pongWait))

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			_ = writer.WriteJSON(serverMessage{Type: "pong"})
		}
	}
}
