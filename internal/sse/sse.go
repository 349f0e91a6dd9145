// Package sse encodes Server-Sent Events wire frames. Job streams carry
// bare data frames and heartbeat comments; the global stream carries named
// event frames.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Heartbeat is the comment frame that keeps idle connections alive across
// proxies.
const Heartbeat = ":heartbeat\n\n"

// Data encodes v as a `data:` frame.
func Data(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode sse data: %w", err)
	}
	return []byte("data: " + string(body) + "\n\n"), nil
}

// Event encodes v as a named `event:` + `data:` frame.
func Event(name string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode sse event: %w", err)
	}
	return []byte("event: " + name + "\ndata: " + string(body) + "\n\n"), nil
}

// Writer streams frames over an HTTP response, flushing after each write so
// frames are not held back by buffering.
type Writer struct {
	w http.ResponseWriter
	f http.Flusher
}

// NewWriter prepares w for event streaming and emits the SSE response
// headers. It returns false when the writer cannot flush, in which case the
// caller should fall back to a plain error response.
func NewWriter(w http.ResponseWriter) (*Writer, bool) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &Writer{w: w, f: f}, true
}

func (w *Writer) write(frame []byte) error {
	if _, err := w.w.Write(frame); err != nil {
		return err
	}
	w.f.Flush()
	return nil
}

// WriteData sends v as a data frame.
func (w *Writer) WriteData(v any) error {
	frame, err := Data(v)
	if err != nil {
		return err
	}
	return w.write(frame)
}

// WriteEvent sends v as a named event frame.
func (w *Writer) WriteEvent(name string, v any) error {
	frame, err := Event(name, v)
	if err != nil {
		return err
	}
	return w.write(frame)
}

// WriteHeartbeat sends the keepalive comment.
func (w *Writer) WriteHeartbeat() error {
	return w.write([]byte(Heartbeat))
}
