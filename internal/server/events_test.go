package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func openStream(t *testing.T, srvURL, path string) (*http.Response, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srvURL+path, nil)
	if err != nil {
		cancel()
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-API-Key", testAPIKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		t.Fatalf("open stream: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		cancel()
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	return resp, cancel
}

// readDataFrame scans to the next data: line, skipping heartbeat comments
// and blank separators.
func readDataFrame(t *testing.T, reader *bufio.Reader) map[string]any {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &payload); err != nil {
			t.Fatalf("unmarshal %q: %v", line, err)
		}
		return payload
	}
}

// readNamedFrame scans to the next event:/data: pair.
func readNamedFrame(t *testing.T, reader *bufio.Reader) (string, map[string]any) {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		if !strings.HasPrefix(line, "event: ") {
			continue
		}
		name := strings.TrimPrefix(line, "event: ")
		return name, readDataFrame(t, reader)
	}
}

func TestJobEventStream(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	// subscribing does not require the job to exist yet
	resp, cancel := openStream(t, srv.URL, "/v1/jobs/job-9/events")
	defer cancel()
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %q", ct)
	}

	waitForSubscriber(t, env.broadcaster, "job-9")
	env.broadcaster.Broadcast("job-9", map[string]any{"status": "running"})

	reader := bufio.NewReader(resp.Body)
	payload := readDataFrame(t, reader)
	if payload["status"] != "running" {
		t.Fatalf("unexpected payload: %v", payload)
	}

	// named events reach job streams wrapped as plain data frames
	env.broadcaster.BroadcastEvent("cert_rotated", map[string]any{"fingerprint": "SHA256:AA"}, time.Second)
	payload = readDataFrame(t, reader)
	if payload["event"] != "cert_rotated" {
		t.Fatalf("expected wrapped event, got %v", payload)
	}

	// closing the job ends the stream
	env.broadcaster.Close("job-9")
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, err := reader.ReadString('\n'); err != nil {
				return
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after job close")
	}
}

func TestGlobalEventStreamAndPublish(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	resp, cancel := openStream(t, srv.URL, "/v1/events")
	defer cancel()
	defer resp.Body.Close()

	waitForSubscriber(t, env.broadcaster, "")

	body := strings.NewReader(`{"name":"deploy_done","payload":{"ok":true},"rate_limit_seconds":1}`)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/events", body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testAPIKey)
	pubResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	defer pubResp.Body.Close()
	var pub map[string]any
	if err := json.NewDecoder(pubResp.Body).Decode(&pub); err != nil {
		t.Fatalf("decode publish response: %v", err)
	}
	if pub["recipients"] != float64(1) {
		t.Fatalf("expected 1 recipient, got %v", pub)
	}

	reader := bufio.NewReader(resp.Body)
	name, payload := readNamedFrame(t, reader)
	if name != "deploy_done" {
		t.Fatalf("expected deploy_done, got %q", name)
	}
	if payload["ok"] != true {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestPublishValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/events", map[string]any{"payload": map[string]any{}}, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing name, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Event name is required") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}

	// no subscribers yet: delivered to nobody
	w = env.do(t, http.MethodPost, "/v1/events", map[string]any{"name": "noop"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp := decodeJSON(t, w); resp["recipients"] != float64(0) {
		t.Fatalf("expected 0 recipients, got %v", resp)
	}
}
