package stream

import (
	"testing"
	"time"
)

func TestBridgePreservesSubmissionOrder(t *testing.T) {
	b := New()
	br := NewBridge(b)
	defer br.Shutdown()

	sub := b.Subscribe("job-1")

	br.Publish("job-1", map[string]any{"status": "running"}, false)
	br.Publish("job-1", map[string]any{"status": "success", "exit_code": 0}, true)

	first := nextEvent(t, sub)
	if first.Payload["status"] != "running" {
		t.Fatalf("running must precede terminal, got %+v", first)
	}
	second := nextEvent(t, sub)
	if second.Payload["status"] != "success" {
		t.Fatalf("unexpected terminal event: %+v", second)
	}
	expectEnd(t, sub)
}

func TestBridgePublishEvent(t *testing.T) {
	b := New()
	br := NewBridge(b)
	defer br.Shutdown()

	sub := b.SubscribeGlobal()
	defer sub.Cancel()

	br.PublishEvent("cert_rotated", map[string]any{"fingerprint": "SHA256:AA"}, 300*time.Second)

	ev := nextEvent(t, sub)
	if ev.Name != "cert_rotated" || ev.Payload["fingerprint"] != "SHA256:AA" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestBridgeWithoutBroadcasterIsNoOp(t *testing.T) {
	br := NewBridge(nil)
	br.Publish("job-1", map[string]any{"status": "running"}, true)
	br.PublishEvent("cert_rotated", nil, 0)
	br.Shutdown()
}

func TestBridgeShutdownDrainsThenFallsBackToSync(t *testing.T) {
	b := New()
	br := NewBridge(b)

	sub := b.Subscribe("job-1")
	br.Publish("job-1", map[string]any{"status": "running"}, false)
	br.Shutdown()

	// The queued delivery landed before Shutdown returned.
	ev := nextEvent(t, sub)
	if ev.Payload["status"] != "running" {
		t.Fatalf("expected queued delivery drained, got %+v", ev)
	}

	// Publishing after shutdown still delivers, synchronously.
	br.Publish("job-1", map[string]any{"status": "failed", "exit_code": 1}, true)
	ev = nextEvent(t, sub)
	if ev.Payload["status"] != "failed" {
		t.Fatalf("expected synchronous fallback delivery, got %+v", ev)
	}
	expectEnd(t, sub)
}
