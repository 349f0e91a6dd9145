package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorRecords(t *testing.T) {
	c := NewCollector()

	c.RecordSubmitted("claude")
	c.RecordSubmitted("claude")
	c.RecordCompleted("claude", "success", 2.5)
	c.RecordNotification("sent")
	c.RecordBroadcast()
	c.SubscriptionOpened()
	c.SubscriptionOpened()
	c.SubscriptionClosed()

	if got := testutil.ToFloat64(c.jobsSubmitted.WithLabelValues("claude")); got != 2 {
		t.Fatalf("jobsSubmitted = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.jobsCompleted.WithLabelValues("claude", "success")); got != 1 {
		t.Fatalf("jobsCompleted = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.subscriptions); got != 1 {
		t.Fatalf("subscriptions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.notifications.WithLabelValues("sent")); got != 1 {
		t.Fatalf("notifications = %v, want 1", got)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	c := NewCollector()
	c.RecordSubmitted("codex")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "remoteprompt_jobs_submitted_total") {
		t.Fatalf("metrics output missing job counter:\n%s", rec.Body.String())
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.RecordSubmitted("claude")
	c.RecordCompleted("claude", "failed", 1)
	c.SubscriptionOpened()
	c.SubscriptionClosed()
	c.RecordBroadcast()
	c.RecordNotification("failed")
	if c.Handler() == nil {
		t.Fatal("nil collector must still return a handler")
	}
}
