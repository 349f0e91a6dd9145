package auth

import (
	"net/http/httptest"
	"testing"
)

func TestFromRequestHeader(t *testing.T) {
	req := httptest.NewRequest("GET", "/v1/jobs", nil)
	req.Header.Set("X-API-Key", "secret-1")

	if got := FromRequest(req); got != "secret-1" {
		t.Fatalf("expected secret-1, got %q", got)
	}
}

func TestFromRequestBearer(t *testing.T) {
	req := httptest.NewRequest("GET", "/v1/jobs", nil)
	req.Header.Set("Authorization", "Bearer secret-2")

	if got := FromRequest(req); got != "secret-2" {
		t.Fatalf("expected secret-2, got %q", got)
	}
}

func TestFromRequestHeaderWinsOverBearer(t *testing.T) {
	req := httptest.NewRequest("GET", "/v1/jobs", nil)
	req.Header.Set("X-API-Key", "header-key")
	req.Header.Set("Authorization", "Bearer bearer-key")

	if got := FromRequest(req); got != "header-key" {
		t.Fatalf("expected header-key, got %q", got)
	}
}

func TestFromRequestQueryFallback(t *testing.T) {
	req := httptest.NewRequest("GET", "/v1/events?api_key=query-key", nil)

	if got := FromRequest(req); got != "query-key" {
		t.Fatalf("expected query-key, got %q", got)
	}
}

func TestFromRequestEmpty(t *testing.T) {
	req := httptest.NewRequest("GET", "/v1/jobs", nil)

	if got := FromRequest(req); got != "" {
		t.Fatalf("expected empty key, got %q", got)
	}
}

func TestFromRequestIgnoresNonBearerScheme(t *testing.T) {
	req := httptest.NewRequest("GET", "/v1/jobs", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

	if got := FromRequest(req); got != "" {
		t.Fatalf("expected empty key for basic auth, got %q", got)
	}
}

func TestVerify(t *testing.T) {
	if !Verify("secret", "secret") {
		t.Fatalf("expected matching keys to verify")
	}
	if Verify("secret", "other") {
		t.Fatalf("expected mismatched keys to fail")
	}
	if Verify("", "secret") {
		t.Fatalf("expected empty presented key to fail")
	}
	if Verify("secret", "") {
		t.Fatalf("expected empty expected key to fail")
	}
}
