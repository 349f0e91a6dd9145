// Package auth implements the static API key scheme clients authenticate
// with.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// FromRequest extracts the presented API key. It checks the X-API-Key
// header, then an Authorization bearer token, then the api_key query
// parameter. The query fallback exists because EventSource cannot set
// request headers.
func FromRequest(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") && parts[1] != "" {
		return parts[1]
	}
	return r.URL.Query().Get("api_key")
}

// Verify reports whether the presented key matches the configured one. The
// comparison is constant time.
func Verify(presented, expected string) bool {
	if presented == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}
