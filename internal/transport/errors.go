// Package transport is the HTTP collaborator shared by every backend. It
// builds requests, authenticates each attempt through the caller-supplied
// AuthenticationManager, retries transient failures with exponential
// backoff, and reports non-2xx responses as *StatusError for the backend to
// classify.
package transport

import (
	"fmt"
	"net/http"
)

// StatusError is returned for any non-2xx response that was not retried (or
// ran out of retries). Backends map StatusCode to a filesystem sentinel
// because the same code means different things per protocol (409 is a name
// collision on OneDrive but a missing parent on WebDav).
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	RequestID  string
	Message    string
}

func (e *StatusError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("transport: %s %s: HTTP %d (request-id: %s): %s",
			e.Method, e.Path, e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("transport: %s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// maxMessageBytes caps how much of an error body is kept in StatusError.
const maxMessageBytes = 4096

// requestIDHeaders are checked in order for a server-assigned request id.
// Graph sends request-id; Sharepoint sends SPRequestGuid.
var requestIDHeaders = []string{"request-id", "SPRequestGuid", "X-Request-Id"}

func requestID(h http.Header) string {
	for _, name := range requestIDHeaders {
		if v := h.Get(name); v != "" {
			return v
		}
	}

	return ""
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		// 509 Bandwidth Limit Exceeded (SharePoint).
		const statusBandwidthExceeded = 509
		return code == statusBandwidthExceeded
	}
}
