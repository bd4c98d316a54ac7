package httpx

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPError represents a non-2xx HTTP response returned by the remote service.
type HTTPError struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "<nil>"
	}
	body := strings.TrimSpace(string(e.Body))
	if body == "" {
		return fmt.Sprintf("http error: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("http error: status=%d body=%s", e.StatusCode, body)
}

// RateLimited reports whether the remote asked the caller to back off.
func (e *HTTPError) RateLimited() bool {
	return e != nil && e.StatusCode == http.StatusTooManyRequests
}

// Retryable reports whether the error is a transient transport failure that
// may be retried immediately with backoff. Rate limits are excluded.
func (e *HTTPError) Retryable() bool {
	if e == nil {
		return false
	}
	return e.StatusCode == http.StatusRequestTimeout ||
		(e.StatusCode >= 500 && e.StatusCode <= 599)
}

// RetryAfter parses the Retry-After header expressed in seconds.
func (e *HTTPError) RetryAfter() time.Duration {
	if e == nil || e.Header == nil {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(e.Header.Get("Retry-After")))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
