package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrTransport matches every TransportError via errors.Is.
var ErrTransport = errors.New("transport fault")

// TransportError reports a failure to reach the backend or a non-2xx reply.
type TransportError struct {
	StatusCode int // 0 when no HTTP response was received
	Body       string
	Attempts   int
	Err        error
}

func (e *TransportError) Error() string {
	var msg string
	switch {
	case e.StatusCode != 0:
		msg = fmt.Sprintf("backend returned %d", e.StatusCode)
		if e.Body != "" {
			msg += ": " + truncate(e.Body, 512)
		}
	case e.Err != nil:
		msg = "backend unreachable: " + e.Err.Error()
	default:
		msg = "backend transport fault"
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" (after %d attempts)", e.Attempts)
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Retryable reports whether another attempt may succeed: no response at all,
// 429, or a 5xx status.
func (e *TransportError) Retryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
