package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrBadURL    = errors.New("not an absolute http(s) url")
	ErrBadStatus = errors.New("unexpected http status")
)

// Error contains information about a failed fetch. StatusCode is zero for
// transport-level failures.
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %s", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRecoverable reports whether another attempt could plausibly succeed.
// Network-level failures and server-side statuses are retried; client errors
// other than rate limiting and access denial are permanent.
func (e *Error) IsRecoverable() bool {
	if errors.Is(e.Err, ErrBadURL) {
		return false
	}
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode >= 500:
		return true
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode == http.StatusForbidden:
		return true
	default:
		return e.StatusCode < 400
	}
}

// AccessDenied reports whether the remote host refused us outright, which
// earns an extra cooldown before the next attempt.
func (e *Error) AccessDenied() bool {
	return e.StatusCode == http.StatusForbidden || e.StatusCode == http.StatusTooManyRequests
}
