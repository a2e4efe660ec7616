// Package interp hosts the Python interpreter behind the playground's run button.
// The interpreter is a WASI build of CPython executed by wazero and loaded on first use.
package interp

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// LoadError reports that the interpreter runtime could not be fetched or initialized.
// The bridge returns to the unloaded state, so a later call retries the load.
type LoadError struct {
	Source string // where the runtime was fetched from
	Err    error
}

func (e *LoadError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("failed to load Python environment from %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("failed to load Python environment: %v", e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// HTTPError represents a non-2xx response while downloading the runtime.
type HTTPError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %s", e.URL, e.Status)
}

// IsRetryable returns true for 5xx errors and 429 (rate limit)
func (e *HTTPError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// isRetryableError checks if an error is worth another download attempt
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsRetryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"no such host",
		"timeout",
		"temporary failure",
		"unexpected eof",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
