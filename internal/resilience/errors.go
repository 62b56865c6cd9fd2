// Package resilience provides error classification, retry with backoff and
// circuit breaking for calls to external acquisition providers.
package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrorKind classifies an unrecoverable provider failure.
type ErrorKind string

const (
	KindAuth      ErrorKind = "auth"
	KindQuota     ErrorKind = "quota"
	KindNetwork   ErrorKind = "network"
	KindMalformed ErrorKind = "malformed"
	KindUnknown   ErrorKind = "unknown"
)

// StatusError is returned when a provider answers with a non-2xx status.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, body)
}

// Kind maps the status code to an error kind.
func (e *StatusError) Kind() ErrorKind {
	switch {
	case e.StatusCode == 401 || e.StatusCode == 403:
		return KindAuth
	case e.StatusCode == 402 || e.StatusCode == 429:
		return KindQuota
	case e.StatusCode == 408 || e.StatusCode >= 500:
		return KindNetwork
	default:
		return KindUnknown
	}
}

// NewStatusError builds a StatusError for the named provider.
func NewStatusError(provider string, statusCode int, body []byte) *StatusError {
	return &StatusError{Provider: provider, StatusCode: statusCode, Body: string(body)}
}

// IsTransient returns true if the error (or any error in its chain) is worth
// retrying: a transient HTTP status, a network timeout, a reset connection or
// a DNS hiccup.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return IsTransientHTTPStatus(se.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// Classify maps an error to the kind reported in fetch telemetry.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Kind()
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return KindMalformed
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	if IsTransient(err) {
		return KindNetwork
	}

	return KindUnknown
}
