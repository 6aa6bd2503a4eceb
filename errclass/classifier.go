// Package errclass implements the orchestrator's error classifier: a
// pure, stateless mapping from an arbitrary error value to one of
// {TRANSIENT, PERMANENT, CRITICAL} plus an optional retry-hint
// duration. The classifier never fails; unparseable inputs classify as
// PERMANENT with no retry hint.
package errclass

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/limmutable/orchestrator/orcherr"
)

// HTTPError is implemented by provider errors that carry an HTTP status
// code, e.g. from a REST transport.
type HTTPError interface {
	HTTPStatus() int
}

// RetryAfterError is implemented by provider errors that carry a
// Retry-After response header verbatim (either "123" seconds or an
// HTTP-date, RFC 7231 §7.1.3).
type RetryAfterError interface {
	RetryAfterHeader() string
}

// namedError lets provider-semantic error names (ResourceExhausted,
// Unauthenticated, ...) be classified without a dependency on any single
// vendor SDK's concrete error types.
type namedError interface {
	ErrorName() string
}

// Classify maps err to a Category, following a fixed rule order:
// network-layer errors, then HTTP status, then provider-semantic name,
// then validation errors, then a PERMANENT default.
func Classify(err error) orcherr.Category {
	if err == nil {
		return orcherr.Permanent
	}

	if isNetworkError(err) {
		return orcherr.Transient
	}

	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		if cat, ok := classifyHTTPStatus(httpErr.HTTPStatus()); ok {
			return cat
		}
	}

	var named namedError
	if errors.As(err, &named) {
		if cat, ok := classifyName(named.ErrorName()); ok {
			return cat
		}
	}

	if isValidationError(err) {
		return orcherr.Permanent
	}

	return orcherr.Permanent
}

func classifyHTTPStatus(status int) (orcherr.Category, bool) {
	switch {
	case status == http.StatusUnauthorized:
		return orcherr.Critical, true
	case status == http.StatusTooManyRequests:
		return orcherr.Transient, true
	case status == http.StatusBadRequest, status == http.StatusForbidden,
		status == http.StatusNotFound, status == http.StatusNotImplemented:
		return orcherr.Permanent, true
	case status >= 500 && status <= 504:
		return orcherr.Transient, true
	default:
		return 0, false
	}
}

func classifyName(name string) (orcherr.Category, bool) {
	switch name {
	case "ResourceExhausted", "DeadlineExceeded", "rate_limited":
		return orcherr.Transient, true
	case "Unauthenticated", "unauthorized":
		return orcherr.Critical, true
	case "PermissionDenied", "InvalidArgument", "object_not_found", "restricted_resource":
		return orcherr.Permanent, true
	default:
		return 0, false
	}
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"connection reset", "dns", "no such host", "connection refused"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// ValidationError marks errors produced by result-parsing/schema
// validation: always PERMANENT, never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + ": " + e.Reason
}

func isValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// RetryAfter extracts the retry-hint duration from err: parse a
// Retry-After header as a (possibly fractional) number of seconds, or
// as an HTTP date (returning
// max(0, date-now)). Returns false if no hint is present or parseable.
func RetryAfter(err error) (time.Duration, bool) {
	var rae RetryAfterError
	if !errors.As(err, &rae) {
		return 0, false
	}
	raw := strings.TrimSpace(rae.RetryAfterHeader())
	if raw == "" {
		return 0, false
	}

	if secs, convErr := strconv.ParseFloat(raw, 64); convErr == nil {
		if secs < 0 {
			secs = 0
		}
		return time.Duration(secs * float64(time.Second)), true
	}

	if when, convErr := http.ParseTime(raw); convErr == nil {
		delta := time.Until(when)
		if delta < 0 {
			delta = 0
		}
		return delta, true
	}

	return 0, false
}
