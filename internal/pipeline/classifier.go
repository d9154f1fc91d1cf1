package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// FailureCategory is the machine-readable class of a failed remote fetch.
type FailureCategory string

// The closed set of failure categories the classifier knows about.
const (
	FailureTimeout     FailureCategory = "http_timeout"
	FailureConnection  FailureCategory = "connection_error"
	FailureRateLimited FailureCategory = "http_429"
	FailureServerError FailureCategory = "http_5xx"
	FailureNotFound    FailureCategory = "http_404"
	FailureClientError FailureCategory = "http_4xx"
	FailureBlocked     FailureCategory = "blocked"
	FailureParse       FailureCategory = "parse_error"
	FailureEmptyResult FailureCategory = "empty_result"
	FailureUnknown     FailureCategory = "unknown"
)

// retryable is the fixed lookup consulted once per failed fetch: transient
// categories get exactly one slowed-down retry, everything else is terminal.
var retryable = map[FailureCategory]bool{
	FailureTimeout:     true,
	FailureConnection:  true,
	FailureRateLimited: true,
	FailureServerError: true,
}

// Retryable reports whether the category is transient.
func Retryable(cat FailureCategory) bool {
	return retryable[cat]
}

// FetchError wraps a remote failure with its classified category.
type FetchError struct {
	Category FailureCategory
	Err      error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch failed (%s)", e.Category)
	}
	return fmt.Sprintf("fetch failed (%s): %v", e.Category, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError builds a classified fetch failure.
func NewFetchError(cat FailureCategory, err error) *FetchError {
	return &FetchError{Category: cat, Err: err}
}

// CategoryOf extracts the failure category from an error, classifying plain
// network errors when no explicit category is attached.
func CategoryOf(err error) FailureCategory {
	if err == nil {
		return ""
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Category
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return FailureTimeout
		}
		return FailureConnection
	}
	return FailureUnknown
}

// ClassifyStatus maps an HTTP status code into the failure taxonomy.
// 2xx codes are not failures and return the empty category.
func ClassifyStatus(code int) FailureCategory {
	switch {
	case code >= 200 && code < 300:
		return ""
	case code == 404:
		return FailureNotFound
	case code == 429:
		return FailureRateLimited
	case code == 403:
		return FailureBlocked
	case code >= 500 && code < 600:
		return FailureServerError
	case code >= 400 && code < 500:
		return FailureClientError
	default:
		return FailureUnknown
	}
}
