package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code int
		want FailureCategory
	}{
		{404, FailureNotFound},
		{429, FailureRateLimited},
		{403, FailureBlocked},
		{500, FailureServerError},
		{503, FailureServerError},
		{400, FailureClientError},
		{418, FailureClientError},
		{200, FailureCategory("")},
		{302, FailureUnknown},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, ClassifyStatus(tt.code), "code %d", tt.code)
	}
}

func TestRetryableSetIsClosed(t *testing.T) {
	t.Parallel()

	require.True(t, Retryable(FailureTimeout))
	require.True(t, Retryable(FailureConnection))
	require.True(t, Retryable(FailureRateLimited))
	require.True(t, Retryable(FailureServerError))

	require.False(t, Retryable(FailureNotFound))
	require.False(t, Retryable(FailureClientError))
	require.False(t, Retryable(FailureBlocked))
	require.False(t, Retryable(FailureParse))
	require.False(t, Retryable(FailureEmptyResult))
	require.False(t, Retryable(FailureUnknown))
}

func TestCategoryOfUnwrapsFetchError(t *testing.T) {
	t.Parallel()

	err := NewFetchError(FailureNotFound, errors.New("status 404"))
	require.Equal(t, FailureNotFound, CategoryOf(err))

	wrapped := fmt.Errorf("fetch listing: %w", err)
	require.Equal(t, FailureNotFound, CategoryOf(wrapped))
}

func TestCategoryOfRecognizesTimeouts(t *testing.T) {
	t.Parallel()

	require.Equal(t, FailureTimeout, CategoryOf(context.DeadlineExceeded))

	var netErr net.Error = &net.DNSError{IsTimeout: true}
	require.Equal(t, FailureTimeout, CategoryOf(netErr))

	require.Equal(t, FailureConnection, CategoryOf(&net.OpError{Op: "dial", Err: errors.New("connection refused")}))
	require.Equal(t, FailureUnknown, CategoryOf(errors.New("something odd")))
}

func TestFetchErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := NewFetchError(FailureServerError, cause)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "http_5xx")
}
