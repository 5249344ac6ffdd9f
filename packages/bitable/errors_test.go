package bitable

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		httpStatus int
		code       int
		wantAuth   bool
		wantRate   bool
	}{
		{"unauthorized", 401, 0, true, false},
		{"forbidden", 403, 0, true, false},
		{"invalid token code", 200, codeInvalidToken, true, false},
		{"expired token code", 200, codeTokenExpired, true, false},
		{"permission denied code", 200, codePermissionDeny, true, false},
		{"http 429", 429, 0, false, true},
		{"rate limit code", 200, codeRateLimited, false, true},
		{"plain failure", 400, 1254005, false, false},
		{"server error", 502, 0, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.httpStatus, tt.code, "boom")
			assert.Equal(t, tt.wantAuth, IsAuthError(err))
			assert.Equal(t, tt.wantRate, IsRateLimitError(err))
		})
	}
}

func TestAPIError_Retryable(t *testing.T) {
	assert.True(t, (&APIError{StatusCode: 500}).Retryable())
	assert.True(t, (&APIError{StatusCode: 503}).Retryable())
	assert.False(t, (&APIError{StatusCode: 400}).Retryable())
	assert.False(t, (&APIError{StatusCode: 404}).Retryable())
}

func TestIsAuthError_Wrapped(t *testing.T) {
	err := fmt.Errorf("loading records: %w", &AuthError{Code: codeInvalidToken, Message: "bad token"})
	assert.True(t, IsAuthError(err))
	assert.False(t, IsAuthError(errors.New("something else")))
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(&RateLimitError{Code: codeRateLimited}))
	assert.True(t, retryable(&APIError{StatusCode: 0, Message: "connection refused"}))
	assert.True(t, retryable(&APIError{StatusCode: 500}))
	assert.False(t, retryable(&APIError{StatusCode: 400}))
	assert.False(t, retryable(&AuthError{Code: codeTokenExpired}))
	assert.False(t, retryable(errors.New("plain")))
}
