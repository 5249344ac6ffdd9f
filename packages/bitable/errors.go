package bitable

import (
	"errors"
	"fmt"
)

// Lark openapi error codes that map onto our error kinds.
const (
	codeRateLimited    = 99991400
	codeInvalidToken   = 99991661
	codeTokenExpired   = 99991663
	codePermissionDeny = 1254302
)

// AuthError indicates an invalid or expired credential. It is fatal:
// the caller must not retry, credential refresh happens out of band.
type AuthError struct {
	Code    int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("bitable: authentication failed (code %d): %s", e.Code, e.Message)
}

// RateLimitError indicates the backend asked us to slow down.
// The client retries these with backoff before surfacing them.
type RateLimitError struct {
	Code    int
	Message string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("bitable: rate limited (code %d): %s", e.Code, e.Message)
}

// APIError is any other non-success response from the table backend.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bitable: api error (http %d, code %d): %s", e.StatusCode, e.Code, e.Message)
}

// Retryable reports whether a retry could succeed: rate limits and
// transient server-side failures qualify, everything else is final.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500
}

// IsAuthError reports whether err is (or wraps) an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsRateLimitError reports whether err is (or wraps) a RateLimitError.
func IsRateLimitError(err error) bool {
	var re *RateLimitError
	return errors.As(err, &re)
}

// classify turns an HTTP status plus envelope code into the right error kind.
func classify(httpStatus, code int, msg string) error {
	switch {
	case httpStatus == 401 || httpStatus == 403,
		code == codeInvalidToken, code == codeTokenExpired, code == codePermissionDeny:
		return &AuthError{Code: code, Message: msg}
	case httpStatus == 429 || code == codeRateLimited:
		return &RateLimitError{Code: code, Message: msg}
	default:
		return &APIError{StatusCode: httpStatus, Code: code, Message: msg}
	}
}
