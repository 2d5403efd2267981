package graph

import (
	"errors"
	"fmt"
	"net/http"
)

// Error types for Graph API responses.
var (
	// ErrUnauthorized indicates the access token is invalid or expired.
	ErrUnauthorized = errors.New("graph: unauthorized")

	// ErrForbidden indicates the caller lacks permission for the resource.
	ErrForbidden = errors.New("graph: forbidden")

	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("graph: not found")

	// ErrRateLimited indicates the request was throttled by the server.
	ErrRateLimited = errors.New("graph: rate limited")

	// ErrDeltaExpired indicates the delta cursor has expired.
	// A full resync is required when this error occurs.
	ErrDeltaExpired = errors.New("graph: delta cursor expired, full resync required")

	// ErrBadRequest indicates the request was malformed.
	ErrBadRequest = errors.New("graph: bad request")

	// ErrServerError indicates a server-side error.
	ErrServerError = errors.New("graph: server error")

	// ErrRetriesExhausted indicates a transient failure persisted past the
	// bounded retry count.
	ErrRetriesExhausted = errors.New("graph: retries exhausted")
)

// WrapError converts an HTTP status code to an appropriate error.
func WrapError(statusCode int) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusGone:
		return ErrDeltaExpired
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusBadRequest:
		return ErrBadRequest
	default:
		if statusCode >= 500 {
			return ErrServerError
		}
		if statusCode >= 400 {
			return fmt.Errorf("graph: request failed with status %d", statusCode)
		}
		return nil
	}
}

// IsRetryable checks if the status code indicates a transient condition.
func IsRetryable(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusGatewayTimeout ||
		statusCode == http.StatusInternalServerError ||
		statusCode == http.StatusBadGateway
}

// IsTransient reports whether the error may succeed on a later retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrServerError) ||
		errors.Is(err, ErrRetriesExhausted)
}

// IsPermanent reports whether the error is a non-retryable request failure.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrBadRequest)
}
