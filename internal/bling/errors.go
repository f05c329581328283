// Package bling provides an authenticated HTTP client for the Bling ERP v3
// API: OAuth2 token lifecycle, one-shot replay after 401, error
// classification, and typed wrappers for the order, product, and stock
// endpoints used by the picking station.
package bling

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for token lifecycle failures.
var (
	// ErrNotConfigured means client credentials or a refresh token are missing.
	ErrNotConfigured = errors.New("bling: oauth client not configured")
	// ErrInvalidGrant means the refresh token was permanently rejected and
	// a manual re-authorization (blingpick auth exchange) is required.
	ErrInvalidGrant = errors.New("bling: refresh token rejected, manual re-authorization required")
	// ErrRefreshFailed wraps transient refresh failures (network, 5xx).
	ErrRefreshFailed = errors.New("bling: token refresh failed")
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, bling.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("bling: bad request")
	ErrUnauthorized = errors.New("bling: unauthorized")
	ErrForbidden    = errors.New("bling: forbidden")
	ErrNotFound     = errors.New("bling: not found")
	ErrThrottled    = errors.New("bling: throttled")
	ErrServerError  = errors.New("bling: server error")
)

// APIError wraps a sentinel error with the HTTP status code and the
// response body returned by Bling.
type APIError struct {
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bling: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for codes without a dedicated sentinel.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}
