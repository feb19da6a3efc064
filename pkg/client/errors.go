package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds returned by the client. Every failure of FetchProfiles and
// FetchMeta is an *APIError wrapping one of these, so callers branch with
// errors.Is.
var (
	// ErrNetwork covers transport failures: DNS, refused connections, timeouts.
	ErrNetwork = errors.New("network error")

	// ErrDecode is returned for bodies that are not valid JSON or lack a
	// required field.
	ErrDecode = errors.New("decode error")

	// ErrStatus is returned for non-2xx responses.
	ErrStatus = errors.New("unexpected status")

	// ErrRateLimited is returned while the API has asked for a back-off, and
	// for 429 responses.
	ErrRateLimited = errors.New("rate limited")

	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses and an active back-off.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents malformed response bodies.
	ErrorClassDecode ErrorClass = "decode"
)

// APIError describes a failed API call.
type APIError struct {
	// StatusCode is 0 when no response was received.
	StatusCode int
	Class      ErrorClass
	URL        string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("directory api %s error at %s: %v", e.Class, e.URL, e.Err)
	}
	return fmt.Sprintf("directory api %s error (status %d) at %s: %v",
		e.Class, e.StatusCode, e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps a non-2xx status code to an error class.
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case statusCode >= 400 && statusCode < 500:
		return ErrorClassClient
	case statusCode >= 500:
		return ErrorClassServer
	default:
		// 1xx and unhandled 3xx
		return ErrorClassClient
	}
}

// statusError builds the error for a non-2xx response.
func statusError(url string, resp *http.Response) *APIError {
	class := classifyStatus(resp.StatusCode)
	err := fmt.Errorf("%w: %s", ErrStatus, resp.Status)
	if class == ErrorClassRateLimit {
		err = fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	return &APIError{StatusCode: resp.StatusCode, Class: class, URL: url, Err: err}
}

// classOf returns the class of err, or "" if it is not an *APIError.
func classOf(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Class
	}
	return ""
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassNetwork:
		return true
	case ErrorClassRateLimit:
		// The back-off gate decides when to try again
		return false
	default:
		// Client and decode errors repeat on every attempt
		return false
	}
}
