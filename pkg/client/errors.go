package client

import (
	"context"
	"errors"
	"fmt"
)

// errGetWithBody rejects GET descriptors that carry an explicit body, which
// would otherwise be dropped.
var errGetWithBody = errors.New("GET request cannot carry a body")

// ErrorClass represents a classification of request failures. The batch
// fetcher retries every class alike; classes exist for logs and metrics.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport errors: proxy refused, DNS,
	// timeouts, resets.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents 2xx responses whose body is not JSON.
	ErrorClassDecode ErrorClass = "decode"

	// ErrorClassAdmission represents requests that never got a token.
	ErrorClassAdmission ErrorClass = "admission"

	// ErrorClassCancelled represents context cancellation.
	ErrorClassCancelled ErrorClass = "cancelled"
)

// FetchError is a transient per-request failure.
type FetchError struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("fetch %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// ClassOf returns the class of err. Errors that are not a *FetchError are
// classified as cancelled when they wrap a context error and as network
// otherwise.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ""
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Class
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassCancelled
	}
	return ErrorClassNetwork
}

// classifyStatus maps a non-2xx status code to its class.
func classifyStatus(code int) ErrorClass {
	switch {
	case code == 429:
		return ErrorClassRateLimit
	case code >= 400 && code < 500:
		return ErrorClassClient
	case code >= 500:
		return ErrorClassServer
	default:
		// 1xx/3xx that the transport did not resolve
		return ErrorClassServer
	}
}
