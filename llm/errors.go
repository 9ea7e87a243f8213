package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoEndpoint is returned when no endpoint is configured for a capability.
var ErrNoEndpoint = errors.New("no endpoint configured")

// TransientError is a temporary failure that may succeed on retry.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string { return e.err.Error() }
func (e *TransientError) Unwrap() error { return e.err }

// NewTransientError wraps an error as retryable.
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError is a permanent failure that must not be retried.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string { return e.err.Error() }
func (e *FatalError) Unwrap() error { return e.err }

// NewFatalError wraps an error as non-retryable.
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal reports whether err must not be retried.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// classifyHTTPError maps a non-200 status to a transient or fatal error.
// Rate limiting and server errors are transient, everything else is fatal.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}
	err := fmt.Errorf("LLM API error (status %d): %s", statusCode, bodyStr)

	if statusCode == http.StatusTooManyRequests || statusCode >= 500 {
		return NewTransientError(err)
	}
	return NewFatalError(err)
}
