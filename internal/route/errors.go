package route

import (
	"errors"
	"fmt"
)

// ErrPassThrough is returned by Dispatch when no rule matches and the
// interceptor is lenient; the request should go to the real network.
var ErrPassThrough = errors.New("route: no rule matched, pass through")

// ErrInvalidRequest is returned for a nil Request or one without a URL.
var ErrInvalidRequest = errors.New("route: request has no url")

// UnmatchedRequestError is returned by Dispatch, and recorded by Intercept,
// when no rule matches a request in strict mode.
type UnmatchedRequestError struct {
	Method string
	URL    string
}

func (e *UnmatchedRequestError) Error() string {
	return fmt.Sprintf("unmatched request: %s %s", e.Method, e.URL)
}

// AssertionError is a failed expectation about an intercepted request,
// raised inside a handler.
type AssertionError struct {
	Message string
	Err     error
}

func (e *AssertionError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AssertionError) Unwrap() error { return e.Err }

// Assertf returns an *AssertionError with a formatted message.
func Assertf(format string, args ...any) error {
	return &AssertionError{Message: fmt.Sprintf(format, args...)}
}

// HandlerError wraps an error returned by a rule's handler with the request
// and rule that produced it.
type HandlerError struct {
	Pattern string
	Method  string
	URL     string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler for %q failed on %s %s: %v", e.Pattern, e.Method, e.URL, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// IsAssertion reports whether err is, or wraps, an *AssertionError.
func IsAssertion(err error) bool {
	var ae *AssertionError
	return errors.As(err, &ae)
}
