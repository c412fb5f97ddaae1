package provider

import (
	"errors"
	"fmt"
)

// ErrorKind classifies provider failures so callers can pick a retry policy.
type ErrorKind string

const (
	KindTransport ErrorKind = "TransportError"
	KindHTTP      ErrorKind = "HTTPError"
	KindParse     ErrorKind = "ParseError"
	KindUnknown   ErrorKind = "UnknownError"
)

// TransportError indicates the provider could not be reached or the request
// timed out before a response arrived.
type TransportError struct {
	URL     string
	Err     error
	timeout bool
}

func (e *TransportError) Error() string {
	if e.timeout {
		return fmt.Sprintf("provider request %s timed out", e.URL)
	}
	return fmt.Sprintf("provider request %s unreachable: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the request hit its deadline.
func (e *TransportError) Timeout() bool {
	return e.timeout
}

// HTTPError indicates the provider answered with a non-success status.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider request %s failed: http %d", e.URL, e.StatusCode)
}

// ParseError indicates the provider answered but the body was not usable JSON.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("provider request %s returned malformed body: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// KindOf returns the classification of a provider error.
func KindOf(err error) ErrorKind {
	var transportErr *TransportError
	var httpErr *HTTPError
	var parseErr *ParseError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &transportErr):
		return KindTransport
	case errors.As(err, &httpErr):
		return KindHTTP
	case errors.As(err, &parseErr):
		return KindParse
	default:
		return KindUnknown
	}
}

// Retryable reports whether repeating the request could succeed.
// Only transport failures qualify; a malformed body will stay malformed.
func Retryable(err error) bool {
	return KindOf(err) == KindTransport
}
