package client

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrRateLimited is returned when the limiter rejects a call. No request
	// is sent.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// ErrorClass represents a classification of failed API calls.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses from the provider.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network and timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassApplication represents provider errors inside a 200 response.
	ErrorClassApplication ErrorClass = "application"
)

// TransportError is an HTTP or network level failure.
type TransportError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("search API %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("search API %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ApplicationError is a provider-side failure reported in a well-formed
// response. It is never retried.
type ApplicationError struct {
	SearchID string
	Message  string
}

// Error implements the error interface.
func (e *ApplicationError) Error() string {
	return fmt.Sprintf("search API error for %s: %s", e.SearchID, e.Message)
}

// ValidationError lists every problem found in a set of search parameters.
type ValidationError struct {
	Errors []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "invalid search parameters: " + strings.Join(e.Errors, "; ")
}

// shouldRetry determines if an error class is transient.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		// Client and application errors would fail the same way again.
		return false
	}
}

// ClassOf returns the error class carried by err, or "" if none.
func ClassOf(err error) ErrorClass {
	var te *TransportError
	if errors.As(err, &te) {
		return te.ErrorClass
	}
	var ae *ApplicationError
	if errors.As(err, &ae) {
		return ErrorClassApplication
	}
	return ""
}
