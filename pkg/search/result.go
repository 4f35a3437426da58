package search

import (
	"context"
	"errors"

	"github.com/Sternrassler/flight-search-cache/pkg/client"
	"github.com/Sternrassler/flight-search-cache/pkg/flight"
	"github.com/Sternrassler/flight-search-cache/pkg/inbound"
	"github.com/Sternrassler/flight-search-cache/pkg/storage"
)

// Source tells where a result came from.
type Source string

const (
	SourceCache Source = "cache"
	SourceAPI   Source = "api"
)

// ErrorKind classifies a failed search.
type ErrorKind string

const (
	ErrorValidation  ErrorKind = "validation"
	ErrorRateLimited ErrorKind = "rate_limited"
	ErrorTransport   ErrorKind = "transport"
	ErrorApplication ErrorKind = "application"
	ErrorInternal    ErrorKind = "internal"
)

// Error is the failure carried by a Result.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Details []string  `json:"details,omitempty"`

	cause error
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Result is the outcome of one search.
type Result struct {
	Success       bool                 `json:"success"`
	Source        Source               `json:"source,omitempty"`
	SearchID      string               `json:"search_id,omitempty"`
	Data          *flight.Response     `json:"data,omitempty"`
	CacheAgeHours float64              `json:"cache_age_hours,omitempty"`
	Message       string               `json:"message,omitempty"`
	Inbound       *inbound.Outcome     `json:"inbound,omitempty"`
	Storage       *storage.StoreReport `json:"storage,omitempty"`
	Error         *Error               `json:"error,omitempty"`
}

func failure(err error) Result {
	return Result{Error: classify(err)}
}

// classify maps client errors onto result error kinds.
func classify(err error) *Error {
	e := &Error{Kind: ErrorInternal, Message: err.Error(), cause: err}

	var (
		verr *client.ValidationError
		aerr *client.ApplicationError
		terr *client.TransportError
	)
	switch {
	case errors.As(err, &verr):
		e.Kind = ErrorValidation
		e.Message = "validation failed"
		e.Details = verr.Errors
	case errors.Is(err, client.ErrRateLimited):
		e.Kind = ErrorRateLimited
	case errors.As(err, &aerr):
		e.Kind = ErrorApplication
		e.Message = aerr.Message
	case errors.As(err, &terr),
		errors.Is(err, client.ErrRetryExhausted),
		errors.Is(err, client.ErrContextCancelled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		e.Kind = ErrorTransport
	}
	return e
}
