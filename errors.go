package ticktock

import (
	"errors"
	"fmt"
	"net/http"
)

// Common sentinel errors for the ticktock package.
var (
	// ErrBadRequest is returned for requests that fail parsing.
	ErrBadRequest = errors.New("bad request")

	// ErrInvalidRange is returned for time ranges with from > to.
	ErrInvalidRange = errors.New("invalid time range")

	// ErrInvalidDownsample is returned for unparsable downsample specs.
	ErrInvalidDownsample = errors.New("invalid downsample spec")

	// ErrInvalidAggregator is returned for unknown aggregator names.
	ErrInvalidAggregator = errors.New("invalid aggregator")

	// ErrURLDecode is returned when percent-decoding a query fails.
	ErrURLDecode = errors.New("URL decode failed")

	// ErrOversizeResponse is returned when a serialized response exceeds
	// the output buffer.
	ErrOversizeResponse = errors.New("response too large")

	// ErrInternalStorage is returned when a storage read fails.
	ErrInternalStorage = errors.New("storage failure")

	// ErrShutdown is returned when work is submitted to a stopping executor.
	ErrShutdown = errors.New("executor shutting down")

	// ErrClosed is returned when operations are attempted on a closed database.
	ErrClosed = errors.New("database is closed")
)

// QueryError carries a classified query failure with its cause.
type QueryError struct {
	Kind    error
	Message string
	Cause   error
}

func (e *QueryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *QueryError) Unwrap() error {
	return e.Cause
}

// Is implements error matching against the sentinel kinds.
func (e *QueryError) Is(target error) bool {
	return target == e.Kind
}

// newQueryError creates a QueryError of the given kind.
func newQueryError(kind error, message string, cause error) *QueryError {
	return &QueryError{Kind: kind, Message: message, Cause: cause}
}

// httpStatusFor maps an error to the HTTP status code the API reports.
func httpStatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrOversizeResponse):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrShutdown):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrInternalStorage):
		return http.StatusInternalServerError
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, ErrInvalidRange),
		errors.Is(err, ErrInvalidDownsample),
		errors.Is(err, ErrInvalidAggregator),
		errors.Is(err, ErrURLDecode):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
