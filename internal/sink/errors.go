package sink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by sinks.
//
// Every failure the emitter reports wraps ErrDispatch:
//
//	if errors.Is(res.Err, sink.ErrDispatch) {
//	    // the batch was attempted once and dropped
//	}
var (
	// ErrDispatch marks a batch that could not be delivered.
	ErrDispatch = errors.New("batch dispatch failed")

	// ErrNoSinks is returned when a fan-out is built without any sink.
	ErrNoSinks = errors.New("no sinks configured")

	// ErrInvalidEndpoint is returned when an HTTP sink URL is unusable.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrMissingBucket is returned when the S3 sink has no bucket.
	ErrMissingBucket = errors.New("s3 bucket not configured")
)

// StatusError is returned by the HTTP sink for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("unexpected status %d %s: %s", e.Code, http.StatusText(e.Code), e.Body)
}

// IsDispatch reports whether err is a dispatch failure.
func IsDispatch(err error) bool {
	return errors.Is(err, ErrDispatch)
}

// IsTransient returns true if the failure would likely succeed on a later attempt.
// Batches are never retried; this only classifies log output.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}

	return false
}
