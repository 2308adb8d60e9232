package query

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Failures of the fetch and write transports are wrapped
// in *FetchError and *WriteError, which match ErrFetchFailed and
// ErrWriteFailed respectively while still unwrapping to the cause.
var (
	// ErrFetchFailed matches every *FetchError.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrWriteFailed matches every *WriteError.
	ErrWriteFailed = errors.New("write failed")

	// ErrNotFound is returned by fetch transports when the remote side
	// reports the resource as absent. It is never retried.
	ErrNotFound = errors.New("resource not found")

	// ErrDisabled is returned by a disabled Query.
	ErrDisabled = errors.New("query disabled")

	// ErrClosed is returned once the client has been closed.
	ErrClosed = errors.New("query client closed")

	// ErrNoFetcher is returned when a read has no fetch function.
	ErrNoFetcher = errors.New("no fetch function")
)

// FetchError reports a failed read transport call.
type FetchError struct {
	Key Key
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed: %v", e.Key, e.Err)
}

// Unwrap returns the transport error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is matches ErrFetchFailed.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}

// WriteError reports a failed write transport call. No cache entry was
// touched.
type WriteError struct {
	Tags []string
	Err  error
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	if len(e.Tags) == 0 {
		return fmt.Sprintf("write failed: %v", e.Err)
	}
	return fmt.Sprintf("write affecting %s failed: %v", strings.Join(e.Tags, ","), e.Err)
}

// Unwrap returns the transport error.
func (e *WriteError) Unwrap() error {
	return e.Err
}

// Is matches ErrWriteFailed.
func (e *WriteError) Is(target error) bool {
	return target == ErrWriteFailed
}

// permanentError marks a transport error that another attempt cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that failed fetches are not retried. It returns
// nil for a nil err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or any error it wraps, was marked with
// Permanent or is ErrNotFound.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p) || errors.Is(err, ErrNotFound)
}
