package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	// ErrDenied is returned by the compliance gate for paths disallowed by
	// the outlet's crawl policy. It is a normal negative result, not a
	// failure: adapters skip the URL without retry.
	ErrDenied = errors.New("denied by crawl policy")

	// ErrTimeout marks fetch failures caused by a request timeout. The
	// fetcher wraps it inside the *FetchError it returns.
	ErrTimeout = errors.New("request timed out")

	ErrEmptyResponse = errors.New("empty response body")
	ErrInvalidURL    = errors.New("invalid URL")

	// ErrConflict signals a transient write collision inside a store
	// backend. The store writer retries it internally.
	ErrConflict = errors.New("store write conflict")
)

// FetchError wraps errors that occur while fetching a feed, listing, or
// article page.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
	RetryAfter time.Duration // populated from Retry-After header on HTTP 429
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// ParseError wraps per-candidate normalization failures. Candidates that
// fail to normalize are dropped and counted as rejected; they are never
// retried, since malformed content does not improve on retry.
type ParseError struct {
	Outlet Outlet
	URL    string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error for %s (%s): %v", e.URL, e.Outlet, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StorageError wraps errors from a storage backend.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
