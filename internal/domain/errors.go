package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the engine.
var (
	// ErrNotFound: the requested entity does not exist. For SKU lookups
	// it is expected and common; counted as failed, never fatal.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyRunning: a sync job is already running for the account.
	ErrAlreadyRunning = errors.New("sync already running for account")

	// ErrTimeout: a job exceeded the maximum run duration and was
	// finalized by the watchdog.
	ErrTimeout = errors.New("sync run timed out")
)

// FetchError wraps a feed retrieval failure (network error, non-2xx status,
// empty body). Retried by the orchestrator with bounded backoff.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("feed fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SchemaError means the feed content could not be interpreted at all:
// missing header, or a named column absent from a custom feed.
type SchemaError struct {
	Column string
	Err    error
}

func (e *SchemaError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("feed schema: column %q not found", e.Column)
	}
	return fmt.Sprintf("feed schema: %v", e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// TransientAPIError is a retryable marketplace failure: 5xx, timeout, or an
// explicit rate-limit response.
type TransientAPIError struct {
	StatusCode  int
	RateLimited bool
	Err         error
}

func (e *TransientAPIError) Error() string {
	if e.RateLimited {
		return fmt.Sprintf("marketplace rate limited (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("marketplace transient error (status %d): %v", e.StatusCode, e.Err)
}

func (e *TransientAPIError) Unwrap() error { return e.Err }

// PermanentAPIError is a non-retryable marketplace failure (4xx validation).
// Recorded as failed for the affected SKUs.
type PermanentAPIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *PermanentAPIError) Error() string {
	return fmt.Sprintf("marketplace rejected request [%s]: %s", e.Code, e.Message)
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var t *TransientAPIError
	return errors.As(err, &t)
}
