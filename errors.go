package pulse

import (
	"errors"
	"fmt"
)

// Common errors returned by the Pulse client.
var (
	// ErrEmptyResponses is returned when an assessment has no responses.
	// Scoring an empty set is a caller error, not a runtime fallback.
	ErrEmptyResponses = errors.New("assessment has no responses")

	// ErrScoreOutOfRange is returned when a raw response score is outside [0, 10].
	ErrScoreOutOfRange = errors.New("response score must be between 0 and 10")

	// ErrMissingUserID is returned when an assessment has no owner.
	ErrMissingUserID = errors.New("user id cannot be empty")

	// ErrStoreClosed is returned when operating on a closed queue store.
	ErrStoreClosed = errors.New("queue store is closed")

	// ErrNotFound is returned when a queued assessment is not found.
	ErrNotFound = errors.New("assessment not found")

	// ErrNoMetrics is returned when a user has no remote aggregate yet.
	// Callers create a fresh aggregate; absence is not a failure.
	ErrNoMetrics = errors.New("no metrics for user")

	// ErrOffline is returned when a network operation is attempted in
	// offline-only mode (no Harbor URL configured).
	ErrOffline = errors.New("operation unavailable in offline mode")

	// ErrMalformedResponse is returned when Harbor answers with a success
	// status but an unparseable or unexpected payload. Treated as transient
	// but logged distinctly; it usually means a captive portal or a
	// misconfigured deployment, not a healthy service.
	ErrMalformedResponse = errors.New("malformed response from harbor")
)

// ValidationError is returned when configuration validation fails.
// Extractable via errors.As().
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// StorageError is returned when the durable queue itself fails (write
// rejected, serialization failure, corrupt row). Distinct from sync
// failures: it is surfaced immediately, never retried by the retry engine,
// and never counts against a record's attempt counter.
type StorageError struct {
	Operation string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("queue: %s: %v", e.Operation, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// SyncError is returned when a Harbor operation fails.
// Extractable via errors.As(). Supports Unwrap().
type SyncError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync: %s failed (status %d): %v", e.Operation, e.StatusCode, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Transient reports whether the failure is worth retrying.
// Transport-level failures (no status code) and server-side statuses are
// transient; 4xx validation rejections are permanent. 408 and 429 are the
// retry-worthy exceptions in the 4xx range.
func (e *SyncError) Transient() bool {
	if errors.Is(e.Err, ErrMalformedResponse) {
		return true
	}
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == 408 || e.StatusCode == 429:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// IsTransient reports whether err represents a retry-worthy sync failure.
// Storage errors are never transient: they are not sync failures at all.
func IsTransient(err error) bool {
	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return false
	}
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Transient()
	}
	// Bare transport errors that were not wrapped (context deadline,
	// connection refused) are treated as transient.
	return err != nil
}

// IsPermanent reports whether err is an authoritative remote rejection
// that retrying cannot fix.
func IsPermanent(err error) bool {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return !syncErr.Transient()
	}
	return false
}
