package pulse

import (
	"errors"
	"fmt"
	"testing"
)

func TestSyncError_Transient(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		err        error
		want       bool
	}{
		{"transport failure", 0, errors.New("connection refused"), true},
		{"timeout status", 408, errors.New("HTTP 408"), true},
		{"rate limited", 429, errors.New("HTTP 429"), true},
		{"server error", 500, errors.New("HTTP 500"), true},
		{"bad gateway", 502, errors.New("HTTP 502"), true},
		{"validation rejection", 400, errors.New("HTTP 400"), false},
		{"unauthorized", 401, errors.New("HTTP 401"), false},
		{"unprocessable", 422, errors.New("HTTP 422"), false},
		{"malformed 200 body", 200, fmt.Errorf("%w: bad json", ErrMalformedResponse), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syncErr := &SyncError{Operation: "submit_assessment", StatusCode: tt.statusCode, Err: tt.err}
			if got := syncErr.Transient(); got != tt.want {
				t.Errorf("Transient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	transient := &SyncError{Operation: "submit_assessment", StatusCode: 503, Err: errors.New("HTTP 503")}
	if !IsTransient(transient) {
		t.Error("503 should be transient")
	}

	permanent := &SyncError{Operation: "submit_assessment", StatusCode: 400, Err: errors.New("HTTP 400")}
	if IsTransient(permanent) {
		t.Error("400 should not be transient")
	}

	// Local storage failures are never sync failures.
	storage := &StorageError{Operation: "enqueue", Err: errors.New("disk full")}
	if IsTransient(storage) {
		t.Error("storage errors must not be classified as transient sync failures")
	}

	// Wrapped errors classify through Unwrap.
	wrapped := fmt.Errorf("drain: %w", transient)
	if !IsTransient(wrapped) {
		t.Error("wrapped transient error should classify as transient")
	}

	if IsTransient(nil) {
		t.Error("nil is not an error at all")
	}
}

func TestIsPermanent(t *testing.T) {
	permanent := &SyncError{Operation: "submit_assessment", StatusCode: 422, Err: errors.New("HTTP 422")}
	if !IsPermanent(permanent) {
		t.Error("422 should be permanent")
	}

	transient := &SyncError{Operation: "submit_assessment", StatusCode: 500, Err: errors.New("HTTP 500")}
	if IsPermanent(transient) {
		t.Error("500 should not be permanent")
	}

	if IsPermanent(errors.New("plain error")) {
		t.Error("plain errors are not authoritative rejections")
	}
}

func TestSyncError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	syncErr := &SyncError{Operation: "get_metrics", StatusCode: 500, Err: inner}

	if !errors.Is(syncErr, inner) {
		t.Error("errors.Is should see through SyncError")
	}

	var extracted *SyncError
	if !errors.As(fmt.Errorf("wrap: %w", syncErr), &extracted) {
		t.Error("errors.As should extract SyncError")
	}
	if extracted.Operation != "get_metrics" {
		t.Errorf("unexpected operation: %s", extracted.Operation)
	}
}

func TestStorageError_Unwrap(t *testing.T) {
	storageErr := &StorageError{Operation: "enqueue", Err: ErrStoreClosed}

	if !errors.Is(storageErr, ErrStoreClosed) {
		t.Error("errors.Is should see through StorageError")
	}
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Field: "LocalPath", Message: "required"}
	want := "config: LocalPath: required"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}
