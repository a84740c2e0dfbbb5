package pulse

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryer_SucceedsFirstAttempt(t *testing.T) {
	r := NewRetryer(3, time.Millisecond)

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryer_RetriesTransient(t *testing.T) {
	r := NewRetryer(3, time.Millisecond)

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &SyncError{Operation: "submit_assessment", StatusCode: 503, Err: errors.New("HTTP 503")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do should succeed on third attempt: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryer_SurfacesLastErrorAfterBudget(t *testing.T) {
	r := NewRetryer(3, time.Millisecond)

	calls := 0
	lastErr := &SyncError{Operation: "submit_assessment", StatusCode: 500, Err: errors.New("HTTP 500")}
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return lastErr
	})
	if err == nil {
		t.Fatal("exhausted retries must surface the last error, not swallow it")
	}
	var syncErr *SyncError
	if !errors.As(err, &syncErr) || syncErr.StatusCode != 500 {
		t.Errorf("expected the last SyncError, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected exactly MaxAttempts calls, got %d", calls)
	}
}

func TestRetryer_PermanentNotRetried(t *testing.T) {
	r := NewRetryer(5, time.Millisecond)

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &SyncError{Operation: "submit_assessment", StatusCode: 422, Err: errors.New("HTTP 422")}
	})
	if err == nil {
		t.Fatal("permanent rejection must propagate")
	}
	if calls != 1 {
		t.Errorf("permanent errors must not be retried: got %d calls", calls)
	}
}

func TestRetryer_StorageErrorNotRetried(t *testing.T) {
	r := NewRetryer(5, time.Millisecond)

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &StorageError{Operation: "enqueue", Err: errors.New("disk full")}
	})
	if err == nil {
		t.Fatal("storage error must propagate")
	}
	if calls != 1 {
		t.Errorf("storage errors must not be retried: got %d calls", calls)
	}
}

func TestRetryer_LinearBackoff(t *testing.T) {
	base := 10 * time.Millisecond
	backoff := linearBackoff(base)

	for i := 1; i <= 3; i++ {
		delay, stop := backoff.Next()
		if stop {
			t.Fatal("linear backoff never stops on its own")
		}
		if want := base * time.Duration(i); delay != want {
			t.Errorf("retry %d: delay = %v, want %v", i, delay, want)
		}
	}
}

func TestRetryer_ContextCancellation(t *testing.T) {
	r := NewRetryer(10, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := r.Do(ctx, func(ctx context.Context) error {
		calls++
		return &SyncError{Operation: "submit_assessment", StatusCode: 503, Err: errors.New("HTTP 503")}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls == 0 {
		t.Error("operation should have run at least once before cancellation")
	}
}

func TestNewRetryer_ClampsAttempts(t *testing.T) {
	r := NewRetryer(0, time.Millisecond)
	if r.MaxAttempts != 1 {
		t.Errorf("expected clamp to 1, got %d", r.MaxAttempts)
	}
}
