package pulse

import (
	"context"
	"sync"
)

// fakeRemote is a scriptable RemoteService for scheduler, monitor, and
// reconciler tests. Unset function fields succeed with zero values.
type fakeRemote struct {
	mu sync.Mutex

	submitFn  func(ctx context.Context, a *Assessment) (*SubmitReceipt, error)
	metricsFn func(ctx context.Context, userID string) (*UserMetrics, error)
	patchFn   func(ctx context.Context, userID string, patch MetricsPatch) error
	healthFn  func(ctx context.Context) (*HealthResponse, error)

	submitted []string
	patches   []MetricsPatch
}

func (f *fakeRemote) SubmitAssessment(ctx context.Context, a *Assessment) (*SubmitReceipt, error) {
	f.mu.Lock()
	fn := f.submitFn
	f.mu.Unlock()

	if fn != nil {
		receipt, err := fn(ctx, a)
		if err != nil {
			return nil, err
		}
		f.recordSubmit(a.LocalID)
		return receipt, nil
	}
	f.recordSubmit(a.LocalID)
	return &SubmitReceipt{ID: "srv-" + a.LocalID}, nil
}

func (f *fakeRemote) GetMetrics(ctx context.Context, userID string) (*UserMetrics, error) {
	f.mu.Lock()
	fn := f.metricsFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, userID)
	}
	return nil, ErrNoMetrics
}

func (f *fakeRemote) PatchMetrics(ctx context.Context, userID string, patch MetricsPatch) error {
	f.mu.Lock()
	fn := f.patchFn
	f.mu.Unlock()

	if fn != nil {
		if err := fn(ctx, userID, patch); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.patches = append(f.patches, patch)
	f.mu.Unlock()
	return nil
}

func (f *fakeRemote) Health(ctx context.Context) (*HealthResponse, error) {
	f.mu.Lock()
	fn := f.healthFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return &HealthResponse{OK: true}, nil
}

func (f *fakeRemote) recordSubmit(localID string) {
	f.mu.Lock()
	f.submitted = append(f.submitted, localID)
	f.mu.Unlock()
}

func (f *fakeRemote) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}
