package pulse

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestReconciler(t *testing.T, remote RemoteService) (*Reconciler, *Store) {
	t.Helper()

	store := newTestStore(t)
	reconciler := NewReconciler(remote, store, NewRetryer(1, time.Millisecond), nil)
	return reconciler, store
}

func syncedAssessment(userID string, score float64, createdAt time.Time) *Assessment {
	return &Assessment{
		LocalID:       "01" + userID,
		UserID:        userID,
		Responses:     []Response{{QuestionID: 1, Type: QuestionStress, Score: score}},
		CombinedScore: score,
		CreatedAt:     createdAt,
		State:         StateSynced,
	}
}

func TestReconciler_FirstCheckInStartsFreshAggregate(t *testing.T) {
	remote := &fakeRemote{} // GetMetrics returns ErrNoMetrics by default
	reconciler, _ := newTestReconciler(t, remote)

	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	metrics, err := reconciler.Reconcile(context.Background(), syncedAssessment("alice", 7.5, now))
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if metrics.StreakDays != 1 {
		t.Errorf("first check-in starts a streak of 1, got %d", metrics.StreakDays)
	}
	if metrics.StressLevel != 7.5 {
		t.Errorf("expected stress level 7.5, got %v", metrics.StressLevel)
	}
	if !metrics.LastAssessmentDate.Equal(now) {
		t.Errorf("expected last assessment %v, got %v", now, metrics.LastAssessmentDate)
	}
	if metrics.FirstCheckInDate == nil || !metrics.FirstCheckInDate.Equal(now) {
		t.Errorf("first check-in date not recorded: %v", metrics.FirstCheckInDate)
	}
	if metrics.Source != MetricsRemote {
		t.Errorf("successful push should mark metrics remote, got %s", metrics.Source)
	}

	remote.mu.Lock()
	pushed := len(remote.patches)
	remote.mu.Unlock()
	if pushed != 1 {
		t.Errorf("expected the aggregate to be pushed once, got %d", pushed)
	}
}

func TestApplyAssessment_StreakRules(t *testing.T) {
	day := func(d int) time.Time {
		return time.Date(2026, 9, d, 12, 0, 0, 0, time.UTC)
	}

	tests := []struct {
		name       string
		lastDate   time.Time
		streak     int
		createdAt  time.Time
		wantStreak int
	}{
		{"first ever", time.Time{}, 0, day(1), 1},
		{"same day repeat", day(1), 3, day(1).Add(4 * time.Hour), 3},
		{"next day extends", day(1), 3, day(2), 4},
		{"two day gap resets", day(1), 3, day(4), 1},
		{"boundary: 23h59m same day", day(1), 2, time.Date(2026, 9, 1, 23, 59, 0, 0, time.UTC), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			current := &UserMetrics{
				UserID:             "alice",
				LastAssessmentDate: tt.lastDate,
				StreakDays:         tt.streak,
			}
			updated := applyAssessment(current, syncedAssessment("alice", 5, tt.createdAt))
			if updated.StreakDays != tt.wantStreak {
				t.Errorf("streak = %d, want %d", updated.StreakDays, tt.wantStreak)
			}
		})
	}
}

func TestApplyAssessment_OldRecordNeverRegresses(t *testing.T) {
	newer := time.Date(2026, 9, 5, 9, 0, 0, 0, time.UTC)
	current := &UserMetrics{
		UserID:             "alice",
		LastAssessmentDate: newer,
		StressLevel:        6.0,
		StreakDays:         4,
	}

	// An old queued record drains after a newer one already synced.
	old := syncedAssessment("alice", 9.0, time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC))
	updated := applyAssessment(current, old)

	if !updated.LastAssessmentDate.Equal(newer) {
		t.Errorf("last assessment date regressed to %v", updated.LastAssessmentDate)
	}
	if updated.StressLevel != 6.0 {
		t.Errorf("stress level regressed to %v", updated.StressLevel)
	}
	if updated.StreakDays != 4 {
		t.Errorf("streak regressed to %d", updated.StreakDays)
	}
}

func TestApplyAssessment_Idempotent(t *testing.T) {
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	record := syncedAssessment("alice", 7.0, now)

	first := applyAssessment(&UserMetrics{UserID: "alice"}, record)
	second := applyAssessment(first, record)

	if second.StreakDays != first.StreakDays {
		t.Errorf("re-applying the same record changed the streak: %d -> %d", first.StreakDays, second.StreakDays)
	}
	if second.StressLevel != first.StressLevel {
		t.Errorf("re-applying the same record changed the stress level: %v -> %v", first.StressLevel, second.StressLevel)
	}
	if !second.LastAssessmentDate.Equal(first.LastAssessmentDate) {
		t.Errorf("re-applying the same record changed the date: %v -> %v", first.LastAssessmentDate, second.LastAssessmentDate)
	}
}

func TestReconciler_LocalFallbackWhenMetricsEndpointDown(t *testing.T) {
	remote := &fakeRemote{
		metricsFn: func(ctx context.Context, userID string) (*UserMetrics, error) {
			return nil, &SyncError{Operation: "get_metrics", StatusCode: 503, Err: errors.New("HTTP 503")}
		},
		patchFn: func(ctx context.Context, userID string, patch MetricsPatch) error {
			return &SyncError{Operation: "patch_metrics", StatusCode: 503, Err: errors.New("HTTP 503")}
		},
	}
	reconciler, store := newTestReconciler(t, remote)

	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	metrics, err := reconciler.Reconcile(context.Background(), syncedAssessment("alice", 4.0, now))
	if err != nil {
		t.Fatalf("a metrics outage must not fail reconciliation: %v", err)
	}
	if metrics.Source != MetricsLocal {
		t.Errorf("unpushed updates must be marked local, got %s", metrics.Source)
	}
	if metrics.StreakDays != 1 {
		t.Errorf("local fallback still applies the update, streak = %d", metrics.StreakDays)
	}

	// The snapshot survives for the next reconciliation to build on.
	raw, err := store.GetMetadata("metrics:alice")
	if err != nil || raw == "" {
		t.Fatalf("expected a persisted snapshot, got %q / %v", raw, err)
	}

	next := reconciler.localSnapshot("alice")
	if next.StreakDays != 1 || next.StressLevel != 4.0 {
		t.Errorf("snapshot did not round-trip: %+v", next)
	}
}

func TestReconciler_SnapshotFeedsNextStreak(t *testing.T) {
	remote := &fakeRemote{
		metricsFn: func(ctx context.Context, userID string) (*UserMetrics, error) {
			return nil, &SyncError{Operation: "get_metrics", StatusCode: 503, Err: errors.New("HTTP 503")}
		},
	}
	reconciler, _ := newTestReconciler(t, remote)

	day1 := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	if _, err := reconciler.Reconcile(context.Background(), syncedAssessment("alice", 4.0, day1)); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	day2 := day1.AddDate(0, 0, 1)
	metrics, err := reconciler.Reconcile(context.Background(), syncedAssessment("alice", 5.0, day2))
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if metrics.StreakDays != 2 {
		t.Errorf("consecutive days through the local fallback should extend the streak, got %d", metrics.StreakDays)
	}
}

func TestReconciler_PrefersRemoteAggregate(t *testing.T) {
	remoteDate := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	remote := &fakeRemote{
		metricsFn: func(ctx context.Context, userID string) (*UserMetrics, error) {
			return &UserMetrics{
				UserID:             userID,
				LastAssessmentDate: remoteDate,
				StreakDays:         6,
				StressLevel:        5.0,
				Source:             MetricsRemote,
			}, nil
		},
	}
	reconciler, _ := newTestReconciler(t, remote)

	// Next calendar day: the remote streak of 6 extends to 7 even though
	// this device has no local history.
	next := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	metrics, err := reconciler.Reconcile(context.Background(), syncedAssessment("alice", 6.5, next))
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if metrics.StreakDays != 7 {
		t.Errorf("expected the remote streak to extend to 7, got %d", metrics.StreakDays)
	}
}

func TestReconciler_CurrentFallsBackToSnapshot(t *testing.T) {
	calls := 0
	remote := &fakeRemote{
		metricsFn: func(ctx context.Context, userID string) (*UserMetrics, error) {
			calls++
			if calls == 1 {
				return nil, ErrNoMetrics
			}
			return nil, &SyncError{Operation: "get_metrics", StatusCode: 503, Err: errors.New("HTTP 503")}
		},
		patchFn: func(ctx context.Context, userID string, patch MetricsPatch) error {
			return &SyncError{Operation: "patch_metrics", StatusCode: 503, Err: errors.New("HTTP 503")}
		},
	}
	reconciler, _ := newTestReconciler(t, remote)

	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	if _, err := reconciler.Reconcile(context.Background(), syncedAssessment("alice", 4.0, now)); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	metrics, err := reconciler.Current(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Current should fall back to the snapshot: %v", err)
	}
	if metrics.Source != MetricsLocal {
		t.Errorf("fallback metrics must be marked local, got %s", metrics.Source)
	}
	if metrics.StreakDays != 1 {
		t.Errorf("unexpected snapshot streak: %d", metrics.StreakDays)
	}
}

func TestReconciler_CurrentErrorsWithoutAnyData(t *testing.T) {
	remote := &fakeRemote{
		metricsFn: func(ctx context.Context, userID string) (*UserMetrics, error) {
			return nil, &SyncError{Operation: "get_metrics", StatusCode: 503, Err: errors.New("HTTP 503")}
		},
	}
	reconciler, _ := newTestReconciler(t, remote)

	if _, err := reconciler.Current(context.Background(), "nobody"); err == nil {
		t.Error("no remote and no snapshot should be an error")
	}
}
