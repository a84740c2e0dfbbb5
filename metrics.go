package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Reconciler maintains per-user aggregates after records reach SYNCED.
// It prefers re-fetching the authoritative aggregate from Harbor so that
// concurrent sessions of the same user converge; when Harbor's metrics
// endpoint is unavailable it applies a local incremental update instead,
// marked MetricsLocal so presentation can distinguish it from a
// remote-confirmed value.
type Reconciler struct {
	remote RemoteService
	store  *Store
	retry  *Retryer
	debug  *DebugLogger
}

// NewReconciler creates a reconciler. remote may be nil in offline mode,
// in which case all updates are local fallbacks.
func NewReconciler(remote RemoteService, store *Store, retry *Retryer, debug *DebugLogger) *Reconciler {
	return &Reconciler{remote: remote, store: store, retry: retry, debug: debug}
}

// Reconcile updates the owner's aggregate for a just-synced assessment.
// The update is idempotent: applying the same record twice yields the same
// aggregate. Failures degrade to the local fallback rather than failing
// the sync; the record itself is already safely stored remotely.
func (r *Reconciler) Reconcile(ctx context.Context, a *Assessment) (*UserMetrics, error) {
	current, err := r.fetchCurrent(ctx, a.UserID)
	if err != nil {
		r.debug.LogError("reconcile_fetch", err)
		current = r.localSnapshot(a.UserID)
	}

	updated := applyAssessment(current, a)

	if r.remote != nil {
		patch := MetricsPatch{
			LastAssessmentDate: updated.LastAssessmentDate,
			StressLevel:        updated.StressLevel,
			StreakDays:         updated.StreakDays,
			FirstCheckInDate:   updated.FirstCheckInDate,
		}
		pushErr := r.retry.Do(ctx, func(ctx context.Context) error {
			return r.remote.PatchMetrics(ctx, a.UserID, patch)
		})
		if pushErr != nil {
			r.debug.LogError("reconcile_patch", pushErr)
			updated.Source = MetricsLocal
		} else {
			updated.Source = MetricsRemote
		}
	} else {
		updated.Source = MetricsLocal
	}

	r.saveSnapshot(updated)
	return updated, nil
}

// Current returns the best available aggregate for a user: the remote
// value when Harbor answers, otherwise the last local snapshot.
func (r *Reconciler) Current(ctx context.Context, userID string) (*UserMetrics, error) {
	metrics, err := r.fetchCurrent(ctx, userID)
	if err == nil {
		return metrics, nil
	}

	if snapshot := r.localSnapshot(userID); snapshot.LastAssessmentDate != (time.Time{}) {
		snapshot.Source = MetricsLocal
		return snapshot, nil
	}
	return nil, err
}

func (r *Reconciler) fetchCurrent(ctx context.Context, userID string) (*UserMetrics, error) {
	if r.remote == nil {
		return nil, ErrOffline
	}

	var metrics *UserMetrics
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		m, err := r.remote.GetMetrics(ctx, userID)
		if err != nil {
			return err
		}
		metrics = m
		return nil
	})
	if errors.Is(err, ErrNoMetrics) {
		// First check-in for this user: start a fresh aggregate.
		return &UserMetrics{UserID: userID, Source: MetricsRemote}, nil
	}
	if err != nil {
		return nil, err
	}
	return metrics, nil
}

func (r *Reconciler) localSnapshot(userID string) *UserMetrics {
	raw, err := r.store.GetMetadata("metrics:" + userID)
	if err != nil || raw == "" {
		return &UserMetrics{UserID: userID, Source: MetricsLocal}
	}

	var metrics UserMetrics
	if err := json.Unmarshal([]byte(raw), &metrics); err != nil {
		return &UserMetrics{UserID: userID, Source: MetricsLocal}
	}
	metrics.Source = MetricsLocal
	return &metrics
}

func (r *Reconciler) saveSnapshot(metrics *UserMetrics) {
	raw, err := json.Marshal(metrics)
	if err != nil {
		return
	}
	if err := r.store.SetMetadata("metrics:"+metrics.UserID, string(raw)); err != nil {
		r.debug.LogError("reconcile_snapshot", err)
	}
}

// applyAssessment folds one synced assessment into an aggregate.
// Same-day repeats keep the streak, a previous-calendar-day check-in
// extends it, and any larger gap resets it to 1. Dates compare in UTC.
func applyAssessment(current *UserMetrics, a *Assessment) *UserMetrics {
	updated := *current
	updated.UserID = a.UserID

	day := dateOf(a.CreatedAt)
	lastDay := dateOf(current.LastAssessmentDate)

	switch {
	case current.LastAssessmentDate.IsZero():
		updated.StreakDays = 1
	case day.Equal(lastDay):
		if updated.StreakDays == 0 {
			updated.StreakDays = 1
		}
	case day.Equal(lastDay.AddDate(0, 0, 1)):
		updated.StreakDays = current.StreakDays + 1
	case day.After(lastDay):
		updated.StreakDays = 1
	default:
		// Draining an old queued record after a newer one already synced:
		// keep the aggregate as-is, the newer record already covers it.
		return &updated
	}

	if a.CreatedAt.After(current.LastAssessmentDate) {
		updated.LastAssessmentDate = a.CreatedAt
		updated.StressLevel = a.CombinedScore
	}
	if current.FirstCheckInDate == nil || a.CreatedAt.Before(*current.FirstCheckInDate) {
		created := a.CreatedAt
		updated.FirstCheckInDate = &created
	}

	return &updated
}

func dateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
