package pulse

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Scheduler decides, per assessment, between direct remote submission and
// local queueing, and drains the queue when connectivity allows. It is the
// single entry point through which both the new-assessment path and the
// drain path touch the queue.
type Scheduler struct {
	store          *Store
	remote         RemoteService
	retry          *Retryer
	monitor        *Monitor
	reconciler     *Reconciler
	debug          *DebugLogger
	attemptCeiling int

	// draining guards against concurrent drains: a second trigger while a
	// drain is active coalesces into a no-op.
	draining atomic.Bool
}

// NewScheduler creates a scheduler. remote and monitor may be nil in
// offline-only mode; Submit then always queues and Drain returns ErrOffline.
func NewScheduler(store *Store, remote RemoteService, retry *Retryer, monitor *Monitor, reconciler *Reconciler, attemptCeiling int) *Scheduler {
	if attemptCeiling < 1 {
		attemptCeiling = 10
	}
	return &Scheduler{
		store:          store,
		remote:         remote,
		retry:          retry,
		monitor:        monitor,
		reconciler:     reconciler,
		attemptCeiling: attemptCeiling,
	}
}

// WithDebugLogger attaches a debug logger.
func (s *Scheduler) WithDebugLogger(logger *DebugLogger) *Scheduler {
	s.debug = logger
	return s
}

// Submit handles a freshly completed assessment.
//
// When Harbor is known unreachable the network attempt is skipped entirely
// and the record queues immediately: failing fast beats waiting out a
// doomed retry budget. Otherwise submission goes through the retry engine;
// a transient failure falls back to the queue, while a permanent rejection
// surfaces to the caller without queueing, since retrying cannot succeed.
//
// A StorageError from the queue is surfaced as-is: it is a local storage
// problem, not a sync failure, and does not touch the attempt counter.
func (s *Scheduler) Submit(ctx context.Context, a *Assessment) (CheckInStatus, error) {
	if s.remote == nil || (s.monitor != nil && !s.monitor.IsReachable()) {
		if err := s.store.Enqueue(a); err != nil {
			return "", err
		}
		a.State = StatePending
		s.debug.LogSync("submit", fmt.Sprintf("queued %s (offline)", a.LocalID))
		return CheckInQueued, nil
	}

	a.State = StateSyncing
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		_, err := s.remote.SubmitAssessment(ctx, a)
		return err
	})
	if err == nil {
		a.State = StateSynced
		s.debug.LogSync("submit", fmt.Sprintf("synced %s directly", a.LocalID))
		s.reconcile(ctx, a)
		s.stampLastSync()
		return CheckInSynced, nil
	}

	if IsPermanent(err) {
		a.State = StatePending
		s.debug.LogError("submit", err)
		return "", err
	}

	// Transient failure after the retry budget: keep the record safe locally.
	a.State = StatePending
	a.AttemptCount++
	if enqueueErr := s.store.Enqueue(a); enqueueErr != nil {
		return "", enqueueErr
	}
	s.debug.LogSync("submit", fmt.Sprintf("queued %s after transient failure: %v", a.LocalID, err))
	return CheckInQueued, nil
}

// Drain transmits queued records oldest-first, one at a time. Serial
// processing avoids overwhelming a backend that may still be recovering
// and keeps the audit order deterministic.
//
// One record's failure never aborts the drain: transient failures bump the
// attempt counter and move on, permanent rejections leave the queue (and
// are counted in Rejected). Records at or past the attempt ceiling are
// skipped unless force is set, so a poisoned record cannot cause an
// infinite retry storm; force corresponds to an explicit user "sync now".
func (s *Scheduler) Drain(ctx context.Context, force bool) (*DrainResult, error) {
	if s.remote == nil {
		return nil, ErrOffline
	}

	if !s.draining.CompareAndSwap(false, true) {
		count, err := s.store.Count()
		if err != nil {
			return nil, err
		}
		return &DrainResult{Remaining: count, Coalesced: true}, nil
	}
	defer s.draining.Store(false)

	queued, err := s.store.Queued()
	if err != nil {
		return nil, err
	}

	result := &DrainResult{}
	for i := range queued {
		record := queued[i]

		if ctx.Err() != nil {
			break
		}
		if !force && record.AttemptCount >= s.attemptCeiling {
			s.debug.LogSync("drain", fmt.Sprintf("skipping stalled %s (%d attempts)", record.LocalID, record.AttemptCount))
			continue
		}

		record.State = StateSyncing
		err := s.retry.Do(ctx, func(ctx context.Context) error {
			_, err := s.remote.SubmitAssessment(ctx, &record)
			return err
		})

		switch {
		case err == nil:
			// Remove in the same logical step as marking synced: a record
			// that reached SYNCED must never be retransmitted.
			record.State = StateSynced
			if removeErr := s.store.Remove(record.LocalID); removeErr != nil {
				s.debug.LogError("drain_remove", removeErr)
			}
			result.Synced++
			s.reconcile(ctx, &record)

		case IsPermanent(err):
			// Authoritative rejection: retrying cannot succeed, so the
			// record leaves the queue and is surfaced for user action.
			if removeErr := s.store.Remove(record.LocalID); removeErr != nil {
				s.debug.LogError("drain_remove", removeErr)
			}
			result.Rejected++
			s.debug.LogError("drain", err)

		default:
			if _, incErr := s.store.IncrementAttempt(record.LocalID); incErr != nil && incErr != ErrNotFound {
				s.debug.LogError("drain_attempt", incErr)
			}
			s.debug.LogSync("drain", fmt.Sprintf("transient failure for %s: %v", record.LocalID, err))
		}
	}

	remaining, err := s.store.Count()
	if err != nil {
		return result, err
	}
	result.Remaining = remaining

	if result.Synced > 0 {
		s.stampLastSync()
	}
	s.debug.LogSync("drain", fmt.Sprintf("synced=%d rejected=%d remaining=%d", result.Synced, result.Rejected, result.Remaining))

	return result, nil
}

// reconcile updates the owner's aggregate after a SYNCED transition.
// Best-effort: the record is already safe remotely, so a metrics failure
// must not fail the sync.
func (s *Scheduler) reconcile(ctx context.Context, a *Assessment) {
	if s.reconciler == nil {
		return
	}
	if _, err := s.reconciler.Reconcile(ctx, a); err != nil {
		s.debug.LogError("reconcile", err)
	}
}

func (s *Scheduler) stampLastSync() {
	if err := s.store.SetMetadata("last_sync", time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		s.debug.LogError("last_sync", err)
	}
}
