// Package pulse is the offline-first assessment engine embedded by the
// wellness app's UI layer. It scores completed assessments, queues them
// durably while Harbor is unreachable, and reconciles the queue with
// Harbor exactly once when connectivity returns.
package pulse

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Client is the public surface of the assessment sync engine. The UI layer
// talks only to this type; it never manipulates queue entries directly.
type Client struct {
	config     Config
	store      *Store
	remote     RemoteService
	retry      *Retryer
	monitor    *Monitor
	reconciler *Reconciler
	scheduler  *Scheduler
	debug      *DebugLogger

	unsubscribe func()
}

// New creates a Pulse client. When cfg.HarborURL is empty the client runs
// offline-only: assessments queue locally and sync operations return
// ErrOffline.
func New(cfg Config) (*Client, error) {
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	debug, err := NewDebugLogger(cfg.Debug, cfg.DebugLogPath)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	store, err := NewStore(cfg.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	c := &Client{
		config: cfg,
		store:  store,
		retry:  NewRetryer(cfg.MaxAttempts, cfg.BaseDelay),
		debug:  debug,
	}

	if !cfg.IsOffline() {
		c.remote = NewHarborClient(cfg.HarborURL, cfg.APIKey, cfg.SourceID, cfg.SubmitTimeout).
			WithDebugLogger(debug)
		c.monitor = NewMonitor(c.remote, cfg.ProbeTimeout, cfg.DegradedAfter).
			WithDebugLogger(debug)
	}

	c.reconciler = NewReconciler(c.remote, store, c.retry, debug)
	c.scheduler = NewScheduler(store, c.remote, c.retry, c.monitor, c.reconciler, cfg.AttemptCeiling).
		WithDebugLogger(debug)

	if c.monitor != nil && cfg.AutoSync {
		// Drain whenever Harbor comes back, and once at start if it is
		// already up. The scheduler coalesces overlapping triggers.
		c.unsubscribe = c.monitor.OnChange(func(state ConnectionState) {
			if state.Reachable {
				go c.drainQuietly()
			}
		})
		c.monitor.Start(cfg.ProbeInterval)

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.ProbeTimeout)
			defer cancel()
			if reachable, _ := c.monitor.CheckNow(ctx); reachable {
				c.drainQuietly()
			}
		}()
	}

	return c, nil
}

// CompleteAssessment scores and submits a finished assessment. If Harbor
// is reachable the record syncs immediately; otherwise it is durably
// queued and the result reports CheckInQueued ("saved locally, will sync
// later"). A permanent rejection surfaces as an error and the record is
// not queued, since resubmitting the same data cannot succeed.
func (c *Client) CompleteAssessment(ctx context.Context, params CheckInParams) (*CheckInResult, error) {
	if params.UserID == "" {
		return nil, ErrMissingUserID
	}

	score, err := CombinedScore(params.Responses)
	if err != nil {
		return nil, err
	}

	record := &Assessment{
		LocalID:       ulid.Make().String(),
		UserID:        params.UserID,
		Responses:     params.Responses,
		CombinedScore: score,
		Symptoms:      params.Symptoms,
		Triggers:      params.Triggers,
		Notes:         params.Notes,
		CreatedAt:     time.Now().UTC(),
		State:         StatePending,
	}

	status, err := c.scheduler.Submit(ctx, record)
	if err != nil {
		return nil, err
	}

	return &CheckInResult{
		Assessment: record,
		Status:     status,
		Band:       BandFor(score),
	}, nil
}

// QueuedCount returns the number of assessments awaiting sync.
func (c *Client) QueuedCount() (int, error) {
	return c.store.Count()
}

// QueuedAssessments returns all queued assessments, oldest first.
func (c *Client) QueuedAssessments() ([]Assessment, error) {
	return c.store.Queued()
}

// SyncNow drains the queue immediately, including records past the
// attempt ceiling. This is the explicit user-triggered "sync now".
func (c *Client) SyncNow(ctx context.Context) (*DrainResult, error) {
	if c.remote == nil {
		return nil, ErrOffline
	}
	return c.scheduler.Drain(ctx, true)
}

// Metrics returns the owner's aggregate: remote-confirmed when Harbor
// answers, otherwise the last local snapshot marked MetricsLocal.
func (c *Client) Metrics(ctx context.Context, userID string) (*UserMetrics, error) {
	return c.reconciler.Current(ctx, userID)
}

// ConnectionState returns the monitor's current view of reachability.
// In offline-only mode the state is permanently unreachable.
func (c *Client) ConnectionState() ConnectionState {
	if c.monitor == nil {
		return ConnectionState{}
	}
	return c.monitor.State()
}

// Stats returns queue statistics for UI badges.
func (c *Client) Stats() (*QueueStats, error) {
	return c.store.Stats(c.config.AttemptCeiling)
}

// HealthCheck returns the health status of the client.
func (c *Client) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		StoreOK: true,
	}

	if _, err := c.store.Count(); err != nil {
		status.StoreOK = false
		status.Healthy = false
		status.Error = err.Error()
		return status
	}

	if c.monitor != nil {
		reachable, err := c.monitor.CheckNow(ctx)
		status.HarborReachable = reachable
		status.Degraded = c.monitor.Degraded()
		if err != nil && status.Error == "" {
			status.Error = err.Error()
		}
	}

	return status
}

// Close stops background work, attempts a final drain, and closes the
// store. Queued records that cannot be flushed stay durably queued for the
// next start.
func (c *Client) Close() error {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	if c.monitor != nil {
		c.monitor.Stop()
	}

	if c.remote != nil && c.config.AutoSync {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, _ = c.scheduler.Drain(ctx, false)
		cancel()
	}

	err := c.store.Close()
	_ = c.debug.Close()
	return err
}

func (c *Client) drainQuietly() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if _, err := c.scheduler.Drain(ctx, false); err != nil {
		c.debug.LogError("auto_drain", err)
	}
}
