package pulse

import (
	"context"
	"sync"
	"time"
)

// Monitor tracks Harbor reachability. It is the single writer of the
// process-wide ConnectionState; everything else reads through it.
//
// A successful probe requires both a transport-level success and a
// well-formed health payload. A captive portal answering 200 with an HTML
// page is unreachable, not reachable. Repeated probe failures flip the
// monitor into a visible degraded state; the monitor never fabricates a
// successful probe result to unblock callers.
type Monitor struct {
	remote        RemoteService
	probeTimeout  time.Duration
	degradedAfter int
	debug         *DebugLogger

	mu          sync.Mutex
	state       ConnectionState
	failures    int
	subscribers map[int]func(ConnectionState)
	nextSubID   int
	started     bool
	stop        chan struct{}
	done        chan struct{}
}

// NewMonitor creates a monitor probing remote's health endpoint.
// probeTimeout bounds each probe; degradedAfter is the number of
// consecutive failures before the degraded flag is raised.
func NewMonitor(remote RemoteService, probeTimeout time.Duration, degradedAfter int) *Monitor {
	if probeTimeout <= 0 {
		probeTimeout = 4 * time.Second
	}
	if degradedAfter < 1 {
		degradedAfter = 3
	}
	return &Monitor{
		remote:        remote,
		probeTimeout:  probeTimeout,
		degradedAfter: degradedAfter,
		subscribers:   make(map[int]func(ConnectionState)),
	}
}

// WithDebugLogger attaches a debug logger.
func (m *Monitor) WithDebugLogger(logger *DebugLogger) *Monitor {
	m.debug = logger
	return m
}

// IsReachable returns the last known reachability without blocking.
func (m *Monitor) IsReachable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Reachable
}

// State returns a copy of the current connection state.
func (m *Monitor) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Degraded reports whether probing has failed enough consecutive times
// that the client should surface a degraded/offline mode to the user.
func (m *Monitor) Degraded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Degraded
}

// CheckNow actively probes the health endpoint and updates the state.
// Returns the new reachability. The probe error is returned for diagnosis
// but an unreachable result is not itself an error.
func (m *Monitor) CheckNow(ctx context.Context) (bool, error) {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	_, err := m.remote.Health(probeCtx)
	reachable := err == nil
	if err != nil {
		m.debug.LogError("probe", err)
	}

	m.setReachable(reachable)
	return reachable, err
}

// OnChange registers a callback delivered on every reachability transition.
// The returned function unsubscribes. Callbacks run on the probing
// goroutine and must not block.
func (m *Monitor) OnChange(fn func(ConnectionState)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}
}

// Start begins periodic probing. Stop must be called to release the
// goroutine. Calling Start twice is a no-op.
func (m *Monitor) Start(interval time.Duration) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	stop, done := m.stop, m.done
	m.mu.Unlock()

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_, _ = m.CheckNow(context.Background())
			}
		}
	}()
}

// Stop halts periodic probing and waits for the probe goroutine to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	stop, done := m.stop, m.done
	m.mu.Unlock()

	close(stop)
	<-done
}

func (m *Monitor) setReachable(reachable bool) {
	m.mu.Lock()

	previous := m.state.Reachable
	if reachable {
		m.failures = 0
	} else {
		m.failures++
	}

	m.state = ConnectionState{
		Reachable:     reachable,
		Degraded:      !reachable && m.failures >= m.degradedAfter,
		LastCheckedAt: time.Now().UTC(),
	}
	state := m.state

	var fns []func(ConnectionState)
	if previous != reachable {
		fns = make([]func(ConnectionState), 0, len(m.subscribers))
		for _, fn := range m.subscribers {
			fns = append(fns, fn)
		}
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}
