package pulse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RemoteService abstracts HTTP communication with the Harbor backend.
// Implementations must be safe for concurrent use.
type RemoteService interface {
	// SubmitAssessment sends one assessment record. Harbor deduplicates on
	// the record's LocalID, so resubmission after an ambiguous failure is safe.
	SubmitAssessment(ctx context.Context, a *Assessment) (*SubmitReceipt, error)

	// GetMetrics fetches the authoritative aggregate for a user.
	// Returns ErrNoMetrics when the user has no aggregate yet; callers
	// create a fresh one rather than treating absence as failure.
	GetMetrics(ctx context.Context, userID string) (*UserMetrics, error)

	// PatchMetrics applies an idempotent partial update to a user aggregate.
	PatchMetrics(ctx context.Context, userID string, patch MetricsPatch) error

	// Health probes the lightweight health endpoint. A nil error requires
	// both a transport-level success and a well-formed payload; an HTTP 200
	// hiding a captive portal or error-shaped body is not healthy.
	Health(ctx context.Context) (*HealthResponse, error)
}

// SubmitReceipt is Harbor's acknowledgement of an accepted assessment.
type SubmitReceipt struct {
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
}

// HealthResponse is the Harbor health endpoint payload.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	Version string `json:"version,omitempty"`
}

// HarborClient implements RemoteService using net/http.
type HarborClient struct {
	baseURL    string
	apiKey     string
	sourceID   string
	httpClient *http.Client
	debug      *DebugLogger
}

// NewHarborClient creates a Harbor HTTP client.
// sourceID is optional; if non-empty, it's sent as X-Pulse-Source-ID for
// server-side observability.
func NewHarborClient(harborURL, apiKey, sourceID string, timeout time.Duration) *HarborClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HarborClient{
		baseURL:  strings.TrimSuffix(harborURL, "/"),
		apiKey:   apiKey,
		sourceID: sourceID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithHTTPClient sets a custom http.Client (for testing or custom timeouts).
func (c *HarborClient) WithHTTPClient(client *http.Client) *HarborClient {
	c.httpClient = client
	return c
}

// WithDebugLogger attaches a debug logger for request/response tracing.
func (c *HarborClient) WithDebugLogger(logger *DebugLogger) *HarborClient {
	c.debug = logger
	return c
}

func (c *HarborClient) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", "pulse-client/1.0")
	if strings.TrimSpace(c.sourceID) != "" {
		req.Header.Set("X-Pulse-Source-ID", c.sourceID)
	}
}

func newSyncError(op string, statusCode int, body []byte) *SyncError {
	msg := ""
	if len(body) > 0 && statusCode >= 400 {
		if len(body) > 200 {
			msg = string(body[:200]) + "..."
		} else {
			msg = string(body)
		}
	}
	return &SyncError{
		Operation:  op,
		StatusCode: statusCode,
		Err:        fmt.Errorf("HTTP %d: %s", statusCode, msg),
	}
}

func (c *HarborClient) SubmitAssessment(ctx context.Context, a *Assessment) (*SubmitReceipt, error) {
	body, err := json.Marshal(a)
	if err != nil {
		return nil, &SyncError{Operation: "submit_assessment", Err: err}
	}

	c.debug.LogRequest(http.MethodPost, c.baseURL+"/api/v1/assessments", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/assessments", bytes.NewReader(body))
	if err != nil {
		return nil, &SyncError{Operation: "submit_assessment", Err: err}
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.debug.LogError("submit_assessment", err)
		return nil, &SyncError{Operation: "submit_assessment", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(resp.Body)
	c.debug.LogResponse(resp.StatusCode, resp.Status, respBody)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, newSyncError("submit_assessment", resp.StatusCode, respBody)
	}

	var receipt SubmitReceipt
	if err := json.Unmarshal(respBody, &receipt); err != nil {
		return nil, &SyncError{
			Operation:  "submit_assessment",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %v", ErrMalformedResponse, err),
		}
	}
	if receipt.ID == "" {
		return nil, &SyncError{
			Operation:  "submit_assessment",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: missing id in receipt", ErrMalformedResponse),
		}
	}

	return &receipt, nil
}

func (c *HarborClient) GetMetrics(ctx context.Context, userID string) (*UserMetrics, error) {
	reqURL := fmt.Sprintf("%s/api/v1/metrics/%s", c.baseURL, url.PathEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &SyncError{Operation: "get_metrics", Err: err}
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.debug.LogError("get_metrics", err)
		return nil, &SyncError{Operation: "get_metrics", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		// Absence means "create a fresh aggregate", not an error condition.
		return nil, ErrNoMetrics
	}

	respBody, _ := io.ReadAll(resp.Body)
	c.debug.LogResponse(resp.StatusCode, resp.Status, respBody)

	if resp.StatusCode != http.StatusOK {
		return nil, newSyncError("get_metrics", resp.StatusCode, respBody)
	}

	var metrics UserMetrics
	if err := json.Unmarshal(respBody, &metrics); err != nil {
		return nil, &SyncError{
			Operation:  "get_metrics",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %v", ErrMalformedResponse, err),
		}
	}
	metrics.Source = MetricsRemote

	return &metrics, nil
}

func (c *HarborClient) PatchMetrics(ctx context.Context, userID string, patch MetricsPatch) error {
	body, err := json.Marshal(patch)
	if err != nil {
		return &SyncError{Operation: "patch_metrics", Err: err}
	}

	reqURL := fmt.Sprintf("%s/api/v1/metrics/%s", c.baseURL, url.PathEscape(userID))
	c.debug.LogRequest(http.MethodPut, reqURL, body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, reqURL, bytes.NewReader(body))
	if err != nil {
		return &SyncError{Operation: "patch_metrics", Err: err}
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.debug.LogError("patch_metrics", err)
		return &SyncError{Operation: "patch_metrics", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(resp.Body)
		return newSyncError("patch_metrics", resp.StatusCode, respBody)
	}

	return nil
}

func (c *HarborClient) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/health", nil)
	if err != nil {
		return nil, &SyncError{Operation: "health", Err: err}
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &SyncError{Operation: "health", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, newSyncError("health", resp.StatusCode, respBody)
	}

	var health HealthResponse
	if err := json.Unmarshal(respBody, &health); err != nil {
		return nil, &SyncError{
			Operation:  "health",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %v", ErrMalformedResponse, err),
		}
	}
	if !health.OK {
		return nil, &SyncError{
			Operation:  "health",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: service reports not ok", ErrMalformedResponse),
		}
	}

	return &health, nil
}
