package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testRecord() *Assessment {
	return &Assessment{
		LocalID: "01TEST",
		UserID:  "alice",
		Responses: []Response{
			{QuestionID: 1, Type: QuestionStress, Score: 8},
		},
		CombinedScore: 8.0,
		CreatedAt:     time.Now().UTC(),
		State:         StatePending,
	}
}

func TestHarborClient_SubmitAssessment(t *testing.T) {
	var gotAuth, gotSource string
	var gotBody Assessment

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/assessments" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotSource = r.Header.Get("X-Pulse-Source-ID")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(SubmitReceipt{ID: "srv-1", ReceivedAt: time.Now().UTC()})
	}))
	defer server.Close()

	client := NewHarborClient(server.URL, "test-key", "test-device", 5*time.Second)

	receipt, err := client.SubmitAssessment(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("SubmitAssessment failed: %v", err)
	}
	if receipt.ID != "srv-1" {
		t.Errorf("unexpected receipt id: %s", receipt.ID)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("unexpected auth header: %s", gotAuth)
	}
	if gotSource != "test-device" {
		t.Errorf("unexpected source header: %s", gotSource)
	}
	if gotBody.LocalID != "01TEST" {
		t.Errorf("local id not transmitted: %+v", gotBody)
	}
}

func TestHarborClient_Submit4xxIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"responses out of range"}`, http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewHarborClient(server.URL, "test-key", "", 5*time.Second)

	_, err := client.SubmitAssessment(context.Background(), testRecord())
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsPermanent(err) {
		t.Errorf("422 must classify as permanent: %v", err)
	}

	var syncErr *SyncError
	if !errors.As(err, &syncErr) || syncErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected SyncError with status 422, got %v", err)
	}
}

func TestHarborClient_Submit5xxIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewHarborClient(server.URL, "test-key", "", 5*time.Second)

	_, err := client.SubmitAssessment(context.Background(), testRecord())
	if !IsTransient(err) {
		t.Errorf("502 must classify as transient: %v", err)
	}
}

func TestHarborClient_SubmitMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 200 with a captive-portal style HTML body.
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>Welcome to Airport WiFi</body></html>"))
	}))
	defer server.Close()

	client := NewHarborClient(server.URL, "test-key", "", 5*time.Second)

	_, err := client.SubmitAssessment(context.Background(), testRecord())
	if err == nil {
		t.Fatal("malformed 200 body must be an error")
	}
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("expected ErrMalformedResponse, got %v", err)
	}
	if !IsTransient(err) {
		t.Error("malformed responses are treated as transient")
	}
}

func TestHarborClient_SubmitMissingReceiptID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"received_at":"2026-09-01T10:00:00Z"}`))
	}))
	defer server.Close()

	client := NewHarborClient(server.URL, "test-key", "", 5*time.Second)

	_, err := client.SubmitAssessment(context.Background(), testRecord())
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("a receipt without an id is malformed, got %v", err)
	}
}

func TestHarborClient_GetMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/metrics/alice" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(UserMetrics{
			UserID:             "alice",
			StreakDays:         4,
			StressLevel:        5.5,
			LastAssessmentDate: time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC),
		})
	}))
	defer server.Close()

	client := NewHarborClient(server.URL, "test-key", "", 5*time.Second)

	metrics, err := client.GetMetrics(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetMetrics failed: %v", err)
	}
	if metrics.StreakDays != 4 {
		t.Errorf("unexpected streak: %d", metrics.StreakDays)
	}
	if metrics.Source != MetricsRemote {
		t.Errorf("fetched metrics must be marked remote, got %s", metrics.Source)
	}
}

func TestHarborClient_GetMetricsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewHarborClient(server.URL, "test-key", "", 5*time.Second)

	_, err := client.GetMetrics(context.Background(), "newuser")
	if !errors.Is(err, ErrNoMetrics) {
		t.Errorf("404 means fresh aggregate, expected ErrNoMetrics, got %v", err)
	}
}

func TestHarborClient_PatchMetrics(t *testing.T) {
	var gotPatch MetricsPatch

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/v1/metrics/alice" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotPatch)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewHarborClient(server.URL, "test-key", "", 5*time.Second)

	err := client.PatchMetrics(context.Background(), "alice", MetricsPatch{StreakDays: 5, StressLevel: 4.2})
	if err != nil {
		t.Fatalf("PatchMetrics failed: %v", err)
	}
	if gotPatch.StreakDays != 5 {
		t.Errorf("patch not transmitted: %+v", gotPatch)
	}
}

func TestHarborClient_Health(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/health" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"ok":true,"version":"2.3.1"}`))
	}))
	defer server.Close()

	client := NewHarborClient(server.URL, "test-key", "", 5*time.Second)

	health, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if !health.OK {
		t.Error("expected ok health")
	}
}

func TestHarborClient_HealthRejectsWellFormedFailure(t *testing.T) {
	// An HTTP 200 whose payload says not-ok is not a successful probe.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false}`))
	}))
	defer server.Close()

	client := NewHarborClient(server.URL, "test-key", "", 5*time.Second)

	if _, err := client.Health(context.Background()); err == nil {
		t.Error("ok=false must fail the probe")
	}
}

func TestHarborClient_HealthRejectsPortalBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>login required</html>"))
	}))
	defer server.Close()

	client := NewHarborClient(server.URL, "test-key", "", 5*time.Second)

	_, err := client.Health(context.Background())
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("portal body must fail as malformed, got %v", err)
	}
}

func TestHarborClient_TransportFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	client := NewHarborClient(server.URL, "test-key", "", time.Second)

	_, err := client.SubmitAssessment(context.Background(), testRecord())
	if !IsTransient(err) {
		t.Errorf("connection refused must classify as transient: %v", err)
	}
}
