package pulse

import "time"

// QuestionType classifies what an assessment question measures.
type QuestionType string

const (
	QuestionStress   QuestionType = "stress"
	QuestionAnxiety  QuestionType = "anxiety"
	QuestionMood     QuestionType = "mood"
	QuestionSleep    QuestionType = "sleep"
	QuestionPhysical QuestionType = "physical"
	QuestionEnergy   QuestionType = "energy"
)

// ValidQuestionTypes returns all valid question types.
func ValidQuestionTypes() []QuestionType {
	return []QuestionType{
		QuestionStress,
		QuestionAnxiety,
		QuestionMood,
		QuestionSleep,
		QuestionPhysical,
		QuestionEnergy,
	}
}

// IsValid checks if the question type is known.
func (q QuestionType) IsValid() bool {
	for _, valid := range ValidQuestionTypes() {
		if q == valid {
			return true
		}
	}
	return false
}

// Response is a single answered assessment question.
// Immutable once recorded; Score is the raw value in [0, 10].
type Response struct {
	QuestionID int          `json:"question_id"`
	Type       QuestionType `json:"type"`
	Score      float64      `json:"score"`
}

// SyncState tracks an assessment record's position in the sync lifecycle.
type SyncState string

const (
	// StatePending means the record is queued locally awaiting transmission.
	StatePending SyncState = "PENDING"
	// StateSyncing means a transmission attempt is in flight. Never persisted;
	// a failed attempt reverts to PENDING with the attempt counter bumped.
	StateSyncing SyncState = "SYNCING"
	// StateSynced is terminal: the remote accepted the record and it has been
	// removed from the local queue.
	StateSynced SyncState = "SYNCED"
)

// Assessment is the unit of sync work: one completed check-in.
type Assessment struct {
	// LocalID is generated client-side (ULID), stable for the record's
	// lifetime and never reused. Harbor deduplicates on it.
	LocalID       string     `json:"local_id"`
	UserID        string     `json:"user_id"`
	Responses     []Response `json:"responses"`
	CombinedScore float64    `json:"combined_score"`
	Symptoms      []string   `json:"symptoms,omitempty"`
	Triggers      []string   `json:"triggers,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	State         SyncState  `json:"state"`
	AttemptCount  int        `json:"attempt_count"`
}

// Band is the qualitative score band shown to the user.
type Band string

const (
	BandLow      Band = "low"
	BandModerate Band = "moderate"
	BandHigh     Band = "high"
)

// CheckInParams contains the inputs for completing an assessment.
type CheckInParams struct {
	UserID    string     `json:"user_id"`
	Responses []Response `json:"responses"`
	Symptoms  []string   `json:"symptoms,omitempty"`
	Triggers  []string   `json:"triggers,omitempty"`
	Notes     string     `json:"notes,omitempty"`
}

// CheckInStatus describes where a completed assessment ended up.
type CheckInStatus string

const (
	// CheckInSynced means the record was accepted remotely right away.
	CheckInSynced CheckInStatus = "synced"
	// CheckInQueued means the record was saved locally and will sync later.
	CheckInQueued CheckInStatus = "queued"
)

// CheckInResult is returned by Client.CompleteAssessment.
type CheckInResult struct {
	Assessment *Assessment   `json:"assessment"`
	Status     CheckInStatus `json:"status"`
	Band       Band          `json:"band"`
}

// UserMetrics is the per-user aggregate maintained after successful syncs.
type UserMetrics struct {
	UserID             string     `json:"user_id"`
	LastAssessmentDate time.Time  `json:"last_assessment_date"`
	StressLevel        float64    `json:"stress_level"`
	StreakDays         int        `json:"streak_days"`
	FirstCheckInDate   *time.Time `json:"first_check_in_date,omitempty"`

	// Source reports whether the values are remote-confirmed or a local
	// best-effort fallback computed while Harbor was unreachable.
	Source MetricsSource `json:"source,omitempty"`
}

// MetricsSource distinguishes remote-confirmed aggregates from local fallbacks.
type MetricsSource string

const (
	MetricsRemote MetricsSource = "remote"
	MetricsLocal  MetricsSource = "local"
)

// MetricsPatch is an idempotent partial update applied to a user aggregate.
type MetricsPatch struct {
	LastAssessmentDate time.Time  `json:"last_assessment_date"`
	StressLevel        float64    `json:"stress_level"`
	StreakDays         int        `json:"streak_days"`
	FirstCheckInDate   *time.Time `json:"first_check_in_date,omitempty"`
}

// ConnectionState is the monitor's last known view of Harbor reachability.
// Single writer (the Monitor), many readers.
type ConnectionState struct {
	Reachable     bool      `json:"reachable"`
	Degraded      bool      `json:"degraded"`
	LastCheckedAt time.Time `json:"last_checked_at"`
}

// DrainResult summarizes one queue drain.
type DrainResult struct {
	// Synced counts records accepted by Harbor and removed from the queue.
	Synced int `json:"synced"`
	// Rejected counts records Harbor rejected permanently; they are removed
	// from the queue since retrying cannot succeed.
	Rejected int `json:"rejected"`
	// Remaining counts records still queued after the drain.
	Remaining int `json:"remaining"`
	// Coalesced is true when this trigger was a no-op because another drain
	// was already in flight.
	Coalesced bool `json:"coalesced,omitempty"`
}

// QueueStats describes the local queue for UI badges and diagnostics.
type QueueStats struct {
	Queued        int       `json:"queued"`
	Stalled       int       `json:"stalled"`
	LastSync      time.Time `json:"last_sync"`
	SchemaVersion string    `json:"schema_version"`
}

// HealthStatus reports client health.
type HealthStatus struct {
	Healthy         bool   `json:"healthy"`
	StoreOK         bool   `json:"store_ok"`
	HarborReachable bool   `json:"harbor_reachable"`
	Degraded        bool   `json:"degraded"`
	Error           string `json:"error,omitempty"`
}
