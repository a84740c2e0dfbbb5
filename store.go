package pulse

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/tidewell/pulse/internal/store/migrations"
	_ "modernc.org/sqlite"
)

const schemaVersion = "1"

// storedTimeFormat is fixed-width so that lexicographic order on the TEXT
// column matches chronological order. RFC3339Nano drops trailing fractional
// zeros, which breaks that property at exact-second boundaries ("…:00Z"
// sorts after "…:00.5Z").
const storedTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store is the durable local queue for assessments awaiting transmission.
// It is scoped per installation, not per user: offline users may not have a
// verified identity yet, so rows carry the user ID for later attribution.
//
// All failures are wrapped in *StorageError so callers can tell a local
// storage problem apart from a sync failure.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewStore opens or creates the local queue database.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &StorageError{Operation: "create directory", Err: err}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &StorageError{Operation: "open database", Err: err}
	}

	// WAL mode so UI reads don't block queue writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, &StorageError{Operation: "enable WAL mode", Err: err}
	}

	store := &Store{db: db, path: path}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) migrate() error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return &StorageError{Operation: "set goose dialect", Err: err}
	}
	if err := goose.Up(s.db, "."); err != nil {
		return &StorageError{Operation: "run migrations", Err: err}
	}

	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', ?)
	`, schemaVersion)
	if err != nil {
		return &StorageError{Operation: "set schema version", Err: err}
	}
	return nil
}

// Enqueue inserts or replaces a pending assessment, keyed by LocalID.
// Re-enqueueing the same LocalID overwrites rather than duplicates, which
// makes retried enqueue paths idempotent.
func (s *Store) Enqueue(a *Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &StorageError{Operation: "enqueue", Err: ErrStoreClosed}
	}

	responses, err := json.Marshal(a.Responses)
	if err != nil {
		return &StorageError{Operation: "encode responses", Err: err}
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO queue
			(local_id, user_id, responses, combined_score, symptoms, triggers, notes, created_at, attempt_count, queued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.LocalID,
		a.UserID,
		string(responses),
		a.CombinedScore,
		joinTags(a.Symptoms),
		joinTags(a.Triggers),
		nullString(a.Notes),
		a.CreatedAt.UTC().Format(storedTimeFormat),
		a.AttemptCount,
		time.Now().UTC().Format(storedTimeFormat),
	)
	if err != nil {
		return &StorageError{Operation: "enqueue", Err: err}
	}

	return nil
}

// Queued returns all pending assessments, oldest created_at first.
// Queue ordering always follows the client-side completion time, not the
// time a row happened to be (re)written.
func (s *Store) Queued() ([]Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, &StorageError{Operation: "list", Err: ErrStoreClosed}
	}

	rows, err := s.db.Query(`
		SELECT local_id, user_id, responses, combined_score, symptoms, triggers, notes, created_at, attempt_count
		FROM queue
		ORDER BY created_at ASC, local_id ASC
	`)
	if err != nil {
		return nil, &StorageError{Operation: "list", Err: err}
	}
	defer rows.Close()

	var results []Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, &StorageError{Operation: "scan row", Err: err}
		}
		results = append(results, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Operation: "list", Err: err}
	}

	return results, nil
}

// Remove deletes one queued assessment. Removing an absent LocalID is a
// no-op: concurrent or re-entrant drains may race to remove the same row,
// and the loser must not fail.
func (s *Store) Remove(localID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &StorageError{Operation: "remove", Err: ErrStoreClosed}
	}

	if _, err := s.db.Exec(`DELETE FROM queue WHERE local_id = ?`, localID); err != nil {
		return &StorageError{Operation: "remove", Err: err}
	}
	return nil
}

// Count returns the number of queued assessments.
func (s *Store) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, &StorageError{Operation: "count", Err: ErrStoreClosed}
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM queue`).Scan(&n); err != nil {
		return 0, &StorageError{Operation: "count", Err: err}
	}
	return n, nil
}

// IncrementAttempt bumps the attempt counter after a failed transmission
// and returns the new count. Returns ErrNotFound if the row is gone, which
// a re-entrant drain treats as already handled.
func (s *Store) IncrementAttempt(localID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, &StorageError{Operation: "increment attempt", Err: ErrStoreClosed}
	}

	res, err := s.db.Exec(`UPDATE queue SET attempt_count = attempt_count + 1 WHERE local_id = ?`, localID)
	if err != nil {
		return 0, &StorageError{Operation: "increment attempt", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, &StorageError{Operation: "increment attempt", Err: err}
	}
	if affected == 0 {
		return 0, ErrNotFound
	}

	var n int
	if err := s.db.QueryRow(`SELECT attempt_count FROM queue WHERE local_id = ?`, localID).Scan(&n); err != nil {
		return 0, &StorageError{Operation: "increment attempt", Err: err}
	}
	return n, nil
}

// GetMetadata returns a metadata value, or "" when the key is absent.
func (s *Store) GetMetadata(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", &StorageError{Operation: "get metadata", Err: ErrStoreClosed}
	}

	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", &StorageError{Operation: "get metadata", Err: err}
	}
	return value, nil
}

// SetMetadata stores a metadata value, overwriting any previous one.
func (s *Store) SetMetadata(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &StorageError{Operation: "set metadata", Err: ErrStoreClosed}
	}

	_, err := s.db.Exec(`
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return &StorageError{Operation: "set metadata", Err: err}
	}
	return nil
}

// Stats returns queue statistics for UI badges.
// Stalled counts records at or past the given attempt ceiling.
func (s *Store) Stats(attemptCeiling int) (*QueueStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, &StorageError{Operation: "stats", Err: ErrStoreClosed}
	}

	var queued int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM queue`).Scan(&queued); err != nil {
		return nil, &StorageError{Operation: "stats", Err: err}
	}

	var stalled int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM queue WHERE attempt_count >= ?`, attemptCeiling).Scan(&stalled); err != nil {
		return nil, &StorageError{Operation: "stats", Err: err}
	}

	var lastSyncStr sql.NullString
	_ = s.db.QueryRow(`SELECT value FROM metadata WHERE key = 'last_sync'`).Scan(&lastSyncStr)

	var lastSync time.Time
	if lastSyncStr.Valid {
		lastSync, _ = time.Parse(time.RFC3339Nano, lastSyncStr.String)
	}

	return &QueueStats{
		Queued:        queued,
		Stalled:       stalled,
		LastSync:      lastSync,
		SchemaVersion: schemaVersion,
	}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

func scanAssessment(rows *sql.Rows) (*Assessment, error) {
	var (
		a         Assessment
		responses string
		symptoms  sql.NullString
		triggers  sql.NullString
		notes     sql.NullString
		createdAt string
	)

	err := rows.Scan(
		&a.LocalID,
		&a.UserID,
		&responses,
		&a.CombinedScore,
		&symptoms,
		&triggers,
		&notes,
		&createdAt,
		&a.AttemptCount,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(responses), &a.Responses); err != nil {
		return nil, fmt.Errorf("decode responses for %s: %w", a.LocalID, err)
	}
	if symptoms.Valid && symptoms.String != "" {
		a.Symptoms = strings.Split(symptoms.String, ",")
	}
	if triggers.Valid && triggers.String != "" {
		a.Triggers = strings.Split(triggers.String, ",")
	}
	if notes.Valid {
		a.Notes = notes.String
	}
	a.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at for %s: %w", a.LocalID, err)
	}
	a.State = StatePending

	return &a, nil
}

func joinTags(tags []string) *string {
	if len(tags) == 0 {
		return nil
	}
	joined := strings.Join(tags, ",")
	return &joined
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
