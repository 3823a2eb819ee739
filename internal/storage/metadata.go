package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codebuildervaibhav/recording-processor/internal/types"
)

// ErrRecordingNotFound is returned when no row exists for a filename
var ErrRecordingNotFound = errors.New("recording not found")

// Recording is the persisted view of a recording session
type Recording struct {
	Filename           string       `json:"filename"`
	SessionID          string       `json:"session_id"`
	UserID             string       `json:"user_id"`
	Plan               types.Plan   `json:"plan"`
	State              types.State  `json:"state"`
	Reason             types.Reason `json:"reason,omitempty"`
	SkipReason         types.Reason `json:"skip_reason,omitempty"`
	SizeBytes          int64        `json:"size_bytes"`
	Transcript         string       `json:"transcript,omitempty"`
	SummaryTitle       string       `json:"summary_title,omitempty"`
	SummaryDescription string       `json:"summary_description,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// MetadataDB handles SQLite database operations
type MetadataDB struct {
	db *sql.DB
}

// NewMetadataDB creates a new metadata database
func NewMetadataDB(dbPath string) (*MetadataDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; pipelines for different recordings share this handle
	db.SetMaxOpenConns(1)

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS recordings (
		filename TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		plan TEXT NOT NULL DEFAULT 'FREE',
		state TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		skip_reason TEXT NOT NULL DEFAULT '',
		size_bytes INTEGER NOT NULL DEFAULT 0,
		transcript TEXT NOT NULL DEFAULT '',
		summary_title TEXT NOT NULL DEFAULT '',
		summary_description TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_recordings_state ON recordings(state);
	CREATE INDEX IF NOT EXISTS idx_recordings_updated_at ON recordings(updated_at);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &MetadataDB{db: db}, nil
}

// SaveRecording inserts or replaces the row for rec.Filename.
// created_at is kept from the first insert.
func (mdb *MetadataDB) SaveRecording(rec Recording) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	query := `
	INSERT INTO recordings (filename, session_id, user_id, plan, state, reason, skip_reason, size_bytes,
		transcript, summary_title, summary_description, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(filename) DO UPDATE SET
		session_id = excluded.session_id,
		user_id = excluded.user_id,
		plan = excluded.plan,
		state = excluded.state,
		reason = excluded.reason,
		skip_reason = excluded.skip_reason,
		size_bytes = excluded.size_bytes,
		transcript = excluded.transcript,
		summary_title = excluded.summary_title,
		summary_description = excluded.summary_description,
		updated_at = excluded.updated_at
	`

	_, err := mdb.db.Exec(query, rec.Filename, rec.SessionID, rec.UserID, string(rec.Plan), string(rec.State),
		string(rec.Reason), string(rec.SkipReason), rec.SizeBytes, rec.Transcript, rec.SummaryTitle,
		rec.SummaryDescription, rec.CreatedAt.UTC(), now)
	if err != nil {
		return fmt.Errorf("failed to save recording %s: %w", rec.Filename, err)
	}

	return nil
}

// UpdateState records a state change for filename
func (mdb *MetadataDB) UpdateState(filename string, state types.State, reason types.Reason) error {
	res, err := mdb.db.Exec(`UPDATE recordings SET state = ?, reason = ?, updated_at = ? WHERE filename = ?`,
		string(state), string(reason), time.Now().UTC(), filename)
	if err != nil {
		return fmt.Errorf("failed to update recording %s: %w", filename, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRecordingNotFound
	}
	return nil
}

const recordingColumns = `filename, session_id, user_id, plan, state, reason, skip_reason, size_bytes,
	transcript, summary_title, summary_description, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecording(row rowScanner) (Recording, error) {
	var (
		rec                             Recording
		plan, state, reason, skipReason string
	)
	err := row.Scan(&rec.Filename, &rec.SessionID, &rec.UserID, &plan, &state, &reason, &skipReason,
		&rec.SizeBytes, &rec.Transcript, &rec.SummaryTitle, &rec.SummaryDescription, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return Recording{}, err
	}
	rec.Plan = types.Plan(plan)
	rec.State = types.State(state)
	rec.Reason = types.Reason(reason)
	rec.SkipReason = types.Reason(skipReason)
	return rec, nil
}

// GetRecording retrieves the row for filename
func (mdb *MetadataDB) GetRecording(filename string) (Recording, error) {
	row := mdb.db.QueryRow(`SELECT `+recordingColumns+` FROM recordings WHERE filename = ?`, filename)

	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Recording{}, ErrRecordingNotFound
	}
	if err != nil {
		return Recording{}, fmt.Errorf("failed to get recording: %w", err)
	}
	return rec, nil
}

// ListRecordings returns the most recently updated recordings, optionally
// filtered by state
func (mdb *MetadataDB) ListRecordings(state types.State, limit int) ([]Recording, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		rows *sql.Rows
		err  error
	)
	if state == "" {
		rows, err = mdb.db.Query(`SELECT `+recordingColumns+` FROM recordings ORDER BY updated_at DESC LIMIT ?`, limit)
	} else {
		rows, err = mdb.db.Query(`SELECT `+recordingColumns+` FROM recordings WHERE state = ? ORDER BY updated_at DESC LIMIT ?`,
			string(state), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	defer rows.Close()

	recordings := []Recording{}
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recording: %w", err)
		}
		recordings = append(recordings, rec)
	}

	return recordings, rows.Err()
}

// Completed reports whether filename has a COMPLETE row
func (mdb *MetadataDB) Completed(filename string) bool {
	rec, err := mdb.GetRecording(filename)
	return err == nil && rec.State == types.StateComplete
}

// Tracked reports whether filename has a row that has not completed. The
// artifact of such a recording is kept for recovery.
func (mdb *MetadataDB) Tracked(filename string) bool {
	rec, err := mdb.GetRecording(filename)
	if err != nil {
		if !errors.Is(err, ErrRecordingNotFound) {
			log.Printf("Error checking recording %s: %v", filename, err)
			// keep the file when unsure
			return true
		}
		return false
	}
	return rec.State != types.StateComplete
}

// Close closes the database connection
func (mdb *MetadataDB) Close() error {
	return mdb.db.Close()
}
