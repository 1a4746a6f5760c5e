package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Database represents the SQLite database connection
type Database struct {
	db     *sql.DB
	logger *logrus.Logger
}

// Attempt is the per-profile outcome record persisted by the sink.
// Exactly one is written per profile per run, regardless of failure point.
type Attempt struct {
	ID              int       `json:"id"`
	RunID           string    `json:"run_id"`
	ProfileID       string    `json:"profile_id"`
	URL             string    `json:"url"`
	Success         bool      `json:"success"`
	DurationMs      int64     `json:"duration_ms"`
	MessageButton   string    `json:"message_button_present"` // Yes | No
	MessageSent     string    `json:"message_sent"`           // Yes | No
	Error           string    `json:"error,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Session is a persisted cookie artifact for one account identity.
type Session struct {
	Identity string    `json:"identity"`
	Cookies  []byte    `json:"cookies"`
	SavedAt  time.Time `json:"saved_at"`
}

// NewDatabase creates a new database connection
func NewDatabase(dbPath string, logger *logrus.Logger) (*Database, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	database := &Database{
		db:     db,
		logger: logger,
	}

	if err := database.initTables(); err != nil {
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	logger.Info("Database initialized successfully")
	return database, nil
}

// initTables creates all necessary tables
func (d *Database) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			identity TEXT PRIMARY KEY,
			cookies TEXT NOT NULL,
			saved_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			profile_id TEXT NOT NULL,
			url TEXT NOT NULL,
			success INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			message_button TEXT NOT NULL,
			message_sent TEXT NOT NULL,
			error TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_run_id ON attempts(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_created_at ON attempts(created_at)`,
	}

	for _, query := range queries {
		if _, err := d.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %s, error: %w", query, err)
		}
	}

	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// SaveSession stores the cookie artifact for an identity, replacing any
// prior value. There is at most one artifact per identity.
func (d *Database) SaveSession(identity string, cookies []byte) error {
	query := `INSERT INTO sessions (identity, cookies, saved_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			  ON CONFLICT(identity) DO UPDATE SET cookies = excluded.cookies, saved_at = CURRENT_TIMESTAMP`

	if _, err := d.db.Exec(query, identity, string(cookies)); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	d.logger.WithField("identity", identity).Debug("Session saved")
	return nil
}

// LoadSession returns the most recent cookie artifact for an identity.
// A missing artifact is a valid, expected state and returns found=false.
func (d *Database) LoadSession(identity string) ([]byte, bool, error) {
	query := `SELECT cookies FROM sessions WHERE identity = ?`

	var cookies string
	err := d.db.QueryRow(query, identity).Scan(&cookies)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load session: %w", err)
	}

	return []byte(cookies), true, nil
}

// AppendAttempt appends one outcome record. The attempts table is
// append-only; records are never updated.
func (d *Database) AppendAttempt(attempt *Attempt) error {
	query := `INSERT INTO attempts (run_id, profile_id, url, success, duration_ms, message_button, message_sent, error, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := d.db.Exec(query, attempt.RunID, attempt.ProfileID, attempt.URL, attempt.Success,
		attempt.DurationMs, attempt.MessageButton, attempt.MessageSent, attempt.Error, attempt.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append attempt: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get attempt ID: %w", err)
	}

	attempt.ID = int(id)
	d.logger.WithFields(logrus.Fields{
		"profile_id": attempt.ProfileID,
		"success":    attempt.Success,
	}).Debug("Attempt recorded")
	return nil
}

// GetAttemptsByRun returns a run's outcome records in emission order.
func (d *Database) GetAttemptsByRun(runID string) ([]*Attempt, error) {
	query := `SELECT id, run_id, profile_id, url, success, duration_ms, message_button, message_sent, COALESCE(error, ''), created_at
			  FROM attempts WHERE run_id = ? ORDER BY id`

	rows, err := d.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*Attempt
	for rows.Next() {
		var a Attempt
		err := rows.Scan(&a.ID, &a.RunID, &a.ProfileID, &a.URL, &a.Success, &a.DurationMs,
			&a.MessageButton, &a.MessageSent, &a.Error, &a.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempts = append(attempts, &a)
	}

	return attempts, rows.Err()
}

// CountSentOn returns the number of messages marked sent on the given day.
func (d *Database) CountSentOn(date time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM attempts WHERE message_sent = 'Yes' AND DATE(created_at) = DATE(?)`

	var count int
	if err := d.db.QueryRow(query, date).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sent messages: %w", err)
	}

	return count, nil
}

// GetDailyStats retrieves daily statistics
func (d *Database) GetDailyStats(date time.Time) (map[string]int, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM attempts WHERE DATE(created_at) = DATE(?)) as attempts_total,
			(SELECT COUNT(*) FROM attempts WHERE success = 1 AND DATE(created_at) = DATE(?)) as attempts_succeeded,
			(SELECT COUNT(*) FROM attempts WHERE message_sent = 'Yes' AND DATE(created_at) = DATE(?)) as messages_sent
	`

	row := d.db.QueryRow(query, date, date, date)
	var total, succeeded, sent int
	if err := row.Scan(&total, &succeeded, &sent); err != nil {
		return nil, fmt.Errorf("failed to get daily stats: %w", err)
	}

	stats := map[string]int{
		"attempts_total":     total,
		"attempts_succeeded": succeeded,
		"messages_sent":      sent,
	}

	return stats, nil
}
