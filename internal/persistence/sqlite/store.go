package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/StepsArtworks/rollcall/internal/persistence"
	_ "modernc.org/sqlite"
)

// Store implements persistence.LocalStore on top of a SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open connects to the SQLite database identified by dsn.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", dsn, err)
	}
	// The driver is in-process; a single writer avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate creates the schema when absent. Safe to call on every start.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS rosters (
			department TEXT NOT NULL,
			day        TEXT NOT NULL,
			payload    TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (department, day)
		)`,
		`CREATE TABLE IF NOT EXISTS submissions (
			day        TEXT PRIMARY KEY,
			payload    TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS artifacts (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}
	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("sqlite: migrate: %w", err)
		}
	}
	return nil
}

// SaveRoster stores the flattened employee list for a department and day,
// replacing any previous entry for the same key.
func (s *Store) SaveRoster(ctx context.Context, department, day string, employees []persistence.EmployeeRecord) error {
	payload, err := json.Marshal(employees)
	if err != nil {
		return fmt.Errorf("sqlite: encode roster: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rosters (department, day, payload, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (department, day) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		department, day, string(payload), s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("sqlite: save roster: %w", err)
	}
	return nil
}

// GetRoster retrieves the stored employee list for a department and day.
func (s *Store) GetRoster(ctx context.Context, department, day string) ([]persistence.EmployeeRecord, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM rosters WHERE department = ? AND day = ?`,
		department, day).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get roster: %w", err)
	}

	var employees []persistence.EmployeeRecord
	if err := json.Unmarshal([]byte(payload), &employees); err != nil {
		return nil, fmt.Errorf("sqlite: decode roster: %w", err)
	}
	return employees, nil
}

// SaveSubmissions stores the full submission list for a day.
func (s *Store) SaveSubmissions(ctx context.Context, day string, submissions []persistence.SubmissionRecord) error {
	payload, err := json.Marshal(submissions)
	if err != nil {
		return fmt.Errorf("sqlite: encode submissions: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO submissions (day, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (day) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		day, string(payload), s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("sqlite: save submissions: %w", err)
	}
	return nil
}

// GetSubmissions retrieves the submission list stored for a day.
func (s *Store) GetSubmissions(ctx context.Context, day string) ([]persistence.SubmissionRecord, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM submissions WHERE day = ?`, day).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get submissions: %w", err)
	}

	var submissions []persistence.SubmissionRecord
	if err := json.Unmarshal([]byte(payload), &submissions); err != nil {
		return nil, fmt.Errorf("sqlite: decode submissions: %w", err)
	}
	return submissions, nil
}

// PutArtifact stores or replaces a key/value artifact.
func (s *Store) PutArtifact(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("sqlite: put artifact: %w", err)
	}
	return nil
}

// GetArtifact retrieves an artifact value by key.
func (s *Store) GetArtifact(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM artifacts WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", persistence.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: get artifact: %w", err)
	}
	return value, nil
}

// DeleteArtifact removes a single artifact. Missing keys are not an error.
func (s *Store) DeleteArtifact(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite: delete artifact: %w", err)
	}
	return nil
}

// DeleteArtifactsByPrefix bulk-removes every artifact whose key starts with
// the prefix. Used to clear identity-library-owned keys at sign-out.
func (s *Store) DeleteArtifactsByPrefix(ctx context.Context, prefix string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE key LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%"); err != nil {
		return fmt.Errorf("sqlite: delete artifacts by prefix: %w", err)
	}
	return nil
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
