package jobregistry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteDriver = "sqlite"

// SQLiteStore persists records in a SQLite database. It suits batch runs
// that track many jobs and need indexed lookups by state.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Registry = (*SQLiteStore)(nil)

// OpenSQLite opens (and creates if needed) a registry database at path.
// Use ":memory:" for an ephemeral store.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("job registry database path is required")
	}

	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(filepath.Clean(path)); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create registry directory: %w", err)
			}
		}
		dsn = "file:" + filepath.Clean(path)
	}

	db, err := sql.Open(sqliteDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open job registry: %w", err)
	}
	// Keep a single connection; this also keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping job registry: %w", err)
	}
	if path != ":memory:" {
		var journalMode string
		if err := db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Timestamps are stored as Unix nanoseconds so ORDER BY is time order.
func migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			job_id TEXT PRIMARY KEY,
			product TEXT NOT NULL,
			source TEXT,
			state TEXT NOT NULL,
			record TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate job registry: %w", err)
		}
	}
	return tx.Commit()
}

// Put upserts rec, stamping CreatedAt (if unset) and UpdatedAt.
func (s *SQLiteStore) Put(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("job record is nil")
	}
	if strings.TrimSpace(rec.JobID) == "" {
		return fmt.Errorf("job_id is required")
	}
	stamp(rec, s.now())

	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal job record: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (job_id, product, source, state, record, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			product = excluded.product,
			source = excluded.source,
			state = excluded.state,
			record = excluded.record,
			updated_at = excluded.updated_at`,
		rec.JobID, rec.Product, rec.Source, string(rec.State), string(b),
		rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert job %s: %w", rec.JobID, err)
	}
	return nil
}

// Get loads the record for jobID.
func (s *SQLiteStore) Get(ctx context.Context, jobID string) (*Record, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM jobs WHERE job_id = ?`, jobID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("parse job %s: %w", jobID, err)
	}
	return &rec, nil
}

// List returns all records, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	return s.query(ctx, `SELECT record FROM jobs ORDER BY created_at DESC, job_id`)
}

// ListByState returns records in the given state, newest first.
func (s *SQLiteStore) ListByState(ctx context.Context, state State) ([]Record, error) {
	return s.query(ctx, `SELECT record FROM jobs WHERE state = ? ORDER BY created_at DESC, job_id`, string(state))
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("parse job: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes the record for jobID.
func (s *SQLiteStore) Delete(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE job_id = ?`, jobID)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", jobID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
