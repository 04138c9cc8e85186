package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"credbak/internal/history/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Run is one recorded backup run.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	BucketCount int
	FileCount   int
	TotalBytes  int64
	ErrorCount  int
	Status      string
}

// Store keeps a persistent index of past backup runs in SQLite.
// It is bookkeeping only: the backup tree and its manifests remain the
// source of truth.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the run-history database in
// dataDir and migrates it to the latest schema.
// Pass ":memory:" as dataDir for an in-memory store in tests.
func Open(dataDir string) (*Store, error) {
	path := ":memory:"
	if dataDir != ":memory:" {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
		path = filepath.Join(dataDir, "history.db")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating history database: %w", err)
	}

	return &Store{db: db}, nil
}

// RecordRun inserts one completed run.
func (s *Store) RecordRun(run *Run) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, started_at, finished_at, bucket_count, file_count, total_bytes, error_count, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
		run.BucketCount,
		run.FileCount,
		run.TotalBytes,
		run.ErrorCount,
		run.Status,
	)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, bucket_count, file_count, total_bytes, error_count, status
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.BucketCount, &r.FileCount, &r.TotalBytes, &r.ErrorCount, &r.Status); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
