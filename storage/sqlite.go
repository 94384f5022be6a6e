// Package storage records training runs in a local sqlite database.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	DEFAULT_DB_PATH = "~/.qpath/runs.db"
	DEFAULT_LIMIT   = 20
	timeLayout      = "2006-01-02 15:04:05"
)

// Store holds the run history database.
type Store struct {
	db *sql.DB
}

// RunRecord summarizes one training run: the grid it trained on, its
// hyperparameters and the greedy path it produced.
type RunRecord struct {
	ID                int64
	Size              int
	HazardProbability float64
	Seed              int64
	Episodes          int
	Alpha             float64
	Gamma             float64
	Epsilon           float64
	// PathSteps is -1 when no path was extracted.
	PathSteps int
	Converged bool
	Duration  time.Duration
	CreatedAt time.Time
}

// Open creates or opens the database at dbPath, expanding a leading ~, and
// migrates its schema.
func Open(dbPath string) (*Store, error) {
	if dbPath != "" && dbPath[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("storage: cannot expand home directory: %w", err)
		}
		dbPath = filepath.Join(home, dbPath[1:])
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: cannot create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: cannot connect to database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migration failed: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			size INTEGER NOT NULL,
			hazard_probability REAL NOT NULL,
			seed INTEGER NOT NULL,
			episodes INTEGER NOT NULL,
			alpha REAL NOT NULL,
			gamma REAL NOT NULL,
			epsilon REAL NOT NULL,
			path_steps INTEGER NOT NULL,
			converged INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_runs_size ON runs(size);
	`)
	return err
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveRun inserts the run and returns its id.
func (s *Store) SaveRun(run RunRecord) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO runs
		 (size, hazard_probability, seed, episodes, alpha, gamma, epsilon, path_steps, converged, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Size,
		run.HazardProbability,
		run.Seed,
		run.Episodes,
		run.Alpha,
		run.Gamma,
		run.Epsilon,
		run.PathSteps,
		run.Converged,
		run.Duration.Milliseconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("storage: cannot save run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("storage: cannot get inserted ID: %w", err)
	}
	return id, nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = DEFAULT_LIMIT
	}

	rows, err := s.db.Query(
		`SELECT id, size, hazard_probability, seed, episodes, alpha, gamma, epsilon,
		        path_steps, converged, duration_ms, created_at
		 FROM runs
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			run        RunRecord
			durationMs int64
			createdAt  any
		)
		if err := rows.Scan(
			&run.ID,
			&run.Size,
			&run.HazardProbability,
			&run.Seed,
			&run.Episodes,
			&run.Alpha,
			&run.Gamma,
			&run.Epsilon,
			&run.PathSteps,
			&run.Converged,
			&durationMs,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		run.Duration = time.Duration(durationMs) * time.Millisecond
		run.CreatedAt = parseTime(createdAt)
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}
	return runs, nil
}

// The driver may return datetimes as either time.Time or text.
func parseTime(v any) (t time.Time) {
	switch v := v.(type) {
	case time.Time:
		t = v
	case string:
		if parsed, err := time.Parse(timeLayout, v); err == nil {
			t = parsed
		}
	}
	return
}
